package vecstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/vector"
)

// Bolt stores each tower in its own bucket of an embedded bbolt file.
type Bolt struct {
	db  *bbolt.DB
	now func() time.Time
}

type boltRow struct {
	Vector    []float64       `json:"vector"`
	Metadata  domain.Metadata `json:"metadata"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// OpenBolt opens (or creates) the file at path and makes sure both buckets exist.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt vector store %q: %w", path, err)
	}
	store, err := NewBolt(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewBolt wraps an already opened database.
func NewBolt(db *bbolt.DB) (*Bolt, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, t := range []domain.EntityType{domain.EntityJob, domain.EntityUser} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucketName(t))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create vector buckets: %w", err)
	}
	return &Bolt{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Get(ctx context.Context, t domain.EntityType, id string) (vector.Vector, bool, error) {
	row, ok, err := b.row(ctx, t, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return row.Vector, true, nil
}

func (b *Bolt) GetMany(_ context.Context, t domain.EntityType, ids []string) (map[string]vector.Vector, error) {
	out := make(map[string]vector.Vector, len(ids))
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName(t)))
		if bucket == nil {
			return nil
		}
		for _, id := range ids {
			data := bucket.Get([]byte(id))
			if data == nil {
				continue
			}
			var row boltRow
			if err := json.Unmarshal(data, &row); err != nil {
				// unreadable rows are treated as absent
				continue
			}
			out[id] = vector.Normalize(row.Vector)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s vectors: %w", t, err)
	}
	return out, nil
}

func (b *Bolt) Metadata(ctx context.Context, t domain.EntityType, id string) (domain.Metadata, bool, error) {
	row, ok, err := b.row(ctx, t, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	if row.Metadata == nil {
		row.Metadata = domain.Metadata{}
	}
	return row.Metadata, true, nil
}

// List walks the bucket in key order.
func (b *Bolt) List(ctx context.Context, t domain.EntityType) ([]Entry, error) {
	var out []Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName(t)))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var row boltRow
			if err := json.Unmarshal(v, &row); err != nil {
				continue
			}
			out = append(out, Entry{
				Type:      t,
				ID:        string(k),
				Vector:    vector.Normalize(row.Vector),
				Metadata:  row.Metadata,
				UpdatedAt: row.UpdatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s vectors: %w", t, err)
	}
	return out, nil
}

func (b *Bolt) Upsert(_ context.Context, t domain.EntityType, id string, v vector.Vector, meta domain.Metadata) error {
	if err := checkKey(t, id); err != nil {
		return err
	}
	v = vector.Normalize(v)

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(bucketName(t)))
		if err != nil {
			return err
		}

		if data := bucket.Get([]byte(id)); data != nil {
			var existing boltRow
			if err := json.Unmarshal(data, &existing); err == nil {
				if sameRow(existing.Vector, v, existing.Metadata, meta) {
					return nil
				}
				if meta == nil {
					meta = existing.Metadata
				}
			}
		}
		if meta == nil {
			meta = domain.Metadata{}
		}

		encoded, err := json.Marshal(boltRow{Vector: v, Metadata: meta, UpdatedAt: b.now()})
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), encoded)
	})
	if err != nil {
		return fmt.Errorf("upsert %s vector %s: %w", t, id, err)
	}
	return nil
}

func (b *Bolt) row(_ context.Context, t domain.EntityType, id string) (*boltRow, bool, error) {
	var (
		row   boltRow
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName(t)))
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &row); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("read %s vector %s: %w", t, id, err)
	}
	if !found {
		return nil, false, nil
	}
	row.Vector = vector.Normalize(row.Vector)
	return &row, true, nil
}
