package vecstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/vector"
)

type embeddingRow struct {
	EntityType string          `gorm:"primaryKey;size:8"`
	EntityID   string          `gorm:"primaryKey"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
	Metadata   []byte          `gorm:"type:jsonb"`
	UpdatedAt  time.Time
}

func (embeddingRow) TableName() string {
	return "embedding_vectors"
}

// Postgres keeps both towers in one pgvector table keyed by (entity_type, entity_id).
type Postgres struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenPostgres connects with the given DSN, enables the vector extension and migrates the table.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("connect postgres vector store: %w", err)
	}
	if err := db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("enable pgvector extension: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&embeddingRow{}); err != nil {
		return nil, fmt.Errorf("migrate embedding_vectors: %w", err)
	}
	return NewPostgres(db), nil
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (p *Postgres) Get(ctx context.Context, t domain.EntityType, id string) (vector.Vector, bool, error) {
	var row embeddingRow
	err := p.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", string(t), id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s vector %s: %w", t, id, err)
	}
	return fromPGVector(row.Embedding), true, nil
}

func (p *Postgres) GetMany(ctx context.Context, t domain.EntityType, ids []string) (map[string]vector.Vector, error) {
	out := make(map[string]vector.Vector, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []embeddingRow
	err := p.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id IN ?", string(t), ids).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read %s vectors: %w", t, err)
	}
	for _, row := range rows {
		out[row.EntityID] = fromPGVector(row.Embedding)
	}
	return out, nil
}

func (p *Postgres) Metadata(ctx context.Context, t domain.EntityType, id string) (domain.Metadata, bool, error) {
	var row embeddingRow
	err := p.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", string(t), id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s metadata %s: %w", t, id, err)
	}
	meta, err := decodeMetadata(t, id, row.Metadata)
	if err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

func (p *Postgres) List(ctx context.Context, t domain.EntityType) ([]Entry, error) {
	var rows []embeddingRow
	err := p.db.WithContext(ctx).
		Where("entity_type = ?", string(t)).
		Order("entity_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list %s vectors: %w", t, err)
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		meta, err := decodeMetadata(t, row.EntityID, row.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{
			Type:      t,
			ID:        row.EntityID,
			Vector:    fromPGVector(row.Embedding),
			Metadata:  meta,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return out, nil
}

func (p *Postgres) Upsert(ctx context.Context, t domain.EntityType, id string, v vector.Vector, meta domain.Metadata) error {
	if err := checkKey(t, id); err != nil {
		return err
	}
	v = vector.Normalize(v)

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing embeddingRow
		err := tx.Where("entity_type = ? AND entity_id = ?", string(t), id).Take(&existing).Error
		switch {
		case err == nil:
			oldMeta, err := decodeMetadata(t, id, existing.Metadata)
			if err != nil && meta == nil {
				return err
			}
			// stored values are single precision, compare after the same rounding
			if sameRow(fromPGVector(existing.Embedding), fromPGVector(toPGVector(v)), oldMeta, meta) {
				return nil
			}
			if meta == nil {
				meta = oldMeta
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		if meta == nil {
			meta = domain.Metadata{}
		}

		encoded, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		row := embeddingRow{
			EntityType: string(t),
			EntityID:   id,
			Embedding:  toPGVector(v),
			Metadata:   encoded,
			UpdatedAt:  p.now(),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_type"}, {Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"embedding", "metadata", "updated_at"}),
		}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("upsert %s vector %s: %w", t, id, err)
	}
	return nil
}

func toPGVector(v vector.Vector) pgvector.Vector {
	return pgvector.NewVector(vector.ToFloat32(v))
}

func fromPGVector(v pgvector.Vector) vector.Vector {
	return vector.Normalize(vector.FromFloat32(v.Slice()))
}

// decodeMetadata fails on a row whose metadata is not a JSON object.
func decodeMetadata(t domain.EntityType, id string, raw []byte) (domain.Metadata, error) {
	meta := domain.Metadata{}
	if len(raw) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode %s metadata %s: %w", t, id, err)
	}
	return meta, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
