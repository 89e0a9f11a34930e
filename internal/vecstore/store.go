// Package vecstore persists the two towers of unit-norm embeddings keyed by entity type and id.
package vecstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/vector"
)

const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Entry is one stored row.
type Entry struct {
	Type      domain.EntityType
	ID        string
	Vector    vector.Vector
	Metadata  domain.Metadata
	UpdatedAt time.Time
}

// Store is the contract every backend honours.
//
// Vectors are renormalized on every write, so reads always return unit-norm (or zero)
// vectors. Upsert with nil metadata keeps the stored metadata. Repeating an identical
// upsert changes nothing, including UpdatedAt. Each upsert is atomic for its own row only.
type Store interface {
	Get(ctx context.Context, t domain.EntityType, id string) (vector.Vector, bool, error)
	GetMany(ctx context.Context, t domain.EntityType, ids []string) (map[string]vector.Vector, error)
	Metadata(ctx context.Context, t domain.EntityType, id string) (domain.Metadata, bool, error)
	List(ctx context.Context, t domain.EntityType) ([]Entry, error)
	Upsert(ctx context.Context, t domain.EntityType, id string, v vector.Vector, meta domain.Metadata) error
}

// sameRow reports whether writing (v, meta) over (oldV, oldMeta) would be a no-op.
// Metadata is compared by its JSON form so backends that round-trip through JSON agree.
func sameRow(oldV, v vector.Vector, oldMeta, meta domain.Metadata) bool {
	if !vector.Equal(oldV, v, 1e-12) {
		return false
	}
	if meta == nil {
		return true
	}
	a, err := json.Marshal(oldMeta)
	if err != nil {
		return false
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func checkKey(t domain.EntityType, id string) error {
	if !t.Valid() {
		return fmt.Errorf("unknown entity type %q", string(t))
	}
	if id == "" {
		return fmt.Errorf("%s id is required", t)
	}
	return nil
}

func bucketName(t domain.EntityType) string {
	return string(t) + "_vectors"
}
