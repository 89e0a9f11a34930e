package vecstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/vector"
)

// Memory keeps all rows in process. It is used by tests and ephemeral runs.
type Memory struct {
	mu   sync.RWMutex
	rows map[domain.EntityType]map[string]*Entry
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		rows: map[domain.EntityType]map[string]*Entry{
			domain.EntityJob:  {},
			domain.EntityUser: {},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Get(_ context.Context, t domain.EntityType, id string) (vector.Vector, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[t][id]
	if !ok {
		return nil, false, nil
	}
	return row.Vector.Clone(), true, nil
}

func (m *Memory) GetMany(_ context.Context, t domain.EntityType, ids []string) (map[string]vector.Vector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]vector.Vector, len(ids))
	for _, id := range ids {
		if row, ok := m.rows[t][id]; ok {
			out[id] = row.Vector.Clone()
		}
	}
	return out, nil
}

func (m *Memory) Metadata(_ context.Context, t domain.EntityType, id string) (domain.Metadata, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[t][id]
	if !ok {
		return nil, false, nil
	}
	return row.Metadata.Clone(), true, nil
}

// List returns rows ordered by id.
func (m *Memory) List(_ context.Context, t domain.EntityType) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.rows[t]))
	for _, row := range m.rows[t] {
		out = append(out, Entry{
			Type:      row.Type,
			ID:        row.ID,
			Vector:    row.Vector.Clone(),
			Metadata:  row.Metadata.Clone(),
			UpdatedAt: row.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, t domain.EntityType, id string, v vector.Vector, meta domain.Metadata) error {
	if err := checkKey(t, id); err != nil {
		return err
	}
	v = vector.Normalize(v)

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.rows[t]
	if !ok {
		bucket = map[string]*Entry{}
		m.rows[t] = bucket
	}

	if existing, ok := bucket[id]; ok {
		if sameRow(existing.Vector, v, existing.Metadata, meta) {
			return nil
		}
		if meta == nil {
			meta = existing.Metadata
		}
	}
	if meta == nil {
		meta = domain.Metadata{}
	}

	bucket[id] = &Entry{
		Type:      t,
		ID:        id,
		Vector:    v,
		Metadata:  meta.Clone(),
		UpdatedAt: m.now(),
	}
	return nil
}
