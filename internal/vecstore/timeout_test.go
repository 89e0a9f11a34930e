package vecstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/vector"
)

// stalledStore never answers reads or writes until release is closed, and ignores ctx.
type stalledStore struct {
	*Memory
	release chan struct{}
}

func (s *stalledStore) GetMany(ctx context.Context, t domain.EntityType, ids []string) (map[string]vector.Vector, error) {
	<-s.release
	return s.Memory.GetMany(ctx, t, ids)
}

func (s *stalledStore) Upsert(ctx context.Context, t domain.EntityType, id string, v vector.Vector, meta domain.Metadata) error {
	<-s.release
	return s.Memory.Upsert(ctx, t, id, v, meta)
}

func TestWithTimeoutAbandonsStalledCalls(t *testing.T) {
	stalled := &stalledStore{Memory: NewMemory(), release: make(chan struct{})}
	t.Cleanup(func() { close(stalled.release) })
	store := WithTimeout(stalled, 20*time.Millisecond)

	tests := []struct {
		name string
		call func(context.Context) error
	}{
		{name: "get many", call: func(ctx context.Context) error {
			_, err := store.GetMany(ctx, domain.EntityUser, []string{"u1"})
			return err
		}},
		{name: "upsert", call: func(ctx context.Context) error {
			return store.Upsert(ctx, domain.EntityUser, "u1", vector.Vector{1, 0}, nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			err := tt.call(context.Background())
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("expected deadline exceeded, got %v", err)
			}
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Fatalf("call returned after %s", elapsed)
			}
		})
	}
}

func TestWithTimeoutPassesThrough(t *testing.T) {
	ctx := context.Background()
	store := WithTimeout(NewMemory(), 0)

	if err := store.Upsert(ctx, domain.EntityJob, "j1", vector.Vector{0, 2}, domain.Metadata{"title": "Go"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, ok, err := store.Get(ctx, domain.EntityJob, "j1")
	if err != nil || !ok {
		t.Fatalf("expected vector, ok=%v err=%v", ok, err)
	}
	if !vector.Equal(got, vector.Vector{0, 1}, 1e-9) {
		t.Fatalf("expected normalized vector, got %v", got)
	}

	meta, ok, err := store.Metadata(ctx, domain.EntityJob, "j1")
	if err != nil || !ok || meta["title"] != "Go" {
		t.Fatalf("expected metadata, got %v ok=%v err=%v", meta, ok, err)
	}

	_, ok, err = store.Get(ctx, domain.EntityJob, "missing")
	if err != nil || ok {
		t.Fatalf("expected absent vector, ok=%v err=%v", ok, err)
	}

	entries, err := store.List(ctx, domain.EntityJob)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one entry, got %d err=%v", len(entries), err)
	}
}
