package vecstore

import (
	"context"
	"fmt"
	"time"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/vector"
)

// DefaultTimeout bounds a single store call when the config does not say otherwise.
const DefaultTimeout = 5 * time.Second

// timeoutStore bounds every call of the wrapped store. Backends that ignore ctx (bbolt,
// memory) are still abandoned on time: the call keeps running in its goroutine and its
// late result is dropped.
type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout wraps store so every call fails with context.DeadlineExceeded after d.
// d <= 0 uses DefaultTimeout.
func WithTimeout(store Store, d time.Duration) Store {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutStore{next: store, timeout: d}
}

type found[T any] struct {
	value T
	ok    bool
}

func (s *timeoutStore) Get(ctx context.Context, t domain.EntityType, id string) (vector.Vector, bool, error) {
	res, err := bounded(ctx, s.timeout, "get", func(ctx context.Context) (found[vector.Vector], error) {
		v, ok, err := s.next.Get(ctx, t, id)
		return found[vector.Vector]{value: v, ok: ok}, err
	})
	return res.value, res.ok, err
}

func (s *timeoutStore) GetMany(ctx context.Context, t domain.EntityType, ids []string) (map[string]vector.Vector, error) {
	return bounded(ctx, s.timeout, "get many", func(ctx context.Context) (map[string]vector.Vector, error) {
		return s.next.GetMany(ctx, t, ids)
	})
}

func (s *timeoutStore) Metadata(ctx context.Context, t domain.EntityType, id string) (domain.Metadata, bool, error) {
	res, err := bounded(ctx, s.timeout, "metadata", func(ctx context.Context) (found[domain.Metadata], error) {
		m, ok, err := s.next.Metadata(ctx, t, id)
		return found[domain.Metadata]{value: m, ok: ok}, err
	})
	return res.value, res.ok, err
}

func (s *timeoutStore) List(ctx context.Context, t domain.EntityType) ([]Entry, error) {
	return bounded(ctx, s.timeout, "list", func(ctx context.Context) ([]Entry, error) {
		return s.next.List(ctx, t)
	})
}

func (s *timeoutStore) Upsert(ctx context.Context, t domain.EntityType, id string, v vector.Vector, meta domain.Metadata) error {
	_, err := bounded(ctx, s.timeout, "upsert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.next.Upsert(ctx, t, id, v, meta)
	})
	return err
}

func bounded[T any](ctx context.Context, d time.Duration, op string, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("vector store %s: %w", op, ctx.Err())
	}
}
