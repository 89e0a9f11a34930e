// Package recommend picks the jobs shown to a job seeker.
package recommend

import (
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"
	"time"
)

const DefaultSampleSize = 30

type poolKey struct {
	user string
	day  string
}

// Sampler keeps one stable pool of open job ids per user and UTC day.
type Sampler struct {
	mu    sync.Mutex
	size  int
	now   func() time.Time
	pools map[poolKey][]string
}

type SamplerOption func(*Sampler)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) { s.now = now }
}

func NewSampler(size int, opts ...SamplerOption) *Sampler {
	if size <= 0 {
		size = DefaultSampleSize
	}
	s := &Sampler{
		size:  size,
		now:   time.Now,
		pools: map[poolKey][]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample returns the user's pool for today. Pooled ids that are no longer open are dropped,
// the survivors keep their order and free slots are backfilled with a shuffle seeded by
// user and day.
func (s *Sampler) Sample(userID string, openIDs []string) []string {
	if len(openIDs) == 0 {
		return []string{}
	}

	day := s.now().UTC().Format(time.DateOnly)
	key := poolKey{user: userID, day: day}

	open := make(map[string]bool, len(openIDs))
	for _, id := range openIDs {
		open[id] = true
	}
	size := min(s.size, len(open))

	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.pools {
		if k.day != day {
			delete(s.pools, k)
		}
	}

	pool := make([]string, 0, size)
	pooled := map[string]bool{}
	for _, id := range s.pools[key] {
		if open[id] {
			pool = append(pool, id)
			pooled[id] = true
		}
	}

	if len(pool) < size {
		remaining := make([]string, 0, len(open))
		for id := range open {
			if !pooled[id] {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)

		rng := rand.New(rand.NewSource(seed(userID, day)))
		rng.Shuffle(len(remaining), func(i, j int) {
			remaining[i], remaining[j] = remaining[j], remaining[i]
		})
		pool = append(pool, remaining[:size-len(pool)]...)
	}
	pool = pool[:size]

	s.pools[key] = pool
	return append([]string(nil), pool...)
}

func seed(userID, day string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID + ":" + day))
	return int64(h.Sum64())
}
