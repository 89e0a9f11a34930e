package coldstart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/oracle"
	"github.com/spigell/jobmatch/internal/vecstore"
	"github.com/spigell/jobmatch/internal/vector"
)

// titleComparer picks candidates by the prefix of their title.
type titleComparer struct {
	err   error
	calls int
}

func (c *titleComparer) Name() string { return "stub" }

func (c *titleComparer) Compare(_ context.Context, req oracle.CompareRequest) (oracle.Comparison, error) {
	c.calls++
	if c.err != nil {
		return oracle.Comparison{}, c.err
	}
	var out oracle.Comparison
	for i, meta := range req.Candidates {
		title, _ := meta["title"].(string)
		switch {
		case strings.HasPrefix(title, "near"):
			out.Closest = append(out.Closest, i)
		case strings.HasPrefix(title, "far"):
			out.Farthest = append(out.Farthest, i)
		}
	}
	return out, nil
}

func seedJobs(t *testing.T, store vecstore.Store, near, far int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < near; i++ {
		id := fmt.Sprintf("near-%02d", i)
		v := vector.Vector{1, 0.01 * float64(i), 0}
		if err := store.Upsert(ctx, domain.EntityJob, id, v, domain.Metadata{"title": id}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	for i := 0; i < far; i++ {
		id := fmt.Sprintf("far-%02d", i)
		v := vector.Vector{-1, 0, 0.01 * float64(i)}
		if err := store.Upsert(ctx, domain.EntityJob, id, v, domain.Metadata{"title": id}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func newInitializer(store vecstore.Store, cmp oracle.Comparer, cfg Config) *Initializer {
	return New(store, cmp, cfg, zap.NewNop(), WithRand(rand.New(rand.NewSource(7))))
}

func TestInitializeRejectsSmallPool(t *testing.T) {
	store := vecstore.NewMemory()
	seedJobs(t, store, 5, 4)
	cmp := &titleComparer{}

	_, err := newInitializer(store, cmp, Config{}).InitializeJob(context.Background(), "new", domain.JobPayload{Title: "Go"})
	if !errors.Is(err, domain.ErrInsufficientPool) {
		t.Fatalf("expected insufficient pool error, got %v", err)
	}
	if !IsInsufficientPool(err) {
		t.Fatalf("IsInsufficientPool should match %v", err)
	}
	if cmp.calls != 0 {
		t.Fatalf("oracle must not be consulted for a small pool")
	}
	if _, ok, _ := store.Get(context.Background(), domain.EntityJob, "new"); ok {
		t.Fatalf("no vector must be stored")
	}
}

func TestInitializeFollowsOracle(t *testing.T) {
	store := vecstore.NewMemory()
	seedJobs(t, store, 6, 6)
	cmp := &titleComparer{}

	out, err := newInitializer(store, cmp, Config{}).InitializeJob(context.Background(), "new", domain.JobPayload{Title: "Go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Source != "stub" {
		t.Fatalf("expected oracle source, got %q", out.Source)
	}
	if out.SampleSize != 12 {
		t.Fatalf("expected whole pool sampled, got %d", out.SampleSize)
	}
	if len(out.ClosestIDs) != 5 || len(out.FarthestIDs) != 5 {
		t.Fatalf("expected 5 and 5, got %v %v", out.ClosestIDs, out.FarthestIDs)
	}
	for _, id := range out.ClosestIDs {
		if !strings.HasPrefix(id, "near") {
			t.Fatalf("unexpected closest id %q", id)
		}
	}
	for _, id := range out.FarthestIDs {
		if !strings.HasPrefix(id, "far") {
			t.Fatalf("unexpected farthest id %q", id)
		}
	}

	stored, ok, err := store.Get(context.Background(), domain.EntityJob, "new")
	if err != nil || !ok {
		t.Fatalf("expected stored vector, ok=%v err=%v", ok, err)
	}
	if math.Abs(vector.Norm(stored)-1) > 1e-9 {
		t.Fatalf("stored vector must be unit norm, got %v", vector.Norm(stored))
	}
	if stored[0] < 0.99 {
		t.Fatalf("vector should point towards the closest group, got %v", stored)
	}

	meta, _, _ := store.Metadata(context.Background(), domain.EntityJob, "new")
	if meta["title"] != "Go" {
		t.Fatalf("metadata must be stored, got %v", meta)
	}
}

func TestInitializeFallsBackWhenOracleFails(t *testing.T) {
	store := vecstore.NewMemory()
	seedJobs(t, store, 6, 6)
	cmp := &titleComparer{err: errors.New("boom")}

	out, err := newInitializer(store, cmp, Config{}).Initialize(context.Background(), domain.EntityJob, "new", domain.Metadata{"title": "Go"})
	if err != nil {
		t.Fatalf("oracle failure must not fail cold start: %v", err)
	}
	if out.Source != oracle.SourceFallback {
		t.Fatalf("expected fallback source, got %q", out.Source)
	}
	if len(out.ClosestIDs) != 5 || len(out.FarthestIDs) != 5 {
		t.Fatalf("fixed split must still give 5 and 5, got %v %v", out.ClosestIDs, out.FarthestIDs)
	}
	if math.Abs(vector.Norm(out.Vector)-1) > 1e-9 {
		t.Fatalf("expected unit vector, got norm %v", vector.Norm(out.Vector))
	}
}

func TestInitializeWithoutOracle(t *testing.T) {
	store := vecstore.NewMemory()
	seedJobs(t, store, 10, 0)

	out, err := newInitializer(store, nil, Config{}).Initialize(context.Background(), domain.EntityJob, "new", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Source != oracle.SourceFallback {
		t.Fatalf("expected fallback source, got %q", out.Source)
	}
}

func TestInitializeExcludesItselfFromPool(t *testing.T) {
	store := vecstore.NewMemory()
	seedJobs(t, store, 9, 0)
	if err := store.Upsert(context.Background(), domain.EntityJob, "self", vector.Vector{0, 1, 0}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := newInitializer(store, nil, Config{}).Initialize(context.Background(), domain.EntityJob, "self", nil)
	if !errors.Is(err, domain.ErrInsufficientPool) {
		t.Fatalf("the entity itself must not count towards the pool, got %v", err)
	}
}

func TestComposeDegenerateDrawsRandomUnit(t *testing.T) {
	store := vecstore.NewMemory()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := store.Upsert(ctx, domain.EntityUser, fmt.Sprintf("u%d", i), vector.Vector{0, 0, 1}, nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	pool, _ := store.List(ctx, domain.EntityUser)

	initer := newInitializer(store, nil, Config{PosWeight: 1, NegWeight: 1})
	out, err := initer.Compose(ctx, domain.EntityUser, domain.Metadata{}, pool)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Vector) != 3 {
		t.Fatalf("random vector must keep the pool dimension, got %v", out.Vector)
	}
	if math.Abs(vector.Norm(out.Vector)-1) > 1e-9 {
		t.Fatalf("expected unit vector, got norm %v", vector.Norm(out.Vector))
	}
}

func TestComposeRequiresNonEmptyPool(t *testing.T) {
	initer := newInitializer(vecstore.NewMemory(), nil, Config{})
	if _, err := initer.Compose(context.Background(), domain.EntityUser, nil, nil); !errors.Is(err, domain.ErrInsufficientPool) {
		t.Fatalf("expected insufficient pool error, got %v", err)
	}
}

func TestFixIndices(t *testing.T) {
	tests := []struct {
		name         string
		closest      []int
		farthest     []int
		n            int
		wantClosest  []int
		wantFarthest []int
	}{
		{
			name:         "valid answer kept",
			closest:      []int{4, 3, 2, 1, 0},
			farthest:     []int{5, 6, 7, 8, 9},
			n:            10,
			wantClosest:  []int{4, 3, 2, 1, 0},
			wantFarthest: []int{5, 6, 7, 8, 9},
		},
		{
			name:         "duplicates and out of range filled",
			closest:      []int{0, 0, 99, 3},
			farthest:     []int{3, 11},
			n:            12,
			wantClosest:  []int{0, 3, 1, 2, 4},
			wantFarthest: []int{11, 10, 9, 8, 7},
		},
		{
			name:         "empty answer uses fixed split",
			n:            30,
			wantClosest:  []int{0, 1, 2, 3, 4},
			wantFarthest: []int{29, 28, 27, 26, 25},
		},
		{
			name:         "small pool shrinks farthest",
			n:            7,
			wantClosest:  []int{0, 1, 2, 3, 4},
			wantFarthest: []int{6, 5},
		},
		{
			name:         "pool too small for farthest reuses last closest",
			n:            3,
			wantClosest:  []int{0, 1, 2},
			wantFarthest: []int{2},
		},
		{
			name:         "single candidate",
			n:            1,
			wantClosest:  []int{0},
			wantFarthest: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotClosest, gotFarthest := FixIndices(tt.closest, tt.farthest, tt.n, 5)
			if !reflect.DeepEqual(gotClosest, tt.wantClosest) {
				t.Fatalf("closest: expected %v, got %v", tt.wantClosest, gotClosest)
			}
			if !reflect.DeepEqual(gotFarthest, tt.wantFarthest) {
				t.Fatalf("farthest: expected %v, got %v", tt.wantFarthest, gotFarthest)
			}
		})
	}
}

func TestFixIndicesIsDisjointForFullSample(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 200; round++ {
		closest := make([]int, rng.Intn(8))
		for i := range closest {
			closest[i] = rng.Intn(40) - 5
		}
		farthest := make([]int, rng.Intn(8))
		for i := range farthest {
			farthest[i] = rng.Intn(40) - 5
		}

		c, f := FixIndices(closest, farthest, 30, 5)
		if len(c) != 5 || len(f) != 5 {
			t.Fatalf("expected 5 and 5, got %v %v", c, f)
		}
		seen := map[int]bool{}
		for _, idx := range append(append([]int{}, c...), f...) {
			if idx < 0 || idx >= 30 || seen[idx] {
				t.Fatalf("invalid or repeated index %d in %v %v", idx, c, f)
			}
			seen[idx] = true
		}
	}
}
