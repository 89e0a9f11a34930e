// Package coldstart places a brand-new job or user in the embedding space relative to
// existing same-type vectors, using the oracle to pick the closest and farthest ones.
package coldstart

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/oracle"
	"github.com/spigell/jobmatch/internal/vecstore"
	"github.com/spigell/jobmatch/internal/vector"
)

type Config struct {
	SampleSize int           `mapstructure:"sample-size"`
	MinPool    int           `mapstructure:"min-pool"`
	Pick       int           `mapstructure:"pick"`
	PosWeight  float64       `mapstructure:"pos-weight"`
	NegWeight  float64       `mapstructure:"neg-weight"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		SampleSize: 30,
		MinPool:    10,
		Pick:       5,
		PosWeight:  1.0,
		NegWeight:  0.7,
		Timeout:    oracle.DefaultTimeout,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SampleSize <= 0 {
		c.SampleSize = def.SampleSize
	}
	if c.MinPool <= 0 {
		c.MinPool = def.MinPool
	}
	if c.Pick <= 0 {
		c.Pick = def.Pick
	}
	if c.PosWeight == 0 && c.NegWeight == 0 {
		c.PosWeight, c.NegWeight = def.PosWeight, def.NegWeight
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// Outcome describes a placed vector.
type Outcome struct {
	EntityType  domain.EntityType `json:"entity_type"`
	ID          string            `json:"id"`
	SampleSize  int               `json:"sample_size"`
	ClosestIDs  []string          `json:"closest_ids"`
	FarthestIDs []string          `json:"farthest_ids"`
	Source      string            `json:"source"`
	Vector      vector.Vector     `json:"-"`
}

type Option func(*Initializer)

// WithRand replaces the sampling source, mainly for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(i *Initializer) { i.rng = rng }
}

type Initializer struct {
	store    vecstore.Store
	comparer oracle.Comparer
	cfg      Config
	logger   *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds an Initializer. comparer may be nil, in which case the fixed split is always used.
func New(store vecstore.Store, comparer oracle.Comparer, cfg Config, log *zap.Logger, opts ...Option) *Initializer {
	i := &Initializer{
		store:    store,
		comparer: comparer,
		cfg:      cfg.withDefaults(),
		logger:   logger.WithFields(log, zap.String("component", "coldstart")),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Initializer) InitializeJob(ctx context.Context, jobID string, payload domain.JobPayload) (*Outcome, error) {
	meta, err := domain.ToMetadata(payload)
	if err != nil {
		return nil, err
	}
	return i.Initialize(ctx, domain.EntityJob, jobID, meta)
}

func (i *Initializer) InitializeUser(ctx context.Context, userID string, payload domain.UserPayload) (*Outcome, error) {
	meta, err := domain.ToMetadata(payload)
	if err != nil {
		return nil, err
	}
	return i.Initialize(ctx, domain.EntityUser, userID, meta)
}

// Initialize computes and stores a vector for id from the existing pool of type t.
// It fails with InsufficientPoolError when fewer than MinPool other vectors exist.
func (i *Initializer) Initialize(ctx context.Context, t domain.EntityType, id string, meta domain.Metadata) (*Outcome, error) {
	entries, err := i.store.List(ctx, t)
	if err != nil {
		return nil, err
	}
	pool := without(entries, id)
	if len(pool) < i.cfg.MinPool {
		return nil, &domain.InsufficientPoolError{Type: t, Found: len(pool), Need: i.cfg.MinPool}
	}

	out, err := i.Compose(ctx, t, meta, pool)
	if err != nil {
		return nil, err
	}
	out.ID = id

	if err := i.store.Upsert(ctx, t, id, out.Vector, meta); err != nil {
		return nil, fmt.Errorf("store %s vector: %w", t, err)
	}

	i.logger.Info("vector initialized",
		zap.String("entity_type", string(t)),
		zap.String("id", id),
		zap.Int("sample_size", out.SampleSize),
		zap.String("source", out.Source),
	)
	return out, nil
}

// Compose derives a vector for subject from pool without storing it. It has no pool
// minimum beyond a single entry; with small pools the closest and farthest lists shrink.
func (i *Initializer) Compose(ctx context.Context, t domain.EntityType, subject domain.Metadata, pool []vecstore.Entry) (*Outcome, error) {
	if len(pool) == 0 {
		return nil, &domain.InsufficientPoolError{Type: t, Found: 0, Need: 1}
	}

	sampled := i.sample(pool, i.cfg.SampleSize)

	candidates := make([]domain.Metadata, len(sampled))
	for idx, e := range sampled {
		candidates[idx] = e.Metadata
	}

	var call func(context.Context) (oracle.Comparison, error)
	name := ""
	if i.comparer != nil {
		name = i.comparer.Name()
		call = func(ctx context.Context) (oracle.Comparison, error) {
			return i.comparer.Compare(ctx, oracle.CompareRequest{
				Type:       t,
				Subject:    subject,
				Candidates: candidates,
				Count:      i.cfg.Pick,
			})
		}
	}

	res := oracle.WithFallback(ctx, "compare", name, i.cfg.Timeout, call,
		func(error) oracle.Comparison { return oracle.Comparison{} },
	)
	if res.FellBack() && i.comparer != nil {
		i.logger.Warn("oracle comparison failed, using fixed split",
			zap.String("entity_type", string(t)),
			zap.Error(res.Err),
		)
	}

	closest, farthest := FixIndices(res.Value.Closest, res.Value.Farthest, len(sampled), i.cfg.Pick)

	v := i.compose(sampled, closest, farthest)

	out := &Outcome{
		EntityType: t,
		SampleSize: len(sampled),
		Source:     res.Source,
		Vector:     v,
	}
	for _, idx := range closest {
		out.ClosestIDs = append(out.ClosestIDs, sampled[idx].ID)
	}
	for _, idx := range farthest {
		out.FarthestIDs = append(out.FarthestIDs, sampled[idx].ID)
	}
	return out, nil
}

// FixIndices turns raw oracle indices into disjoint closest and farthest lists over n
// candidates. Duplicates, overlaps and out-of-range values are dropped; missing closest
// slots are filled from the front and missing farthest slots from the back. With n >= 2*pick
// the result always holds exactly pick indices per list.
func FixIndices(closest, farthest []int, n, pick int) ([]int, []int) {
	if n <= 0 {
		return nil, nil
	}
	used := make(map[int]bool, n)

	wantClosest := min(pick, n)
	fixedClosest := make([]int, 0, wantClosest)
	for _, idx := range closest {
		if len(fixedClosest) >= wantClosest {
			break
		}
		if idx >= 0 && idx < n && !used[idx] {
			fixedClosest = append(fixedClosest, idx)
			used[idx] = true
		}
	}
	for idx := 0; idx < n && len(fixedClosest) < wantClosest; idx++ {
		if !used[idx] {
			fixedClosest = append(fixedClosest, idx)
			used[idx] = true
		}
	}

	wantFarthest := min(pick, max(0, n-len(fixedClosest)))
	fixedFarthest := make([]int, 0, wantFarthest)
	for _, idx := range farthest {
		if len(fixedFarthest) >= wantFarthest {
			break
		}
		if idx >= 0 && idx < n && !used[idx] {
			fixedFarthest = append(fixedFarthest, idx)
			used[idx] = true
		}
	}
	for idx := n - 1; idx >= 0 && len(fixedFarthest) < wantFarthest; idx-- {
		if !used[idx] {
			fixedFarthest = append(fixedFarthest, idx)
			used[idx] = true
		}
	}

	// a single candidate serves as its own anchor on both sides
	if len(fixedFarthest) == 0 {
		fixedFarthest = []int{fixedClosest[len(fixedClosest)-1]}
	}
	return fixedClosest, fixedFarthest
}

func (i *Initializer) compose(sampled []vecstore.Entry, closest, farthest []int) vector.Vector {
	pick := func(idx []int) []vector.Vector {
		out := make([]vector.Vector, 0, len(idx))
		for _, j := range idx {
			out = append(out, sampled[j].Vector)
		}
		return out
	}

	v := vector.Normalize(vector.Combine(
		i.cfg.PosWeight, vector.Mean(pick(closest)),
		-i.cfg.NegWeight, vector.Mean(pick(farthest)),
	))
	if vector.IsZero(v) {
		i.mu.Lock()
		v = vector.RandomUnit(i.rng, len(sampled[0].Vector))
		i.mu.Unlock()
	}
	return v
}

// sample draws up to k entries uniformly without replacement.
func (i *Initializer) sample(pool []vecstore.Entry, k int) []vecstore.Entry {
	i.mu.Lock()
	perm := i.rng.Perm(len(pool))
	i.mu.Unlock()

	k = min(k, len(pool))
	out := make([]vecstore.Entry, 0, k)
	for _, idx := range perm[:k] {
		out = append(out, pool[idx])
	}
	return out
}

func without(entries []vecstore.Entry, id string) []vecstore.Entry {
	out := make([]vecstore.Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// IsInsufficientPool is a shorthand for errors.Is(err, domain.ErrInsufficientPool).
func IsInsufficientPool(err error) bool {
	return errors.Is(err, domain.ErrInsufficientPool)
}
