package recommend

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/coldstart"
	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/records"
	"github.com/spigell/jobmatch/internal/vecstore"
	"github.com/spigell/jobmatch/internal/vector"
)

type Config struct {
	SampleSize int `mapstructure:"sample-size"`
	Limit      int `mapstructure:"limit"`
}

func DefaultConfig() Config {
	return Config{SampleSize: DefaultSampleSize, Limit: 10}
}

// Initializer places entities that have no vector yet.
type Initializer interface {
	InitializeJob(ctx context.Context, jobID string, payload domain.JobPayload) (*coldstart.Outcome, error)
	InitializeUser(ctx context.Context, userID string, payload domain.UserPayload) (*coldstart.Outcome, error)
}

// MatchedJob is an open job suggested to a user. VectorScore is nil when the job was
// returned without vector ranking.
type MatchedJob struct {
	domain.Job
	Applied     bool     `json:"applied"`
	VectorScore *float64 `json:"vector_score,omitempty"`
}

type Recommender struct {
	records records.Store
	vectors vecstore.Store
	init    Initializer
	sampler *Sampler
	limit   int
	logger  *zap.Logger
}

// New builds a Recommender. initializer may be nil, then missing vectors stay missing.
func New(store records.Store, vectors vecstore.Store, initializer Initializer, sampler *Sampler, cfg Config, log *zap.Logger) *Recommender {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultConfig().Limit
	}
	if sampler == nil {
		sampler = NewSampler(cfg.SampleSize)
	}
	return &Recommender{
		records: store,
		vectors: vectors,
		init:    initializer,
		sampler: sampler,
		limit:   cfg.Limit,
		logger:  logger.WithFields(log, zap.String("component", "recommend")),
	}
}

// MatchedJobs ranks the user's daily pool of open jobs by two-tower similarity.
// Vector problems never fail the call; the pool is then returned in sampled order.
func (r *Recommender) MatchedJobs(ctx context.Context, userID string) ([]MatchedJob, error) {
	user, err := r.records.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	open, err := r.records.OpenJobs(ctx)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return []MatchedJob{}, nil
	}

	apps, err := r.records.Applications(ctx, records.Filter{UserID: userID})
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(apps))
	for _, app := range apps {
		applied[app.JobID] = true
	}

	byID := make(map[string]domain.Job, len(open))
	ids := make([]string, 0, len(open))
	for _, j := range open {
		byID[j.ID] = j
		ids = append(ids, j.ID)
	}

	sampled := make([]MatchedJob, 0, len(ids))
	sampledIDs := r.sampler.Sample(userID, ids)
	for _, id := range sampledIDs {
		if j, ok := byID[id]; ok {
			sampled = append(sampled, MatchedJob{Job: j, Applied: applied[id]})
		}
	}

	log := r.logger.With(zap.String(logger.FieldUser, userID))
	userVec, jobVecs := r.vectorsFor(ctx, log, user, sampled, sampledIDs)
	if userVec == nil {
		log.Debug("user vector unavailable, returning sampled order")
		return r.head(sampled), nil
	}

	scored := make([]MatchedJob, 0, len(sampled))
	for _, m := range sampled {
		jv, ok := jobVecs[m.ID]
		if !ok {
			continue
		}
		s := vector.Dot(userVec, jv)
		m.VectorScore = &s
		scored = append(scored, m)
	}
	if len(scored) == 0 {
		return r.head(sampled), nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].VectorScore > *scored[j].VectorScore
	})
	log.Debug("jobs matched", zap.Int("pool", len(sampled)), zap.Int("scored", len(scored)))
	return r.head(scored), nil
}

func (r *Recommender) head(jobs []MatchedJob) []MatchedJob {
	return jobs[:min(r.limit, len(jobs))]
}

func (r *Recommender) vectorsFor(ctx context.Context, log *zap.Logger, user *domain.User, sampled []MatchedJob, ids []string) (vector.Vector, map[string]vector.Vector) {
	userVec, ok, err := r.vectors.Get(ctx, domain.EntityUser, user.ID)
	if err != nil {
		log.Warn("loading user vector failed", zap.Error(err))
	}
	if !ok {
		userVec = nil
	}
	jobVecs, err := r.vectors.GetMany(ctx, domain.EntityJob, ids)
	if err != nil {
		log.Warn("loading job vectors failed", zap.Error(err))
		jobVecs = map[string]vector.Vector{}
	}

	if r.init == nil || (userVec != nil && len(jobVecs) == len(ids)) {
		return userVec, jobVecs
	}

	if userVec == nil {
		if _, err := r.init.InitializeUser(ctx, user.ID, user.Payload()); err != nil {
			log.Info("user vector cold start skipped", zap.Error(err))
		} else if v, ok, err := r.vectors.Get(ctx, domain.EntityUser, user.ID); err == nil && ok {
			userVec = v
		}
	}

	missing := false
	for _, m := range sampled {
		if _, ok := jobVecs[m.ID]; ok {
			continue
		}
		missing = true
		if _, err := r.init.InitializeJob(ctx, m.ID, m.Payload()); err != nil {
			log.Info("job vector cold start skipped", zap.String(logger.FieldJob, m.ID), zap.Error(err))
		}
	}
	if missing {
		if refreshed, err := r.vectors.GetMany(ctx, domain.EntityJob, ids); err == nil {
			jobVecs = refreshed
		}
	}
	return userVec, jobVecs
}
