// Package nudge moves user and job vectors in response to interaction events.
package nudge

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/coldstart"
	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/vecstore"
	"github.com/spigell/jobmatch/internal/vector"
)

type Direction string

const (
	DirectionPull Direction = "pull"
	DirectionPush Direction = "push"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case DirectionPull, DirectionPush:
		return d, nil
	default:
		return "", fmt.Errorf("unknown nudge direction %q", s)
	}
}

// Event names an interaction that moves a user/job pair.
type Event string

const (
	EventApply       Event = "apply"
	EventRejectOffer Event = "reject-offer"
	EventInterview   Event = "interview"
	EventFeedback    Event = "feedback"
)

type Config struct {
	ApplyPull     float64 `mapstructure:"apply-pull"`
	RejectPush    float64 `mapstructure:"reject-push"`
	InterviewPull float64 `mapstructure:"interview-pull"`
	FeedbackMax   float64 `mapstructure:"feedback-max"`
}

func DefaultConfig() Config {
	return Config{
		ApplyPull:     0.14,
		RejectPush:    0.08,
		InterviewPull: 0.16,
		FeedbackMax:   0.20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ApplyPull <= 0 {
		c.ApplyPull = def.ApplyPull
	}
	if c.RejectPush <= 0 {
		c.RejectPush = def.RejectPush
	}
	if c.InterviewPull <= 0 {
		c.InterviewPull = def.InterviewPull
	}
	if c.FeedbackMax <= 0 {
		c.FeedbackMax = def.FeedbackMax
	}
	return c
}

// Pull moves a and b towards each other by k.
func Pull(a, b vector.Vector, k float64) (vector.Vector, vector.Vector) {
	return vector.Normalize(vector.Combine(1-k, a, k, b)),
		vector.Normalize(vector.Combine(1-k, b, k, a))
}

// Push moves a and b apart by k along their difference.
func Push(a, b vector.Vector, k float64) (vector.Vector, vector.Vector) {
	delta := vector.Combine(1, a, -1, b)
	return vector.Normalize(vector.Combine(1, a, k, delta)),
		vector.Normalize(vector.Combine(1, b, -k, delta))
}

// FeedbackStrength maps a 0..10 interview score to a direction and strength.
// A score of exactly 5 gives zero strength.
func FeedbackStrength(score, maxStrength float64) (Direction, float64) {
	score = math.Max(0, math.Min(10, score))
	centered := score - 5
	if centered == 0 {
		return "", 0
	}
	dir := DirectionPull
	if centered < 0 {
		dir = DirectionPush
	}
	return dir, math.Abs(centered) / 5 * maxStrength
}

// Outcome reports one pair update.
type Outcome struct {
	UserID       string    `json:"user_id"`
	JobID        string    `json:"job_id"`
	Direction    Direction `json:"direction,omitempty"`
	Strength     float64   `json:"strength"`
	Applied      bool      `json:"applied"`
	CosineBefore float64   `json:"cosine_before"`
	CosineAfter  float64   `json:"cosine_after"`
}

// Composer derives a fresh vector for a subject from a pool of same-type entries.
type Composer interface {
	Compose(ctx context.Context, t domain.EntityType, subject domain.Metadata, pool []vecstore.Entry) (*coldstart.Outcome, error)
}

type Nudger struct {
	store    vecstore.Store
	composer Composer
	cfg      Config
	logger   *zap.Logger
	locks    *keyedMutex
}

// New builds a Nudger. composer is only needed for resume updates.
func New(store vecstore.Store, composer Composer, cfg Config, log *zap.Logger) *Nudger {
	return &Nudger{
		store:    store,
		composer: composer,
		cfg:      cfg.withDefaults(),
		logger:   logger.WithFields(log, zap.String("component", "nudge")),
		locks:    newKeyedMutex(),
	}
}

func (n *Nudger) Config() Config { return n.cfg }

func (n *Nudger) OnUserApplies(ctx context.Context, userID, jobID string) (*Outcome, error) {
	return n.Update(ctx, userID, jobID, DirectionPull, n.cfg.ApplyPull)
}

func (n *Nudger) OnUserRejectsOffer(ctx context.Context, userID, jobID string) (*Outcome, error) {
	return n.Update(ctx, userID, jobID, DirectionPush, n.cfg.RejectPush)
}

func (n *Nudger) OnCompanySelectsInterview(ctx context.Context, userID, jobID string) (*Outcome, error) {
	return n.Update(ctx, userID, jobID, DirectionPull, n.cfg.InterviewPull)
}

// OnCompanyFeedbackScore pulls for scores above 5 and pushes below, scaled by the distance from 5.
func (n *Nudger) OnCompanyFeedbackScore(ctx context.Context, userID, jobID string, score float64) (*Outcome, error) {
	dir, k := FeedbackStrength(score, n.cfg.FeedbackMax)
	if k == 0 {
		return &Outcome{UserID: userID, JobID: jobID}, nil
	}
	return n.Update(ctx, userID, jobID, dir, k)
}

// Fire dispatches a named event. score is only used by EventFeedback.
func (n *Nudger) Fire(ctx context.Context, event Event, userID, jobID string, score float64) (*Outcome, error) {
	switch event {
	case EventApply:
		return n.OnUserApplies(ctx, userID, jobID)
	case EventRejectOffer:
		return n.OnUserRejectsOffer(ctx, userID, jobID)
	case EventInterview:
		return n.OnCompanySelectsInterview(ctx, userID, jobID)
	case EventFeedback:
		return n.OnCompanyFeedbackScore(ctx, userID, jobID, score)
	default:
		return nil, fmt.Errorf("unknown interaction event %q", string(event))
	}
}

// Update applies one pull or push of strength k to the pair. k is clamped to [0, 1];
// k <= 0 changes nothing. Both vectors must exist.
func (n *Nudger) Update(ctx context.Context, userID, jobID string, dir Direction, k float64) (*Outcome, error) {
	out := &Outcome{UserID: userID, JobID: jobID, Direction: dir}
	if k <= 0 {
		return out, nil
	}
	k = math.Min(1, k)
	out.Strength = k

	unlock := n.locks.lock(lockKey(domain.EntityJob, jobID), lockKey(domain.EntityUser, userID))
	defer unlock()

	userVec, err := n.mustGet(ctx, domain.EntityUser, userID)
	if err != nil {
		return nil, err
	}
	jobVec, err := n.mustGet(ctx, domain.EntityJob, jobID)
	if err != nil {
		return nil, err
	}

	var userNew, jobNew vector.Vector
	switch dir {
	case DirectionPull:
		userNew, jobNew = Pull(userVec, jobVec, k)
	case DirectionPush:
		userNew, jobNew = Push(userVec, jobVec, k)
	default:
		return nil, fmt.Errorf("unknown nudge direction %q", string(dir))
	}

	if err := n.store.Upsert(ctx, domain.EntityUser, userID, userNew, nil); err != nil {
		return nil, fmt.Errorf("store user vector: %w", err)
	}
	if err := n.store.Upsert(ctx, domain.EntityJob, jobID, jobNew, nil); err != nil {
		return nil, fmt.Errorf("store job vector: %w", err)
	}

	out.Applied = true
	out.CosineBefore = vector.Cosine(userVec, jobVec)
	out.CosineAfter = vector.Cosine(userNew, jobNew)

	n.logger.Info("vectors nudged",
		append(logger.PairFields(userID, jobID),
			zap.String("direction", string(dir)),
			zap.Float64("strength", k),
			zap.Float64("cosine_before", out.CosineBefore),
			zap.Float64("cosine_after", out.CosineAfter),
		)...,
	)
	return out, nil
}

func (n *Nudger) mustGet(ctx context.Context, t domain.EntityType, id string) (vector.Vector, error) {
	v, ok, err := n.store.Get(ctx, t, id)
	if err != nil {
		return nil, fmt.Errorf("load %s vector: %w", t, err)
	}
	if !ok {
		return nil, &domain.MissingVectorError{Type: t, ID: id}
	}
	return v, nil
}
