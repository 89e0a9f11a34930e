// Package applicant implements the job seeker side: applying, declining offers and
// editing the resume. Each action feeds the matching signal back into the vector space.
package applicant

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/coldstart"
	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/nudge"
	"github.com/spigell/jobmatch/internal/records"
	"github.com/spigell/jobmatch/internal/vecstore"
)

// Nudger is the part of nudge.Nudger used here.
type Nudger interface {
	OnUserApplies(ctx context.Context, userID, jobID string) (*nudge.Outcome, error)
	OnUserRejectsOffer(ctx context.Context, userID, jobID string) (*nudge.Outcome, error)
	ResumeUpdate(ctx context.Context, userID, resumeText string) (*nudge.ResumeOutcome, error)
}

type Initializer interface {
	InitializeJob(ctx context.Context, jobID string, payload domain.JobPayload) (*coldstart.Outcome, error)
	InitializeUser(ctx context.Context, userID string, payload domain.UserPayload) (*coldstart.Outcome, error)
}

type Service struct {
	records records.Store
	vectors vecstore.Store
	init    Initializer
	nudger  Nudger
	logger  *zap.Logger
}

// NewService builds a Service. initializer may be nil.
func NewService(store records.Store, vectors vecstore.Store, initializer Initializer, nudger Nudger, log *zap.Logger) *Service {
	return &Service{
		records: store,
		vectors: vectors,
		init:    initializer,
		nudger:  nudger,
		logger:  logger.WithFields(log, zap.String("component", "applicant")),
	}
}

// ApplyResult is the new application plus the nudge it caused, if any.
type ApplyResult struct {
	Application *domain.Application `json:"application"`
	Nudge       *nudge.Outcome      `json:"nudge,omitempty"`
}

// Apply creates a submitted application. Placing the pair in the vector space and the
// apply pull are best-effort and never fail the application.
func (s *Service) Apply(ctx context.Context, userID, jobID string) (*ApplyResult, error) {
	user, err := s.records.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	job, err := s.records.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsOpen() {
		return nil, &domain.JobClosedError{JobID: jobID}
	}

	existing, err := s.records.Applications(ctx, records.Filter{UserID: userID, JobID: jobID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, &domain.AlreadyAppliedError{UserID: userID, JobID: jobID}
	}

	app, err := s.records.CreateApplication(ctx, domain.Application{
		UserID:    userID,
		JobID:     jobID,
		CompanyID: job.CompanyID,
		Status:    domain.StatusSubmitted,
	})
	if err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}

	log := s.logger.With(logger.PairFields(userID, jobID)...)
	log.Info("application created", zap.String(logger.FieldApplication, app.ID))

	s.ensureVectors(ctx, log, user, job)

	out := &ApplyResult{Application: app}
	if s.nudger != nil {
		nudged, err := s.nudger.OnUserApplies(ctx, userID, jobID)
		if err != nil {
			log.Info("apply nudge skipped", zap.Error(err))
		} else {
			out.Nudge = nudged
		}
	}
	return out, nil
}

func (s *Service) ensureVectors(ctx context.Context, log *zap.Logger, user *domain.User, job *domain.Job) {
	if s.init == nil || s.vectors == nil {
		return
	}

	if _, ok, err := s.vectors.Get(ctx, domain.EntityUser, user.ID); err == nil && !ok {
		if _, err := s.init.InitializeUser(ctx, user.ID, user.Payload()); err != nil {
			log.Info("user vector cold start skipped", zap.Error(err))
		}
	}
	if _, ok, err := s.vectors.Get(ctx, domain.EntityJob, job.ID); err == nil && !ok {
		if _, err := s.init.InitializeJob(ctx, job.ID, job.Payload()); err != nil {
			log.Info("job vector cold start skipped", zap.Error(err))
		}
	}
}

// RejectOffer records that the user declined an offer by pushing the pair apart.
// The application keeps its offer status.
func (s *Service) RejectOffer(ctx context.Context, userID, applicationID string) (*nudge.Outcome, error) {
	app, err := s.records.Application(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.UserID != userID {
		return nil, &domain.NotFoundError{Kind: "application", ID: applicationID}
	}
	if app.Status != domain.StatusOffer {
		return nil, fmt.Errorf("application %s is %s, only offers can be declined: %w",
			applicationID, app.Status, domain.ErrInvalidTransition)
	}
	if s.nudger == nil {
		return nil, errors.New("declining an offer requires a nudger")
	}

	out, err := s.nudger.OnUserRejectsOffer(ctx, userID, app.JobID)
	if err != nil {
		return nil, fmt.Errorf("push user %s from job %s: %w", userID, app.JobID, err)
	}
	return out, nil
}

// UpdateResume stores the new resume text and re-places the user vector. A user without a
// vector yet is cold-started from the new text instead.
func (s *Service) UpdateResume(ctx context.Context, userID, resumeText string) (*nudge.ResumeOutcome, error) {
	if err := s.records.UpdateUserResume(ctx, userID, resumeText); err != nil {
		return nil, err
	}
	if s.nudger == nil {
		return &nudge.ResumeOutcome{UserID: userID}, nil
	}

	out, err := s.nudger.ResumeUpdate(ctx, userID, resumeText)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, domain.ErrMissingVector) || s.init == nil {
		return nil, err
	}

	user, uerr := s.records.User(ctx, userID)
	if uerr != nil {
		return nil, uerr
	}
	placed, ierr := s.init.InitializeUser(ctx, userID, user.Payload())
	if ierr != nil {
		s.logger.Info("user vector cold start skipped",
			zap.String(logger.FieldUser, userID),
			zap.Error(ierr),
		)
		return &nudge.ResumeOutcome{UserID: userID}, nil
	}
	return &nudge.ResumeOutcome{
		UserID:      userID,
		Updated:     true,
		SampleSize:  placed.SampleSize,
		ClosestIDs:  placed.ClosestIDs,
		FarthestIDs: placed.FarthestIDs,
		Source:      placed.Source,
	}, nil
}
