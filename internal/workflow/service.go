package workflow

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/activity"
	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/nudge"
	"github.com/spigell/jobmatch/internal/records"
)

const (
	ActionStatusUpdated = "Application status updated"

	dashboardActivity = 10
)

// Events receives the interaction signals produced by company decisions.
type Events interface {
	OnCompanySelectsInterview(ctx context.Context, userID, jobID string) (*nudge.Outcome, error)
	OnCompanyFeedbackScore(ctx context.Context, userID, jobID string, score float64) (*nudge.Outcome, error)
}

// ActivityLog is the part of the activity store the dashboard reads.
type ActivityLog interface {
	activity.Sink
	Recent(companyID string, limit int) []domain.ActivityEntry
	QueryCount(companyID string) int
}

type Service struct {
	records  records.Store
	activity ActivityLog
	events   Events
	logger   *zap.Logger
}

// NewService builds a Service. activity and events may be nil.
func NewService(store records.Store, log ActivityLog, events Events, lg *zap.Logger) *Service {
	return &Service{
		records:  store,
		activity: log,
		events:   events,
		logger:   logger.WithFields(lg, zap.String("component", "workflow")),
	}
}

// UpdateStatus moves an application of companyID to status.
func (s *Service) UpdateStatus(ctx context.Context, companyID, applicationID string, status domain.Status, technicalScore *int) (*domain.Application, error) {
	if !status.Valid() {
		return nil, &domain.InvalidStatusError{Status: status}
	}

	app, err := s.records.Application(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.CompanyID != companyID {
		return nil, &domain.NotFoundError{Kind: "application", ID: applicationID}
	}

	score, err := Transition(app.Status, status, technicalScore)
	if err != nil {
		return nil, err
	}

	if err := s.records.UpdateApplicationStatus(ctx, applicationID, status, score); err != nil {
		return nil, fmt.Errorf("store status of application %s: %w", applicationID, err)
	}

	updated, err := s.records.Application(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(
		zap.String(logger.FieldCompany, companyID),
		zap.String(logger.FieldApplication, applicationID),
	)
	log.Info("application status updated",
		zap.String("from", app.Status.String()),
		zap.String("to", status.String()),
	)

	if s.activity != nil {
		s.activity.Record(companyID, ActionStatusUpdated,
			fmt.Sprintf("Application %s moved to %s.", applicationID, status))
	}
	s.fire(ctx, log, updated)

	return updated, nil
}

// fire sends the interaction event matching the new status. Failures are only logged.
func (s *Service) fire(ctx context.Context, log *zap.Logger, app *domain.Application) {
	if s.events == nil || app.UserID == "" {
		return
	}

	var err error
	switch app.Status {
	case domain.StatusInProgress:
		_, err = s.events.OnCompanySelectsInterview(ctx, app.UserID, app.JobID)
	case domain.StatusOffer, domain.StatusRejectedPostInterview:
		if app.TechnicalScore == nil {
			return
		}
		_, err = s.events.OnCompanyFeedbackScore(ctx, app.UserID, app.JobID, float64(*app.TechnicalScore))
	default:
		return
	}
	if err != nil {
		log.Info("interaction nudge skipped", zap.Error(err))
	}
}

type DashboardStats struct {
	ActivePostings       int     `json:"active_postings"`
	TotalApplicants      int     `json:"total_applicants"`
	AgentQueries         int     `json:"ai_agent_queries"`
	InterviewRatePercent float64 `json:"interview_rate_percent"`
}

type Dashboard struct {
	CompanyID      string                 `json:"company_id"`
	Stats          DashboardStats         `json:"stats"`
	Workflow       map[domain.Status]int  `json:"workflow"`
	RecentActivity []domain.ActivityEntry `json:"recent_activity"`
}

// Dashboard summarises a company's postings, pipeline counts and latest activity.
func (s *Service) Dashboard(ctx context.Context, companyID string) (*Dashboard, error) {
	if _, err := s.records.Company(ctx, companyID); err != nil {
		return nil, err
	}

	jobs, err := s.records.CompanyJobs(ctx, companyID)
	if err != nil {
		return nil, err
	}
	apps, err := s.records.Applications(ctx, records.Filter{CompanyID: companyID})
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.Status]int, len(domain.Statuses))
	for _, st := range domain.Statuses {
		counts[st] = 0
	}
	for _, app := range apps {
		if app.Status.Valid() {
			counts[app.Status]++
		}
	}

	out := &Dashboard{
		CompanyID: companyID,
		Stats: DashboardStats{
			ActivePostings:  len(jobs),
			TotalApplicants: len(apps),
		},
		Workflow:       counts,
		RecentActivity: []domain.ActivityEntry{},
	}
	if len(apps) > 0 {
		rate := float64(counts[domain.StatusInProgress]) / float64(len(apps)) * 100
		out.Stats.InterviewRatePercent = math.Round(rate*10) / 10
	}
	if s.activity != nil {
		out.Stats.AgentQueries = s.activity.QueryCount(companyID)
		out.RecentActivity = s.activity.Recent(companyID, dashboardActivity)
	}
	return out, nil
}
