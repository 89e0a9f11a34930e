// Package records holds the relational side of the system: companies, jobs, users and
// applications. It is plain CRUD; every rule lives in the callers.
package records

import (
	"context"

	"github.com/spigell/jobmatch/internal/domain"
)

// Filter narrows Applications. Empty fields match everything.
type Filter struct {
	CompanyID string
	JobID     string
	UserID    string
}

func (f Filter) match(app *domain.Application) bool {
	if f.CompanyID != "" && app.CompanyID != f.CompanyID {
		return false
	}
	if f.JobID != "" && app.JobID != f.JobID {
		return false
	}
	if f.UserID != "" && app.UserID != f.UserID {
		return false
	}
	return true
}

type Store interface {
	Company(ctx context.Context, id string) (*domain.Company, error)
	Job(ctx context.Context, id string) (*domain.Job, error)
	User(ctx context.Context, id string) (*domain.User, error)
	OpenJobs(ctx context.Context) ([]domain.Job, error)
	CompanyJobs(ctx context.Context, companyID string) ([]domain.Job, error)

	// Applications returns matching applications in creation order.
	Applications(ctx context.Context, f Filter) ([]domain.Application, error)
	Application(ctx context.Context, id string) (*domain.Application, error)
	CreateApplication(ctx context.Context, app domain.Application) (*domain.Application, error)
	UpdateApplicationFit(ctx context.Context, id string, fit domain.FitUpdate) error
	// UpdateApplicationStatus stores status and technical score as given; nil clears the score.
	UpdateApplicationStatus(ctx context.Context, id string, status domain.Status, technicalScore *int) error
	// UpdateApplicationSkills replaces the skill analysis and leaves the fit score alone.
	UpdateApplicationSkills(ctx context.Context, id string, analysis []domain.SkillScore, summary string) error

	CreateReport(ctx context.Context, report domain.CustomReport) (*domain.CustomReport, error)
	// SaveReportScore stores a score, replacing an earlier one for the same application.
	SaveReportScore(ctx context.Context, score domain.ReportScore) error
	// ReportScores returns a report's scores, highest first.
	ReportScores(ctx context.Context, reportID string) ([]domain.ReportScore, error)

	UpdateUserResume(ctx context.Context, userID, resumeText string) error
}
