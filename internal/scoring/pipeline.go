// Package scoring blends oracle fit judgments with two-tower similarity and persists the
// result on applications.
package scoring

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spigell/jobmatch/internal/activity"
	"github.com/spigell/jobmatch/internal/coldstart"
	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/oracle"
	"github.com/spigell/jobmatch/internal/records"
	"github.com/spigell/jobmatch/internal/vecstore"
)

type Config struct {
	BatchSize          int           `mapstructure:"batch-size"`
	MaxParallelBatches int           `mapstructure:"max-parallel-batches"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		BatchSize:          5,
		MaxParallelBatches: 20,
		Timeout:            oracle.DefaultTimeout,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxParallelBatches <= 0 {
		c.MaxParallelBatches = def.MaxParallelBatches
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// VectorInitializer places entities that have no vector yet.
type VectorInitializer interface {
	InitializeJob(ctx context.Context, jobID string, payload domain.JobPayload) (*coldstart.Outcome, error)
	InitializeUser(ctx context.Context, userID string, payload domain.UserPayload) (*coldstart.Outcome, error)
}

// Deps are the collaborators of a Pipeline. Initializer, Scorer, Activity and Counter are optional.
type Deps struct {
	Records     records.Store
	Vectors     vecstore.Store
	Initializer VectorInitializer
	Scorer      oracle.FitScorer
	Activity    activity.Sink
	Counter     activity.Counter
}

type Pipeline struct {
	records  records.Store
	vectors  vecstore.Store
	init     VectorInitializer
	scorer   oracle.FitScorer
	activity activity.Sink
	counter  activity.Counter

	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	flight singleflight.Group
}

func New(deps Deps, cfg Config, log *zap.Logger) *Pipeline {
	return &Pipeline{
		records:  deps.Records,
		vectors:  deps.Vectors,
		init:     deps.Initializer,
		scorer:   deps.Scorer,
		activity: deps.Activity,
		counter:  deps.Counter,
		cfg:      cfg.withDefaults(),
		logger:   logger.WithFields(log, zap.String("component", "scoring")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Applicant is an application joined with the applicant's profile.
type Applicant struct {
	domain.Application
	UserName    string   `json:"user_name"`
	UserEmail   string   `json:"user_email"`
	Skills      []string `json:"skills"`
	ResumeText  string   `json:"resume_text,omitempty"`
	GradDate    string   `json:"grad_date,omitempty"`
	LinkedInURL string   `json:"linkedin_url,omitempty"`
	GitHubURL   string   `json:"github_url,omitempty"`
}

func (a Applicant) candidate() oracle.Candidate {
	return oracle.Candidate{
		UserID:      a.UserID,
		Name:        a.UserName,
		Skills:      a.Skills,
		ResumeText:  a.ResumeText,
		GradDate:    a.GradDate,
		LinkedInURL: a.LinkedInURL,
		GitHubURL:   a.GitHubURL,
	}
}

// Applicants lists a company's applications with profiles, optionally narrowed to one job.
func (p *Pipeline) Applicants(ctx context.Context, companyID, jobID string) ([]Applicant, error) {
	if _, err := p.records.Company(ctx, companyID); err != nil {
		return nil, err
	}
	return p.applicants(ctx, records.Filter{CompanyID: companyID, JobID: jobID})
}

func (p *Pipeline) applicants(ctx context.Context, f records.Filter) ([]Applicant, error) {
	apps, err := p.records.Applications(ctx, f)
	if err != nil {
		return nil, err
	}

	users := map[string]*domain.User{}
	out := make([]Applicant, 0, len(apps))
	for _, app := range apps {
		applicant := Applicant{Application: app, Skills: []string{}}

		user, cached := users[app.UserID]
		if !cached {
			user, err = p.records.User(ctx, app.UserID)
			if err != nil {
				p.logger.Debug("applicant profile unavailable",
					zap.String(logger.FieldUser, app.UserID),
					zap.Error(err),
				)
				user = nil
			}
			users[app.UserID] = user
		}
		if user != nil {
			applicant.UserName = user.Name
			applicant.UserEmail = user.Email
			applicant.ResumeText = user.ResumeText
			applicant.GradDate = user.GradDate
			applicant.LinkedInURL = user.LinkedInURL
			applicant.GitHubURL = user.GitHubURL
			if len(user.Interests) > 0 {
				applicant.Skills = append([]string(nil), user.Interests...)
			}
		}
		out = append(out, applicant)
	}
	return out, nil
}

func (p *Pipeline) record(companyID, action, detail string) {
	if p.activity == nil || companyID == "" {
		return
	}
	p.activity.Record(companyID, action, detail)
}

func fitJob(job *domain.Job) oracle.FitJob {
	return oracle.FitJob{
		ID:          job.ID,
		Title:       job.Title,
		Description: job.Description,
		Skills:      job.Skills,
		Location:    job.Location,
	}
}
