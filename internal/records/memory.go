package records

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spigell/jobmatch/internal/domain"
)

// Memory is a Store kept in process and seeded from a Dataset.
type Memory struct {
	mu        sync.RWMutex
	companies map[string]domain.Company
	jobs      map[string]domain.Job
	users     map[string]domain.User
	apps      []*domain.Application
	reports   map[string]domain.CustomReport
	scores    map[string][]domain.ReportScore

	now   func() time.Time
	newID func() string
}

func NewMemory(ds *Dataset) *Memory {
	m := &Memory{
		companies: map[string]domain.Company{},
		jobs:      map[string]domain.Job{},
		users:     map[string]domain.User{},
		reports:   map[string]domain.CustomReport{},
		scores:    map[string][]domain.ReportScore{},
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	if ds == nil {
		return m
	}

	for _, c := range ds.Companies {
		m.companies[c.ID] = c
	}
	for _, j := range ds.Jobs {
		m.jobs[j.ID] = j
	}
	for _, u := range ds.Users {
		m.users[u.ID] = u
	}
	for i := range ds.Applications {
		app := cloneApplication(ds.Applications[i])
		m.apps = append(m.apps, &app)
	}
	sort.SliceStable(m.apps, func(i, j int) bool {
		return m.apps[i].CreatedAt.Before(m.apps[j].CreatedAt)
	})
	for _, r := range ds.Reports {
		m.reports[r.ID] = r
	}
	for _, sc := range ds.ReportScores {
		m.scores[sc.ReportID] = append(m.scores[sc.ReportID], sc)
	}
	return m
}

// Snapshot returns the current content as a Dataset with stable ordering.
func (m *Memory) Snapshot() *Dataset {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ds := &Dataset{}
	for _, c := range m.companies {
		ds.Companies = append(ds.Companies, c)
	}
	for _, j := range m.jobs {
		ds.Jobs = append(ds.Jobs, j)
	}
	for _, u := range m.users {
		ds.Users = append(ds.Users, u)
	}
	for _, app := range m.apps {
		ds.Applications = append(ds.Applications, cloneApplication(*app))
	}
	sort.Slice(ds.Companies, func(i, j int) bool { return ds.Companies[i].ID < ds.Companies[j].ID })
	sort.Slice(ds.Jobs, func(i, j int) bool { return ds.Jobs[i].ID < ds.Jobs[j].ID })
	for _, r := range m.reports {
		ds.Reports = append(ds.Reports, r)
	}
	for _, scores := range m.scores {
		ds.ReportScores = append(ds.ReportScores, scores...)
	}
	sort.Slice(ds.Users, func(i, j int) bool { return ds.Users[i].ID < ds.Users[j].ID })
	sort.Slice(ds.Reports, func(i, j int) bool { return ds.Reports[i].ID < ds.Reports[j].ID })
	sort.Slice(ds.ReportScores, func(i, j int) bool {
		a, b := ds.ReportScores[i], ds.ReportScores[j]
		if a.ReportID != b.ReportID {
			return a.ReportID < b.ReportID
		}
		return a.ApplicationID < b.ApplicationID
	})
	return ds
}

func (m *Memory) Company(_ context.Context, id string) (*domain.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.companies[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "company", ID: id}
	}
	return &c, nil
}

func (m *Memory) Job(_ context.Context, id string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "job", ID: id}
	}
	j.Skills = append([]string(nil), j.Skills...)
	return &j, nil
}

func (m *Memory) User(_ context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "user", ID: id}
	}
	u.Interests = append([]string(nil), u.Interests...)
	return &u, nil
}

// OpenJobs returns open jobs ordered by id.
func (m *Memory) OpenJobs(_ context.Context) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.IsOpen() {
			j.Skills = append([]string(nil), j.Skills...)
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CompanyJobs returns every job of a company, open or not, ordered by id.
func (m *Memory) CompanyJobs(_ context.Context, companyID string) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Job, 0)
	for _, j := range m.jobs {
		if j.CompanyID == companyID {
			j.Skills = append([]string(nil), j.Skills...)
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Applications(_ context.Context, f Filter) ([]domain.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Application, 0)
	for _, app := range m.apps {
		if f.match(app) {
			out = append(out, cloneApplication(*app))
		}
	}
	return out, nil
}

func (m *Memory) Application(_ context.Context, id string) (*domain.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app := m.find(id)
	if app == nil {
		return nil, &domain.NotFoundError{Kind: "application", ID: id}
	}
	out := cloneApplication(*app)
	return &out, nil
}

// CreateApplication stores app, filling in the id, creation time, status and company when empty.
func (m *Memory) CreateApplication(_ context.Context, app domain.Application) (*domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(app.ID) == "" {
		app.ID = m.newID()
	}
	if m.find(app.ID) != nil {
		return nil, fmt.Errorf("application %s already exists", app.ID)
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = m.now()
	}
	if app.Status == "" {
		app.Status = domain.StatusSubmitted
	}
	if app.CompanyID == "" {
		if job, ok := m.jobs[app.JobID]; ok {
			app.CompanyID = job.CompanyID
		}
	}

	stored := cloneApplication(app)
	m.apps = append(m.apps, &stored)

	out := cloneApplication(stored)
	return &out, nil
}

func (m *Memory) UpdateApplicationFit(_ context.Context, id string, fit domain.FitUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	app := m.find(id)
	if app == nil {
		return &domain.NotFoundError{Kind: "application", ID: id}
	}

	score := fit.FitScore
	scoredAt := fit.FitScoredAt.UTC()
	app.FitScore = &score
	app.FitReasoning = fit.FitReasoning
	app.FitScoredAt = &scoredAt
	app.SkillAnalysis = append([]domain.SkillScore(nil), fit.SkillAnalysis...)
	app.SkillAnalysisSummary = fit.SkillAnalysisSummary
	return nil
}

func (m *Memory) UpdateApplicationStatus(_ context.Context, id string, status domain.Status, technicalScore *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	app := m.find(id)
	if app == nil {
		return &domain.NotFoundError{Kind: "application", ID: id}
	}

	app.Status = status
	app.TechnicalScore = cloneInt(technicalScore)
	return nil
}

func (m *Memory) UpdateApplicationSkills(_ context.Context, id string, analysis []domain.SkillScore, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	app := m.find(id)
	if app == nil {
		return &domain.NotFoundError{Kind: "application", ID: id}
	}
	app.SkillAnalysis = append([]domain.SkillScore(nil), analysis...)
	app.SkillAnalysisSummary = summary
	return nil
}

// CreateReport stores report, filling in the id and creation time when empty.
func (m *Memory) CreateReport(_ context.Context, report domain.CustomReport) (*domain.CustomReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(report.ID) == "" {
		report.ID = m.newID()
	}
	if _, ok := m.reports[report.ID]; ok {
		return nil, fmt.Errorf("report %s already exists", report.ID)
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = m.now()
	}
	m.reports[report.ID] = report
	return &report, nil
}

func (m *Memory) SaveReportScore(_ context.Context, score domain.ReportScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reports[score.ReportID]; !ok {
		return &domain.NotFoundError{Kind: "report", ID: score.ReportID}
	}
	if m.find(score.ApplicationID) == nil {
		return &domain.NotFoundError{Kind: "application", ID: score.ApplicationID}
	}

	scores := m.scores[score.ReportID]
	for i := range scores {
		if scores[i].ApplicationID == score.ApplicationID {
			scores[i] = score
			return nil
		}
	}
	m.scores[score.ReportID] = append(scores, score)
	return nil
}

func (m *Memory) ReportScores(_ context.Context, reportID string) ([]domain.ReportScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.reports[reportID]; !ok {
		return nil, &domain.NotFoundError{Kind: "report", ID: reportID}
	}
	out := append([]domain.ReportScore{}, m.scores[reportID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (m *Memory) UpdateUserResume(_ context.Context, userID, resumeText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return &domain.NotFoundError{Kind: "user", ID: userID}
	}
	u.ResumeText = resumeText
	m.users[userID] = u
	return nil
}

func (m *Memory) find(id string) *domain.Application {
	for _, app := range m.apps {
		if app.ID == id {
			return app
		}
	}
	return nil
}

func cloneApplication(app domain.Application) domain.Application {
	app.TechnicalScore = cloneInt(app.TechnicalScore)
	app.FitScore = cloneInt(app.FitScore)
	if app.FitScoredAt != nil {
		t := *app.FitScoredAt
		app.FitScoredAt = &t
	}
	app.SkillAnalysis = append([]domain.SkillScore(nil), app.SkillAnalysis...)
	return app
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
