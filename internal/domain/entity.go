package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// EntityType names one of the two towers.
type EntityType string

const (
	EntityJob  EntityType = "job"
	EntityUser EntityType = "user"
)

func (t EntityType) Valid() bool {
	return t == EntityJob || t == EntityUser
}

// ParseEntityType accepts "job" or "user" in any case.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// Metadata is the opaque payload stored next to a vector. It is only used as oracle context.
type Metadata map[string]any

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// JobPayload is the typed view of job metadata.
type JobPayload struct {
	CompanyID   string   `mapstructure:"company_id" json:"company_id,omitempty"`
	Title       string   `mapstructure:"title" json:"title,omitempty"`
	Description string   `mapstructure:"description" json:"description,omitempty"`
	Skills      []string `mapstructure:"skills" json:"skills,omitempty"`
	Location    string   `mapstructure:"location" json:"location,omitempty"`
	SalaryRange string   `mapstructure:"salary_range" json:"salary_range,omitempty"`
	Status      string   `mapstructure:"status" json:"status,omitempty"`
}

// UserPayload is the typed view of user metadata.
type UserPayload struct {
	Name            string   `mapstructure:"name" json:"name,omitempty"`
	Email           string   `mapstructure:"email" json:"email,omitempty"`
	ResumeText      string   `mapstructure:"resume_text" json:"resume_text,omitempty"`
	Objective       string   `mapstructure:"objective" json:"objective,omitempty"`
	CareerObjective string   `mapstructure:"career_objective" json:"career_objective,omitempty"`
	Interests       []string `mapstructure:"interests" json:"interests,omitempty"`
	GradDate        string   `mapstructure:"grad_date" json:"grad_date,omitempty"`
	LinkedInURL     string   `mapstructure:"linkedin_url" json:"linkedin_url,omitempty"`
	GitHubURL       string   `mapstructure:"github_url" json:"github_url,omitempty"`
}

// DecodeJobPayload reads job metadata loosely: unknown keys are ignored, numbers and
// strings are converted where possible.
func DecodeJobPayload(m Metadata) (JobPayload, error) {
	var p JobPayload
	if err := decode(m, &p); err != nil {
		return JobPayload{}, fmt.Errorf("decode job payload: %w", err)
	}
	return p, nil
}

func DecodeUserPayload(m Metadata) (UserPayload, error) {
	var p UserPayload
	if err := decode(m, &p); err != nil {
		return UserPayload{}, fmt.Errorf("decode user payload: %w", err)
	}
	return p, nil
}

// ToMetadata flattens a payload struct back into a metadata map.
func ToMetadata(payload any) (Metadata, error) {
	out := Metadata{}
	if err := decode(payload, &out); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	for k, v := range out {
		if isEmpty(v) {
			delete(out, k)
		}
	}
	return out, nil
}

func decode(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           output,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []string:
		return len(val) == 0
	default:
		return false
	}
}

// Company is the owner of jobs.
type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// JobStatusOpen marks a job that accepts applications.
const JobStatusOpen = "open"

type Job struct {
	ID          string   `json:"id"`
	CompanyID   string   `json:"company_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
	Location    string   `json:"location,omitempty"`
	SalaryRange string   `json:"salary_range,omitempty"`
	Status      string   `json:"status"`
}

func (j *Job) IsOpen() bool {
	return j != nil && strings.EqualFold(strings.TrimSpace(j.Status), JobStatusOpen)
}

// Payload returns the metadata used when the job is placed in the vector space.
func (j *Job) Payload() JobPayload {
	return JobPayload{
		CompanyID:   j.CompanyID,
		Title:       j.Title,
		Description: j.Description,
		Skills:      j.Skills,
		Location:    j.Location,
		SalaryRange: j.SalaryRange,
		Status:      j.Status,
	}
}

type User struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	ResumeText      string   `json:"resume_text"`
	Objective       string   `json:"objective,omitempty"`
	CareerObjective string   `json:"career_objective,omitempty"`
	Interests       []string `json:"interests,omitempty"`
	GradDate        string   `json:"grad_date,omitempty"`
	LinkedInURL     string   `json:"linkedin_url,omitempty"`
	GitHubURL       string   `json:"github_url,omitempty"`
}

func (u *User) Payload() UserPayload {
	return UserPayload{
		Name:            u.Name,
		Email:           u.Email,
		ResumeText:      u.ResumeText,
		Objective:       u.Objective,
		CareerObjective: u.CareerObjective,
		Interests:       u.Interests,
		GradDate:        u.GradDate,
		LinkedInURL:     u.LinkedInURL,
		GitHubURL:       u.GitHubURL,
	}
}

// SkillScore is a single entry of a per-skill breakdown.
type SkillScore struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Application links a user to a job.
type Application struct {
	ID                   string       `json:"id"`
	UserID               string       `json:"user_id"`
	JobID                string       `json:"job_id"`
	CompanyID            string       `json:"company_id"`
	Status               Status       `json:"status"`
	TechnicalScore       *int         `json:"technical_score,omitempty"`
	FitScore             *int         `json:"fit_score,omitempty"`
	FitReasoning         string       `json:"fit_reasoning,omitempty"`
	FitScoredAt          *time.Time   `json:"fit_scored_at,omitempty"`
	SkillAnalysis        []SkillScore `json:"skill_analysis,omitempty"`
	SkillAnalysisSummary string       `json:"skill_analysis_summary,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
}

// Rated reports whether the pipeline has already scored the application.
func (a *Application) Rated() bool {
	return a.FitScore != nil
}

// FitUpdate is what the scoring pipeline persists for one application.
type FitUpdate struct {
	FitScore             int
	FitReasoning         string
	FitScoredAt          time.Time
	SkillAnalysis        []SkillScore
	SkillAnalysisSummary string
}

// ActivityEntry is one line of a company's activity log.
type ActivityEntry struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomReport is a saved ranking of a job's applicants against extra recruiter criteria.
type CustomReport struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	JobID     string    `json:"job_id"`
	Name      string    `json:"report_name"`
	Criteria  string    `json:"custom_prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportScore is one application's score within a custom report. Score is in 0..100.
type ReportScore struct {
	ReportID      string `json:"report_id"`
	ApplicationID string `json:"application_id"`
	Score         int    `json:"custom_fit_score"`
	Reasoning     string `json:"custom_fit_reasoning"`
}
