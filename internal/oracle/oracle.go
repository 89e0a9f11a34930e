// Package oracle describes the external judgment used for cold start and fit scoring,
// and the fallback discipline every caller has to follow.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/spigell/jobmatch/internal/domain"
)

const (
	// SourceFallback marks results produced without the oracle.
	SourceFallback = "fallback"
	// SourceNone marks an empty ranking that needed no judgment at all.
	SourceNone = "none"

	DefaultTimeout = 90 * time.Second
)

// CompareRequest asks which of the candidates are most and least similar to the subject.
type CompareRequest struct {
	Type       domain.EntityType
	Subject    domain.Metadata
	Candidates []domain.Metadata
	// Count is the number of indices wanted in each list.
	Count int
}

// Comparison holds raw candidate indices as returned by the oracle. They are not validated.
type Comparison struct {
	Closest  []int
	Farthest []int
}

// Comparer ranks closest and farthest neighbours of a new entity.
type Comparer interface {
	Name() string
	Compare(ctx context.Context, req CompareRequest) (Comparison, error)
}

// Candidate is an applicant as shown to the fit oracle.
type Candidate struct {
	UserID      string   `json:"user_id"`
	Name        string   `json:"-"`
	Skills      []string `json:"-"`
	ResumeText  string   `json:"resume_text"`
	GradDate    string   `json:"grad_date"`
	LinkedInURL string   `json:"linkedin_url"`
	GitHubURL   string   `json:"github_url"`
}

// FitJob is the job context sent with a fit request.
type FitJob struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
	Location    string   `json:"location"`
}

// FitRequest asks for fit scores. With Criteria set, each score weighs the job and the
// criteria equally.
type FitRequest struct {
	Job        FitJob
	Prompt     string
	Criteria   string
	Candidates []Candidate
}

// RankedCandidate is one scored applicant. Score is in 0..100.
type RankedCandidate struct {
	UserID        string              `json:"user_id"`
	Name          string              `json:"name"`
	Skills        []string            `json:"skills"`
	Score         int                 `json:"score"`
	Reasoning     string              `json:"reasoning"`
	SkillAnalysis []domain.SkillScore `json:"skill_analysis,omitempty"`
	SkillSummary  string              `json:"skill_summary,omitempty"`
}

// FitScorer scores each candidate independently against a job.
type FitScorer interface {
	Name() string
	ScoreFit(ctx context.Context, req FitRequest) ([]RankedCandidate, error)
}

// Result is the outcome of an oracle call. Source is the oracle name on success and
// SourceFallback otherwise, in which case Err carries the oracle failure.
type Result[T any] struct {
	Value  T
	Source string
	Err    error
}

func (r Result[T]) FellBack() bool {
	return r.Source == SourceFallback
}

// WithFallback runs call under timeout and substitutes fallback on any failure.
// A nil call (no oracle configured) goes straight to the fallback.
func WithFallback[T any](
	ctx context.Context,
	op string,
	name string,
	timeout time.Duration,
	call func(ctx context.Context) (T, error),
	fallback func(cause error) T,
) Result[T] {
	if call == nil {
		err := &domain.OracleError{Op: op, Err: fmt.Errorf("no oracle configured")}
		return Result[T]{Value: fallback(err), Source: SourceFallback, Err: err}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := call(callCtx)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		oerr := &domain.OracleError{Op: op, Err: err}
		return Result[T]{Value: fallback(oerr), Source: SourceFallback, Err: oerr}
	}
	return Result[T]{Value: value, Source: name}
}
