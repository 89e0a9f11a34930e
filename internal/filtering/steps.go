package filtering

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/domain"
)

// UnratedSteps is the selection used before fit scoring.
func UnratedSteps() []Filter {
	return []Filter{NewJob(), NewUnrated(), NewOffset(), NewCap()}
}

// toggle is the enable switch every step embeds.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

type jobFilter struct {
	toggle
	jobID string
}

// NewJob creates a filter that keeps applications of the configured job only.
func NewJob() Filter {
	return &jobFilter{}
}

func (f *jobFilter) Name() string { return "job" }

func (f *jobFilter) Validate(cfg *Config) error {
	f.jobID = ""
	if cfg != nil {
		f.jobID = cfg.JobID
	}
	return nil
}

func (f *jobFilter) Apply(_ context.Context, _ Deps, apps []domain.Application) ([]domain.Application, Step, error) {
	initial := len(apps)
	if f.jobID == "" {
		return apps, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	kept := make([]domain.Application, 0, len(apps))
	for _, app := range apps {
		if app.JobID == f.jobID {
			kept = append(kept, app)
		}
	}
	return kept, Step{Initial: initial, Dropped: initial - len(kept), Left: len(kept)}, nil
}

func (f *jobFilter) Status() Status {
	details := map[string]string{}
	if f.jobID != "" {
		details["job_id"] = f.jobID
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

type unratedFilter struct {
	toggle
}

// NewUnrated creates a filter that removes applications already carrying a fit score.
func NewUnrated() Filter {
	return &unratedFilter{}
}

func (f *unratedFilter) Name() string { return "unrated" }

func (f *unratedFilter) Validate(*Config) error { return nil }

func (f *unratedFilter) Apply(_ context.Context, deps Deps, apps []domain.Application) ([]domain.Application, Step, error) {
	initial := len(apps)
	kept := make([]domain.Application, 0, len(apps))
	rated := make([]string, 0)
	for _, app := range apps {
		if app.Rated() {
			rated = append(rated, app.ID)
			continue
		}
		kept = append(kept, app)
	}

	if deps.Logger != nil && len(rated) > 0 {
		deps.Logger.Debug("excluding already rated applications",
			zap.Strings("excluded_applications", rated),
			zap.Int("applications_left", len(kept)),
		)
	}
	return kept, Step{Initial: initial, Dropped: len(rated), Left: len(kept)}, nil
}

func (f *unratedFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}

type offsetFilter struct {
	toggle
	offset int
}

// NewOffset creates a filter that skips the first Offset applications.
func NewOffset() Filter {
	return &offsetFilter{}
}

func (f *offsetFilter) Name() string { return "offset" }

func (f *offsetFilter) Validate(cfg *Config) error {
	f.offset = 0
	if cfg == nil {
		return nil
	}
	if cfg.Offset < 0 {
		return fmt.Errorf("offset must not be negative, got %d", cfg.Offset)
	}
	f.offset = cfg.Offset
	return nil
}

func (f *offsetFilter) Apply(_ context.Context, _ Deps, apps []domain.Application) ([]domain.Application, Step, error) {
	initial := len(apps)
	skip := min(f.offset, initial)
	kept := apps[skip:]
	return kept, Step{Initial: initial, Dropped: skip, Left: len(kept)}, nil
}

func (f *offsetFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: map[string]string{"offset": strconv.Itoa(f.offset)}}
}

type capFilter struct {
	toggle
	limit int
}

// NewCap creates a filter that keeps at most Limit applications. A zero limit keeps all.
func NewCap() Filter {
	return &capFilter{}
}

func (f *capFilter) Name() string { return "cap" }

func (f *capFilter) Validate(cfg *Config) error {
	f.limit = 0
	if cfg == nil {
		return nil
	}
	if cfg.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", cfg.Limit)
	}
	f.limit = cfg.Limit
	return nil
}

func (f *capFilter) Apply(_ context.Context, _ Deps, apps []domain.Application) ([]domain.Application, Step, error) {
	initial := len(apps)
	if f.limit == 0 || initial <= f.limit {
		return apps, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}
	kept := apps[:f.limit]
	return kept, Step{Initial: initial, Dropped: initial - f.limit, Left: f.limit}, nil
}

func (f *capFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: map[string]string{"limit": strconv.Itoa(f.limit)}}
}
