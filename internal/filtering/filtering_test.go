package filtering

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/jobmatch/internal/domain"
)

func apps(n int, ratedEvery int) []domain.Application {
	out := make([]domain.Application, 0, n)
	for i := 0; i < n; i++ {
		app := domain.Application{ID: fmt.Sprintf("a%02d", i), JobID: "j1"}
		if i%2 == 1 {
			app.JobID = "j2"
		}
		if ratedEvery > 0 && i%ratedEvery == 0 {
			score := 50
			app.FitScore = &score
		}
		out = append(out, app)
	}
	return out
}

func ids(list []domain.Application) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.ID)
	}
	return out
}

func TestUnratedStepsSelection(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{name: "unrated only", cfg: Config{}, want: []string{"a01", "a02", "a04", "a05", "a07", "a08"}},
		{name: "job", cfg: Config{JobID: "j2"}, want: []string{"a01", "a05", "a07"}},
		{name: "offset", cfg: Config{Offset: 2}, want: []string{"a04", "a05", "a07", "a08"}},
		{name: "offset and cap", cfg: Config{Offset: 1, Limit: 2}, want: []string{"a02", "a04"}},
		{name: "offset beyond end", cfg: Config{Offset: 50}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			got, err := Run(context.Background(), &cfg, Deps{}, UnratedSteps(), apps(9, 3))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			gotIDs := ids(got)
			if fmt.Sprint(gotIDs) != fmt.Sprint(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, gotIDs)
			}
		})
	}
}

func TestRunRejectsNegativeOffset(t *testing.T) {
	_, err := Run(context.Background(), &Config{Offset: -1}, Deps{}, UnratedSteps(), apps(3, 0))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestDisabledStepIsSkipped(t *testing.T) {
	steps := UnratedSteps()
	DisableByName(steps, "unrated", "rescoring")

	got, err := Run(context.Background(), &Config{}, Deps{}, steps, apps(4, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected rated applications kept, got %v", ids(got))
	}

	for _, st := range Describe(steps) {
		if st.Name == "unrated" && (st.Enabled || st.Reason != "rescoring") {
			t.Fatalf("unexpected status %+v", st)
		}
	}
}

func TestDisableByNameTurnsOffAnyStep(t *testing.T) {
	cfg := Config{JobID: "j1", Offset: 1, Limit: 1}
	tests := []struct {
		name string
		want []string
	}{
		{name: "job", want: []string{"a01"}},
		{name: "offset", want: []string{"a00"}},
		{name: "cap", want: []string{"a02"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := UnratedSteps()
			DisableByName(steps, tt.name, "manual")

			got, err := Run(context.Background(), &cfg, Deps{}, steps, apps(4, 0))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if fmt.Sprint(ids(got)) != fmt.Sprint(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, ids(got))
			}
			for _, st := range Describe(steps) {
				if st.Name == tt.name && (st.Enabled || st.Reason != "manual") {
					t.Fatalf("unexpected status %+v", st)
				}
			}
		})
	}
}

func TestRunLogsEveryStep(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	_, err := Run(context.Background(), &Config{Limit: 1}, Deps{Logger: zap.New(core)}, UnratedSteps(), apps(4, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.FilterMessage("filter step").All()
	if len(entries) != 4 {
		t.Fatalf("expected one entry per step, got %d", len(entries))
	}
	last := entries[3].ContextMap()
	if last["name"] != "cap" || last["dropped"] != int64(3) || last["left"] != int64(1) {
		t.Fatalf("unexpected cap log fields %v", last)
	}
}
