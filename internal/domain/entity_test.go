package domain

import (
	"errors"
	"testing"
)

func TestDecodeJobPayloadLoose(t *testing.T) {
	m := Metadata{
		"title":        "Backend Engineer",
		"description":  "Go services",
		"skills":       []any{"go", "sql"},
		"salary_range": 120000,
		"unknown":      true,
	}

	p, err := DecodeJobPayload(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Title != "Backend Engineer" {
		t.Fatalf("unexpected title %q", p.Title)
	}
	if len(p.Skills) != 2 || p.Skills[1] != "sql" {
		t.Fatalf("unexpected skills %v", p.Skills)
	}
	if p.SalaryRange != "120000" {
		t.Fatalf("expected weakly typed salary, got %q", p.SalaryRange)
	}
}

func TestDecodeUserPayloadSplitsInterests(t *testing.T) {
	p, err := DecodeUserPayload(Metadata{"resume_text": "python", "interests": "ml,data"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Interests) != 2 || p.Interests[0] != "ml" {
		t.Fatalf("unexpected interests %v", p.Interests)
	}
}

func TestToMetadataDropsEmptyFields(t *testing.T) {
	m, err := ToMetadata(UserPayload{Name: "Ann", ResumeText: "go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["resume_text"] != "go" {
		t.Fatalf("unexpected metadata %v", m)
	}
	if _, ok := m["email"]; ok {
		t.Fatalf("empty email must be dropped: %v", m)
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
	}{
		{&NotFoundError{Kind: "job", ID: "j1"}, ErrNotFound},
		{&InsufficientPoolError{Type: EntityJob, Found: 3, Need: 10}, ErrInsufficientPool},
		{&OracleError{Op: "compare", Err: errors.New("boom")}, ErrOracle},
		{&InvalidTransitionError{From: StatusSubmitted, To: StatusOffer}, ErrInvalidTransition},
		{&InvalidScoreError{Status: StatusOffer}, ErrInvalidScore},
		{&MissingVectorError{Type: EntityUser, ID: "u1"}, ErrMissingVector},
		{&NotScoredError{UserID: "u1"}, ErrNotScored},
	}

	for _, tt := range tests {
		wrapped := errorsJoin(tt.err)
		if !errors.Is(wrapped, tt.sentinel) {
			t.Fatalf("%T does not match %v", tt.err, tt.sentinel)
		}
	}
}

func TestInvalidTransitionMessage(t *testing.T) {
	err := &InvalidTransitionError{From: StatusSubmitted, To: StatusOffer}
	if got := err.Error(); got != "invalid status transition: submitted -> offer" {
		t.Fatalf("unexpected message %q", got)
	}
}

func errorsJoin(err error) error {
	return errors.Join(errors.New("context"), err)
}
