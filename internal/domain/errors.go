package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientPool  = errors.New("insufficient pool")
	ErrOracle            = errors.New("oracle failure")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid application status")
	ErrInvalidScore      = errors.New("invalid technical score")
	ErrMissingVector     = errors.New("missing vector")
	ErrNotScored         = errors.New("skill analysis not available")
	ErrJobClosed         = errors.New("job is closed")
	ErrAlreadyApplied    = errors.New("already applied to this job")
)

// NotFoundError reports a missing record of the given kind.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientPoolError is returned by cold start when the same-type pool is too small.
type InsufficientPoolError struct {
	Type  EntityType
	Found int
	Need  int
}

func (e *InsufficientPoolError) Error() string {
	return fmt.Sprintf("need at least %d existing %ss in vector store; found %d", e.Need, e.Type, e.Found)
}

func (e *InsufficientPoolError) Is(target error) bool { return target == ErrInsufficientPool }

// OracleError wraps any failure of the ranking oracle: transport, timeout or malformed output.
type OracleError struct {
	Op  string
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Op, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

func (e *OracleError) Is(target error) bool { return target == ErrOracle }

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type InvalidStatusError struct {
	Status Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid application status %q", string(e.Status))
}

func (e *InvalidStatusError) Is(target error) bool { return target == ErrInvalidStatus }

// InvalidScoreError is returned when a status needing a technical score gets none or one outside 1..10.
type InvalidScoreError struct {
	Status Status
	Score  *int
}

func (e *InvalidScoreError) Error() string {
	if e.Score == nil {
		return fmt.Sprintf("technical_score is required for status %s", e.Status)
	}
	return fmt.Sprintf("technical_score must be between 1 and 10, got %d", *e.Score)
}

func (e *InvalidScoreError) Is(target error) bool { return target == ErrInvalidScore }

type MissingVectorError struct {
	Type EntityType
	ID   string
}

func (e *MissingVectorError) Error() string {
	return fmt.Sprintf("missing %s vector for id=%s", e.Type, e.ID)
}

func (e *MissingVectorError) Is(target error) bool { return target == ErrMissingVector }

type NotScoredError struct {
	UserID string
	JobID  string
}

func (e *NotScoredError) Error() string {
	return fmt.Sprintf("skill analysis not available for user %s; score the candidate first", e.UserID)
}

func (e *NotScoredError) Is(target error) bool { return target == ErrNotScored }

type JobClosedError struct {
	JobID string
}

func (e *JobClosedError) Error() string {
	return fmt.Sprintf("job %s is not accepting applications", e.JobID)
}

func (e *JobClosedError) Is(target error) bool { return target == ErrJobClosed }

type AlreadyAppliedError struct {
	UserID string
	JobID  string
}

func (e *AlreadyAppliedError) Error() string {
	return fmt.Sprintf("user %s already applied to job %s", e.UserID, e.JobID)
}

func (e *AlreadyAppliedError) Is(target error) bool { return target == ErrAlreadyApplied }
