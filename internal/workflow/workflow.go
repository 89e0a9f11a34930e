// Package workflow enforces the application status lifecycle.
package workflow

import (
	"github.com/spigell/jobmatch/internal/domain"
)

const (
	MinTechnicalScore = 1
	MaxTechnicalScore = 10
)

var transitions = map[domain.Status][]domain.Status{
	domain.StatusSubmitted:  {domain.StatusRejectedPreInterview, domain.StatusInProgress},
	domain.StatusInProgress: {domain.StatusRejectedPostInterview, domain.StatusOffer},
}

// Next lists the statuses reachable from s. Terminal statuses have none.
func Next(s domain.Status) []domain.Status {
	return append([]domain.Status(nil), transitions[s]...)
}

func Terminal(s domain.Status) bool {
	return len(transitions[s]) == 0
}

// RequiresScore reports whether entering s needs a technical score.
func RequiresScore(s domain.Status) bool {
	return s == domain.StatusRejectedPostInterview || s == domain.StatusOffer
}

// Transition validates from -> to and returns the technical score to store.
// Statuses that do not need a score always get nil.
func Transition(from, to domain.Status, technicalScore *int) (*int, error) {
	if !to.Valid() {
		return nil, &domain.InvalidStatusError{Status: to}
	}
	if from == "" {
		from = domain.StatusSubmitted
	}

	allowed := false
	for _, s := range transitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, &domain.InvalidTransitionError{From: from, To: to}
	}

	if !RequiresScore(to) {
		return nil, nil
	}
	if technicalScore == nil || *technicalScore < MinTechnicalScore || *technicalScore > MaxTechnicalScore {
		return nil, &domain.InvalidScoreError{Status: to, Score: technicalScore}
	}
	score := *technicalScore
	return &score, nil
}
