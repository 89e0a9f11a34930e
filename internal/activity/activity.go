// Package activity keeps the per-company activity log and agent query counters.
package activity

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/logger"
)

// Sink receives activity entries. Recording is best-effort and never fails the caller.
type Sink interface {
	Record(companyID, action, detail string)
}

// Counter tracks how many agent queries a company has run.
type Counter interface {
	IncrementQueries(companyID string) int
}

// DefaultLimit is how many entries a company keeps. Older ones are dropped on write.
const DefaultLimit = 500

// Store is an in-process Sink and Counter that can be seeded from and exported to a dataset.
type Store struct {
	mu      sync.RWMutex
	entries []domain.ActivityEntry
	queries map[string]int
	limit   int
	logger  *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewStore(entries []domain.ActivityEntry, queries map[string]int, log *zap.Logger) *Store {
	s := &Store{
		entries: append([]domain.ActivityEntry(nil), entries...),
		queries: map[string]int{},
		limit:   DefaultLimit,
		logger:  logger.WithFields(log, zap.String("component", "activity")),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for company, n := range queries {
		s.queries[company] = n
	}
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].CreatedAt.Before(s.entries[j].CreatedAt)
	})
	for company := range s.companies() {
		s.trim(company)
	}
	return s
}

func (s *Store) Record(companyID, action, detail string) {
	entry := domain.ActivityEntry{
		ID:        s.newID(),
		CompanyID: companyID,
		Action:    action,
		Detail:    detail,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	dropped := s.trim(companyID)
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Debug("activity trimmed",
			zap.String(logger.FieldCompany, companyID),
			zap.Int("dropped", dropped),
		)
	}

	s.logger.Debug("activity recorded",
		zap.String(logger.FieldCompany, companyID),
		zap.String("action", action),
	)
}

// Recent returns up to limit entries of a company, newest first. limit <= 0 means all.
func (s *Store) Recent(companyID string, limit int) []domain.ActivityEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ActivityEntry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].CompanyID != companyID {
			continue
		}
		out = append(out, s.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (s *Store) IncrementQueries(companyID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries[companyID]++
	return s.queries[companyID]
}

func (s *Store) QueryCount(companyID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queries[companyID]
}

// Export returns copies of the log, oldest first, and the counters.
func (s *Store) Export() ([]domain.ActivityEntry, map[string]int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := append([]domain.ActivityEntry(nil), s.entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	queries := make(map[string]int, len(s.queries))
	for company, n := range s.queries {
		queries[company] = n
	}
	return entries, queries
}

func (s *Store) companies() map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range s.entries {
		out[e.CompanyID] = struct{}{}
	}
	return out
}

// trim drops the oldest entries of companyID beyond the limit and returns how many went.
// Callers hold the write lock.
func (s *Store) trim(companyID string) int {
	if s.limit <= 0 {
		return 0
	}
	count := 0
	for _, e := range s.entries {
		if e.CompanyID == companyID {
			count++
		}
	}
	excess := count - s.limit
	if excess <= 0 {
		return 0
	}

	kept := s.entries[:0]
	dropped := 0
	for _, e := range s.entries {
		if e.CompanyID == companyID && dropped < excess {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	return dropped
}
