package activity

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/domain"
)

func newTestStore() *Store {
	s := NewStore(nil, nil, zap.NewNop())
	clock := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	seq := 0
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	s.newID = func() string {
		seq++
		return fmt.Sprintf("e%d", seq)
	}
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore()
	s.Record("c1", "first", "one")
	s.Record("c2", "other", "x")
	s.Record("c1", "second", "two")
	s.Record("c1", "third", "three")

	got := s.Recent("c1", 2)
	if len(got) != 2 || got[0].Action != "third" || got[1].Action != "second" {
		t.Fatalf("expected newest two entries, got %+v", got)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("entries must carry id and timestamp, got %+v", got[0])
	}

	if all := s.Recent("c1", 0); len(all) != 3 {
		t.Fatalf("limit 0 must return everything, got %d", len(all))
	}
	if none := s.Recent("c9", 5); len(none) != 0 {
		t.Fatalf("unknown company must have no entries, got %+v", none)
	}
}

func TestQueryCounter(t *testing.T) {
	s := NewStore(nil, map[string]int{"c1": 4}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.IncrementQueries("c1")
		}()
	}
	wg.Wait()

	if got := s.QueryCount("c1"); got != 14 {
		t.Fatalf("expected 14 queries, got %d", got)
	}
	if got := s.QueryCount("c2"); got != 0 {
		t.Fatalf("expected 0 queries, got %d", got)
	}
}

func TestExportIsACopy(t *testing.T) {
	seed := []domain.ActivityEntry{{ID: "old", CompanyID: "c1", Action: "seeded", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}
	s := NewStore(seed, map[string]int{"c1": 1}, nil)
	s.Record("c1", "new", "")

	entries, queries := s.Export()
	if len(entries) != 2 || entries[0].ID != "old" {
		t.Fatalf("expected seeded entry first, got %+v", entries)
	}

	queries["c1"] = 100
	entries[0].Action = "changed"
	again, againQueries := s.Export()
	if againQueries["c1"] != 1 || again[0].Action != "seeded" {
		t.Fatalf("export must not alias internal state")
	}
}

func TestRecordKeepsNewestEntriesPerCompany(t *testing.T) {
	s := newTestStore()
	s.limit = 3
	for i := 1; i <= 5; i++ {
		s.Record("c1", fmt.Sprintf("a%d", i), "")
	}
	s.Record("c2", "other", "")

	got := s.Recent("c1", 0)
	if len(got) != 3 || got[0].Action != "a5" || got[2].Action != "a3" {
		t.Fatalf("expected a5..a3, got %+v", got)
	}
	if other := s.Recent("c2", 0); len(other) != 1 {
		t.Fatalf("another company's log must not be trimmed, got %+v", other)
	}
	entries, _ := s.Export()
	if len(entries) != 4 {
		t.Fatalf("expected 4 exported entries, got %d", len(entries))
	}
}

func TestNewStoreTrimsSeededLog(t *testing.T) {
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	var seeded []domain.ActivityEntry
	for i := DefaultLimit + 2; i >= 1; i-- {
		seeded = append(seeded, domain.ActivityEntry{
			ID:        fmt.Sprintf("e%d", i),
			CompanyID: "c1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	s := NewStore(seeded, nil, zap.NewNop())
	got := s.Recent("c1", 0)
	if len(got) != DefaultLimit {
		t.Fatalf("expected %d entries, got %d", DefaultLimit, len(got))
	}
	if got[len(got)-1].ID != "e3" {
		t.Fatalf("the two oldest entries must be dropped, oldest kept is %s", got[len(got)-1].ID)
	}
}
