package recommend

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/coldstart"
	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/records"
	"github.com/spigell/jobmatch/internal/vecstore"
	"github.com/spigell/jobmatch/internal/vector"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func jobIDs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("job-%02d", i)
	}
	return out
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func TestSamplerIsStableWithinADay(t *testing.T) {
	c := &clock{t: time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)}
	s := NewSampler(5, WithClock(c.now))
	ids := jobIDs(20)

	first := s.Sample("u1", ids)
	c.t = c.t.Add(10 * time.Hour)
	second := s.Sample("u1", ids)

	if len(first) != 5 {
		t.Fatalf("expected 5 ids, got %v", first)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("pool changed within the day: %v vs %v", first, second)
		}
	}

	fresh := NewSampler(5, WithClock(c.now)).Sample("u1", ids)
	for i := range first {
		if first[i] != fresh[i] {
			t.Fatalf("pool must be derived from user and day alone: %v vs %v", first, fresh)
		}
	}
}

func TestSamplerBackfillsExactlyOneClosedJob(t *testing.T) {
	c := &clock{t: time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)}
	s := NewSampler(5, WithClock(c.now))
	ids := jobIDs(20)

	before := s.Sample("u1", ids)
	closed := before[2]
	after := s.Sample("u1", without(ids, closed))

	if len(after) != 5 {
		t.Fatalf("expected a full pool, got %v", after)
	}
	kept := without(before, closed)
	for i, id := range kept {
		if after[i] != id {
			t.Fatalf("survivors must keep their order: before %v, after %v", before, after)
		}
	}
	replacement := after[4]
	for _, id := range before {
		if id == replacement {
			t.Fatalf("backfill must be a new job, got %s", replacement)
		}
	}
}

func TestSamplerDayRollover(t *testing.T) {
	c := &clock{t: time.Date(2025, 5, 10, 23, 0, 0, 0, time.UTC)}
	s := NewSampler(5, WithClock(c.now))
	ids := jobIDs(40)

	s.Sample("u1", ids)
	s.Sample("u2", ids)
	if len(s.pools) != 2 {
		t.Fatalf("expected 2 cached pools, got %d", len(s.pools))
	}

	c.t = c.t.Add(2 * time.Hour)
	s.Sample("u1", ids)
	if len(s.pools) != 1 {
		t.Fatalf("stale pools must be evicted, got %d", len(s.pools))
	}
	if _, ok := s.pools[poolKey{user: "u1", day: "2025-05-11"}]; !ok {
		t.Fatalf("expected today's pool for u1, got %v", s.pools)
	}
}

func TestSamplerSmallAndEmptyPools(t *testing.T) {
	s := NewSampler(0)

	if got := s.Sample("u1", nil); len(got) != 0 {
		t.Fatalf("expected empty pool, got %v", got)
	}
	got := s.Sample("u1", []string{"b", "a", "b"})
	if len(got) != 2 {
		t.Fatalf("expected every distinct open job, got %v", got)
	}
}

func recommendFixture(t *testing.T, jobs int) (*records.Memory, *vecstore.Memory) {
	t.Helper()

	ds := &records.Dataset{
		Users: []domain.User{{ID: "u1", Name: "Ada", ResumeText: "go and postgres"}},
	}
	for i := 0; i < jobs; i++ {
		ds.Jobs = append(ds.Jobs, domain.Job{ID: fmt.Sprintf("job-%02d", i), Title: fmt.Sprintf("Job %d", i), Status: "open"})
	}
	ds.Jobs = append(ds.Jobs, domain.Job{ID: "closed", Status: "closed"})
	ds.Applications = []domain.Application{{ID: "a1", UserID: "u1", JobID: "job-01", Status: domain.StatusSubmitted}}
	return records.NewMemory(ds), vecstore.NewMemory()
}

func TestMatchedJobsRanksByDotProduct(t *testing.T) {
	recs, vecs := recommendFixture(t, 12)
	ctx := context.Background()

	if err := vecs.Upsert(ctx, domain.EntityUser, "u1", vector.Vector{1, 0}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for i := 0; i < 12; i++ {
		angle := float64(i) * 0.1
		v := vector.Vector{1 - angle, angle}
		if err := vecs.Upsert(ctx, domain.EntityJob, fmt.Sprintf("job-%02d", i), v, nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	r := New(recs, vecs, nil, nil, Config{}, zap.NewNop())
	got, err := r.MatchedJobs(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 jobs, got %d", len(got))
	}
	for i, m := range got {
		if m.VectorScore == nil {
			t.Fatalf("job %s has no vector score", m.ID)
		}
		if i > 0 && *got[i-1].VectorScore < *m.VectorScore {
			t.Fatalf("jobs must be sorted by score")
		}
		if m.ID == "closed" {
			t.Fatalf("closed jobs must never be recommended")
		}
	}
	if got[0].ID != "job-00" || got[1].ID != "job-01" || !got[1].Applied || got[0].Applied {
		t.Fatalf("unexpected head %+v %+v", got[0], got[1])
	}
}

func TestMatchedJobsWithoutVectorsReturnsPool(t *testing.T) {
	recs, vecs := recommendFixture(t, 15)
	c := &clock{t: time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)}
	sampler := NewSampler(0, WithClock(c.now))

	got, err := New(recs, vecs, nil, sampler, Config{Limit: 4}, zap.NewNop()).MatchedJobs(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool := sampler.Sample("u1", jobIDs(15))
	if len(got) != 4 {
		t.Fatalf("expected 4 jobs, got %d", len(got))
	}
	for i, m := range got {
		if m.ID != pool[i] || m.VectorScore != nil {
			t.Fatalf("expected unscored pool order %v, got %+v", pool[:4], got)
		}
	}
}

func TestMatchedJobsColdStartsMissingVectors(t *testing.T) {
	recs, vecs := recommendFixture(t, 12)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		v := vector.Vector{float64(i + 1), 1, 0}
		if err := vecs.Upsert(ctx, domain.EntityUser, fmt.Sprintf("other-%d", i), v, nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
		if err := vecs.Upsert(ctx, domain.EntityJob, fmt.Sprintf("job-%02d", i), v, nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	initializer := coldstart.New(vecs, nil, coldstart.Config{}, zap.NewNop(), coldstart.WithRand(rand.New(rand.NewSource(3))))

	got, err := New(recs, vecs, initializer, nil, Config{}, zap.NewNop()).MatchedJobs(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 jobs, got %d", len(got))
	}
	for _, m := range got {
		if m.VectorScore == nil {
			t.Fatalf("expected every returned job scored, got %+v", m)
		}
	}
	if _, ok, _ := vecs.Get(ctx, domain.EntityUser, "u1"); !ok {
		t.Fatalf("expected the user vector to be cold-started")
	}
	for _, id := range []string{"job-10", "job-11"} {
		if _, ok, _ := vecs.Get(ctx, domain.EntityJob, id); !ok {
			t.Fatalf("expected %s to be cold-started", id)
		}
	}
}

func TestMatchedJobsUnknownUser(t *testing.T) {
	recs, vecs := recommendFixture(t, 1)
	if _, err := New(recs, vecs, nil, nil, Config{}, zap.NewNop()).MatchedJobs(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected an error for an unknown user")
	}
}
