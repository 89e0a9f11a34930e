package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/filtering"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/oracle"
	"github.com/spigell/jobmatch/internal/oracle/local"
	"github.com/spigell/jobmatch/internal/vector"
)

// BatchPrompt is sent with every fit batch.
const BatchPrompt = "Evaluate each candidate's fit for this role based solely on the job requirements. " +
	"Score them independently and do not compare them to each other."

const ActionScored = "Applicant fit scores updated"

// Report is the outcome of ScoreUnrated. TotalUnrated counts what is still unrated after the run.
type Report struct {
	ScoredCount   int         `json:"scored_count"`
	TotalUnrated  int         `json:"total_unrated"`
	FailedBatches int         `json:"failed_batches,omitempty"`
	Applicants    []Applicant `json:"applicants"`
}

type batch struct {
	jobID      string
	applicants []Applicant
}

// ScoreUnrated scores up to batchSize*MaxParallelBatches unrated applications of a company,
// skipping the first offset of them. batchSize <= 0 uses the configured default.
// A failing batch is logged and skipped; it never fails the run.
func (p *Pipeline) ScoreUnrated(ctx context.Context, companyID, jobID string, batchSize, offset int) (*Report, error) {
	return p.scoreApplications(ctx, companyID, jobID, batchSize, offset, false)
}

// Rescore works like ScoreUnrated but also selects applications that already carry a fit
// score, replacing it.
func (p *Pipeline) Rescore(ctx context.Context, companyID, jobID string, batchSize, offset int) (*Report, error) {
	return p.scoreApplications(ctx, companyID, jobID, batchSize, offset, true)
}

func (p *Pipeline) scoreApplications(ctx context.Context, companyID, jobID string, batchSize, offset int, rescore bool) (*Report, error) {
	if batchSize <= 0 {
		batchSize = p.cfg.BatchSize
	}

	all, err := p.Applicants(ctx, companyID, jobID)
	if err != nil {
		return nil, err
	}

	unrated := 0
	for _, a := range all {
		if !a.Rated() {
			unrated++
		}
	}
	if unrated == 0 && (!rescore || len(all) == 0) {
		return &Report{Applicants: all}, nil
	}

	apps := make([]domain.Application, 0, len(all))
	byID := make(map[string]Applicant, len(all))
	for _, a := range all {
		apps = append(apps, a.Application)
		byID[a.ID] = a
	}

	log := logger.WithFields(p.logger, zap.String(logger.FieldCompany, companyID))
	steps := filtering.UnratedSteps()
	if rescore {
		filtering.DisableByName(steps, "unrated", "rescore requested")
	}
	selected, err := filtering.Run(ctx, &filtering.Config{
		JobID:  jobID,
		Offset: offset,
		Limit:  batchSize * p.cfg.MaxParallelBatches,
	}, filtering.Deps{Logger: log}, steps, apps)
	if err != nil {
		return nil, fmt.Errorf("select applications: %w", err)
	}
	log.Debug("selection finished",
		zap.Any("steps", filtering.Describe(steps)),
		zap.Int("selected", len(selected)),
	)
	if len(selected) == 0 {
		return &Report{TotalUnrated: unrated, Applicants: all}, nil
	}

	batches := splitBatches(selected, byID, batchSize)
	scored, failed := p.runBatches(ctx, log, batches, p.scoreBatch)

	refreshed, err := p.Applicants(ctx, companyID, jobID)
	if err != nil {
		return nil, err
	}
	remaining := 0
	for _, a := range refreshed {
		if !a.Rated() {
			remaining++
		}
	}

	if scored > 0 {
		p.record(companyID, ActionScored, fmt.Sprintf("Scored %d applicants.", scored))
	}

	log.Info("scoring finished",
		zap.Int("batches", len(batches)),
		zap.Int("failed_batches", failed),
		zap.Int("scored", scored),
		zap.Int("remaining_unrated", remaining),
	)

	return &Report{
		ScoredCount:   scored,
		TotalUnrated:  remaining,
		FailedBatches: failed,
		Applicants:    refreshed,
	}, nil
}

// splitBatches groups by job in order of first appearance, then cuts each group into chunks.
func splitBatches(selected []domain.Application, byID map[string]Applicant, size int) []batch {
	var order []string
	groups := map[string][]Applicant{}
	for _, app := range selected {
		if _, ok := groups[app.JobID]; !ok {
			order = append(order, app.JobID)
		}
		groups[app.JobID] = append(groups[app.JobID], byID[app.ID])
	}

	var out []batch
	for _, jobID := range order {
		group := groups[jobID]
		for start := 0; start < len(group); start += size {
			end := min(start+size, len(group))
			out = append(out, batch{jobID: jobID, applicants: group[start:end]})
		}
	}
	return out
}

// runBatches scores batches concurrently, at most MaxParallelBatches at a time. A batch that
// errors or panics counts as failed. It returns the scored and failed totals.
func (p *Pipeline) runBatches(ctx context.Context, log *zap.Logger, batches []batch, score func(context.Context, batch) (int, error)) (int, int) {
	type outcome struct {
		scored int
		err    error
	}
	results := make([]outcome, len(batches))

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxParallelBatches)
	for i, b := range batches {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i] = outcome{err: fmt.Errorf("panic: %v", r)}
				}
			}()
			n, err := score(ctx, b)
			results[i] = outcome{scored: n, err: err}
			return nil
		})
	}
	_ = g.Wait()

	scored, failed := 0, 0
	for i, r := range results {
		scored += r.scored
		if r.err != nil {
			failed++
			log.Warn("batch scoring failed",
				zap.String(logger.FieldJob, batches[i].jobID),
				zap.Int("applicants", len(batches[i].applicants)),
				zap.Error(r.err),
			)
		}
	}
	return scored, failed
}

func (p *Pipeline) scoreBatch(ctx context.Context, b batch) (int, error) {
	job, err := p.records.Job(ctx, b.jobID)
	if err != nil {
		return 0, err
	}

	byUser := make(map[string]Applicant, len(b.applicants))
	candidates := make([]oracle.Candidate, 0, len(b.applicants))
	for _, a := range b.applicants {
		if a.UserID == "" {
			continue
		}
		byUser[a.UserID] = a
		candidates = append(candidates, a.candidate())
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	jobVec, userVecs := p.vectorsFor(ctx, job, b.applicants)

	req := oracle.FitRequest{Job: fitJob(job), Prompt: BatchPrompt, Candidates: candidates}
	res := p.rank(ctx, "fit", req, func() []oracle.RankedCandidate {
		return local.Rank(localFitPrompt(job), candidates)
	})
	if res.FellBack() {
		p.logger.Warn("fit oracle unavailable, using local ranking",
			zap.String(logger.FieldJob, job.ID),
			zap.Error(res.Err),
		)
	}

	scoredAt := p.now().UTC()
	scored := 0
	for _, item := range res.Value {
		app, ok := byUser[item.UserID]
		if !ok {
			continue
		}

		var embedding *float64
		if jobVec != nil {
			if userVec, ok := userVecs[item.UserID]; ok {
				s := vector.ToUnitInterval(vector.Cosine(userVec, jobVec))
				embedding = &s
			}
		}
		final, summary := Blend(item.Score, embedding)

		update := domain.FitUpdate{
			FitScore:     final,
			FitReasoning: strings.TrimSpace(summary + " " + strings.TrimSpace(item.Reasoning)),
			FitScoredAt:  scoredAt,
		}
		if len(item.SkillAnalysis) > 0 {
			update.SkillAnalysis = item.SkillAnalysis
			update.SkillAnalysisSummary = item.SkillSummary
		}

		if err := p.records.UpdateApplicationFit(ctx, app.ID, update); err != nil {
			p.logger.Warn("storing fit score failed",
				zap.String(logger.FieldApplication, app.ID),
				zap.Error(err),
			)
			continue
		}
		scored++
	}
	return scored, nil
}

// rank asks the fit oracle and falls back to fallback when it is missing or fails.
func (p *Pipeline) rank(ctx context.Context, op string, req oracle.FitRequest, fallback func() []oracle.RankedCandidate) oracle.Result[[]oracle.RankedCandidate] {
	var call func(context.Context) ([]oracle.RankedCandidate, error)
	name := ""
	if p.scorer != nil {
		name = p.scorer.Name()
		call = func(ctx context.Context) ([]oracle.RankedCandidate, error) {
			return p.scorer.ScoreFit(ctx, req)
		}
	}

	res := oracle.WithFallback(ctx, op, name, p.cfg.Timeout, call,
		func(error) []oracle.RankedCandidate { return fallback() },
	)
	oracle.SortRanked(res.Value)
	return res
}

// localFitPrompt gives the keyword ranker something job specific to match on.
func localFitPrompt(job *domain.Job) string {
	return strings.Join(append([]string{job.Title}, job.Skills...), " ")
}

// Blend combines an oracle score (0..100) with an optional two-tower score (0..1).
// Without a two-tower score the oracle score is used alone.
func Blend(oracleScore int, embedding *float64) (int, string) {
	oracleScore = max(0, min(100, oracleScore))
	oracle01 := float64(oracleScore) / 100

	if embedding == nil {
		return toPercent(oracle01), fmt.Sprintf("GPT score %d/100 used (two-tower unavailable).", oracleScore)
	}

	final01 := (oracle01 + *embedding) / 2
	summary := fmt.Sprintf("Blended score = average(GPT %.2f, two-tower %.2f) => %.2f.", oracle01, *embedding, final01)
	return toPercent(final01), summary
}

func toPercent(v float64) int {
	return int(math.RoundToEven(math.Max(0, math.Min(1, v)) * 100))
}

// vectorsFor loads the job and applicant vectors, cold-starting the missing ones when an
// initializer is configured. Failures only leave vectors absent. A failed or timed-out read
// is not a missing row, so it never triggers a cold start that could overwrite one.
func (p *Pipeline) vectorsFor(ctx context.Context, job *domain.Job, applicants []Applicant) (vector.Vector, map[string]vector.Vector) {
	userIDs := make([]string, 0, len(applicants))
	for _, a := range applicants {
		if a.UserID != "" {
			userIDs = append(userIDs, a.UserID)
		}
	}

	jobVec, hasJob, jobErr := p.vectors.Get(ctx, domain.EntityJob, job.ID)
	if jobErr != nil {
		p.logger.Warn("loading job vector failed", zap.String(logger.FieldJob, job.ID), zap.Error(jobErr))
		hasJob = false
	}
	userVecs, usersErr := p.vectors.GetMany(ctx, domain.EntityUser, userIDs)
	if usersErr != nil {
		p.logger.Warn("loading user vectors failed", zap.String(logger.FieldJob, job.ID), zap.Error(usersErr))
		userVecs = map[string]vector.Vector{}
	}
	if !hasJob {
		jobVec = nil
	}

	if (hasJob && len(userVecs) == len(userIDs)) || p.init == nil {
		return jobVec, userVecs
	}

	if !hasJob && jobErr == nil {
		jobVec = p.ensureJob(ctx, job)
	}
	if usersErr != nil {
		return jobVec, userVecs
	}

	missing := false
	for _, id := range userIDs {
		if _, ok := userVecs[id]; ok {
			continue
		}
		missing = true
		p.ensureUser(ctx, id)
	}
	if missing {
		if refreshed, err := p.vectors.GetMany(ctx, domain.EntityUser, userIDs); err == nil {
			userVecs = refreshed
		}
	}
	return jobVec, userVecs
}

func (p *Pipeline) ensureJob(ctx context.Context, job *domain.Job) vector.Vector {
	res, _, _ := p.flight.Do("job:"+job.ID, func() (any, error) {
		if _, err := p.init.InitializeJob(ctx, job.ID, job.Payload()); err != nil {
			p.logger.Info("job vector cold start skipped", zap.String(logger.FieldJob, job.ID), zap.Error(err))
			return nil, err
		}
		stored, ok, err := p.vectors.Get(ctx, domain.EntityJob, job.ID)
		if err != nil || !ok {
			return nil, err
		}
		return stored, nil
	})
	vec, _ := res.(vector.Vector)
	return vec
}

func (p *Pipeline) ensureUser(ctx context.Context, userID string) {
	_, _, _ = p.flight.Do("user:"+userID, func() (any, error) {
		user, err := p.records.User(ctx, userID)
		if err != nil {
			return nil, err
		}
		if _, err := p.init.InitializeUser(ctx, userID, user.Payload()); err != nil {
			p.logger.Info("user vector cold start skipped", zap.String(logger.FieldUser, userID), zap.Error(err))
			return nil, err
		}
		return nil, nil
	})
}
