package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/oracle"
	"github.com/spigell/jobmatch/internal/oracle/local"
	"github.com/spigell/jobmatch/internal/records"
)

const (
	ActionReport      = "Custom report generated"
	DefaultReportName = "Custom report"

	reportTopSize = 10
)

var ErrEmptyCriteria = errors.New("report criteria must not be empty")

// ReportCandidate is one line of a custom report summary.
type ReportCandidate struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Score     int    `json:"custom_fit_score"`
	Reasoning string `json:"custom_fit_reasoning"`
}

// CustomReportResult summarizes a stored report. RankingSource is the oracle name, or
// fallback when any batch was ranked locally.
type CustomReportResult struct {
	ReportID      string            `json:"report_id"`
	ReportName    string            `json:"report_name"`
	Criteria      string            `json:"custom_prompt"`
	RankingSource string            `json:"ranking_source"`
	TotalScored   int               `json:"total_scored"`
	FailedBatches int               `json:"failed_batches,omitempty"`
	TopCandidates []ReportCandidate `json:"top_candidates"`
}

// CustomReport scores the applicants of a job half on job fit and half on criteria,
// stores every score under a new report and returns the ten best. Up to
// BatchSize*MaxParallelBatches applicants are scored. Skill analysis is stored only on
// applications that have none yet.
func (p *Pipeline) CustomReport(ctx context.Context, companyID, jobID, name, criteria string) (*CustomReportResult, error) {
	criteria = strings.TrimSpace(criteria)
	if criteria == "" {
		return nil, ErrEmptyCriteria
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultReportName
	}

	if _, err := p.records.Company(ctx, companyID); err != nil {
		return nil, err
	}
	job, err := p.records.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CompanyID != companyID {
		return nil, &domain.NotFoundError{Kind: "job", ID: jobID}
	}

	applicants, err := p.applicants(ctx, records.Filter{CompanyID: companyID, JobID: jobID})
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]Applicant, len(applicants))
	pool := make([]Applicant, 0, len(applicants))
	for _, a := range applicants {
		if a.UserID == "" {
			continue
		}
		byUser[a.UserID] = a
		pool = append(pool, a)
	}
	if len(pool) == 0 {
		return nil, &domain.NotFoundError{Kind: "applicants", ID: jobID}
	}
	pool = pool[:min(len(pool), p.cfg.BatchSize*p.cfg.MaxParallelBatches)]

	report, err := p.records.CreateReport(ctx, domain.CustomReport{
		CompanyID: companyID,
		JobID:     jobID,
		Name:      name,
		Criteria:  criteria,
	})
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	log := logger.WithFields(p.logger,
		zap.String(logger.FieldCompany, companyID),
		zap.String(logger.FieldJob, jobID),
		zap.String("report", report.ID),
	)

	var batches []batch
	for start := 0; start < len(pool); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(pool))
		batches = append(batches, batch{jobID: jobID, applicants: pool[start:end]})
	}

	var (
		mu       sync.Mutex
		ranked   []oracle.RankedCandidate
		fellBack bool
	)
	_, failed := p.runBatches(ctx, log, batches, func(ctx context.Context, b batch) (int, error) {
		res := p.reportBatch(ctx, log, job, criteria, b)
		mu.Lock()
		defer mu.Unlock()
		ranked = append(ranked, res.Value...)
		fellBack = fellBack || res.FellBack()
		return len(res.Value), nil
	})
	if len(ranked) == 0 {
		return nil, fmt.Errorf("no applicant of job %s could be scored", jobID)
	}
	oracle.SortRanked(ranked)

	source := oracle.SourceFallback
	if p.scorer != nil && !fellBack {
		source = p.scorer.Name()
	}

	out := &CustomReportResult{
		ReportID:      report.ID,
		ReportName:    report.Name,
		Criteria:      report.Criteria,
		RankingSource: source,
		TotalScored:   len(ranked),
		FailedBatches: failed,
		TopCandidates: []ReportCandidate{},
	}
	for _, item := range ranked {
		app, ok := byUser[item.UserID]
		if !ok {
			continue
		}
		p.storeReportScore(ctx, log, report.ID, app, item)
		if len(out.TopCandidates) < reportTopSize {
			out.TopCandidates = append(out.TopCandidates, ReportCandidate{
				UserID:    item.UserID,
				UserName:  app.UserName,
				Score:     item.Score,
				Reasoning: item.Reasoning,
			})
		}
	}

	p.record(companyID, ActionReport,
		fmt.Sprintf(`Report "%s" scored %d applicants (source: %s).`, report.Name, out.TotalScored, source))
	log.Info("custom report finished",
		zap.Int("batches", len(batches)),
		zap.Int("failed_batches", failed),
		zap.Int("scored", out.TotalScored),
		zap.String("source", source),
	)
	return out, nil
}

func (p *Pipeline) reportBatch(ctx context.Context, log *zap.Logger, job *domain.Job, criteria string, b batch) oracle.Result[[]oracle.RankedCandidate] {
	candidates := make([]oracle.Candidate, 0, len(b.applicants))
	for _, a := range b.applicants {
		candidates = append(candidates, a.candidate())
	}

	req := oracle.FitRequest{Job: fitJob(job), Prompt: BatchPrompt, Criteria: criteria, Candidates: candidates}
	res := p.rank(ctx, "report", req, func() []oracle.RankedCandidate {
		return localReport(job, criteria, candidates)
	})
	if res.FellBack() {
		log.Warn("report oracle unavailable, using local ranking", zap.Error(res.Err))
	}
	return res
}

func (p *Pipeline) storeReportScore(ctx context.Context, log *zap.Logger, reportID string, app Applicant, item oracle.RankedCandidate) {
	err := p.records.SaveReportScore(ctx, domain.ReportScore{
		ReportID:      reportID,
		ApplicationID: app.ID,
		Score:         item.Score,
		Reasoning:     item.Reasoning,
	})
	if err != nil {
		log.Warn("storing report score failed", zap.String(logger.FieldApplication, app.ID), zap.Error(err))
	}

	if len(item.SkillAnalysis) == 0 || len(app.SkillAnalysis) > 0 {
		return
	}
	if err := p.records.UpdateApplicationSkills(ctx, app.ID, item.SkillAnalysis, item.SkillSummary); err != nil {
		log.Warn("storing skill analysis failed", zap.String(logger.FieldApplication, app.ID), zap.Error(err))
	}
}

// localReport blends keyword job fit and keyword criteria fit, each as a share of the best
// score the prompt allows.
func localReport(job *domain.Job, criteria string, candidates []oracle.Candidate) []oracle.RankedCandidate {
	jobPrompt := localFitPrompt(job)
	jobFit := localPercent(jobPrompt, candidates)
	criteriaFit := localPercent(criteria, candidates)

	out := make([]oracle.RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		score, summary := ReportBlend(jobFit[c.UserID], criteriaFit[c.UserID])
		out = append(out, oracle.RankedCandidate{
			UserID:    c.UserID,
			Name:      c.Name,
			Skills:    c.Skills,
			Score:     score,
			Reasoning: "Local ranking. " + summary,
		})
	}
	oracle.SortRanked(out)
	return out
}

func localPercent(prompt string, candidates []oracle.Candidate) map[string]int {
	best := local.MaxScore(prompt)
	out := make(map[string]int, len(candidates))
	if best == 0 {
		return out
	}
	for _, r := range local.Rank(prompt, candidates) {
		out[r.UserID] = toPercent(float64(r.Score) / float64(best))
	}
	return out
}

// ReportBlend averages a job fit and a criteria fit, both 0..100.
func ReportBlend(jobFit, criteriaFit int) (int, string) {
	jobFit = max(0, min(100, jobFit))
	criteriaFit = max(0, min(100, criteriaFit))
	final := toPercent(float64(jobFit+criteriaFit) / 200)
	return final, fmt.Sprintf("Report score = average(job fit %d, criteria fit %d) => %d.", jobFit, criteriaFit, final)
}
