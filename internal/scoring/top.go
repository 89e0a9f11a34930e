package scoring

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/oracle"
	"github.com/spigell/jobmatch/internal/oracle/local"
	"github.com/spigell/jobmatch/internal/records"
	"github.com/spigell/jobmatch/internal/util"
)

const (
	ActionSearch = "AI Agent completed search"

	defaultTopLimit  = 12
	maxTopLimit      = 100
	rankingErrorSize = 300
)

var limitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`top\s+(\d+)`),
	regexp.MustCompile(`(\d+)\s+(?:applicants|candidates)`),
	regexp.MustCompile(`best\s+(\d+)`),
}

// TopResult is the answer to a free-form candidate search.
type TopResult struct {
	TopCandidates []oracle.RankedCandidate `json:"top_candidates"`
	RankingSource string                   `json:"ranking_source"`
	RankingError  string                   `json:"ranking_error"`
}

// ParseLimitFromPrompt finds a requested count such as "top 3", "5 applicants" or "best 10".
// The count is clamped to 1..100.
func ParseLimitFromPrompt(prompt string) (int, bool) {
	lower := strings.ToLower(prompt)
	for _, re := range limitPatterns {
		m := re.FindStringSubmatch(lower)
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			// only overflow gets here
			n = maxTopLimit
		}
		return max(1, min(maxTopLimit, n)), true
	}
	return 0, false
}

// TopCandidates ranks every applicant of a job against prompt. limit <= 0 means the
// count is taken from the prompt, or 12 when the prompt names none.
func (p *Pipeline) TopCandidates(ctx context.Context, jobID, prompt string, limit int) (*TopResult, error) {
	job, err := p.records.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}

	companyID := job.CompanyID
	if companyID != "" {
		if _, err := p.records.Company(ctx, companyID); err != nil {
			return nil, err
		}
		if p.counter != nil {
			p.counter.IncrementQueries(companyID)
		}
	}

	applicants, err := p.applicants(ctx, records.Filter{CompanyID: companyID, JobID: jobID})
	if err != nil {
		return nil, err
	}
	candidates := make([]oracle.Candidate, 0, len(applicants))
	for _, a := range applicants {
		if a.UserID != "" {
			candidates = append(candidates, a.candidate())
		}
	}
	if len(candidates) == 0 {
		return &TopResult{TopCandidates: []oracle.RankedCandidate{}, RankingSource: oracle.SourceNone}, nil
	}

	req := oracle.FitRequest{Job: fitJob(job), Prompt: prompt, Candidates: candidates}
	res := p.rank(ctx, "rank", req, func() []oracle.RankedCandidate {
		return local.Rank(prompt, candidates)
	})
	out := &TopResult{RankingSource: res.Source}
	if res.FellBack() {
		out.RankingError = util.Truncate(res.Err.Error(), rankingErrorSize)
		p.logger.Warn("ranking oracle unavailable, using local ranking",
			zap.String(logger.FieldJob, jobID),
			zap.Error(res.Err),
		)
	}

	n := limit
	if n <= 0 {
		if parsed, ok := ParseLimitFromPrompt(prompt); ok {
			n = parsed
		} else {
			n = defaultTopLimit
		}
	}
	n = min(n, len(res.Value))
	out.TopCandidates = res.Value[:n]

	p.record(companyID, ActionSearch,
		fmt.Sprintf(`Found %d candidates for prompt "%s" (source: %s).`, len(out.TopCandidates), prompt, out.RankingSource))
	return out, nil
}
