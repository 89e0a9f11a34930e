package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/util"
)

// Generator is a chat model transport: one system instruction, one user message, one text answer.
type Generator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

//go:embed compare_prompt.md
var comparePromptTemplate string

//go:embed fit_system.md
var fitSystemPrompt string

//go:embed report_system.md
var reportSystemPrompt string

const (
	defaultMaxLogLength = 200

	maxFitCandidates = 100
	maxFitResumeLen  = 10000

	subjectJobDescriptionLen   = 900
	candidateJobDescriptionLen = 700
	subjectResumeLen           = 1200
	candidateResumeLen         = 800
)

// LLM turns a Generator into a Comparer and a FitScorer.
type LLM struct {
	provider  string
	generator Generator
	logger    *zap.Logger
	maxLogLen int
}

func NewLLM(provider string, generator Generator, log *zap.Logger, maxLogLength int) *LLM {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &LLM{
		provider:  provider,
		generator: generator,
		logger:    logger.WithCommonFields(log, provider, generator.Model()),
		maxLogLen: maxLogLength,
	}
}

func (l *LLM) Name() string { return l.provider }

func (l *LLM) Compare(ctx context.Context, req CompareRequest) (Comparison, error) {
	system, message, err := buildCompareMessages(req)
	if err != nil {
		return Comparison{}, err
	}

	raw, err := l.generate(ctx, "compare", system, message)
	if err != nil {
		return Comparison{}, err
	}

	cmp, err := ParseComparison(raw, len(req.Candidates))
	if err != nil {
		return Comparison{}, describeJSONError("compare", err)
	}
	return cmp, nil
}

func (l *LLM) ScoreFit(ctx context.Context, req FitRequest) ([]RankedCandidate, error) {
	if len(req.Candidates) == 0 {
		return nil, errors.New("no candidates to score")
	}

	limited := req.Candidates
	if len(limited) > maxFitCandidates {
		limited = limited[:maxFitCandidates]
	}

	message, err := buildFitMessage(req.Job, req.Prompt, req.Criteria, limited)
	if err != nil {
		return nil, err
	}

	kind, system := "fit", fitSystemPrompt
	if req.Criteria != "" {
		kind, system = "report", reportSystemPrompt
	}
	raw, err := l.generate(ctx, kind, system, message)
	if err != nil {
		return nil, err
	}

	ranked, err := ParseRanked(raw, limited)
	if err != nil {
		return nil, describeJSONError("fit", err)
	}
	return ranked, nil
}

func (l *LLM) generate(ctx context.Context, kind, system, message string) (string, error) {
	l.logger.Debug("oracle request",
		zap.String("kind", kind),
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", util.TruncateForLog(message, l.maxLogLen)),
	)

	raw, err := l.generator.GenerateContent(ctx, system, message)
	if err != nil {
		return "", err
	}

	l.logger.Debug("oracle response",
		zap.String("kind", kind),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", util.TruncateForLog(raw, l.maxLogLen)),
	)
	return raw, nil
}

func buildCompareMessages(req CompareRequest) (string, string, error) {
	count := req.Count
	if count <= 0 {
		count = 5
	}

	var (
		noun       string
		subject    any
		candidates []map[string]any
	)
	switch req.Type {
	case domain.EntityJob:
		noun = "job"
		p, err := domain.DecodeJobPayload(req.Subject)
		if err != nil {
			return "", "", err
		}
		subject = map[string]any{
			"title":       p.Title,
			"description": util.Truncate(p.Description, subjectJobDescriptionLen),
			"skills":      p.Skills,
		}
		for i, meta := range req.Candidates {
			c, err := domain.DecodeJobPayload(meta)
			if err != nil {
				c = domain.JobPayload{}
			}
			candidates = append(candidates, map[string]any{
				"i":           i,
				"title":       c.Title,
				"description": util.Truncate(c.Description, candidateJobDescriptionLen),
				"skills":      c.Skills,
			})
		}
	case domain.EntityUser:
		noun = "candidate"
		p, err := domain.DecodeUserPayload(req.Subject)
		if err != nil {
			return "", "", err
		}
		subject = map[string]any{"resume_text": util.Truncate(p.ResumeText, subjectResumeLen)}
		for i, meta := range req.Candidates {
			c, err := domain.DecodeUserPayload(meta)
			if err != nil {
				c = domain.UserPayload{}
			}
			candidates = append(candidates, map[string]any{
				"i":           i,
				"resume_text": util.Truncate(c.ResumeText, candidateResumeLen),
			})
		}
	default:
		return "", "", fmt.Errorf("entity type must be job or user, got %q", string(req.Type))
	}

	subjectJSON, err := json.Marshal(subject)
	if err != nil {
		return "", "", fmt.Errorf("marshal subject payload: %w", err)
	}
	candidatesJSON, err := json.Marshal(candidates)
	if err != nil {
		return "", "", fmt.Errorf("marshal candidate payload: %w", err)
	}

	replacer := strings.NewReplacer(
		"{{KIND}}", strings.ToUpper(string(req.Type)),
		"{{TOTAL}}", strconv.Itoa(len(req.Candidates)),
		"{{COUNT}}", strconv.Itoa(count),
		"{{MAX_INDEX}}", strconv.Itoa(max(0, len(req.Candidates)-1)),
		"{{NEW_JSON}}", string(subjectJSON),
		"{{CANDIDATES_JSON}}", string(candidatesJSON),
	)
	system := fmt.Sprintf("You compare %s similarity and dissimilarity. Return strict JSON only.", noun)
	return system, strings.TrimSpace(replacer.Replace(comparePromptTemplate)), nil
}

func buildFitMessage(job FitJob, prompt, criteria string, candidates []Candidate) (string, error) {
	payload := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		c.ResumeText = util.Truncate(c.ResumeText, maxFitResumeLen)
		payload = append(payload, c)
	}

	msg := map[string]any{
		"job":        job,
		"prompt":     prompt,
		"candidates": payload,
	}
	if criteria != "" {
		msg["custom_criteria"] = criteria
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal fit payload: %w", err)
	}
	return string(body), nil
}
