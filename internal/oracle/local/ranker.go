// Package local ranks candidates by keyword overlap when the oracle is unavailable.
package local

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spigell/jobmatch/internal/oracle"
)

const (
	skillHitWeight  = 5
	resumeHitWeight = 1
	minTermLength   = 3
)

var termPattern = regexp.MustCompile(`[a-zA-Z0-9\+#\.]+`)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {}, "from": {},
	"have": {}, "has": {}, "are": {}, "you": {}, "your": {}, "top": {}, "best": {},
	"give": {}, "show": {}, "find": {}, "applicant": {}, "applicants": {},
	"candidate": {}, "candidates": {},
}

// Terms extracts the distinct lower-cased prompt terms used for matching.
func Terms(prompt string) []string {
	var out []string
	seen := map[string]bool{}
	for _, raw := range termPattern.FindAllString(prompt, -1) {
		term := strings.ToLower(raw)
		if len(term) < minTermLength {
			continue
		}
		if _, stop := stopWords[term]; stop || seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, term)
	}
	return out
}

// Rank scores every candidate as 5 points per exact skill hit plus 1 point per term
// found anywhere in the resume text, and sorts highest first.
func Rank(prompt string, candidates []oracle.Candidate) []oracle.RankedCandidate {
	terms := Terms(prompt)

	ranked := make([]oracle.RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		skills := make(map[string]bool, len(c.Skills))
		for _, s := range c.Skills {
			skills[strings.ToLower(strings.TrimSpace(s))] = true
		}
		resume := strings.ToLower(c.ResumeText)

		skillHits, resumeHits := 0, 0
		for _, term := range terms {
			if skills[term] {
				skillHits++
			}
			if strings.Contains(resume, term) {
				resumeHits++
			}
		}

		ranked = append(ranked, oracle.RankedCandidate{
			UserID:    c.UserID,
			Name:      c.Name,
			Skills:    c.Skills,
			Score:     skillHits*skillHitWeight + resumeHits*resumeHitWeight,
			Reasoning: fmt.Sprintf("Local ranking: %d skill matches and %d resume-text matches.", skillHits, resumeHits),
		})
	}

	oracle.SortRanked(ranked)
	return ranked
}

// MaxScore is the best score Rank can give for prompt: every term hit as a skill and in the resume.
func MaxScore(prompt string) int {
	return len(Terms(prompt)) * (skillHitWeight + resumeHitWeight)
}
