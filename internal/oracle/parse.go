package oracle

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/spigell/jobmatch/internal/domain"
)

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON returns the first JSON object found in a model answer, with code fences removed.
func ExtractJSON(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
		if idx := strings.LastIndex(cleaned, "```"); idx != -1 {
			cleaned = cleaned[:idx]
		}
	}
	cleaned = strings.TrimSpace(strings.Trim(cleaned, "`"))

	if gjson.Valid(cleaned) && gjson.Parse(cleaned).IsObject() {
		return cleaned, nil
	}

	match := jsonObjectPattern.FindString(cleaned)
	if match != "" && gjson.Valid(match) {
		return match, nil
	}
	return "", errors.New("no json object in response")
}

// ParseComparison reads {"closest":[...],"farthest":[...]}. Entries that are not
// integers in [0, n) or repeat are dropped.
func ParseComparison(raw string, n int) (Comparison, error) {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return Comparison{}, err
	}
	return Comparison{
		Closest:  safeIndices(gjson.Get(doc, "closest"), n),
		Farthest: safeIndices(gjson.Get(doc, "farthest"), n),
	}, nil
}

func safeIndices(list gjson.Result, n int) []int {
	if !list.IsArray() {
		return nil
	}
	var out []int
	seen := map[int]bool{}
	for _, item := range list.Array() {
		var text string
		switch item.Type {
		case gjson.Number:
			text = item.Raw
		case gjson.String:
			text = item.Str
		default:
			continue
		}
		i, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			continue
		}
		if i >= 0 && i < n && !seen[i] {
			out = append(out, i)
			seen[i] = true
		}
	}
	return out
}

// ParseRanked reads {"ranked":[...]} and merges it with the candidates that were sent.
// Unknown user ids are ignored. The result is sorted by score, highest first.
func ParseRanked(raw string, candidates []Candidate) ([]RankedCandidate, error) {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	ranked := gjson.Get(doc, "ranked")
	if !ranked.IsArray() {
		return nil, errors.New("response missing ranked list")
	}

	byUser := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		byUser[c.UserID] = c
	}

	var merged []RankedCandidate
	seen := map[string]bool{}
	for _, item := range ranked.Array() {
		if !item.IsObject() {
			continue
		}
		userID := strings.TrimSpace(item.Get("user_id").String())
		base, ok := byUser[userID]
		if userID == "" || !ok || seen[userID] {
			continue
		}
		seen[userID] = true

		reasoning := "Model-ranked candidate."
		if r := item.Get("reasoning"); r.Exists() {
			reasoning = r.String()
		}

		merged = append(merged, RankedCandidate{
			UserID:        userID,
			Name:          base.Name,
			Skills:        base.Skills,
			Score:         clampScore(coerceInt(item.Get("score"))),
			Reasoning:     reasoning,
			SkillAnalysis: parseSkills(item.Get("skills")),
			SkillSummary:  item.Get("skill_summary").String(),
		})
	}
	if len(merged) == 0 {
		return nil, errors.New("returned no usable candidate rankings")
	}

	SortRanked(merged)
	return merged, nil
}

// SortRanked orders by score descending and keeps input order for ties.
func SortRanked(ranked []RankedCandidate) {
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
}

func parseSkills(list gjson.Result) []domain.SkillScore {
	if !list.IsArray() {
		return nil
	}
	var out []domain.SkillScore
	for _, item := range list.Array() {
		name := strings.TrimSpace(item.Get("name").String())
		if name == "" {
			continue
		}
		out = append(out, domain.SkillScore{Name: name, Score: clampScore(coerceInt(item.Get("score")))})
	}
	return out
}

// coerceInt truncates numbers and parses integer strings; anything else is 0.
func coerceInt(v gjson.Result) int {
	switch v.Type {
	case gjson.Number:
		return int(v.Float())
	case gjson.String:
		i, err := strconv.Atoi(strings.TrimSpace(v.Str))
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

func clampScore(score int) int {
	return max(0, min(100, score))
}

func describeJSONError(kind string, err error) error {
	return fmt.Errorf("parse %s response: %w", kind, err)
}
