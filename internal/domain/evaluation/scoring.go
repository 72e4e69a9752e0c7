package evaluation

import (
	"encoding/json"
	"strings"
)

// Scorer grades an actual output against an expected output, returning a
// score in [0,1] and whether the case passes. Plugged in for the "custom"
// criteria type.
type Scorer interface {
	Score(expected, actual string) (score float64, passed bool)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(expected, actual string) (float64, bool)

// Score implements Scorer.
func (f ScorerFunc) Score(expected, actual string) (float64, bool) {
	return f(expected, actual)
}

// ScoreCase grades one output against a test case's criteria. A nil
// criteria defaults to exact match; an unknown criteria type fails closed.
// The custom strategy delegates to the supplied scorer, falling back to
// exact match when none is provided.
func ScoreCase(tc *TestCase, actual string, custom Scorer) (score float64, passed bool) {
	criteriaType := CriteriaExactMatch
	if tc.ScoringCriteria != nil {
		criteriaType = tc.ScoringCriteria.Type
	}

	switch criteriaType {
	case CriteriaExactMatch:
		return scoreExactMatch(tc.ExpectedOutput, actual)

	case CriteriaContains:
		if strings.Contains(strings.ToLower(actual), strings.ToLower(tc.ExpectedOutput)) {
			return 1.0, true
		}
		return 0.0, false

	case CriteriaSimilarity:
		threshold := DefaultSimilarityThreshold
		if tc.ScoringCriteria.Threshold != nil {
			threshold = *tc.ScoringCriteria.Threshold
		}
		sim := LevenshteinSimilarity(tc.ExpectedOutput, actual)
		return sim, sim >= threshold

	case CriteriaCustom:
		if custom == nil {
			return scoreExactMatch(tc.ExpectedOutput, actual)
		}
		return custom.Score(tc.ExpectedOutput, actual)

	default:
		// Unknown criteria fails closed.
		return 0.0, false
	}
}

// scoreExactMatch compares the two values for deep equality via canonical
// JSON when both parse as JSON, falling back to exact string comparison.
func scoreExactMatch(expected, actual string) (float64, bool) {
	if canonicalJSONEqual(expected, actual) || expected == actual {
		return 1.0, true
	}
	return 0.0, false
}

// canonicalJSONEqual reports whether the two strings decode to the same
// JSON value. Non-JSON inputs compare false here.
func canonicalJSONEqual(a, b string) bool {
	var va, vb any
	if json.Unmarshal([]byte(a), &va) != nil || json.Unmarshal([]byte(b), &vb) != nil {
		return false
	}
	ca, err := json.Marshal(sortValue(va))
	if err != nil {
		return false
	}
	cb, err := json.Marshal(sortValue(vb))
	if err != nil {
		return false
	}
	return string(ca) == string(cb)
}

// sortValue normalizes decoded JSON for order-independent comparison.
// Go's encoding/json already emits map keys sorted; recursing keeps nested
// containers normalized too.
func sortValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = sortValue(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sortValue(e)
		}
		return out
	default:
		return v
	}
}

// LevenshteinSimilarity returns the normalized edit-distance similarity
// 1 − d(a,b)/max(len(a),len(b)), defined as 1.0 when both strings are empty.
// Lengths and distance are measured in runes.
func LevenshteinSimilarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 && lb == 0 {
		return 1.0
	}
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	return 1.0 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes the edit distance with a two-row rolling table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func minInt(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
