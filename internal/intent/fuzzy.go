package intent

import (
	"sort"

	"github.com/agnivade/levenshtein"

	"enms-voice/internal/vocabulary"
)

// FuzzyMatch is one whitelist candidate with its similarity score.
type FuzzyMatch struct {
	Name  string
	Score float64
}

// Similarity returns a normalized edit-distance ratio in [0,1] between two
// machine mentions. Both sides are lowercased with hyphens replaced by
// spaces before comparison, so "compresor 1" scores high against
// "Compressor-1".
func Similarity(a, b string) float64 {
	na := vocabulary.NormalizeMachineName(a)
	nb := vocabulary.NormalizeMachineName(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(na, nb)
	max := len([]rune(na))
	if l := len([]rune(nb)); l > max {
		max = l
	}
	return 1.0 - float64(dist)/float64(max)
}

// FuzzyMatches scores candidate against every whitelist entry and returns
// all entries at or above threshold, ranked by similarity descending with
// name order as the stable tie-break. Returning every plausible candidate
// instead of guessing feeds the ambiguous-machine clarification path.
func FuzzyMatches(candidate string, whitelist []string, threshold float64) []FuzzyMatch {
	var matches []FuzzyMatch
	for _, name := range whitelist {
		if score := Similarity(candidate, name); score >= threshold {
			matches = append(matches, FuzzyMatch{Name: name, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Name < matches[j].Name
	})
	return matches
}

// NearestMachines returns up to limit whitelist names by similarity, with no
// threshold. Used by the validator to build suggestions.
func NearestMachines(candidate string, whitelist []string, limit int) []string {
	matches := FuzzyMatches(candidate, whitelist, 0)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return names
}
