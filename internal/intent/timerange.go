package intent

import (
	"regexp"
	"strconv"
	"strings"

	"enms-voice/internal/vocabulary"
)

var (
	relRangeRe = regexp.MustCompile(`(?i)\b(next|last|past|previous|coming)\s+(\d+)\s*(hour|day|week)s?\b`)
	relBareRe  = regexp.MustCompile(`(?i)\b(next|last|past|previous|coming)\s+(hour|day|week)\b`)
	wordRe     = regexp.MustCompile(`[a-zA-Z]+`)
)

// NormalizeNumbers replaces spoken number words with digits, word-boundary
// safe: "next four hours" becomes "next 4 hours".
func NormalizeNumbers(utterance string, snap *vocabulary.Snapshot) string {
	return wordRe.ReplaceAllStringFunc(utterance, func(w string) string {
		if n, ok := snap.NumberFor(w); ok {
			return strconv.Itoa(n)
		}
		return w
	})
}

// ParseTimeRange extracts a time range from an utterance. Explicit relative
// windows ("next 4 hours") win over named expressions ("last week"). Spoken
// numbers should be normalized first. Returns nil when no range is present.
func ParseTimeRange(utterance string, snap *vocabulary.Snapshot) *TimeRange {
	if m := relRangeRe.FindStringSubmatch(utterance); m != nil {
		amount, err := strconv.Atoi(m[2])
		if err != nil {
			return nil
		}
		return &TimeRange{
			Amount:   amount,
			Unit:     TimeUnit(strings.ToLower(m[3])),
			Relative: relativeFor(m[1]),
		}
	}

	lower := strings.ToLower(utterance)

	// Named expressions, longest term first so "last week" beats "week".
	if named := matchNamedRange(lower, snap); named != "" {
		return &TimeRange{Named: named}
	}

	if m := relBareRe.FindStringSubmatch(utterance); m != nil {
		return &TimeRange{
			Amount:   1,
			Unit:     TimeUnit(strings.ToLower(m[2])),
			Relative: relativeFor(m[1]),
		}
	}

	return nil
}

func relativeFor(word string) Relative {
	switch strings.ToLower(word) {
	case "next", "coming":
		return RelativeNext
	default:
		return RelativeLast
	}
}

func matchNamedRange(lower string, snap *vocabulary.Snapshot) string {
	words := strings.Fields(lower)
	maxLen := snap.MaxTermWords()
	for n := maxLen; n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			phrase := strings.Join(words[i:i+n], " ")
			phrase = strings.Trim(phrase, "?.,!")
			if named, ok := snap.TimeExprFor(phrase); ok {
				return named
			}
		}
	}
	return ""
}
