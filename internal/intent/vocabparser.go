package intent

import (
	"regexp"
	"strings"
	"unicode"

	"enms-voice/internal/common/logger"
	"enms-voice/internal/vocabulary"
)

// parserPriority is the fixed tie-break order when two intent types reach
// the same keyword score. Earlier wins.
var parserPriority = []Type{
	TypeEnergyQuery,
	TypePowerQuery,
	TypeRanking,
	TypeAnomalyDetection,
	TypeShortTermForecast,
	TypeLongTermForecast,
	TypeKPIQuery,
	TypeBaselinePrediction,
	TypeFactoryOverview,
}

// typeKeywords maps each intent type to its indicator words. A distinct
// keyword present in the utterance counts one point.
var typeKeywords = map[Type][]string{
	TypeEnergyQuery:        {"energy", "consumption", "consume", "consumed", "usage", "use", "used", "using", "kwh", "kilowatt"},
	TypePowerQuery:         {"power", "load", "drawing", "draw", "wattage", "watts", "status", "currently", "now"},
	TypeRanking:            {"top", "most", "biggest", "largest", "highest", "rank", "ranking", "consumers", "compare"},
	TypeAnomalyDetection:   {"anomaly", "anomalies", "unusual", "abnormal", "spike", "spikes", "strange", "weird", "irregular", "odd"},
	TypeShortTermForecast:  {"forecast", "predict", "prediction", "demand", "expect", "expected", "upcoming"},
	TypeLongTermForecast:   {"forecast", "predict", "prediction", "trend", "trends", "projection", "outlook"},
	TypeKPIQuery:           {"kpi", "kpis", "enpi", "performance", "indicator", "indicators", "efficiency", "efficient"},
	TypeBaselinePrediction: {"baseline", "normal", "deviation", "deviate", "benchmark"},
	TypeFactoryOverview:    {"factory", "plant", "site", "overall", "total", "whole", "entire", "overview", "everything", "summary"},
}

// VocabParser is Tier 2: keyword scoring over the vocabulary plus fuzzy
// machine-name matching. Slower and more permissive than the heuristic
// tier, still fully deterministic.
type VocabParser struct {
	store          *vocabulary.Store
	minScore       int
	fuzzyThreshold float64
	logger         logger.Logger
}

func NewVocabParser(store *vocabulary.Store, minScore int, fuzzyThreshold float64, log logger.Logger) *VocabParser {
	return &VocabParser{
		store:          store,
		minScore:       minScore,
		fuzzyThreshold: fuzzyThreshold,
		logger:         log.With(map[string]interface{}{"tier": string(TierVocabulary)}),
	}
}

// Route implements the pipeline router contract.
func (p *VocabParser) Route(utterance string) *Intent {
	return p.Parse(utterance)
}

// Parse scores the utterance against every intent type and returns the best
// candidate, or nil when no type reaches the minimum score. Confidence is
// min(0.80, 0.30 + 0.10*score), lowered further when the machine was only a
// fuzzy match.
func (p *VocabParser) Parse(utterance string) *Intent {
	snap := p.store.Snapshot()
	normalized := NormalizeNumbers(utterance, snap)

	tokens := tokenize(normalized)
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	ent, fuzzySim := p.extractEntities(normalized, tokens, snap)

	bestType := TypeUnknown
	bestScore := 0
	for _, it := range parserPriority {
		score := p.score(it, tokenSet, ent)
		if score > bestScore {
			bestType = it
			bestScore = score
		}
	}

	if bestScore < p.minScore {
		p.logger.Debug("no intent type reached minimum score", map[string]interface{}{
			"bestScore": bestScore,
			"minScore":  p.minScore,
		})
		return nil
	}

	confidence := 0.30 + 0.10*float64(bestScore)
	if confidence > 0.80 {
		confidence = 0.80
	}
	if fuzzySim > 0 && ent.Machine != "" {
		// A fuzzy-resolved machine caps confidence by how close the
		// mention actually was.
		if capped := 0.50 + 0.30*fuzzySim; capped < confidence {
			confidence = capped
		}
	}

	return &Intent{
		Type:       bestType,
		Confidence: confidence,
		Entities:   ent,
		TierUsed:   TierVocabulary,
		Utterance:  utterance,
	}
}

func (p *VocabParser) score(it Type, tokenSet map[string]bool, ent Entities) int {
	score := 0
	for _, kw := range typeKeywords[it] {
		if tokenSet[kw] {
			score++
		}
	}

	if ent.Machine != "" || len(ent.MachineCandidates) > 0 {
		switch it {
		case TypeEnergyQuery, TypePowerQuery, TypeShortTermForecast,
			TypeBaselinePrediction, TypeKPIQuery:
			score += 2
		}
	}
	if ent.Metric != "" && (it == TypeEnergyQuery || it == TypeKPIQuery) {
		score++
	}
	if ent.EnergySource != "" && it == TypeEnergyQuery {
		score++
	}
	if ent.TimeRange != nil {
		switch {
		case it == TypeShortTermForecast && ent.TimeRange.Unit == UnitHour:
			score++
		case it == TypeLongTermForecast && (ent.TimeRange.Unit == UnitWeek || ent.TimeRange.IsNamed()):
			score++
		case it == TypeEnergyQuery:
			score++
		}
	}
	return score
}

// extractEntities pulls machine, metric, energy source and time range out
// of the normalized utterance. The returned similarity is non-zero only
// when the machine was resolved through fuzzy matching.
func (p *VocabParser) extractEntities(normalized string, tokens []string, snap *vocabulary.Snapshot) (Entities, float64) {
	ent := Entities{
		Metric:       scanMetric(normalized, snap),
		EnergySource: scanEnergySource(normalized, snap),
		TimeRange:    ParseTimeRange(normalized, snap),
	}

	var fuzzySim float64
	if pattern := snap.MachinePattern(); pattern != "" {
		re := regexp.MustCompile(`(?i)\b(?:` + pattern + `)\b`)
		if m := re.FindString(normalized); m != "" {
			if canonical, ok := snap.CanonicalMachine(m); ok {
				ent.Machine = canonical
			}
		}
	}
	if ent.Machine == "" {
		mention, matches := p.fuzzyMachine(tokens, snap.Machines())
		switch {
		case len(matches) == 1:
			ent.Machine = matches[0].Name
			fuzzySim = matches[0].Score
			p.logger.Debug("fuzzy machine match", map[string]interface{}{
				"mention":    mention,
				"resolved":   matches[0].Name,
				"similarity": matches[0].Score,
			})
		case len(matches) > 1:
			// Several whitelist entries clear the threshold. Return all of
			// them ranked by similarity instead of guessing; the caller asks
			// the user which one was meant.
			for _, m := range matches {
				ent.MachineCandidates = append(ent.MachineCandidates, m.Name)
			}
			p.logger.Debug("fuzzy machine mention is ambiguous", map[string]interface{}{
				"mention":    mention,
				"candidates": ent.MachineCandidates,
			})
		}
	}
	return ent, fuzzySim
}

// fuzzyMachine scans word n-grams of the utterance for the best fuzzy
// whitelist match. All candidates at or above the threshold for the best
// n-gram are returned; more than one means the mention is ambiguous.
func (p *VocabParser) fuzzyMachine(tokens []string, whitelist []string) (string, []FuzzyMatch) {
	if len(whitelist) == 0 {
		return "", nil
	}

	bestMention := ""
	var bestMatches []FuzzyMatch
	bestScore := 0.0

	maxN := 3
	if len(tokens) < maxN {
		maxN = len(tokens)
	}
	for n := 1; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			mention := strings.Join(tokens[i:i+n], " ")
			matches := FuzzyMatches(mention, whitelist, p.fuzzyThreshold)
			if len(matches) == 0 {
				continue
			}
			if matches[0].Score > bestScore {
				bestScore = matches[0].Score
				bestMention = mention
				bestMatches = matches
			}
		}
	}
	return bestMention, bestMatches
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// scanMetric finds the first metric synonym in the utterance, longest
// n-gram first.
func scanMetric(utterance string, snap *vocabulary.Snapshot) string {
	return scanTerms(utterance, snap, snap.MetricFor)
}

// scanEnergySource finds the first energy-source alias in the utterance.
func scanEnergySource(utterance string, snap *vocabulary.Snapshot) string {
	return scanTerms(utterance, snap, snap.EnergySourceFor)
}

func scanTerms(utterance string, snap *vocabulary.Snapshot, lookup func(string) (string, bool)) string {
	words := tokenize(utterance)
	maxLen := snap.MaxTermWords()
	for n := maxLen; n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			if canonical, ok := lookup(strings.Join(words[i:i+n], " ")); ok {
				return canonical
			}
		}
	}
	return ""
}
