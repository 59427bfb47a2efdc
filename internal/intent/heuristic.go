package intent

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"enms-voice/internal/common/logger"
	"enms-voice/internal/vocabulary"
)

// ruleDef is one ordered pattern rule. Templates may reference
// {{machines}}, replaced with the live machine-alias alternation at build
// time. Order matters: specific shapes (machine + metric + window) must
// precede generic keyword rules so a generic rule never shadows a specific
// one.
type ruleDef struct {
	name         string
	template     string
	intentType   Type
	confidence   float64
	needsMachine bool
}

// heuristicRules is the authoritative rule order. Confidence is the rule's
// static score, never computed dynamically, so identical input always yields
// identical output.
var heuristicRules = []ruleDef{
	{
		name:         "forecast_machine_window",
		template:     `(?i)\b(?:forecast|predict|prediction)\b.*\b(?P<machine>{{machines}})\b.*\b(?P<rel>next|coming|last|past)\s+(?P<num>\d+)\s*(?P<unit>hour|day)s?\b`,
		intentType:   TypeShortTermForecast,
		confidence:   0.95,
		needsMachine: true,
	},
	{
		name:         "forecast_machine_window_weeks",
		template:     `(?i)\b(?:forecast|predict|prediction)\b.*\b(?P<machine>{{machines}})\b.*\b(?P<rel>next|coming)\s+(?P<num>\d+)\s*(?P<unit>week)s?\b`,
		intentType:   TypeLongTermForecast,
		confidence:   0.95,
		needsMachine: true,
	},
	{
		name:         "forecast_window_machine",
		template:     `(?i)\b(?:forecast|predict|prediction)\b.*\b(?P<rel>next|coming)\s+(?P<num>\d+)\s*(?P<unit>hour|day)s?\b.*\b(?P<machine>{{machines}})\b`,
		intentType:   TypeShortTermForecast,
		confidence:   0.93,
		needsMachine: true,
	},
	{
		name:       "forecast_long_named",
		template:   `(?i)\b(?:forecast|predict|prediction)\b.*\b(?:tomorrow|next week|next month|long[- ]term)\b`,
		intentType: TypeLongTermForecast,
		confidence: 0.85,
	},
	{
		name:         "forecast_machine",
		template:     `(?i)\b(?:forecast|predict|prediction)\b.*\b(?P<machine>{{machines}})\b`,
		intentType:   TypeShortTermForecast,
		confidence:   0.90,
		needsMachine: true,
	},
	{
		name:         "baseline_machine",
		template:     `(?i)\b(?:baseline|expected consumption|expected usage|predicted consumption)\b.*\b(?P<machine>{{machines}})\b`,
		intentType:   TypeBaselinePrediction,
		confidence:   0.90,
		needsMachine: true,
	},
	{
		name:       "baseline_generic",
		template:   `(?i)\b(?:baseline|expected consumption|expected usage)\b`,
		intentType: TypeBaselinePrediction,
		confidence: 0.85,
	},
	{
		name:         "power_machine",
		template:     `(?i)\b(?:power|load|wattage|drawing|current status|status)\b.*\b(?P<machine>{{machines}})\b`,
		intentType:   TypePowerQuery,
		confidence:   0.90,
		needsMachine: true,
	},
	{
		name:         "machine_power",
		template:     `(?i)\b(?P<machine>{{machines}})\b.*\b(?:power|load|wattage|drawing|status)\b`,
		intentType:   TypePowerQuery,
		confidence:   0.88,
		needsMachine: true,
	},
	{
		name:         "energy_machine",
		template:     `(?i)\b(?:energy|consumption|usage|consumed?|kwh|kilowatt)\b.*\b(?P<machine>{{machines}})\b`,
		intentType:   TypeEnergyQuery,
		confidence:   0.90,
		needsMachine: true,
	},
	{
		name:         "machine_energy",
		template:     `(?i)\b(?P<machine>{{machines}})\b.*\b(?:energy|consumption|usage|consumed?|kwh|kilowatt)\b`,
		intentType:   TypeEnergyQuery,
		confidence:   0.88,
		needsMachine: true,
	},
	{
		name:       "ranking_limit",
		template:   `(?i)\b(?:top|biggest|largest|highest)\s+(?P<limit>\d+)\b.*\b(?:consum\w+|machines?|users)\b`,
		intentType: TypeRanking,
		confidence: 0.90,
	},
	{
		name:       "ranking_generic",
		template:   `(?i)\b(?:top|biggest|largest|highest|most)\b.*\b(?:consum\w+|energy users?)\b`,
		intentType: TypeRanking,
		confidence: 0.85,
	},
	{
		name:       "anomaly",
		template:   `(?i)\b(?:anomal\w+|unusual|abnormal|spikes?|irregular)\b`,
		intentType: TypeAnomalyDetection,
		confidence: 0.85,
	},
	{
		name:       "kpi",
		template:   `(?i)\b(?:kpis?|enpi|energy performance|performance indicators?)\b`,
		intentType: TypeKPIQuery,
		confidence: 0.85,
	},
	{
		name:       "factory_overview",
		template:   `(?i)\b(?:factory|plant|site|overall|whole|entire)\b.*\b(?:overview|status|consumption|energy|usage|doing)\b`,
		intentType: TypeFactoryOverview,
		confidence: 0.85,
	},
}

type compiledRule struct {
	name       string
	re         *regexp.Regexp
	intentType Type
	confidence float64
}

// HeuristicRouter is Tier 1: an ordered regex matcher with static
// confidence scores. Pure over the vocabulary snapshot it was compiled for;
// rules are rebuilt lazily when the snapshot changes.
type HeuristicRouter struct {
	store  *vocabulary.Store
	logger logger.Logger

	mu       sync.Mutex
	builtFor *vocabulary.Snapshot
	rules    []compiledRule
}

func NewHeuristicRouter(store *vocabulary.Store, log logger.Logger) *HeuristicRouter {
	return &HeuristicRouter{
		store:  store,
		logger: log.With(map[string]interface{}{"tier": string(TierHeuristic)}),
	}
}

// Route matches the utterance against the ordered rules. First matching
// rule wins. Returns nil when no rule matches; that is not an error, it
// hands off to Tier 2.
func (r *HeuristicRouter) Route(utterance string) *Intent {
	snap := r.store.Snapshot()
	rules := r.rulesFor(snap)

	normalized := NormalizeNumbers(utterance, snap)

	for _, rule := range rules {
		m := rule.re.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}

		in := &Intent{
			Type:       rule.intentType,
			Confidence: rule.confidence,
			TierUsed:   TierHeuristic,
			Utterance:  utterance,
		}
		r.extractEntities(in, rule, m, normalized, snap)

		r.logger.Debug("heuristic rule matched", map[string]interface{}{
			"rule":       rule.name,
			"intentType": string(rule.intentType),
			"confidence": rule.confidence,
		})
		return in
	}

	return nil
}

func (r *HeuristicRouter) extractEntities(in *Intent, rule compiledRule, m []string, normalized string, snap *vocabulary.Snapshot) {
	var rel, num, unit string
	for i, name := range rule.re.SubexpNames() {
		if i == 0 || i >= len(m) || m[i] == "" {
			continue
		}
		switch name {
		case "machine":
			if canonical, ok := snap.CanonicalMachine(m[i]); ok {
				in.Entities.Machine = canonical
			}
		case "rel":
			rel = m[i]
		case "num":
			num = m[i]
		case "unit":
			unit = m[i]
		case "limit":
			if n, err := strconv.Atoi(m[i]); err == nil {
				in.Entities.Limit = n
			}
		}
	}

	if num != "" && unit != "" {
		if amount, err := strconv.Atoi(num); err == nil {
			in.Entities.TimeRange = &TimeRange{
				Amount:   amount,
				Unit:     TimeUnit(strings.ToLower(unit)),
				Relative: relativeFor(rel),
			}
		}
	}
	if in.Entities.TimeRange == nil {
		in.Entities.TimeRange = ParseTimeRange(normalized, snap)
	}

	if metric := scanMetric(normalized, snap); metric != "" {
		in.Entities.Metric = metric
	}
	if source := scanEnergySource(normalized, snap); source != "" {
		in.Entities.EnergySource = source
	}
}

// rulesFor compiles the rule table for the given snapshot, caching the
// result until the snapshot is swapped.
func (r *HeuristicRouter) rulesFor(snap *vocabulary.Snapshot) []compiledRule {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.builtFor == snap {
		return r.rules
	}

	machinePattern := snap.MachinePattern()
	compiled := make([]compiledRule, 0, len(heuristicRules))
	for _, rule := range heuristicRules {
		if rule.needsMachine && machinePattern == "" {
			continue
		}
		pattern := strings.ReplaceAll(rule.template, "{{machines}}", machinePattern)
		re, err := regexp.Compile(pattern)
		if err != nil {
			r.logger.Error("heuristic rule failed to compile", map[string]interface{}{
				"rule":  rule.name,
				"error": err.Error(),
			})
			continue
		}
		compiled = append(compiled, compiledRule{
			name:       rule.name,
			re:         re,
			intentType: rule.intentType,
			confidence: rule.confidence,
		})
	}

	r.builtFor = snap
	r.rules = compiled
	return compiled
}
