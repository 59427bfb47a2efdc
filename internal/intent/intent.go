// Package intent defines the parsed representation of one utterance and the
// two deterministic classification tiers plus the zero-trust validator.
package intent

// Type is the closed set of intent kinds. The validator's per-type rules
// switch exhaustively over these members.
type Type string

const (
	TypeEnergyQuery         Type = "energy_query"
	TypePowerQuery          Type = "power_query"
	TypeFactoryOverview     Type = "factory_overview"
	TypeRanking             Type = "ranking"
	TypeAnomalyDetection    Type = "anomaly_detection"
	TypeShortTermForecast   Type = "short_term_forecast"
	TypeLongTermForecast    Type = "long_term_forecast"
	TypeKPIQuery            Type = "kpi_query"
	TypeBaselinePrediction  Type = "baseline_prediction"
	TypeClarificationNeeded Type = "clarification_needed"
	TypeUnknown             Type = "unknown"
)

// Known reports whether t is a member of the closed enum.
func (t Type) Known() bool {
	switch t {
	case TypeEnergyQuery, TypePowerQuery, TypeFactoryOverview, TypeRanking,
		TypeAnomalyDetection, TypeShortTermForecast, TypeLongTermForecast,
		TypeKPIQuery, TypeBaselinePrediction, TypeClarificationNeeded, TypeUnknown:
		return true
	}
	return false
}

// RequiresMachine reports whether t cannot be dispatched without a resolved
// machine entity.
func (t Type) RequiresMachine() bool {
	switch t {
	case TypePowerQuery, TypeShortTermForecast, TypeBaselinePrediction:
		return true
	}
	return false
}

// Dispatchable reports whether t maps to a downstream analytics call.
func (t Type) Dispatchable() bool {
	switch t {
	case TypeClarificationNeeded, TypeUnknown:
		return false
	}
	return t.Known()
}

// Tier identifies which stage of the cascade produced an intent.
type Tier string

const (
	TierHeuristic     Tier = "heuristic"
	TierVocabulary    Tier = "vocabulary"
	TierClarification Tier = "clarification"
)

// TimeUnit is the closed set of duration units a time range may carry.
type TimeUnit string

const (
	UnitHour TimeUnit = "hour"
	UnitDay  TimeUnit = "day"
	UnitWeek TimeUnit = "week"
)

// Known reports whether u is a valid unit.
func (u TimeUnit) Known() bool {
	switch u {
	case UnitHour, UnitDay, UnitWeek:
		return true
	}
	return false
}

// Relative is the direction of a relative time range.
type Relative string

const (
	RelativeNext Relative = "next"
	RelativeLast Relative = "last"
)

// TimeRange is either a named relative range ("last_week") or an explicit
// amount/unit/direction triple.
type TimeRange struct {
	Named    string   `json:"named,omitempty"`
	Amount   int      `json:"amount,omitempty"`
	Unit     TimeUnit `json:"unit,omitempty"`
	Relative Relative `json:"relative,omitempty"`
}

// IsNamed reports whether the range is a named expression.
func (tr *TimeRange) IsNamed() bool {
	return tr != nil && tr.Named != ""
}

// Entities holds the optional extracted fields of an intent.
type Entities struct {
	Machine      string     `json:"machine,omitempty"`
	Metric       string     `json:"metric,omitempty"`
	EnergySource string     `json:"energySource,omitempty"`
	TimeRange    *TimeRange `json:"timeRange,omitempty"`
	Limit        int        `json:"limit,omitempty"`

	// MachineCandidates is populated when fuzzy matching found multiple
	// plausible machines; the orchestrator escalates this to an
	// ambiguous-machine clarification before validation.
	MachineCandidates []string `json:"-"`
}

// Intent is the parsed representation of one utterance.
type Intent struct {
	Type       Type     `json:"intentType"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"entities"`
	TierUsed   Tier     `json:"tierUsed"`
	Utterance  string   `json:"-"`
}

// Ambiguous reports whether machine resolution ended with multiple
// candidates instead of a single canonical name.
func (in *Intent) Ambiguous() bool {
	return in != nil && len(in.Entities.MachineCandidates) > 1 && in.Entities.Machine == ""
}
