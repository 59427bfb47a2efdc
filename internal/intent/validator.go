package intent

import (
	"fmt"

	"enms-voice/internal/common/errors"
	"enms-voice/internal/common/logger"
	"enms-voice/internal/vocabulary"
)

// ValidationResult is the validator's verdict on one parsed intent.
type ValidationResult struct {
	Valid       bool
	Errors      []*errors.StandardError
	Suggestions []string
	Intent      *Intent
}

func (r *ValidationResult) FirstError() *errors.StandardError {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// Validator is the zero-trust gate between parsing and dispatch. It assumes
// nothing about which tier produced the intent and re-checks every entity
// against the live vocabulary snapshot. Checks run in a fixed order and
// short-circuit on the first failure.
type Validator struct {
	store       *vocabulary.Store
	defaultRank int
	logger      logger.Logger
}

func NewValidator(store *vocabulary.Store, defaultRankLimit int, log logger.Logger) *Validator {
	return &Validator{
		store:       store,
		defaultRank: defaultRankLimit,
		logger:      log.With(map[string]interface{}{"component": "validator"}),
	}
}

// Validate checks the intent, applies defaults (ranking limit), and returns
// the verdict. The input intent is modified in place only for defaulting;
// structural failures never mutate it.
func (v *Validator) Validate(in *Intent) *ValidationResult {
	snap := v.store.Snapshot()
	res := &ValidationResult{Intent: in}

	if !in.Type.Known() {
		res.Errors = append(res.Errors, errors.NewUnknownIntentTypeError(string(in.Type)))
		return res
	}
	if !in.Type.Dispatchable() {
		res.Errors = append(res.Errors, errors.NewUnknownIntentTypeError(string(in.Type)))
		return res
	}

	if in.Entities.Machine != "" && !snap.KnownMachine(in.Entities.Machine) {
		res.Errors = append(res.Errors, errors.NewInvalidEntityValueError(
			fmt.Sprintf("machine %q is not in the whitelist", in.Entities.Machine)))
		res.Suggestions = NearestMachines(in.Entities.Machine, snap.Machines(), 3)
		return res
	}

	if tr := in.Entities.TimeRange; tr != nil {
		if tr.IsNamed() {
			if !snap.KnownTimeExpr(tr.Named) {
				res.Errors = append(res.Errors, errors.NewInvalidEntityValueError(
					fmt.Sprintf("unknown time expression %q", tr.Named)))
				return res
			}
		} else {
			if tr.Amount <= 0 {
				res.Errors = append(res.Errors, errors.NewInvalidEntityValueError(
					fmt.Sprintf("time range amount must be positive, got %d", tr.Amount)))
				return res
			}
			if !tr.Unit.Known() {
				res.Errors = append(res.Errors, errors.NewInvalidEntityValueError(
					fmt.Sprintf("unknown time unit %q", tr.Unit)))
				return res
			}
		}
	}

	if src := in.Entities.EnergySource; src != "" && !snap.KnownEnergySource(src) {
		res.Errors = append(res.Errors, errors.NewInvalidEntityValueError(
			fmt.Sprintf("unknown energy source %q", src)))
		return res
	}

	if err := v.checkRequired(in); err != nil {
		res.Errors = append(res.Errors, err)
		res.Suggestions = requiredEntityExamples(in.Type)
		return res
	}

	res.Valid = true
	return res
}

// checkRequired enforces per-type required entities. The switch is
// exhaustive over dispatchable types so a new type fails compilation review
// rather than silently passing.
func (v *Validator) checkRequired(in *Intent) *errors.StandardError {
	switch in.Type {
	case TypePowerQuery, TypeShortTermForecast, TypeBaselinePrediction:
		if in.Entities.Machine == "" {
			return errors.NewMissingRequiredEntityError("machine")
		}
	case TypeRanking:
		if in.Entities.Limit <= 0 {
			in.Entities.Limit = v.defaultRank
		}
	case TypeEnergyQuery, TypeFactoryOverview, TypeAnomalyDetection,
		TypeLongTermForecast, TypeKPIQuery:
		// no required entities beyond what structural checks covered
	}
	return nil
}

func requiredEntityExamples(t Type) []string {
	switch t {
	case TypePowerQuery:
		return []string{"What is the power draw of Compressor-1?"}
	case TypeShortTermForecast:
		return []string{"Forecast energy demand for Compressor-1 next 4 hours"}
	case TypeBaselinePrediction:
		return []string{"What is the baseline consumption for Boiler-1?"}
	default:
		return nil
	}
}
