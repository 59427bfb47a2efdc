package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enms-voice/internal/common/errors"
	"enms-voice/internal/common/logger"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	return NewValidator(newTestStore(t), 5, logger.NewTestLogger(t))
}

func TestValidatorAcceptsCompleteIntent(t *testing.T) {
	v := newValidator(t)

	res := v.Validate(&Intent{
		Type:       TypeShortTermForecast,
		Confidence: 0.95,
		Entities: Entities{
			Machine:   "Compressor-1",
			TimeRange: &TimeRange{Amount: 4, Unit: UnitHour, Relative: RelativeNext},
		},
	})

	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidatorAcceptsVocabularyTimeExpression(t *testing.T) {
	v := newValidator(t)

	res := v.Validate(&Intent{
		Type: TypeEnergyQuery,
		Entities: Entities{
			Machine:   "Boiler-1",
			TimeRange: &TimeRange{Named: "yesterday"},
		},
	})

	assert.True(t, res.Valid)
}

func TestValidatorRejections(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name     string
		intent   *Intent
		wantCode errors.ErrorCode
	}{
		{
			name:     "unknown intent type",
			intent:   &Intent{Type: Type("make_coffee")},
			wantCode: errors.ErrCodeUnknownIntentType,
		},
		{
			name:     "non dispatchable type",
			intent:   &Intent{Type: TypeClarificationNeeded},
			wantCode: errors.ErrCodeUnknownIntentType,
		},
		{
			name: "machine not in whitelist",
			intent: &Intent{
				Type:     TypePowerQuery,
				Entities: Entities{Machine: "Turbine-9"},
			},
			wantCode: errors.ErrCodeInvalidEntityValue,
		},
		{
			name: "negative duration is rejected not clamped",
			intent: &Intent{
				Type: TypeEnergyQuery,
				Entities: Entities{
					TimeRange: &TimeRange{Amount: -3, Unit: UnitHour, Relative: RelativeLast},
				},
			},
			wantCode: errors.ErrCodeInvalidEntityValue,
		},
		{
			name: "zero duration",
			intent: &Intent{
				Type: TypeEnergyQuery,
				Entities: Entities{
					TimeRange: &TimeRange{Amount: 0, Unit: UnitDay, Relative: RelativeNext},
				},
			},
			wantCode: errors.ErrCodeInvalidEntityValue,
		},
		{
			name: "unknown time unit",
			intent: &Intent{
				Type: TypeEnergyQuery,
				Entities: Entities{
					TimeRange: &TimeRange{Amount: 2, Unit: TimeUnit("fortnight"), Relative: RelativeNext},
				},
			},
			wantCode: errors.ErrCodeInvalidEntityValue,
		},
		{
			name: "unknown named time expression",
			intent: &Intent{
				Type: TypeEnergyQuery,
				Entities: Entities{
					TimeRange: &TimeRange{Named: "someday"},
				},
			},
			wantCode: errors.ErrCodeInvalidEntityValue,
		},
		{
			name: "unknown energy source",
			intent: &Intent{
				Type:     TypeEnergyQuery,
				Entities: Entities{EnergySource: "plutonium"},
			},
			wantCode: errors.ErrCodeInvalidEntityValue,
		},
		{
			name:     "power query without machine",
			intent:   &Intent{Type: TypePowerQuery},
			wantCode: errors.ErrCodeMissingRequiredEntity,
		},
		{
			name:     "forecast without machine",
			intent:   &Intent{Type: TypeShortTermForecast},
			wantCode: errors.ErrCodeMissingRequiredEntity,
		},
		{
			name:     "baseline without machine",
			intent:   &Intent{Type: TypeBaselinePrediction},
			wantCode: errors.ErrCodeMissingRequiredEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.intent)
			assert.False(t, res.Valid)
			require.NotNil(t, res.FirstError())
			assert.Equal(t, tt.wantCode, res.FirstError().Code)
		})
	}
}

func TestValidatorMachineSuggestions(t *testing.T) {
	v := newValidator(t)

	res := v.Validate(&Intent{
		Type:     TypePowerQuery,
		Entities: Entities{Machine: "Compressor-9"},
	})

	assert.False(t, res.Valid)
	require.NotEmpty(t, res.Suggestions)
	assert.Contains(t, res.Suggestions, "Compressor-1")
}

func TestValidatorMissingMachineSuggestsExamples(t *testing.T) {
	v := newValidator(t)

	res := v.Validate(&Intent{Type: TypeShortTermForecast})
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Suggestions)
}

func TestValidatorDefaultsRankingLimit(t *testing.T) {
	v := newValidator(t)

	in := &Intent{Type: TypeRanking}
	res := v.Validate(in)

	assert.True(t, res.Valid)
	assert.Equal(t, 5, in.Entities.Limit)
}

func TestValidatorKeepsExplicitRankingLimit(t *testing.T) {
	v := newValidator(t)

	in := &Intent{Type: TypeRanking, Entities: Entities{Limit: 3}}
	res := v.Validate(in)

	assert.True(t, res.Valid)
	assert.Equal(t, 3, in.Entities.Limit)
}

func TestValidatorZeroTrustAcrossTiers(t *testing.T) {
	v := newValidator(t)

	// Tier of origin is irrelevant; a heuristic-tier intent with a bad
	// machine fails exactly like a vocabulary-tier one.
	for _, tier := range []Tier{TierHeuristic, TierVocabulary} {
		res := v.Validate(&Intent{
			Type:     TypePowerQuery,
			TierUsed: tier,
			Entities: Entities{Machine: "Ghost-1"},
		})
		assert.False(t, res.Valid)
	}
}
