package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enms-voice/internal/clarify"
	"enms-voice/internal/common/logger"
	"enms-voice/internal/conversation"
	"enms-voice/internal/intent"
	"enms-voice/internal/vocabulary"
)

const testVocabYAML = `
metrics:
  energy:
    - energy
    - consumption
    - usage
    - kwh
  power:
    - power
    - load
  efficiency:
    - efficiency
    - enpi
time_expressions:
  today:
    - today
  yesterday:
    - yesterday
  last_week:
    - last week
spoken_numbers:
  one: 1
  two: 2
  three: 3
  four: 4
  five: 5
energy_sources:
  electricity:
    - electricity
  natural_gas:
    - natural gas
    - gas
`

func newOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	log := logger.NewTestLogger(t)

	store, err := vocabulary.NewFromBytes([]byte(testVocabYAML), log)
	require.NoError(t, err)
	require.NoError(t, store.RefreshMachines([]string{
		"Compressor-1", "Compressor-2", "Boiler-1", "Boiler-2", "Chiller-3",
	}))

	routers := []Router{
		intent.NewHeuristicRouter(store, log),
		intent.NewVocabParser(store, 3, opts.FuzzyThreshold, log),
	}
	return New(
		conversation.NewManager(10*time.Minute, 20, log),
		routers,
		intent.NewValidator(store, 5, log),
		clarify.NewEngine(log),
		store,
		opts,
		nil,
		log,
	)
}

func defaultOpts() Options {
	return Options{MinTier2Confidence: 0.5, FuzzyThreshold: 0.7}
}

func TestProcessForecastRegression(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())

	out := o.Process(context.Background(), "s1", "Forecast energy demand for Compressor-1 next 4 hours")

	assert.False(t, out.NeedsClarification)
	require.NotNil(t, out.Intent)
	assert.Equal(t, intent.TypeShortTermForecast, out.Intent.Type)
	assert.Equal(t, intent.TierHeuristic, out.Intent.TierUsed)
	assert.Equal(t, "Compressor-1", out.Intent.Entities.Machine)
	require.NotNil(t, out.Intent.Entities.TimeRange)
	assert.Equal(t, intent.TimeRange{Amount: 4, Unit: intent.UnitHour, Relative: intent.RelativeNext},
		*out.Intent.Entities.TimeRange)
}

func TestProcessTierPrecedence(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())

	// A heuristic rule matches, so Tier 2 never runs.
	out := o.Process(context.Background(), "s1", "What is the power draw of Compressor-1?")
	require.NotNil(t, out.Intent)
	assert.Equal(t, intent.TierHeuristic, out.Intent.TierUsed)
}

func TestProcessFallsBackToVocabularyTier(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())

	// Misspelled machine defeats the exact-alias regex of Tier 1; only
	// Chiller-3 clears the fuzzy threshold, so Tier 2 resolves it.
	out := o.Process(context.Background(), "s1", "how much energy did chiler 3 use yesterday")

	assert.False(t, out.NeedsClarification)
	require.NotNil(t, out.Intent)
	assert.Equal(t, intent.TierVocabulary, out.Intent.TierUsed)
	assert.Equal(t, intent.TypeEnergyQuery, out.Intent.Type)
	assert.Equal(t, "Chiller-3", out.Intent.Entities.Machine)
}

func TestProcessFuzzyMentionNearTwoMachinesAsksInsteadOfGuessing(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())
	ctx := context.Background()

	// "compresor 1" is close to both compressors. The closest one is not
	// silently chosen; the user picks.
	out := o.Process(ctx, "s1", "how much energy did compresor 1 use yesterday")
	assert.True(t, out.NeedsClarification)
	assert.Equal(t, clarify.ReasonAmbiguousMachine, out.Reason)
	assert.Contains(t, out.Prompt, "Compressor-1")
	assert.Contains(t, out.Prompt, "Compressor-2")
	assert.Nil(t, out.Intent)

	answer := o.Process(ctx, "s1", "Compressor-1")
	assert.False(t, answer.NeedsClarification)
	require.NotNil(t, answer.Intent)
	assert.Equal(t, "Compressor-1", answer.Intent.Entities.Machine)
	assert.Equal(t, intent.TypeEnergyQuery, answer.Intent.Type)
}

func TestProcessDeterministic(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())

	var first *Outcome
	for i := 0; i < 20; i++ {
		out := o.Process(context.Background(), fmt.Sprintf("s%d", i), "How much energy did Compressor-1 use yesterday?")
		require.NotNil(t, out.Intent)
		if first == nil {
			first = out
			continue
		}
		assert.Equal(t, first.Intent.Type, out.Intent.Type)
		assert.Equal(t, first.Intent.Confidence, out.Intent.Confidence)
		assert.Equal(t, first.Intent.Entities, out.Intent.Entities)
	}
}

func TestProcessAmbiguousMachineRoundTrip(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())
	ctx := context.Background()

	out := o.Process(ctx, "s1", "how much energy is the boiler using today")
	assert.True(t, out.NeedsClarification)
	assert.Equal(t, clarify.ReasonAmbiguousMachine, out.Reason)
	assert.Contains(t, out.Prompt, "Boiler-1")
	assert.Contains(t, out.Prompt, "Boiler-2")

	// Answering with a machine name completes the held intent.
	answer := o.Process(ctx, "s1", "Boiler-2")
	assert.False(t, answer.NeedsClarification)
	require.NotNil(t, answer.Intent)
	assert.Equal(t, "Boiler-2", answer.Intent.Entities.Machine)
	assert.Equal(t, intent.TierClarification, answer.Intent.TierUsed)
	assert.Equal(t, intent.TypeEnergyQuery, answer.Intent.Type)
}

func TestProcessAmbiguousMachineOrdinalAnswer(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())
	ctx := context.Background()

	out := o.Process(ctx, "s1", "how much energy is the boiler using today")
	require.True(t, out.NeedsClarification)

	answer := o.Process(ctx, "s1", "the first one")
	require.NotNil(t, answer.Intent)
	assert.Equal(t, "Boiler-1", answer.Intent.Entities.Machine)
}

func TestProcessMissingMachineRoundTrip(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())
	ctx := context.Background()

	out := o.Process(ctx, "s1", "forecast the demand for the next 4 hours")
	assert.True(t, out.NeedsClarification)
	assert.Equal(t, clarify.ReasonMissingEntity, out.Reason)

	answer := o.Process(ctx, "s1", "compressor one")
	assert.False(t, answer.NeedsClarification)
	require.NotNil(t, answer.Intent)
	assert.Equal(t, "Compressor-1", answer.Intent.Entities.Machine)
	assert.Equal(t, intent.TypeShortTermForecast, answer.Intent.Type)
}

func TestProcessAbandonedClarification(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())
	ctx := context.Background()

	out := o.Process(ctx, "s1", "how much energy is the boiler using today")
	require.True(t, out.NeedsClarification)

	// A fresh unrelated query abandons the pending clarification.
	next := o.Process(ctx, "s1", "What is the power draw of Compressor-1?")
	assert.False(t, next.NeedsClarification)
	require.NotNil(t, next.Intent)
	assert.Equal(t, intent.TypePowerQuery, next.Intent.Type)
	assert.Equal(t, "Compressor-1", next.Intent.Entities.Machine)
}

func TestProcessPronounFollowUp(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())
	ctx := context.Background()

	first := o.Process(ctx, "s1", "What is the power draw of Compressor-1?")
	require.NotNil(t, first.Intent)

	followUp := o.Process(ctx, "s1", "what about its efficiency?")
	assert.False(t, followUp.NeedsClarification)
	require.NotNil(t, followUp.Intent)
	assert.Equal(t, "Compressor-1", followUp.Intent.Entities.Machine)
}

func TestProcessBareThatFollowUp(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())
	ctx := context.Background()

	first := o.Process(ctx, "s1", "What is the power draw of Compressor-1?")
	require.NotNil(t, first.Intent)

	followUp := o.Process(ctx, "s1", "forecast energy for that over the next 4 hours")
	assert.False(t, followUp.NeedsClarification)
	require.NotNil(t, followUp.Intent)
	assert.Equal(t, intent.TypeShortTermForecast, followUp.Intent.Type)
	assert.Equal(t, "Compressor-1", followUp.Intent.Entities.Machine)
}

func TestProcessNoMatchClarification(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())

	out := o.Process(context.Background(), "s1", "sing me a song please")
	assert.True(t, out.NeedsClarification)
	assert.Equal(t, clarify.ReasonNoMatch, out.Reason)
	assert.NotEmpty(t, out.Suggestions)
	assert.Nil(t, out.Intent)
}

func TestProcessLowConfidenceClarification(t *testing.T) {
	opts := defaultOpts()
	opts.MinTier2Confidence = 0.65
	o := newOrchestrator(t, opts)

	// Scores exactly at the keyword minimum, which lands below the raised
	// confidence bar.
	out := o.Process(context.Background(), "s1", "forecast the demand for the next 4 hours")
	assert.True(t, out.NeedsClarification)
	assert.Equal(t, clarify.ReasonLowConfidence, out.Reason)
}

func TestProcessRejectsNonPositiveDuration(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())

	out := o.Process(context.Background(), "s1", "energy usage of Compressor-1 over the last 0 hours")
	assert.True(t, out.NeedsClarification)
	assert.Equal(t, clarify.ReasonInvalidEntity, out.Reason)
	assert.Nil(t, out.Intent)
}

func TestProcessNeverDispatchesUnknownMachine(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())

	out := o.Process(context.Background(), "s1", "What is the power draw of Compressor-7?")
	assert.True(t, out.NeedsClarification)
	assert.Nil(t, out.Intent)
}

func TestStats(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())
	ctx := context.Background()

	o.Process(ctx, "s1", "What is the power draw of Compressor-1?")
	o.Process(ctx, "s2", "sing me a song please")

	s := o.Stats()
	assert.Equal(t, uint64(1), s.Processed[intent.TierHeuristic])
	assert.Equal(t, uint64(1), s.Processed[intent.TierClarification])
	assert.Equal(t, uint64(1), s.Clarifications)
	assert.Greater(t, s.AvgConfidence, 0.0)
}

func TestEndSessionForgetsContext(t *testing.T) {
	o := newOrchestrator(t, defaultOpts())
	ctx := context.Background()

	first := o.Process(ctx, "s1", "What is the power draw of Compressor-1?")
	require.NotNil(t, first.Intent)

	o.EndSession("s1")

	followUp := o.Process(ctx, "s1", "what about its efficiency?")
	assert.True(t, followUp.NeedsClarification)
}
