// Package pipeline wires the classification tiers, validator, conversation
// state and clarification engine into the single Process entry point.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"enms-voice/internal/clarify"
	"enms-voice/internal/common/errors"
	"enms-voice/internal/common/logger"
	"enms-voice/internal/common/metrics"
	"enms-voice/internal/common/observability"
	"enms-voice/internal/conversation"
	"enms-voice/internal/intent"
	"enms-voice/internal/vocabulary"
)

// Router is one classification tier. Returning nil means "no opinion",
// handing the utterance to the next tier.
type Router interface {
	Route(utterance string) *intent.Intent
}

// Outcome is the result of processing one utterance: either a validated
// intent ready for dispatch, or a clarification question.
type Outcome struct {
	SessionID          string                  `json:"sessionId"`
	Intent             *intent.Intent          `json:"intent,omitempty"`
	NeedsClarification bool                    `json:"needsClarification"`
	Prompt             string                  `json:"responseText,omitempty"`
	Reason             clarify.Reason          `json:"clarificationReason,omitempty"`
	Suggestions        []string                `json:"suggestions,omitempty"`
	Elapsed            time.Duration           `json:"-"`
}

// Stats is a point-in-time copy of the rolling pipeline statistics.
type Stats struct {
	Processed      map[intent.Tier]uint64 `json:"processed"`
	Clarifications uint64                 `json:"clarifications"`
	AvgLatency     time.Duration          `json:"avgLatency"`
	AvgConfidence  float64                `json:"avgConfidence"`
}

// Options carries the tunables the orchestrator needs.
type Options struct {
	MinTier2Confidence float64
	FuzzyThreshold     float64
}

// Orchestrator runs the fixed processing order: pending resolution, pronoun
// resolution, Tier 1, Tier 2, validation, clarification routing. Session
// state is only mutated after the outcome is fully computed.
type Orchestrator struct {
	sessions  *conversation.Manager
	routers   []Router
	validator *intent.Validator
	clarifier *clarify.Engine
	store     *vocabulary.Store
	opts      Options
	obs       *observability.Observability
	logger    logger.Logger

	statsMu       sync.Mutex
	processed     map[intent.Tier]uint64
	clarified     uint64
	totalLatency  time.Duration
	totalConf     float64
	totalOutcomes uint64
}

func New(
	sessions *conversation.Manager,
	routers []Router,
	validator *intent.Validator,
	clarifier *clarify.Engine,
	store *vocabulary.Store,
	opts Options,
	obs *observability.Observability,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		routers:   routers,
		validator: validator,
		clarifier: clarifier,
		store:     store,
		opts:      opts,
		obs:       obs,
		logger:    log.With(map[string]interface{}{"component": "pipeline"}),
		processed: make(map[intent.Tier]uint64),
	}
}

// Process classifies one utterance within a session.
func (o *Orchestrator) Process(ctx context.Context, sessionID, utterance string) *Outcome {
	start := time.Now()
	sess := o.sessions.Session(sessionID)

	outcome := o.process(ctx, sess, sessionID, utterance)
	outcome.Elapsed = time.Since(start)

	o.record(ctx, outcome)
	return outcome
}

func (o *Orchestrator) process(ctx context.Context, sess *conversation.Session, sessionID, utterance string) *Outcome {
	if pending := sess.Pending(); pending != nil {
		if out := o.resolvePending(sess, sessionID, pending, utterance); out != nil {
			return out
		}
		// The answer did not select an option and reads like a fresh
		// query; the clarification is abandoned.
		sess.TakePending()
	}

	resolved := sess.ResolvePronouns(utterance)

	var in *intent.Intent
	for _, r := range o.routers {
		if in = r.Route(resolved); in != nil {
			break
		}
	}

	switch {
	case in == nil:
		return o.clarifyOutcome(sess, sessionID, clarify.ReasonNoMatch, clarify.BuildInput{
			Utterance:   utterance,
			Suggestions: exampleQueries(),
		})
	case in.Ambiguous():
		return o.clarifyOutcome(sess, sessionID, clarify.ReasonAmbiguousMachine, clarify.BuildInput{
			Utterance:  utterance,
			Candidates: in.Entities.MachineCandidates,
			Partial:    in,
		})
	case in.TierUsed == intent.TierVocabulary && in.Confidence < o.opts.MinTier2Confidence:
		return o.clarifyOutcome(sess, sessionID, clarify.ReasonLowConfidence, clarify.BuildInput{
			Utterance:   utterance,
			Partial:     in,
			Suggestions: exampleQueries(),
		})
	}

	return o.validateAndFinish(sess, sessionID, in, utterance)
}

func (o *Orchestrator) validateAndFinish(sess *conversation.Session, sessionID string, in *intent.Intent, utterance string) *Outcome {
	res := o.validator.Validate(in)
	if !res.Valid {
		return o.clarifyValidationFailure(sess, sessionID, in, utterance, res)
	}

	sess.Remember(in, utterance, time.Now())
	return &Outcome{SessionID: sessionID, Intent: in}
}

func (o *Orchestrator) clarifyValidationFailure(sess *conversation.Session, sessionID string, in *intent.Intent, utterance string, res *intent.ValidationResult) *Outcome {
	first := res.FirstError()
	input := clarify.BuildInput{
		Utterance:   utterance,
		Partial:     in,
		Suggestions: res.Suggestions,
	}

	var reason clarify.Reason
	switch first.Code {
	case errors.ErrCodeMissingRequiredEntity:
		reason = clarify.ReasonMissingEntity
		input.Field = missingField(first)
	case errors.ErrCodeInvalidEntityValue:
		reason = clarify.ReasonInvalidEntity
	default:
		reason = clarify.ReasonNoMatch
		input.Suggestions = exampleQueries()
	}
	return o.clarifyOutcome(sess, sessionID, reason, input)
}

func (o *Orchestrator) clarifyOutcome(sess *conversation.Session, sessionID string, reason clarify.Reason, input clarify.BuildInput) *Outcome {
	c := o.clarifier.Build(reason, input)
	if c.Pending != nil {
		sess.SetPending(c.Pending)
	}
	sess.Remember(&intent.Intent{Type: intent.TypeClarificationNeeded}, input.Utterance, time.Now())

	return &Outcome{
		SessionID:          sessionID,
		NeedsClarification: true,
		Prompt:             c.Prompt,
		Reason:             reason,
		Suggestions:        input.Suggestions,
	}
}

// resolvePending interprets the utterance as an answer to the outstanding
// clarification. Returns nil when the utterance does not answer it, which
// sends the turn through the full pipeline instead.
func (o *Orchestrator) resolvePending(sess *conversation.Session, sessionID string, pending *conversation.Pending, utterance string) *Outcome {
	var machine string
	switch pending.Type {
	case conversation.AwaitingMachineChoice:
		answer := intent.NormalizeNumbers(utterance, o.store.Snapshot())
		machine = selectOption(answer, pending.Options, o.opts.FuzzyThreshold)
	case conversation.AwaitingRequiredEntity:
		if pending.Field == "machine" {
			machine = o.machineFromAnswer(utterance)
		}
	}
	if machine == "" {
		return nil
	}

	sess.TakePending()

	merged := pending.Partial
	if merged == nil {
		merged = &intent.Intent{Type: intent.TypeUnknown}
	}
	merged.Entities.Machine = machine
	merged.Entities.MachineCandidates = nil
	merged.TierUsed = intent.TierClarification
	merged.Utterance = pending.OriginalQuery

	o.logger.Debug("pending clarification resolved", map[string]interface{}{
		"sessionId": sessionID,
		"machine":   machine,
	})
	return o.validateAndFinish(sess, sessionID, merged, utterance)
}

// machineFromAnswer resolves a free-form answer to a whitelist machine,
// exact alias first, then fuzzy. A fuzzy answer that clears the threshold
// for more than one machine stays unresolved; the turn re-enters the
// pipeline and surfaces the ambiguity instead of guessing.
func (o *Orchestrator) machineFromAnswer(utterance string) string {
	snap := o.store.Snapshot()
	normalized := intent.NormalizeNumbers(utterance, snap)

	if canonical, ok := snap.CanonicalMachine(normalized); ok {
		return canonical
	}
	if matches := intent.FuzzyMatches(normalized, snap.Machines(), o.opts.FuzzyThreshold); len(matches) == 1 {
		return matches[0].Name
	}
	return ""
}

// ordinalWords maps spoken ordinals and digits to zero-based positions.
var ordinalWords = map[string]int{
	"first": 0, "1": 0, "one": 0,
	"second": 1, "2": 1, "two": 1,
	"third": 2, "3": 2, "three": 2,
	"fourth": 3, "4": 3, "four": 3,
	"fifth": 4, "5": 4, "five": 4,
}

// selectOption matches the answer against the offered options only: exact
// name, ordinal ("the first one", "2"), then fuzzy restricted to the
// options.
func selectOption(utterance string, options []string, fuzzyThreshold float64) string {
	answer := strings.TrimSpace(utterance)

	for _, opt := range options {
		if vocabulary.NormalizeMachineName(answer) == vocabulary.NormalizeMachineName(opt) {
			return opt
		}
	}

	lower := strings.ToLower(answer)
	if strings.Contains(lower, "last") && len(options) > 0 {
		return options[len(options)-1]
	}
	for _, word := range strings.Fields(strings.Trim(lower, "?.,!")) {
		word = strings.Trim(word, "?.,!")
		if idx, ok := ordinalWords[word]; ok && idx < len(options) {
			return options[idx]
		}
	}

	best := ""
	bestScore := 0.0
	for _, opt := range options {
		if score := intent.Similarity(answer, opt); score >= fuzzyThreshold && score > bestScore {
			best = opt
			bestScore = score
		}
	}
	return best
}

func exampleQueries() []string {
	return []string{
		"How much energy did Compressor-1 use yesterday?",
		"What is the current power draw of Boiler-1?",
		"Show me the top 5 energy consumers",
	}
}

func missingField(err *errors.StandardError) string {
	if idx := strings.LastIndex(err.Details, ": "); idx >= 0 {
		return err.Details[idx+2:]
	}
	return "machine"
}

func (o *Orchestrator) record(ctx context.Context, out *Outcome) {
	tier := intent.TierClarification
	conf := 0.0
	if out.Intent != nil {
		tier = out.Intent.TierUsed
		conf = out.Intent.Confidence
	}

	metrics.UtterancesProcessed.WithLabelValues(string(tier)).Inc()
	metrics.PipelineDuration.WithLabelValues(string(tier)).Observe(out.Elapsed.Seconds())
	if out.Intent != nil {
		metrics.IntentConfidence.WithLabelValues(string(tier)).Observe(conf)
	}
	if o.obs != nil {
		o.obs.RecordUtterance(ctx, string(tier))
		o.obs.RecordDuration(ctx, out.Elapsed, string(tier))
	}

	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	o.processed[tier]++
	o.totalOutcomes++
	o.totalLatency += out.Elapsed
	if out.NeedsClarification {
		o.clarified++
	} else {
		o.totalConf += conf
	}
}

// Stats returns a copy of the rolling counters.
func (o *Orchestrator) Stats() Stats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	s := Stats{
		Processed:      make(map[intent.Tier]uint64, len(o.processed)),
		Clarifications: o.clarified,
	}
	for tier, n := range o.processed {
		s.Processed[tier] = n
	}
	if o.totalOutcomes > 0 {
		s.AvgLatency = o.totalLatency / time.Duration(o.totalOutcomes)
	}
	if valid := o.totalOutcomes - o.clarified; valid > 0 {
		s.AvgConfidence = o.totalConf / float64(valid)
	}
	return s
}

// EndSession tears down per-session state immediately.
func (o *Orchestrator) EndSession(sessionID string) {
	o.sessions.End(sessionID)
}
