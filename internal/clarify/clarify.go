// Package clarify turns linguistic failures into natural-language follow-up
// questions and the pending state the next turn is interpreted against.
package clarify

import (
	"fmt"
	"strings"

	"enms-voice/internal/common/logger"
	"enms-voice/internal/common/metrics"
	"enms-voice/internal/conversation"
	"enms-voice/internal/intent"
)

// Reason is why a clarification was issued.
type Reason string

const (
	ReasonAmbiguousMachine Reason = "ambiguous_machine"
	ReasonMissingEntity    Reason = "missing_entity"
	ReasonLowConfidence    Reason = "low_confidence"
	ReasonNoMatch          Reason = "no_match"
	ReasonInvalidEntity    Reason = "invalid_entity"
)

// BuildInput carries whatever the failure path knows.
type BuildInput struct {
	Utterance   string
	Candidates  []string // ambiguous machine options
	Field       string   // missing entity field name
	Partial     *intent.Intent
	Suggestions []string
}

// Clarification is the question sent back to the user plus the pending
// state, if the answer can be interpreted against a restricted set.
type Clarification struct {
	Reason  Reason
	Prompt  string
	Pending *conversation.Pending
}

type Engine struct {
	logger logger.Logger
}

func NewEngine(log logger.Logger) *Engine {
	return &Engine{logger: log.With(map[string]interface{}{"component": "clarify"})}
}

// Build produces the clarification for a failure reason. Ambiguous-machine
// and missing-entity clarifications install pending state; low-confidence
// and no-match ones ask the user to rephrase freely, so no pending state is
// set and the next turn goes through the full pipeline.
func (e *Engine) Build(reason Reason, in BuildInput) *Clarification {
	metrics.ClarificationsIssued.WithLabelValues(string(reason)).Inc()

	c := &Clarification{Reason: reason}
	switch reason {
	case ReasonAmbiguousMachine:
		c.Prompt = machineChoicePrompt(in.Candidates)
		c.Pending = &conversation.Pending{
			Type:          conversation.AwaitingMachineChoice,
			Options:       in.Candidates,
			OriginalQuery: in.Utterance,
			Partial:       in.Partial,
		}
	case ReasonMissingEntity:
		c.Prompt = missingEntityPrompt(in.Field, in.Partial)
		c.Pending = &conversation.Pending{
			Type:          conversation.AwaitingRequiredEntity,
			Field:         in.Field,
			OriginalQuery: in.Utterance,
			Partial:       in.Partial,
		}
	case ReasonLowConfidence:
		c.Prompt = "I'm not sure I understood that correctly. Could you rephrase your question?"
		if len(in.Suggestions) > 0 {
			c.Prompt += " For example: " + strings.Join(in.Suggestions, " / ")
		}
	case ReasonInvalidEntity:
		c.Prompt = invalidEntityPrompt(in.Suggestions)
	default:
		c.Prompt = noMatchPrompt(in.Suggestions)
	}

	e.logger.Debug("clarification issued", map[string]interface{}{
		"reason":     string(reason),
		"hasPending": c.Pending != nil,
	})
	return c
}

func machineChoicePrompt(candidates []string) string {
	var b strings.Builder
	b.WriteString("Which machine did you mean? ")
	for i, name := range candidates {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d) %s", i+1, name)
	}
	return b.String()
}

func missingEntityPrompt(field string, partial *intent.Intent) string {
	switch field {
	case "machine":
		if partial != nil && partial.Type == intent.TypeShortTermForecast {
			return "Which machine should I forecast for?"
		}
		return "Which machine are you asking about?"
	default:
		return fmt.Sprintf("Could you tell me the %s for that request?", field)
	}
}

func invalidEntityPrompt(suggestions []string) string {
	if len(suggestions) == 0 {
		return "I didn't recognize part of that request. Could you rephrase it?"
	}
	return "I didn't recognize that name. Did you mean: " + strings.Join(suggestions, ", ") + "?"
}

func noMatchPrompt(suggestions []string) string {
	base := "I didn't catch what you'd like to know."
	if len(suggestions) == 0 {
		return base + " You can ask about energy usage, power draw, forecasts, or anomalies."
	}
	return base + " For example: " + strings.Join(suggestions, " / ")
}
