// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UtterancesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_utterances_total",
			Help: "Total number of utterances processed, by resolving tier",
		},
		[]string{"tier"},
	)

	ClarificationsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_clarifications_total",
			Help: "Total number of clarification responses, by reason",
		},
		[]string{"reason"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voice_pipeline_duration_seconds",
			Help:    "Duration of one utterance through the pipeline",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"tier"},
	)

	IntentConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voice_intent_confidence",
			Help:    "Confidence of the selected intent candidate",
			Buckets: []float64{0.3, 0.5, 0.7, 0.8, 0.9, 0.95, 1.0},
		},
		[]string{"tier"},
	)

	WhitelistSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_machine_whitelist_size",
			Help: "Number of canonical machine names in the active snapshot",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Number of live conversation sessions",
		},
	)
)
