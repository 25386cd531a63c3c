// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the action-extraction pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record processing outcomes.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusError     = "error"
)

var (
	// RecordsProcessed counts records by terminal status.
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailaction_records_processed_total",
			Help: "Email records handled by the batch runner, by status.",
		},
		[]string{"status"},
	)

	// ActionsExtracted counts extracted actions by type and policy.
	ActionsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailaction_actions_extracted_total",
			Help: "Actions extracted, by action type and policy decision.",
		},
		[]string{"action_type", "policy"},
	)

	// StageDuration observes wall time per pipeline stage.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailaction_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"stage"},
	)

	// LLMCalls counts external completion and embedding calls.
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailaction_llm_calls_total",
			Help: "External model calls, by kind and outcome.",
		},
		[]string{"kind", "status"},
	)

	// DeadlineResolutions counts resolver outcomes.
	DeadlineResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailaction_deadline_resolutions_total",
			Help: "Deadline resolution attempts, by outcome.",
		},
		[]string{"outcome"},
	)
)
