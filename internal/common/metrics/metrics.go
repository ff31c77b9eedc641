// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_queries_processed_total",
			Help: "Total number of queries processed, by terminal state",
		},
		[]string{"state"},
	)

	StageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_outcomes_total",
			Help: "Stage transitions by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of each pipeline stage in seconds",
		},
		[]string{"stage"},
	)

	SourceSearchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_source_search_failures_total",
			Help: "Per-source retrieval failures",
		},
		[]string{"source_id", "error_kind"},
	)

	AnswerConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_answer_confidence",
			Help:    "Final confidence of delivered answers",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	Escalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_escalations_total",
			Help: "Delivered answers flagged escalation_required",
		},
	)
)
