// internal/models/event.go
package models

import "time"

// Stage is one state of the request lifecycle.
// RECEIVED → CLASSIFIED → (REJECTED | ROUTED) → RETRIEVED → FUSED →
// SYNTHESIZED → SCORED → DELIVERED. REJECTED and DELIVERED are terminal.
type Stage string

const (
	StageReceived    Stage = "RECEIVED"
	StageClassified  Stage = "CLASSIFIED"
	StageRejected    Stage = "REJECTED"
	StageRouted      Stage = "ROUTED"
	StageRetrieved   Stage = "RETRIEVED"
	StageFused       Stage = "FUSED"
	StageSynthesized Stage = "SYNTHESIZED"
	StageScored      Stage = "SCORED"
	StageDelivered   Stage = "DELIVERED"
)

// PipelineEvent is emitted once per stage transition. Consumed for
// tracing/metrics only; never influences control flow.
type PipelineEvent struct {
	TraceID   string    `json:"traceId"`
	Stage     Stage     `json:"stage"`
	Outcome   string    `json:"outcome"` // "ok", "degraded", or an error kind
	LatencyMs int64     `json:"latencyMs"`
	Timestamp time.Time `json:"timestamp"`
}
