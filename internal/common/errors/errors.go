// internal/common/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Error Kinds
// ==========================

// Kind represents standardized pipeline error codes.
type Kind string

const (
	KindGuardrailRejection          Kind = "GUARDRAIL_REJECTION"
	KindClassificationLowConfidence Kind = "CLASSIFICATION_LOW_CONFIDENCE"
	KindClassificationUnavailable   Kind = "CLASSIFICATION_UNAVAILABLE"
	KindSourcePartialFailure        Kind = "SOURCE_PARTIAL_FAILURE"
	KindInsufficientContext         Kind = "INSUFFICIENT_CONTEXT"
	KindSynthesisFailure            Kind = "SYNTHESIS_FAILURE"

	KindGenerationTimeout Kind = "GENERATION_TIMEOUT"
	KindSearchTimeout     Kind = "SEARCH_TIMEOUT"
	KindSearchQueryFailed Kind = "SEARCH_QUERY_FAILED"
	KindIndexNotFound     Kind = "INDEX_NOT_FOUND"
)

// PipelineError is a structured pipeline error. Every failure the pipeline
// absorbs is tagged with one of these before being converted to a degraded
// answer.
type PipelineError struct {
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("PipelineError[%s]: %s", e.Kind, e.Message)
}

// Is lets errors.Is match on kind through wrapping.
func (e *PipelineError) Is(target error) bool {
	var pe *PipelineError
	if errors.As(target, &pe) {
		return pe.Kind == e.Kind
	}
	return false
}

// KindOf extracts the pipeline error kind, or "" for foreign errors.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ==========================
// 2. Constructors
// ==========================

// NewGuardrailRejection creates the terminal, never-retried rejection error.
func NewGuardrailRejection(topic string) *PipelineError {
	return &PipelineError{
		Kind:      KindGuardrailRejection,
		Message:   "Query rejected by guardrail policy",
		Details:   fmt.Sprintf("topic: %s", topic),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewClassificationUnavailable signals the generation capability failed and
// the heuristic fallback should be used.
func NewClassificationUnavailable(err error) *PipelineError {
	return &PipelineError{
		Kind:      KindClassificationUnavailable,
		Message:   "Generation-based intent classification unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSourcePartialFailure records routed sources that timed out or errored.
func NewSourcePartialFailure(sourceIDs []string, err error) *PipelineError {
	return &PipelineError{
		Kind:      KindSourcePartialFailure,
		Message:   "One or more routed sources failed",
		Details:   fmt.Sprintf("sources: %v, error: %s", sourceIDs, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInsufficientContext signals all routed sources failed or returned nothing.
func NewInsufficientContext() *PipelineError {
	return &PipelineError{
		Kind:      KindInsufficientContext,
		Message:   "No context retrieved from any routed source",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSynthesisFailure signals the generation capability failed or returned an
// unparsable structure after retries.
func NewSynthesisFailure(err error) *PipelineError {
	return &PipelineError{
		Kind:      KindSynthesisFailure,
		Message:   "Answer synthesis failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationTimeout creates a retryable generation timeout error.
func NewGenerationTimeout(operation string) *PipelineError {
	return &PipelineError{
		Kind:      KindGenerationTimeout,
		Message:   "Generation capability timeout",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchTimeout creates a retryable per-source search timeout error.
func NewSearchTimeout(sourceID string) *PipelineError {
	return &PipelineError{
		Kind:      KindSearchTimeout,
		Message:   "Source index search timeout",
		Details:   fmt.Sprintf("sourceId: %s", sourceID),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchQueryFailed creates a retryable search error.
func NewSearchQueryFailed(sourceID string, err error) *PipelineError {
	return &PipelineError{
		Kind:      KindSearchQueryFailed,
		Message:   "Source index query error",
		Details:   fmt.Sprintf("sourceId: %s, error: %s", sourceID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIndexNotFound creates a non-retryable missing index error.
func NewIndexNotFound(indexName string) *PipelineError {
	return &PipelineError{
		Kind:      KindIndexNotFound,
		Message:   "Source index not found",
		Details:   fmt.Sprintf("indexName: %s", indexName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the bounded retry count per error kind.
func GetRetryCount(kind Kind) int {
	switch kind {
	case KindClassificationUnavailable,
		KindSearchQueryFailed,
		KindSynthesisFailure:
		return 2

	case KindGenerationTimeout,
		KindSearchTimeout:
		return 1

	default:
		// Guardrail rejections and degraded-context conditions are terminal.
		return 0
	}
}

// IsRetryable checks if an error kind is retryable.
func IsRetryable(kind Kind) bool {
	return GetRetryCount(kind) > 0
}
