// internal/models/answer.go
package models

// RecommendedStep is one remediation action tied to the document that
// grounds it.
type RecommendedStep struct {
	StepText            string `json:"stepText"`
	ReferenceDocumentID string `json:"referenceDocumentId"`
}

// StructuredAnswer is the single outbound record of the pipeline. Every
// entry in References corresponds to a document id present in the fused
// context built for the same request.
type StructuredAnswer struct {
	IssueSummary       string            `json:"issueSummary"`
	ImpactedService    string            `json:"impactedService"`
	RecommendedSteps   []RecommendedStep `json:"recommendedSteps"`
	EscalationRequired bool              `json:"escalationRequired"`
	Confidence         float64           `json:"confidence"`
	References         []string          `json:"references"`
}

// Canonical response texts, kept stable so downstream automation can match
// on them.
const (
	RefusalSummary = "I am an L2 production support assistant. " +
		"Please ask questions related to production support issues."
	InsufficientContextSummary = "No relevant information found in runbooks, incidents, " +
		"alerts, logs, or tickets. Please verify the issue or update the knowledge base."
	RedactionNotice = "[content removed by policy]"
)

// RefusalAnswer is the fixed answer for guardrail-rejected queries.
func RefusalAnswer() *StructuredAnswer {
	return &StructuredAnswer{
		IssueSummary:       RefusalSummary,
		ImpactedService:    "none",
		RecommendedSteps:   nil,
		EscalationRequired: false,
		Confidence:         0,
		References:         []string{},
	}
}

// InsufficientContextAnswer is the canonical answer when every routed source
// failed or returned nothing.
func InsufficientContextAnswer(escalate bool) *StructuredAnswer {
	return &StructuredAnswer{
		IssueSummary:       InsufficientContextSummary,
		ImpactedService:    "unknown",
		RecommendedSteps:   nil,
		EscalationRequired: escalate,
		Confidence:         0.05,
		References:         []string{},
	}
}
