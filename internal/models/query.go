// internal/models/query.go
package models

// Query is the raw inbound request. Immutable once received.
type Query struct {
	Text      string `json:"text"`
	SessionID string `json:"sessionId,omitempty"`
	TraceID   string `json:"traceId,omitempty"`
}

// Intent is the closed set of support-question categories.
type Intent string

const (
	IntentRunbook    Intent = "runbook"
	IntentIncident   Intent = "incident"
	IntentAlert      Intent = "alert"
	IntentTicket     Intent = "ticket"
	IntentLog        Intent = "log"
	IntentOutOfScope Intent = "out_of_scope"
)

// AllIntents lists every routable intent in a fixed order.
var AllIntents = []Intent{
	IntentRunbook,
	IntentIncident,
	IntentAlert,
	IntentTicket,
	IntentLog,
}

// IsValid reports whether the intent belongs to the closed enumeration.
func (i Intent) IsValid() bool {
	switch i {
	case IntentRunbook, IntentIncident, IntentAlert, IntentTicket, IntentLog, IntentOutOfScope:
		return true
	}
	return false
}

// Classification is the result of intent classification. Produced once per
// query; never mutated.
type Classification struct {
	Intent        Intent  `json:"intent"`
	Confidence    float64 `json:"confidence"`
	LowConfidence bool    `json:"lowConfidence"`
}
