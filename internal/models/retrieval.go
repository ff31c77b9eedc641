// internal/models/retrieval.go
package models

import "time"

// SourceKind identifies one knowledge source backing a semantic index.
type SourceKind string

const (
	SourceRunbooks  SourceKind = "runbooks"
	SourceIncidents SourceKind = "incidents"
	SourceAlerts    SourceKind = "alerts"
	SourceTickets   SourceKind = "tickets"
	SourceLogs      SourceKind = "logs"
)

// AllSourceKinds lists every configured knowledge source in priority order
// (runbooks are authoritative, logs are noisy).
var AllSourceKinds = []SourceKind{
	SourceRunbooks,
	SourceAlerts,
	SourceIncidents,
	SourceTickets,
	SourceLogs,
}

// SourceDescriptor describes one routed knowledge source. Configured at
// startup; read-only thereafter.
type SourceDescriptor struct {
	ID     string
	Kind   SourceKind
	Weight float64
}

// ChunkMetadata carries the document metadata attached at ingestion time.
type ChunkMetadata struct {
	SourceType string    `json:"sourceType"`
	Service    string    `json:"service"`
	Severity   string    `json:"severity,omitempty"`
	OwnerTeam  string    `json:"ownerTeam,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// RetrievedChunk is one scored passage returned by a source index.
// Score is the raw similarity; NormScore is min-max normalized per source
// so that disparate sources are comparable before fusion.
type RetrievedChunk struct {
	SourceID   string        `json:"sourceId"`
	DocumentID string        `json:"documentId"`
	Text       string        `json:"text"`
	Score      float64       `json:"score"`
	NormScore  float64       `json:"normScore"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// FusedContext is the ranked, deduplicated context delivered to synthesis.
// Chunks never contain two entries with the same document id.
type FusedContext struct {
	Chunks []RetrievedChunk
}

// Contains reports whether the context holds the given document id.
func (f *FusedContext) Contains(documentID string) bool {
	for _, c := range f.Chunks {
		if c.DocumentID == documentID {
			return true
		}
	}
	return false
}

// Top returns the highest-ranked chunk, or nil when the context is empty.
func (f *FusedContext) Top() *RetrievedChunk {
	if len(f.Chunks) == 0 {
		return nil
	}
	return &f.Chunks[0]
}
