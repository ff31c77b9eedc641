// internal/pipeline/retrieval/source.go
package retrieval

import (
	"context"
	"strings"
	"time"

	"ops-support-assistant/internal/models"
)

// SearchFilter narrows a source index search by document metadata.
// Zero values mean "no restriction".
type SearchFilter struct {
	Service  string
	Severity string
	Since    time.Time
}

// SourceIndex is one immutable per-source semantic search capability.
// Implementations must be safe for concurrent use; the engine fans out one
// search per routed source.
type SourceIndex interface {
	Kind() models.SourceKind
	Search(ctx context.Context, query string, topK int, filter SearchFilter) ([]models.RetrievedChunk, error)
}

// DetectService scans query text for a known service name so retrieval can
// narrow by the service metadata tag. Returns "" when nothing matches.
func DetectService(text string, known []string) string {
	lower := strings.ToLower(text)
	for _, svc := range known {
		if svc == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(svc)) {
			return svc
		}
	}
	return ""
}
