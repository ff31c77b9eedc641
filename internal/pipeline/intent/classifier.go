// internal/pipeline/intent/classifier.go
package intent

import (
	"context"

	"ops-support-assistant/internal/models"
)

// Classifier maps raw query text to one of the closed set of intents with a
// confidence value. The orchestrator depends only on this interface, which
// keeps tests deterministic via the heuristic strategy.
type Classifier interface {
	Classify(ctx context.Context, query string) (models.Classification, error)
}

// Fallback chains a primary classifier with a deterministic backup. The
// backup is used when the primary is unavailable or returns an unparsable
// result; its own failure surfaces to the orchestrator, which then routes to
// the default broad source set.
type Fallback struct {
	Primary Classifier
	Backup  Classifier
}

func (f *Fallback) Classify(ctx context.Context, query string) (models.Classification, error) {
	cls, err := f.Primary.Classify(ctx, query)
	if err == nil {
		return cls, nil
	}
	return f.Backup.Classify(ctx, query)
}
