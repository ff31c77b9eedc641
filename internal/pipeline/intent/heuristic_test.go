// internal/pipeline/intent/heuristic_test.go
package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"ops-support-assistant/internal/models"
)

func TestHeuristicClassify(t *testing.T) {
	c := NewHeuristicClassifier(0.5)

	tests := []struct {
		name   string
		query  string
		intent models.Intent
	}{
		{"runbook via ops bias", "disk usage high on trade server", models.IntentRunbook},
		{"runbook via phrasing", "how do i resolve stuck settlement batch", models.IntentRunbook},
		{"alert", "critical alert trade settlement queue depth high", models.IntentAlert},
		{"ticket via SR id", "SR-Trade-003 users reporting payment timeouts", models.IntentTicket},
		{"ticket via phrasing", "customer issue raised for failed transfers ticket", models.IntentTicket},
		{"incident", "why did eod reconciliation fail", models.IntentIncident},
		{"log", "analyze this stack trace from the order router logs", models.IntentLog},
		{"out of scope", "what is the weather today", models.IntentOutOfScope},
		{"out of scope small talk", "recommend me a good book", models.IntentOutOfScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls, err := c.Classify(context.Background(), tt.query)
			assert.NoError(t, err)
			assert.Equal(t, tt.intent, cls.Intent)
			assert.GreaterOrEqual(t, cls.Confidence, 0.0)
			assert.LessOrEqual(t, cls.Confidence, 1.0)
		})
	}
}

func TestHeuristicConfidenceScaling(t *testing.T) {
	c := NewHeuristicClassifier(0.5)

	// Single keyword hit.
	cls, err := c.Classify(context.Background(), "critical alert on gateway")
	assert.NoError(t, err)
	assert.Equal(t, models.IntentAlert, cls.Intent)
	assert.InDelta(t, 0.75, cls.Confidence, 1e-9)
	assert.False(t, cls.LowConfidence)

	// Multiple hits raise confidence.
	cls, err = c.Classify(context.Background(), "alert warning threshold breach on gateway")
	assert.NoError(t, err)
	assert.Equal(t, models.IntentAlert, cls.Intent)
	assert.InDelta(t, 0.9, cls.Confidence, 1e-9)
}

func TestHeuristicLowConfidenceFlag(t *testing.T) {
	// Threshold above the ops-bias confidence marks the guess low-confidence.
	c := NewHeuristicClassifier(0.7)

	cls, err := c.Classify(context.Background(), "disk usage high on trade server")
	assert.NoError(t, err)
	assert.Equal(t, models.IntentRunbook, cls.Intent)
	assert.True(t, cls.LowConfidence)
}

func TestHeuristicDeterminism(t *testing.T) {
	c := NewHeuristicClassifier(0.5)

	first, err := c.Classify(context.Background(), "why did eod reconciliation fail")
	assert.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Classify(context.Background(), "why did eod reconciliation fail")
		assert.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

// failingClassifier simulates an unavailable generation capability.
type failingClassifier struct{ err error }

func (f *failingClassifier) Classify(context.Context, string) (models.Classification, error) {
	return models.Classification{}, f.err
}

func TestFallbackUsesBackup(t *testing.T) {
	fb := &Fallback{
		Primary: &failingClassifier{err: assert.AnError},
		Backup:  NewHeuristicClassifier(0.5),
	}

	cls, err := fb.Classify(context.Background(), "critical alert trade settlement queue depth high")
	assert.NoError(t, err)
	assert.Equal(t, models.IntentAlert, cls.Intent)
}

func TestFallbackPrefersPrimary(t *testing.T) {
	fb := &Fallback{
		Primary: &stubClassifier{cls: models.Classification{Intent: models.IntentTicket, Confidence: 0.95}},
		Backup:  NewHeuristicClassifier(0.5),
	}

	cls, err := fb.Classify(context.Background(), "anything")
	assert.NoError(t, err)
	assert.Equal(t, models.IntentTicket, cls.Intent)
	assert.InDelta(t, 0.95, cls.Confidence, 1e-9)
}

type stubClassifier struct{ cls models.Classification }

func (s *stubClassifier) Classify(context.Context, string) (models.Classification, error) {
	return s.cls, nil
}
