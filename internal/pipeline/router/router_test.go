// internal/pipeline/router/router_test.go
package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ops-support-assistant/internal/common/config"
	"ops-support-assistant/internal/models"
)

func kinds(sources []models.SourceDescriptor) []models.SourceKind {
	out := make([]models.SourceKind, len(sources))
	for i, s := range sources {
		out[i] = s.Kind
	}
	return out
}

func TestRouteDefaults(t *testing.T) {
	r := New(nil)

	tests := []struct {
		intent models.Intent
		want   []models.SourceKind
	}{
		{models.IntentRunbook, []models.SourceKind{models.SourceRunbooks, models.SourceIncidents}},
		{models.IntentIncident, []models.SourceKind{models.SourceIncidents, models.SourceLogs, models.SourceRunbooks}},
		{models.IntentAlert, []models.SourceKind{models.SourceAlerts, models.SourceIncidents, models.SourceRunbooks}},
		{models.IntentTicket, []models.SourceKind{models.SourceTickets, models.SourceIncidents}},
		{models.IntentLog, []models.SourceKind{models.SourceLogs, models.SourceIncidents}},
	}

	for _, tt := range tests {
		t.Run(string(tt.intent), func(t *testing.T) {
			sources := r.Route(models.Classification{Intent: tt.intent, Confidence: 0.9})
			assert.Equal(t, tt.want, kinds(sources))

			// Ordered descending by weight, primary source first.
			require.NotEmpty(t, sources)
			assert.InDelta(t, 1.0, sources[0].Weight, 1e-9)
			for i := 1; i < len(sources); i++ {
				assert.LessOrEqual(t, sources[i].Weight, sources[i-1].Weight)
			}
		})
	}
}

func TestRouteLowConfidenceBroad(t *testing.T) {
	r := New(nil)

	sources := r.Route(models.Classification{Intent: models.IntentRunbook, Confidence: 0.2, LowConfidence: true})
	assert.Len(t, sources, len(models.AllSourceKinds))
	for _, s := range sources {
		assert.InDelta(t, 1.0, s.Weight, 1e-9)
	}
}

func TestRouteUnknownIntentBroad(t *testing.T) {
	r := New(nil)

	sources := r.Route(models.Classification{Intent: "", Confidence: 0})
	assert.Len(t, sources, len(models.AllSourceKinds))
}

func TestRouteConfigOverride(t *testing.T) {
	weights := config.SourceWeightTable{
		"runbook": {"runbooks": 0.4, "logs": 1.0},
	}
	r := New(weights)

	// Overridden row is replaced entirely and re-sorted by weight.
	sources := r.Route(models.Classification{Intent: models.IntentRunbook, Confidence: 0.9})
	assert.Equal(t, []models.SourceKind{models.SourceLogs, models.SourceRunbooks}, kinds(sources))

	// Other intents keep the defaults.
	sources = r.Route(models.Classification{Intent: models.IntentTicket, Confidence: 0.9})
	assert.Equal(t, models.SourceTickets, sources[0].Kind)
}

func TestRouteIgnoresInvalidOverrides(t *testing.T) {
	weights := config.SourceWeightTable{
		"out_of_scope": {"runbooks": 1.0},
		"nonsense":     {"runbooks": 1.0},
	}
	r := New(weights)

	// out_of_scope never routes anywhere; an unknown intent name is dropped.
	sources := r.Route(models.Classification{Intent: models.IntentOutOfScope, Confidence: 0.9})
	assert.Len(t, sources, len(models.AllSourceKinds))
}

func TestRouteDeterministic(t *testing.T) {
	r := New(nil)

	first := r.Route(models.Classification{Intent: models.IntentAlert, Confidence: 0.9})
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Route(models.Classification{Intent: models.IntentAlert, Confidence: 0.9}))
	}
}
