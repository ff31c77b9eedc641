// internal/pipeline/router/router.go
package router

import (
	"sort"

	"ops-support-assistant/internal/common/config"
	"ops-support-assistant/internal/models"
)

// Router maps an intent to an ordered set of weighted source descriptors.
// Pure, deterministic lookup against a static table built at startup; no I/O.
type Router struct {
	table map[models.Intent][]models.SourceDescriptor
	broad []models.SourceDescriptor
}

// defaultWeights encodes the runbook-first routing knowledge: which source
// answers which kind of question. Overridden per deployment via the
// source_weights configuration table.
var defaultWeights = map[models.Intent]map[models.SourceKind]float64{
	models.IntentRunbook:  {models.SourceRunbooks: 1.0, models.SourceIncidents: 0.5},
	models.IntentIncident: {models.SourceIncidents: 1.0, models.SourceLogs: 0.6, models.SourceRunbooks: 0.4},
	models.IntentAlert:    {models.SourceAlerts: 1.0, models.SourceIncidents: 0.7, models.SourceRunbooks: 0.4},
	models.IntentTicket:   {models.SourceTickets: 1.0, models.SourceIncidents: 0.6},
	models.IntentLog:      {models.SourceLogs: 1.0, models.SourceIncidents: 0.5},
}

func New(weights config.SourceWeightTable) *Router {
	table := make(map[models.Intent][]models.SourceDescriptor)

	for intent, kinds := range defaultWeights {
		table[intent] = buildDescriptors(kinds)
	}

	// Configuration overrides replace the whole row for that intent.
	for intentName, row := range weights {
		intent := models.Intent(intentName)
		if !intent.IsValid() || intent == models.IntentOutOfScope {
			continue
		}
		kinds := make(map[models.SourceKind]float64, len(row))
		for kindName, w := range row {
			kinds[models.SourceKind(kindName)] = w
		}
		table[intent] = buildDescriptors(kinds)
	}

	// Broad fallback: every source with uniform weight, trading precision
	// for recall.
	broad := make([]models.SourceDescriptor, 0, len(models.AllSourceKinds))
	for _, kind := range models.AllSourceKinds {
		broad = append(broad, models.SourceDescriptor{
			ID:     string(kind),
			Kind:   kind,
			Weight: 1.0,
		})
	}

	return &Router{table: table, broad: broad}
}

// Route returns the ordered weighted sources for an intent. Unknown or
// low-confidence intents route to the default broad set.
func (r *Router) Route(cls models.Classification) []models.SourceDescriptor {
	if cls.LowConfidence {
		return r.broad
	}
	sources, ok := r.table[cls.Intent]
	if !ok || len(sources) == 0 {
		return r.broad
	}
	return sources
}

func buildDescriptors(kinds map[models.SourceKind]float64) []models.SourceDescriptor {
	out := make([]models.SourceDescriptor, 0, len(kinds))
	for kind, w := range kinds {
		out = append(out, models.SourceDescriptor{
			ID:     string(kind),
			Kind:   kind,
			Weight: w,
		})
	}
	// Descending weight, id as tie-break, so routing order is stable.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].ID < out[j].ID
	})
	return out
}
