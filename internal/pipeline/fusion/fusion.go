// internal/pipeline/fusion/fusion.go
package fusion

import (
	"sort"

	"ops-support-assistant/internal/common/config"
	"ops-support-assistant/internal/models"
)

// Fuser merges per-source retrieval results into one ranked, deduplicated
// context bounded by the configured budget.
type Fuser struct {
	similarityWeight float64
	sourceWeight     float64
	budget           int
}

func New(cfg *config.PipelineConfig) *Fuser {
	return &Fuser{
		similarityWeight: cfg.FusionSimilarityWeight,
		sourceWeight:     cfg.FusionSourceWeight,
		budget:           cfg.ContextBudget,
	}
}

type scoredChunk struct {
	chunk        models.RetrievedChunk
	fused        float64
	routerWeight float64
}

// Fuse combines each chunk's normalized similarity with its source's router
// weight, sorts descending, deduplicates by document id keeping the
// highest-scoring occurrence, and truncates to the context budget.
//
// Tie-break: higher router weight first, then more recent metadata timestamp,
// then document id for a stable total order.
func (f *Fuser) Fuse(bySource map[string][]models.RetrievedChunk, routed []models.SourceDescriptor) models.FusedContext {
	weights := make(map[string]float64, len(routed))
	for _, desc := range routed {
		weights[desc.ID] = desc.Weight
	}

	var scored []scoredChunk
	for sourceID, chunks := range bySource {
		w := weights[sourceID]
		for _, c := range chunks {
			scored = append(scored, scoredChunk{
				chunk:        c,
				fused:        f.similarityWeight*c.NormScore + f.sourceWeight*w,
				routerWeight: w,
			})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].fused != scored[j].fused {
			return scored[i].fused > scored[j].fused
		}
		if scored[i].routerWeight != scored[j].routerWeight {
			return scored[i].routerWeight > scored[j].routerWeight
		}
		ti, tj := scored[i].chunk.Metadata.Timestamp, scored[j].chunk.Metadata.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return scored[i].chunk.DocumentID < scored[j].chunk.DocumentID
	})

	seen := make(map[string]bool)
	fused := models.FusedContext{}
	for _, s := range scored {
		if seen[s.chunk.DocumentID] {
			continue
		}
		seen[s.chunk.DocumentID] = true
		fused.Chunks = append(fused.Chunks, s.chunk)
		if f.budget > 0 && len(fused.Chunks) >= f.budget {
			break
		}
	}

	return fused
}
