// internal/pipeline/confidence/confidence.go
package confidence

import (
	"ops-support-assistant/internal/common/config"
	"ops-support-assistant/internal/models"
)

// Scorer blends intent confidence, mean normalized similarity of cited
// chunks, and grounding coverage into the final confidence, and decides the
// escalation flag.
type Scorer struct {
	intentWeight     float64
	similarityWeight float64
	coverageWeight   float64
	threshold        float64
}

func New(cfg *config.PipelineConfig) *Scorer {
	return &Scorer{
		intentWeight:     cfg.ConfidenceIntentWeight,
		similarityWeight: cfg.ConfidenceSimilarityWeight,
		coverageWeight:   cfg.ConfidenceCoverageWeight,
		threshold:        cfg.ConfidenceThreshold,
	}
}

// Input carries the signals gathered across the pipeline for one request.
type Input struct {
	Classification models.Classification
	Fused          models.FusedContext
	References     []string
	TotalSteps     int
	GroundedSteps  int
}

// Score returns (confidence, escalation_required). Confidence is clamped to
// [0,1]. Escalation is required when confidence falls below the configured
// threshold, or when an incident/alert query produced zero grounded steps.
func (s *Scorer) Score(in Input) (float64, bool) {
	intentConf := in.Classification.Confidence
	if in.Classification.LowConfidence {
		// Low-confidence classification penalizes the blend even when the
		// best-guess intent routed successfully.
		intentConf = intentConf / 2
	}

	coverage := 0.0
	if in.TotalSteps > 0 {
		coverage = float64(in.GroundedSteps) / float64(in.TotalSteps)
	}

	conf := s.intentWeight*intentConf +
		s.similarityWeight*meanCitedSimilarity(in.Fused, in.References) +
		s.coverageWeight*coverage
	conf = clamp(conf)

	escalate := conf < s.threshold
	if !escalate && in.GroundedSteps == 0 {
		switch in.Classification.Intent {
		case models.IntentIncident, models.IntentAlert:
			escalate = true
		}
	}

	return conf, escalate
}

func meanCitedSimilarity(fused models.FusedContext, references []string) float64 {
	cited := make(map[string]bool, len(references))
	for _, id := range references {
		cited[id] = true
	}

	sum, n := 0.0, 0
	for _, c := range fused.Chunks {
		if cited[c.DocumentID] {
			sum += c.NormScore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
