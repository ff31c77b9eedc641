// internal/pipeline/synthesis/synthesis.go
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"ops-support-assistant/internal/common/config"
	pipelineerrors "ops-support-assistant/internal/common/errors"
	"ops-support-assistant/internal/common/logger"
	"ops-support-assistant/internal/genai"
	"ops-support-assistant/internal/models"
)

const synthesisPrompt = `You are a senior production support assistant.
Answer the user's question using ONLY the provided context documents.

Rules:
- Do NOT invent steps. Every recommended step must come from a context document.
- Each step must cite the document id of the context document it came from.
- Cite only document ids listed in the context. Never fabricate an id.
- escalation_required = true if the issue seems critical.

Respond with JSON only, in this exact format:
{
  "issue_summary": "<short summary of the detected issue>",
  "impacted_service": "<primary affected service, or unknown>",
  "recommended_steps": [
    {"step_text": "<remediation action>", "reference_document_id": "<document id>"}
  ],
  "escalation_required": <true|false>
}

Context:
%s

Question: %s`

// answerSchema validates the generation output before anything downstream
// trusts it. Unparsable or schema-invalid output counts as a synthesis
// failure and is retried by the generation client.
const answerSchema = `{
	"type": "object",
	"required": ["issue_summary", "recommended_steps", "escalation_required"],
	"properties": {
		"issue_summary": {"type": "string", "minLength": 1},
		"impacted_service": {"type": "string"},
		"recommended_steps": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["step_text", "reference_document_id"],
				"properties": {
					"step_text": {"type": "string", "minLength": 1},
					"reference_document_id": {"type": "string"}
				}
			}
		},
		"escalation_required": {"type": "boolean"}
	}
}`

type rawAnswer struct {
	IssueSummary     string `json:"issue_summary"`
	ImpactedService  string `json:"impacted_service"`
	RecommendedSteps []struct {
		StepText            string `json:"step_text"`
		ReferenceDocumentID string `json:"reference_document_id"`
	} `json:"recommended_steps"`
	EscalationRequired bool `json:"escalation_required"`
}

// Result pairs the grounded answer with the step counts the confidence
// scorer needs. Confidence on the answer is left unset here.
type Result struct {
	Answer        *models.StructuredAnswer
	TotalSteps    int
	GroundedSteps int
}

// Synthesizer produces a structured answer grounded in the fused context.
type Synthesizer struct {
	generator genai.Generator
	cfg       *config.GenAIConfig
	schema    *gojsonschema.Schema
	logger    logger.Logger
}

func New(generator genai.Generator, cfg *config.GenAIConfig, log logger.Logger) (*Synthesizer, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(answerSchema))
	if err != nil {
		return nil, fmt.Errorf("compile answer schema: %w", err)
	}
	return &Synthesizer{
		generator: generator,
		cfg:       cfg,
		schema:    schema,
		logger: log.With(map[string]interface{}{
			"component": "synthesis",
		}),
	}, nil
}

// Synthesize calls the generation capability and applies the grounding
// filter: steps citing document ids absent from the context are dropped.
// If every step is dropped the canonical insufficient-information answer is
// returned instead of a fabricated one.
func (s *Synthesizer) Synthesize(ctx context.Context, query models.Query, fused models.FusedContext) (*Result, error) {
	if len(fused.Chunks) == 0 {
		return nil, pipelineerrors.NewInsufficientContext()
	}

	genCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.SynthesisTimeout)*time.Millisecond)
	defer cancel()

	text, err := s.generator.Generate(genCtx, genai.Request{
		Prompt:      fmt.Sprintf(synthesisPrompt, buildContext(fused), query.Text),
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Constraints: map[string]interface{}{
			"format": "json",
		},
	})
	if err != nil {
		if err == genai.ErrGenerationTimeout {
			return nil, pipelineerrors.NewGenerationTimeout("synthesis")
		}
		return nil, pipelineerrors.NewSynthesisFailure(err)
	}

	raw, err := s.parseAnswer(text)
	if err != nil {
		return nil, pipelineerrors.NewSynthesisFailure(err)
	}

	return s.ground(query, raw, fused), nil
}

func (s *Synthesizer) parseAnswer(text string) (*rawAnswer, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in generation output")
	}
	jsonText := text[start : end+1]

	result, err := s.schema.Validate(gojsonschema.NewStringLoader(jsonText))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("answer validation failed: %v", errs)
	}

	var raw rawAnswer
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

func (s *Synthesizer) ground(query models.Query, raw *rawAnswer, fused models.FusedContext) *Result {
	var steps []models.RecommendedStep
	refs := make([]string, 0)
	seen := make(map[string]bool)

	for _, step := range raw.RecommendedSteps {
		if !fused.Contains(step.ReferenceDocumentID) {
			s.logger.Info("ungrounded step dropped", map[string]interface{}{
				"traceId":    query.TraceID,
				"documentId": step.ReferenceDocumentID,
			})
			continue
		}
		steps = append(steps, models.RecommendedStep{
			StepText:            step.StepText,
			ReferenceDocumentID: step.ReferenceDocumentID,
		})
		if !seen[step.ReferenceDocumentID] {
			seen[step.ReferenceDocumentID] = true
			refs = append(refs, step.ReferenceDocumentID)
		}
	}

	if len(raw.RecommendedSteps) > 0 && len(steps) == 0 {
		return &Result{
			Answer:        models.InsufficientContextAnswer(false),
			TotalSteps:    len(raw.RecommendedSteps),
			GroundedSteps: 0,
		}
	}

	answer := &models.StructuredAnswer{
		IssueSummary:       raw.IssueSummary,
		ImpactedService:    raw.ImpactedService,
		RecommendedSteps:   steps,
		EscalationRequired: raw.EscalationRequired,
		References:         refs,
	}
	applyTopChunkDefaults(answer, fused)

	return &Result{
		Answer:        answer,
		TotalSteps:    len(raw.RecommendedSteps),
		GroundedSteps: len(steps),
	}
}

// Extractive builds a degraded answer directly from the top fused chunks when
// generation fails after retries. Deterministic under identical input.
func Extractive(fused models.FusedContext) *Result {
	if len(fused.Chunks) == 0 {
		return &Result{Answer: models.InsufficientContextAnswer(false)}
	}

	top := fused.Top()
	steps := make([]models.RecommendedStep, 0, len(fused.Chunks))
	refs := make([]string, 0, len(fused.Chunks))
	seen := make(map[string]bool)
	for _, c := range fused.Chunks {
		if seen[c.DocumentID] {
			continue
		}
		seen[c.DocumentID] = true
		steps = append(steps, models.RecommendedStep{
			StepText:            fmt.Sprintf("Review %s document %s: %s", c.SourceID, c.DocumentID, firstSentence(c.Text)),
			ReferenceDocumentID: c.DocumentID,
		})
		refs = append(refs, c.DocumentID)
	}

	answer := &models.StructuredAnswer{
		IssueSummary:     firstSentence(top.Text),
		RecommendedSteps: steps,
		References:       refs,
	}
	applyTopChunkDefaults(answer, fused)

	return &Result{
		Answer:        answer,
		TotalSteps:    len(steps),
		GroundedSteps: len(steps),
	}
}

// applyTopChunkDefaults derives impacted_service and the escalation hint from
// the highest-ranked chunk's metadata when the generation output left them
// unset.
func applyTopChunkDefaults(answer *models.StructuredAnswer, fused models.FusedContext) {
	top := fused.Top()
	if top == nil {
		return
	}
	if answer.ImpactedService == "" || answer.ImpactedService == "unknown" {
		if top.Metadata.Service != "" {
			answer.ImpactedService = top.Metadata.Service
		} else {
			answer.ImpactedService = "unknown"
		}
	}
	if !answer.EscalationRequired && isHighSeverity(top.Metadata.Severity) {
		answer.EscalationRequired = true
	}
}

func isHighSeverity(severity string) bool {
	switch strings.ToLower(severity) {
	case "critical", "high", "sev1", "sev2", "p1", "p2":
		return true
	}
	return false
}

func buildContext(fused models.FusedContext) string {
	blocks := make([]string, 0, len(fused.Chunks))
	for _, c := range fused.Chunks {
		service := c.Metadata.Service
		if service == "" {
			service = "unknown"
		}
		blocks = append(blocks, fmt.Sprintf(
			"Document: %s\nSource: %s\nService: %s\nContent:\n%s",
			c.DocumentID, c.SourceID, service, c.Text,
		))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexAny(text, ".!?\n"); idx > 0 {
		text = text[:idx+1]
	}
	if len(text) > 240 {
		text = text[:240]
	}
	return strings.TrimSpace(text)
}
