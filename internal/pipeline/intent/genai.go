// internal/pipeline/intent/genai.go
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ops-support-assistant/internal/common/logger"
	"ops-support-assistant/internal/genai"
	"ops-support-assistant/internal/models"
)

const classifyPrompt = `You are an intent classifier for an L2 production support assistant.

Classify the user's query into EXACTLY ONE of these intents:
runbook  - user wants remediation steps, SOP, checklist, or how to fix an issue
incident - user asks what happened, why it failed, or requests root cause analysis
alert    - user mentions monitoring alerts, warnings, spikes, or threshold breaches
ticket   - user refers to support tickets, SRs, user-reported problems, or case numbers
log      - user provides logs or asks to interpret errors, stack traces, or log messages
out_of_scope - anything unrelated to production support

If the query contains production/infra terms (disk, cpu, memory, queue,
database, latency, timeout, kubernetes, pod, trade, payment, settlement,
eod, batch, alert, ticket, SR) prefer the appropriate ops intent over
out_of_scope.

Return ONLY a JSON object:
{"intent": "<label>", "confidence": <0.0-1.0>}

Query: %s`

type GenAIClassifier struct {
	generator genai.Generator
	threshold float64
	logger    logger.Logger
}

func NewGenAIClassifier(generator genai.Generator, threshold float64, log logger.Logger) *GenAIClassifier {
	return &GenAIClassifier{
		generator: generator,
		threshold: threshold,
		logger:    log.With(map[string]interface{}{"component": "intent-genai"}),
	}
}

func (c *GenAIClassifier) Classify(ctx context.Context, query string) (models.Classification, error) {
	raw, err := c.generator.Generate(ctx, genai.Request{
		Prompt:      fmt.Sprintf(classifyPrompt, query),
		Temperature: 0, // deterministic classification
		Constraints: map[string]interface{}{
			"response_format": "json",
		},
	})
	if err != nil {
		return models.Classification{}, err
	}

	cls, err := parseClassification(raw)
	if err != nil {
		c.logger.Warn("unparsable classification output", map[string]interface{}{
			"error": err.Error(),
		})
		return models.Classification{}, err
	}

	cls.LowConfidence = cls.Confidence < c.threshold
	if cls.LowConfidence {
		c.logger.Warn("low-confidence classification", map[string]interface{}{
			"intent":     string(cls.Intent),
			"confidence": cls.Confidence,
		})
	}

	return cls, nil
}

// parseClassification hardens against model drift: code fences, surrounding
// prose, out-of-range confidence, and labels outside the closed set.
func parseClassification(raw string) (models.Classification, error) {
	trimmed := strings.TrimSpace(raw)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}

	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return models.Classification{}, fmt.Errorf("decode classification: %w", err)
	}

	label := models.Intent(strings.ToLower(strings.TrimSpace(parsed.Intent)))
	if !label.IsValid() {
		return models.Classification{}, fmt.Errorf("unknown intent label %q", parsed.Intent)
	}

	conf := parsed.Confidence
	if conf < 0 || conf > 1 {
		conf = 0.5
	}

	return models.Classification{Intent: label, Confidence: conf}, nil
}
