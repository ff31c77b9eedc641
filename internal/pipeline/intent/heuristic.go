// internal/pipeline/intent/heuristic.go
package intent

import (
	"context"
	"regexp"
	"strings"

	"ops-support-assistant/internal/models"
)

// Keyword tables per intent. Evaluated in a fixed order so classification is
// deterministic: alert and ticket phrasing is the most specific, the runbook
// ops-term bias is the broadest.
var (
	alertTerms = []string{
		"alert", "warning", "spike", "threshold", "breach", "paging",
	}
	ticketPattern = regexp.MustCompile(`(?i)\bsr[- ]?[\w-]*\d`)
	ticketTerms   = []string{
		"ticket", "service request", "user reported", "users reporting",
		"customer issue", "case number",
	}
	logTerms = []string{
		"stack trace", "stacktrace", "log", "logs", "error message", "traceback",
	}
	incidentTerms = []string{
		"why did", "what happened", "root cause", "rca", "incident",
		"outage", "fail", "failed", "failure", "postmortem",
	}
	runbookTerms = []string{
		"runbook", "sop", "steps", "procedure", "checklist", "how do i",
		"how to", "what should", "what to do", "fix", "resolve", "remediate",
	}

	// Broad production/infra vocabulary. Presence of any of these biases an
	// otherwise-unmatched query toward runbook rather than out_of_scope.
	opsTerms = []string{
		"disk", "cpu", "memory", "mq", "queue", "database", "db", "latency",
		"timeout", "kubernetes", "pod", "service", "server", "error",
		"trade", "payment", "settlement", "risk engine", "eod", "batch",
		"reconciliation", "swift", "connection", "restart",
	}
)

// HeuristicClassifier is the deterministic fallback strategy. It never fails,
// which makes it the terminal rung of the classification ladder and the
// strategy of choice for tests.
type HeuristicClassifier struct {
	threshold float64
}

func NewHeuristicClassifier(threshold float64) *HeuristicClassifier {
	return &HeuristicClassifier{threshold: threshold}
}

func (c *HeuristicClassifier) Classify(_ context.Context, query string) (models.Classification, error) {
	text := strings.ToLower(query)

	checks := []struct {
		intent models.Intent
		hits   int
	}{
		{models.IntentAlert, countHits(text, alertTerms)},
		{models.IntentTicket, ticketHits(text)},
		{models.IntentLog, countHits(text, logTerms)},
		{models.IntentIncident, countHits(text, incidentTerms)},
		{models.IntentRunbook, countHits(text, runbookTerms)},
	}

	best := checks[0]
	for _, ch := range checks[1:] {
		if ch.hits > best.hits {
			best = ch
		}
	}

	if best.hits > 0 {
		conf := 0.75
		if best.hits >= 2 {
			conf = 0.9
		}
		return classification(best.intent, conf, c.threshold), nil
	}

	// No intent-specific phrasing; any ops vocabulary still means an L2
	// support query, defaulting to the authoritative source.
	if countHits(text, opsTerms) > 0 {
		return classification(models.IntentRunbook, 0.6, c.threshold), nil
	}

	return classification(models.IntentOutOfScope, 0.9, c.threshold), nil
}

func classification(intent models.Intent, conf, threshold float64) models.Classification {
	return models.Classification{
		Intent:        intent,
		Confidence:    conf,
		LowConfidence: conf < threshold,
	}
}

func countHits(text string, terms []string) int {
	hits := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			hits++
		}
	}
	return hits
}

func ticketHits(text string) int {
	hits := countHits(text, ticketTerms)
	if ticketPattern.MatchString(text) {
		hits++
	}
	return hits
}
