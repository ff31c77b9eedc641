// internal/pipeline/guardrail/guardrail.go
package guardrail

import (
	"fmt"
	"regexp"
	"strings"

	"ops-support-assistant/internal/common/logger"
	"ops-support-assistant/internal/models"
)

// Filter enforces the out-of-scope policy. The denylist is compiled once at
// startup from configuration and is read-only afterwards.
type Filter struct {
	patterns []*regexp.Regexp
	topics   []string
	logger   logger.Logger
}

// DefaultTopics is the baseline denylist used when configuration supplies
// none: clearly non-operational subjects the assistant must refuse.
var DefaultTopics = []string{
	`(?i)\bweather\b`,
	`(?i)\b(what|which)\s+(is\s+the\s+)?(date|time|day)\b`,
	`(?i)\b(joke|poem|recipe|horoscope)\b`,
	`(?i)\b(salary|password|credential)s?\s+(of|for)\b`,
}

func New(topics []string, log logger.Logger) (*Filter, error) {
	if len(topics) == 0 {
		topics = DefaultTopics
	}

	patterns := make([]*regexp.Regexp, 0, len(topics))
	for _, t := range topics {
		re, err := regexp.Compile(t)
		if err != nil {
			return nil, fmt.Errorf("invalid guardrail topic %q: %w", t, err)
		}
		patterns = append(patterns, re)
	}

	return &Filter{
		patterns: patterns,
		topics:   topics,
		logger:   log.With(map[string]interface{}{"component": "guardrail"}),
	}, nil
}

// CheckQuery runs the pre-check. A rejected query never reaches
// classification, retrieval, or synthesis.
func (f *Filter) CheckQuery(text string) (allowed bool, topic string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false, "empty_query"
	}

	for i, re := range f.patterns {
		if re.MatchString(trimmed) {
			f.logger.Warn("query rejected by guardrail", map[string]interface{}{
				"topic": f.topics[i],
			})
			return false, f.topics[i]
		}
	}

	return true, ""
}

// RedactAnswer runs the post-check over synthesized text. Offending content
// is replaced with a redaction notice rather than failing the request.
// References are untouched: they point at real documents.
func (f *Filter) RedactAnswer(ans *models.StructuredAnswer) bool {
	redacted := false

	for _, re := range f.patterns {
		if re.MatchString(ans.IssueSummary) {
			ans.IssueSummary = models.RedactionNotice
			redacted = true
		}
		for i := range ans.RecommendedSteps {
			if re.MatchString(ans.RecommendedSteps[i].StepText) {
				ans.RecommendedSteps[i].StepText = models.RedactionNotice
				redacted = true
			}
		}
	}

	if redacted {
		f.logger.Warn("answer content redacted", nil)
	}
	return redacted
}
