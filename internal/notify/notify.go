// internal/notify/notify.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"ops-support-assistant/internal/common/logger"
	"ops-support-assistant/internal/models"
)

// Escalation is the payload published when a delivered answer requires human
// intervention.
type Escalation struct {
	TraceID         string  `json:"traceId"`
	QueryText       string  `json:"queryText"`
	Intent          string  `json:"intent"`
	ImpactedService string  `json:"impactedService"`
	Confidence      float64 `json:"confidence"`
	IssueSummary    string  `json:"issueSummary"`
}

// Notifier delivers escalation notifications. Failures are logged, never
// surfaced to the caller; notification is fire-and-forget relative to the
// answer.
type Notifier interface {
	NotifyEscalation(ctx context.Context, esc Escalation) error
}

// SNSService is the subset of the SNS client used, mockable in tests.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes escalations to an SNS topic.
type SNSNotifier struct {
	client   SNSService
	topicARN string
	logger   logger.Logger
}

func NewSNSNotifier(ctx context.Context, region, topicARN string, log logger.Logger) (*SNSNotifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &SNSNotifier{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: topicARN,
		logger: log.With(map[string]interface{}{
			"component": "notify",
		}),
	}, nil
}

// NewSNSNotifierWithClient wires an explicit client, used in tests.
func NewSNSNotifierWithClient(client SNSService, topicARN string, log logger.Logger) *SNSNotifier {
	return &SNSNotifier{
		client:   client,
		topicARN: topicARN,
		logger: log.With(map[string]interface{}{
			"component": "notify",
		}),
	}
}

func (n *SNSNotifier) NotifyEscalation(ctx context.Context, esc Escalation) error {
	body, _ := json.Marshal(esc)

	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(fmt.Sprintf("[ops-assistant] escalation: %s", esc.ImpactedService)),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		n.logger.Error("escalation publish failed", map[string]interface{}{
			"traceId": esc.TraceID,
			"error":   err.Error(),
		})
		return err
	}

	n.logger.Info("escalation published", map[string]interface{}{
		"traceId": esc.TraceID,
		"intent":  esc.Intent,
	})
	return nil
}

// NopNotifier is used when notifications are disabled.
type NopNotifier struct{}

func (NopNotifier) NotifyEscalation(ctx context.Context, esc Escalation) error {
	return nil
}

// FromAnswer builds the escalation payload for a delivered answer.
func FromAnswer(query models.Query, cls models.Classification, answer *models.StructuredAnswer) Escalation {
	return Escalation{
		TraceID:         query.TraceID,
		QueryText:       query.Text,
		Intent:          string(cls.Intent),
		ImpactedService: answer.ImpactedService,
		Confidence:      answer.Confidence,
		IssueSummary:    answer.IssueSummary,
	}
}
