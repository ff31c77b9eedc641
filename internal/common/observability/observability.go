// internal/common/observability/observability.go
package observability

import (
	"context"
	"log"
	"time"

	"ops-support-assistant/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Sink receives one event per pipeline stage transition. It must never
// influence control flow; implementations swallow their own errors.
type Sink interface {
	Emit(ctx context.Context, event models.PipelineEvent)
}

// Observability is the otel-backed Sink used in production.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	stageCounter  otelmetric.Int64Counter
	stageLatency  otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	stageCounter, _ := meter.Int64Counter(
		"pipeline.stage.transitions",
		otelmetric.WithDescription("Number of pipeline stage transitions"),
	)

	stageLatency, _ := meter.Float64Histogram(
		"pipeline.stage.latency",
		otelmetric.WithDescription("Pipeline stage latency"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		stageCounter:  stageCounter,
		stageLatency:  stageLatency,
	}
}

// Emit records one stage transition.
func (o *Observability) Emit(ctx context.Context, event models.PipelineEvent) {
	attrs := otelmetric.WithAttributes(
		attribute.String("stage", string(event.Stage)),
		attribute.String("outcome", event.Outcome),
	)
	if o.stageCounter != nil {
		o.stageCounter.Add(ctx, 1, attrs)
	}
	if o.stageLatency != nil {
		o.stageLatency.Record(ctx, float64(event.LatencyMs), attrs)
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}

// NopSink is a Sink that discards every event (useful for tests).
type NopSink struct{}

func (NopSink) Emit(context.Context, models.PipelineEvent) {}
