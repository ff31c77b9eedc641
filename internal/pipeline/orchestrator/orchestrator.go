// internal/pipeline/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ops-support-assistant/internal/common/config"
	pipelineerrors "ops-support-assistant/internal/common/errors"
	"ops-support-assistant/internal/common/logger"
	"ops-support-assistant/internal/common/metrics"
	"ops-support-assistant/internal/common/observability"
	"ops-support-assistant/internal/models"
	"ops-support-assistant/internal/notify"
	"ops-support-assistant/internal/pipeline/confidence"
	"ops-support-assistant/internal/pipeline/fusion"
	"ops-support-assistant/internal/pipeline/guardrail"
	"ops-support-assistant/internal/pipeline/intent"
	"ops-support-assistant/internal/pipeline/retrieval"
	"ops-support-assistant/internal/pipeline/router"
	"ops-support-assistant/internal/pipeline/synthesis"
)

// degradedConfidenceCap bounds the confidence of answers produced after the
// end-to-end deadline expired.
const degradedConfidenceCap = 0.2

// Orchestrator sequences the pipeline stages for one request and owns the
// error/fallback policy. The contract is "always return a StructuredAnswer":
// every failure is absorbed and converted to a degraded-but-valid answer;
// only a guardrail rejection short-circuits.
type Orchestrator struct {
	guardrail   *guardrail.Filter
	classifier  intent.Classifier
	router      *router.Router
	engine      *retrieval.Engine
	fuser       *fusion.Fuser
	synthesizer *synthesis.Synthesizer
	scorer      *confidence.Scorer
	cache       *AnswerCache
	audit       *AuditStore
	notifier    notify.Notifier
	sink        observability.Sink
	cfg         *config.Config
	logger      logger.Logger
}

type Deps struct {
	Guardrail   *guardrail.Filter
	Classifier  intent.Classifier
	Router      *router.Router
	Engine      *retrieval.Engine
	Fuser       *fusion.Fuser
	Synthesizer *synthesis.Synthesizer
	Scorer      *confidence.Scorer
	Cache       *AnswerCache
	Audit       *AuditStore
	Notifier    notify.Notifier
	Sink        observability.Sink
}

func New(deps Deps, cfg *config.Config, log logger.Logger) *Orchestrator {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	sink := deps.Sink
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &Orchestrator{
		guardrail:   deps.Guardrail,
		classifier:  deps.Classifier,
		router:      deps.Router,
		engine:      deps.Engine,
		fuser:       deps.Fuser,
		synthesizer: deps.Synthesizer,
		scorer:      deps.Scorer,
		cache:       deps.Cache,
		audit:       deps.Audit,
		notifier:    notifier,
		sink:        sink,
		cfg:         cfg,
		logger: log.With(map[string]interface{}{
			"component": "orchestrator",
		}),
	}
}

// Process runs one query through the full lifecycle. It never returns an
// error; degraded conditions surface as low-confidence answers.
func (o *Orchestrator) Process(ctx context.Context, query models.Query) *models.StructuredAnswer {
	if query.TraceID == "" {
		query.TraceID = uuid.New().String()
	}
	log := o.logger.With(map[string]interface{}{"traceId": query.TraceID})

	if o.cfg.Server.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.Server.RequestTimeout)*time.Millisecond)
		defer cancel()
	}

	start := time.Now()
	o.emit(ctx, query.TraceID, models.StageReceived, "ok", start)

	if cached, ok := o.cache.Get(ctx, query.Text); ok {
		log.Info("answer served from cache", nil)
		metrics.QueriesProcessed.WithLabelValues("cache_hit").Inc()
		o.emit(ctx, query.TraceID, models.StageDelivered, "cache_hit", start)
		return cached
	}

	// Guardrail pre-check runs before classification; a rejected query never
	// reaches retrieval or synthesis.
	if allowed, topic := o.guardrail.CheckQuery(query.Text); !allowed {
		log.Info("query rejected", map[string]interface{}{"topic": topic})
		metrics.QueriesProcessed.WithLabelValues("rejected").Inc()
		o.emit(ctx, query.TraceID, models.StageRejected, string(pipelineerrors.KindGuardrailRejection), start)
		return models.RefusalAnswer()
	}

	cls := o.classify(ctx, query, log, start)

	if cls.Intent == models.IntentOutOfScope {
		log.Info("query classified out of scope", nil)
		metrics.QueriesProcessed.WithLabelValues("rejected").Inc()
		o.emit(ctx, query.TraceID, models.StageRejected, string(pipelineerrors.KindGuardrailRejection), start)
		return models.RefusalAnswer()
	}

	routed := o.router.Route(cls)
	o.emit(ctx, query.TraceID, models.StageRouted, "ok", start)

	retrieveStart := time.Now()
	result, err := o.engine.Retrieve(ctx, query, routed)
	if err != nil {
		// All routed sources failed or returned nothing. The synthesizer is
		// skipped entirely.
		log.Warn("insufficient context", map[string]interface{}{"error": err.Error()})
		o.emit(ctx, query.TraceID, models.StageRetrieved, string(pipelineerrors.KindInsufficientContext), retrieveStart)
		answer := models.InsufficientContextAnswer(true)
		metrics.QueriesProcessed.WithLabelValues("degraded").Inc()
		o.deliver(ctx, query, cls, answer, "insufficient_context", start, log)
		return answer
	}

	retrieveOutcome := "ok"
	if len(result.FailedSources) > 0 {
		retrieveOutcome = string(pipelineerrors.KindSourcePartialFailure)
		log.Warn("partial source failure", map[string]interface{}{
			"failedSources": result.FailedSources,
		})
	}
	o.emit(ctx, query.TraceID, models.StageRetrieved, retrieveOutcome, retrieveStart)

	fused := o.fuser.Fuse(result.BySource, routed)
	o.emit(ctx, query.TraceID, models.StageFused, "ok", retrieveStart)

	synthStart := time.Now()
	degraded := false
	res, err := o.synthesizer.Synthesize(ctx, query, fused)
	if err != nil {
		// Fall back to an extractive summary of the top fused chunks rather
		// than failing the request.
		log.Warn("synthesis failed, using extractive fallback", map[string]interface{}{
			"error": err.Error(),
		})
		res = synthesis.Extractive(fused)
		degraded = true
		o.emit(ctx, query.TraceID, models.StageSynthesized, string(pipelineerrors.KindOf(err)), synthStart)
	} else {
		o.emit(ctx, query.TraceID, models.StageSynthesized, "ok", synthStart)
	}

	answer := res.Answer
	conf, escalate := o.scorer.Score(confidence.Input{
		Classification: cls,
		Fused:          fused,
		References:     answer.References,
		TotalSteps:     res.TotalSteps,
		GroundedSteps:  res.GroundedSteps,
	})
	if ctx.Err() != nil {
		// End-to-end deadline expired; deliver the best context gathered so
		// far with confidence forced low.
		degraded = true
		if conf > degradedConfidenceCap {
			conf = degradedConfidenceCap
		}
		escalate = true
	}
	answer.Confidence = conf
	answer.EscalationRequired = answer.EscalationRequired || escalate
	o.emit(ctx, query.TraceID, models.StageScored, "ok", synthStart)

	if o.guardrail.RedactAnswer(answer) {
		log.Warn("answer redacted by guardrail post-check", nil)
	}

	state := "delivered"
	if degraded {
		state = "degraded"
	}
	metrics.QueriesProcessed.WithLabelValues(state).Inc()

	o.deliver(ctx, query, cls, answer, state, start, log)
	if !degraded {
		cacheCtx, cancel := o.postCtx(ctx)
		o.cache.Set(cacheCtx, query.Text, answer)
		cancel()
	}
	return answer
}

// classify runs the classifier chain; when both strategies fail, the request
// proceeds with a low-confidence placeholder that routes to the broad set.
func (o *Orchestrator) classify(ctx context.Context, query models.Query, log logger.Logger, start time.Time) models.Classification {
	clsCtx := ctx
	if o.cfg.GenAI.ClassifyTimeout > 0 {
		var cancel context.CancelFunc
		clsCtx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.GenAI.ClassifyTimeout)*time.Millisecond)
		defer cancel()
	}

	cls, err := o.classifier.Classify(clsCtx, query.Text)
	if err != nil {
		log.Warn("classification unavailable, routing broad", map[string]interface{}{
			"error": err.Error(),
		})
		o.emit(ctx, query.TraceID, models.StageClassified, string(pipelineerrors.KindClassificationUnavailable), start)
		return models.Classification{LowConfidence: true}
	}

	outcome := "ok"
	if cls.LowConfidence {
		outcome = string(pipelineerrors.KindClassificationLowConfidence)
	}
	log.Info("query classified", map[string]interface{}{
		"intent":     string(cls.Intent),
		"confidence": cls.Confidence,
	})
	o.emit(ctx, query.TraceID, models.StageClassified, outcome, start)
	return cls
}

// deliver emits the terminal stage event and performs the post-delivery
// side effects: metrics, audit row, escalation notification. None of them
// can fail the request.
func (o *Orchestrator) deliver(ctx context.Context, query models.Query, cls models.Classification, answer *models.StructuredAnswer, outcome string, start time.Time, log logger.Logger) {
	metrics.AnswerConfidence.Observe(answer.Confidence)
	if answer.EscalationRequired {
		metrics.Escalations.Inc()
	}
	o.emit(ctx, query.TraceID, models.StageDelivered, outcome, start)

	postCtx, cancel := o.postCtx(ctx)
	defer cancel()
	if err := o.audit.Record(postCtx, query, cls, answer); err != nil {
		log.Warn("audit write failed", map[string]interface{}{"error": err.Error()})
	}
	if answer.EscalationRequired {
		// Fire-and-forget relative to the answer.
		o.notifier.NotifyEscalation(postCtx, notify.FromAnswer(query, cls, answer))
	}

	log.Info("answer delivered", map[string]interface{}{
		"intent":     string(cls.Intent),
		"confidence": answer.Confidence,
		"escalation": answer.EscalationRequired,
		"references": len(answer.References),
		"latencyMs":  time.Since(start).Milliseconds(),
	})
}

// postCtx returns a context for post-delivery writes that survives an
// already-expired request deadline.
func (o *Orchestrator) postCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.Background(), 2*time.Second)
}

func (o *Orchestrator) emit(ctx context.Context, traceID string, stage models.Stage, outcome string, since time.Time) {
	latency := time.Since(since).Milliseconds()
	metrics.StageOutcomes.WithLabelValues(string(stage), outcome).Inc()
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(since).Seconds())
	o.sink.Emit(ctx, models.PipelineEvent{
		TraceID:   traceID,
		Stage:     stage,
		Outcome:   outcome,
		LatencyMs: latency,
		Timestamp: time.Now().UTC(),
	})
}
