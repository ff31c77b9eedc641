// internal/pipeline/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ops-support-assistant/internal/common/config"
	"ops-support-assistant/internal/common/logger"
	"ops-support-assistant/internal/genai"
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

type fakeIndex struct {
	kind   models.SourceKind
	chunks []models.RetrievedChunk
	err    error
	delay  time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeIndex) Kind() models.SourceKind { return f.kind }

func (f *fakeIndex) Search(ctx context.Context, query string, topK int, filter retrieval.SearchFilter) ([]models.RetrievedChunk, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

func (f *fakeIndex) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGenerator struct {
	response string
	err      error

	mu    sync.Mutex
	calls int
}

func (f *fakeGenerator) Generate(ctx context.Context, req genai.Request) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type captureNotifier struct {
	mu          sync.Mutex
	escalations []notify.Escalation
}

func (c *captureNotifier) NotifyEscalation(ctx context.Context, esc notify.Escalation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.escalations = append(c.escalations, esc)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.escalations)
}

type failingClassifier struct{}

func (failingClassifier) Classify(_ context.Context, _ string) (models.Classification, error) {
	return models.Classification{}, errors.New("classification service unavailable")
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 30000
	cfg.GenAI.ClassifyTimeout = 1000
	cfg.GenAI.SynthesisTimeout = 5000
	cfg.Pipeline = config.PipelineConfig{
		TopK:                       5,
		ContextBudget:              6,
		ConfidenceThreshold:        0.5,
		RetrievalTimeout:           500,
		KnownServices:              []string{"trading-db", "trade-settlement", "payment-gateway"},
		FusionSimilarityWeight:     0.7,
		FusionSourceWeight:         0.3,
		ConfidenceIntentWeight:     0.3,
		ConfidenceSimilarityWeight: 0.4,
		ConfidenceCoverageWeight:   0.3,
	}
	return cfg
}

type fixture struct {
	orch     *Orchestrator
	notifier *captureNotifier
}

func newFixture(t *testing.T, cfg *config.Config, gen genai.Generator, indexes map[models.SourceKind]retrieval.SourceIndex, cls intent.Classifier) *fixture {
	log := logger.NewTestLogger(t)

	guard, err := guardrail.New(nil, log)
	require.NoError(t, err)

	if cls == nil {
		cls = intent.NewHeuristicClassifier(0.7)
	}

	synth, err := synthesis.New(gen, &cfg.GenAI, log)
	require.NoError(t, err)

	notifier := &captureNotifier{}
	orch := New(Deps{
		Guardrail:   guard,
		Classifier:  cls,
		Router:      router.New(nil),
		Engine:      retrieval.NewEngine(indexes, &cfg.Pipeline, log),
		Fuser:       fusion.New(&cfg.Pipeline),
		Synthesizer: synth,
		Scorer:      confidence.New(&cfg.Pipeline),
		Notifier:    notifier,
	}, cfg, log)

	return &fixture{orch: orch, notifier: notifier}
}

func runbookChunk() models.RetrievedChunk {
	return models.RetrievedChunk{
		SourceID:   "runbooks",
		DocumentID: "RB-1",
		Text:       "When disk usage exceeds 90% on trading-db, rotate the WAL logs and extend the volume.",
		Score:      4.0,
		Metadata:   models.ChunkMetadata{SourceType: "runbook", Service: "trading-db"},
	}
}

func incidentChunk() models.RetrievedChunk {
	return models.RetrievedChunk{
		SourceID:   "incidents",
		DocumentID: "INC-9",
		Text:       "Disk saturation on trading-db resolved by archiving old partitions.",
		Score:      3.0,
		Metadata:   models.ChunkMetadata{SourceType: "incident", Service: "trading-db"},
	}
}

const groundedResponse = `{
	"issue_summary": "Disk usage critical on trading-db",
	"impacted_service": "trading-db",
	"recommended_steps": [
		{"step_text": "Rotate the WAL logs", "reference_document_id": "RB-1"}
	],
	"escalation_required": false
}`

func TestProcessRunbookQuery(t *testing.T) {
	runbooks := &fakeIndex{kind: models.SourceRunbooks, chunks: []models.RetrievedChunk{runbookChunk()}}
	incidents := &fakeIndex{kind: models.SourceIncidents, chunks: []models.RetrievedChunk{incidentChunk()}}
	gen := &fakeGenerator{response: groundedResponse}

	f := newFixture(t, testConfig(), gen, map[models.SourceKind]retrieval.SourceIndex{
		models.SourceRunbooks:  runbooks,
		models.SourceIncidents: incidents,
	}, nil)

	answer := f.orch.Process(context.Background(), models.Query{
		Text: "How do I resolve disk usage above 90% on trading-db?",
	})

	require.NotNil(t, answer)
	assert.Equal(t, "Disk usage critical on trading-db", answer.IssueSummary)
	assert.Equal(t, "trading-db", answer.ImpactedService)
	require.Len(t, answer.RecommendedSteps, 1)
	assert.Equal(t, "RB-1", answer.RecommendedSteps[0].ReferenceDocumentID)
	assert.Equal(t, []string{"RB-1"}, answer.References)

	// 0.3*0.9 + 0.4*1.0 + 0.3*1.0 = 0.97
	assert.InDelta(t, 0.97, answer.Confidence, 1e-9)
	assert.False(t, answer.EscalationRequired)
	assert.Equal(t, 0, f.notifier.count())

	// Runbook intent routes to runbooks and incidents only.
	assert.Equal(t, 1, runbooks.callCount())
	assert.Equal(t, 1, incidents.callCount())
}

func TestProcessGuardrailRejection(t *testing.T) {
	runbooks := &fakeIndex{kind: models.SourceRunbooks, chunks: []models.RetrievedChunk{runbookChunk()}}
	gen := &fakeGenerator{response: groundedResponse}

	f := newFixture(t, testConfig(), gen, map[models.SourceKind]retrieval.SourceIndex{
		models.SourceRunbooks: runbooks,
	}, nil)

	answer := f.orch.Process(context.Background(), models.Query{
		Text: "What's the weather in Mumbai today?",
	})

	require.NotNil(t, answer)
	assert.Equal(t, models.RefusalSummary, answer.IssueSummary)
	assert.Equal(t, 0.0, answer.Confidence)
	assert.False(t, answer.EscalationRequired)
	assert.Empty(t, answer.References)

	// A rejected query never reaches retrieval or synthesis.
	assert.Equal(t, 0, runbooks.callCount())
	assert.Equal(t, 0, gen.callCount())
}

func TestProcessOutOfScopeIntent(t *testing.T) {
	runbooks := &fakeIndex{kind: models.SourceRunbooks, chunks: []models.RetrievedChunk{runbookChunk()}}
	gen := &fakeGenerator{response: groundedResponse}

	f := newFixture(t, testConfig(), gen, map[models.SourceKind]retrieval.SourceIndex{
		models.SourceRunbooks: runbooks,
	}, nil)

	answer := f.orch.Process(context.Background(), models.Query{
		Text: "Tell me about the history of France",
	})

	assert.Equal(t, models.RefusalSummary, answer.IssueSummary)
	assert.Equal(t, 0, runbooks.callCount())
	assert.Equal(t, 0, gen.callCount())
}

func TestProcessAllSourcesFail(t *testing.T) {
	runbooks := &fakeIndex{kind: models.SourceRunbooks, err: errors.New("es down")}
	incidents := &fakeIndex{kind: models.SourceIncidents, err: errors.New("es down")}
	gen := &fakeGenerator{response: groundedResponse}

	f := newFixture(t, testConfig(), gen, map[models.SourceKind]retrieval.SourceIndex{
		models.SourceRunbooks:  runbooks,
		models.SourceIncidents: incidents,
	}, nil)

	answer := f.orch.Process(context.Background(), models.Query{
		Text: "How do I resolve disk usage above 90% on trading-db?",
	})

	require.NotNil(t, answer)
	assert.Equal(t, models.InsufficientContextSummary, answer.IssueSummary)
	assert.InDelta(t, 0.05, answer.Confidence, 1e-9)
	assert.True(t, answer.EscalationRequired)
	assert.Empty(t, answer.References)
	assert.Equal(t, 0, gen.callCount())
	assert.Equal(t, 1, f.notifier.count())
}

func TestProcessEmptyResults(t *testing.T) {
	runbooks := &fakeIndex{kind: models.SourceRunbooks}
	incidents := &fakeIndex{kind: models.SourceIncidents}
	gen := &fakeGenerator{response: groundedResponse}

	f := newFixture(t, testConfig(), gen, map[models.SourceKind]retrieval.SourceIndex{
		models.SourceRunbooks:  runbooks,
		models.SourceIncidents: incidents,
	}, nil)

	answer := f.orch.Process(context.Background(), models.Query{
		Text: "How do I resolve disk usage above 90% on trading-db?",
	})

	assert.Equal(t, models.InsufficientContextSummary, answer.IssueSummary)
	assert.Equal(t, 0, gen.callCount())
}

func TestProcessSynthesisFailureFallsBackExtractive(t *testing.T) {
	runbooks := &fakeIndex{kind: models.SourceRunbooks, chunks: []models.RetrievedChunk{runbookChunk()}}
	incidents := &fakeIndex{kind: models.SourceIncidents, chunks: []models.RetrievedChunk{incidentChunk()}}
	gen := &fakeGenerator{err: errors.New("generation backend unavailable")}

	f := newFixture(t, testConfig(), gen, map[models.SourceKind]retrieval.SourceIndex{
		models.SourceRunbooks:  runbooks,
		models.SourceIncidents: incidents,
	}, nil)

	answer := f.orch.Process(context.Background(), models.Query{
		Text: "How do I resolve disk usage above 90% on trading-db?",
	})

	require.NotNil(t, answer)
	// Extractive fallback assembled from the fused chunks, in rank order.
	require.Len(t, answer.RecommendedSteps, 2)
	assert.Equal(t, "RB-1", answer.RecommendedSteps[0].ReferenceDocumentID)
	assert.Equal(t, "INC-9", answer.RecommendedSteps[1].ReferenceDocumentID)
	assert.Contains(t, answer.RecommendedSteps[0].StepText, "runbooks document RB-1")
	assert.Equal(t, "trading-db", answer.ImpactedService)
	assert.Greater(t, answer.Confidence, 0.5)
}

func TestProcessDropsFabricatedCitations(t *testing.T) {
	runbooks := &fakeIndex{kind: models.SourceRunbooks, chunks: []models.RetrievedChunk{runbookChunk()}}
	incidents := &fakeIndex{kind: models.SourceIncidents, chunks: []models.RetrievedChunk{incidentChunk()}}
	gen := &fakeGenerator{response: `{
		"issue_summary": "Disk usage critical on trading-db",
		"impacted_service": "trading-db",
		"recommended_steps": [
			{"step_text": "Rotate the WAL logs", "reference_document_id": "RB-1"},
			{"step_text": "Invoke the imaginary cleanup job", "reference_document_id": "RB-404"}
		],
		"escalation_required": false
	}`}

	f := newFixture(t, testConfig(), gen, map[models.SourceKind]retrieval.SourceIndex{
		models.SourceRunbooks:  runbooks,
		models.SourceIncidents: incidents,
	}, nil)

	answer := f.orch.Process(context.Background(), models.Query{
		Text: "How do I resolve disk usage above 90% on trading-db?",
	})

	require.Len(t, answer.RecommendedSteps, 1)
	assert.Equal(t, []string{"RB-1"}, answer.References)
	// Coverage dropped to 1/2: 0.3*0.9 + 0.4*1.0 + 0.3*0.5 = 0.82
	assert.InDelta(t, 0.82, answer.Confidence, 1e-9)
}

func TestProcessClassifierFailureRoutesBroad(t *testing.T) {
	runbooks := &fakeIndex{kind: models.SourceRunbooks, chunks: []models.RetrievedChunk{runbookChunk()}}
	incidents := &fakeIndex{kind: models.SourceIncidents, chunks: []models.RetrievedChunk{incidentChunk()}}
	gen := &fakeGenerator{response: groundedResponse}

	f := newFixture(t, testConfig(), gen, map[models.SourceKind]retrieval.SourceIndex{
		models.SourceRunbooks:  runbooks,
		models.SourceIncidents: incidents,
	}, failingClassifier{})

	answer := f.orch.Process(context.Background(), models.Query{
		Text: "How do I resolve disk usage above 90% on trading-db?",
	})

	// Broad routing still produces a grounded answer from the sources that
	// have indexes configured.
	require.NotNil(t, answer)
	require.Len(t, answer.RecommendedSteps, 1)
	assert.Equal(t, 1, runbooks.callCount())
	assert.Equal(t, 1, incidents.callCount())
	// Intent confidence contributes nothing: 0.3*0 + 0.4*1.0 + 0.3*1.0 = 0.7
	assert.InDelta(t, 0.7, answer.Confidence, 1e-9)
	assert.False(t, answer.EscalationRequired)
}

func TestProcessDeadlineExpiredCapsConfidence(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RequestTimeout = 50

	runbooks := &fakeIndex{
		kind:   models.SourceRunbooks,
		chunks: []models.RetrievedChunk{runbookChunk()},
		delay:  80 * time.Millisecond,
	}
	incidents := &fakeIndex{kind: models.SourceIncidents, chunks: []models.RetrievedChunk{incidentChunk()}}
	gen := &fakeGenerator{response: groundedResponse}

	f := newFixture(t, cfg, gen, map[models.SourceKind]retrieval.SourceIndex{
		models.SourceRunbooks:  runbooks,
		models.SourceIncidents: incidents,
	}, nil)

	answer := f.orch.Process(context.Background(), models.Query{
		Text: "How do I resolve disk usage above 90% on trading-db?",
	})

	require.NotNil(t, answer)
	assert.LessOrEqual(t, answer.Confidence, 0.2)
	assert.True(t, answer.EscalationRequired)
	assert.Equal(t, 1, f.notifier.count())
}

func TestProcessAssignsTraceID(t *testing.T) {
	runbooks := &fakeIndex{kind: models.SourceRunbooks, chunks: []models.RetrievedChunk{runbookChunk()}}
	incidents := &fakeIndex{kind: models.SourceIncidents, chunks: []models.RetrievedChunk{incidentChunk()}}
	gen := &fakeGenerator{response: groundedResponse}

	f := newFixture(t, testConfig(), gen, map[models.SourceKind]retrieval.SourceIndex{
		models.SourceRunbooks:  runbooks,
		models.SourceIncidents: incidents,
	}, nil)

	// No panic and a complete answer even with every optional dependency
	// (cache, audit, sink) absent and no trace id supplied.
	answer := f.orch.Process(context.Background(), models.Query{
		Text:      "How do I resolve disk usage above 90% on trading-db?",
		SessionID: "session-7",
	})
	require.NotNil(t, answer)
	assert.NotEmpty(t, answer.References)
}
