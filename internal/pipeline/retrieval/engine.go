// internal/pipeline/retrieval/engine.go
package retrieval

import (
	"context"
	"sync"
	"time"

	"ops-support-assistant/internal/common/config"
	pipelineerrors "ops-support-assistant/internal/common/errors"
	"ops-support-assistant/internal/common/logger"
	"ops-support-assistant/internal/common/metrics"
	"ops-support-assistant/internal/models"
)

// Result holds the joined fan-out outcome. FailedSources lists routed sources
// that timed out or errored; retrieval continues with the rest.
type Result struct {
	BySource      map[string][]models.RetrievedChunk
	FailedSources []string
}

// Engine fans out one similarity search per routed source, joins the results,
// and normalizes scores per source so disparate sources are comparable.
type Engine struct {
	indexes map[models.SourceKind]SourceIndex
	cfg     *config.PipelineConfig
	logger  logger.Logger
}

func NewEngine(indexes map[models.SourceKind]SourceIndex, cfg *config.PipelineConfig, log logger.Logger) *Engine {
	return &Engine{
		indexes: indexes,
		cfg:     cfg,
		logger: log.With(map[string]interface{}{
			"component": "retrieval",
		}),
	}
}

// Retrieve runs the concurrent fan-out. A source with no configured index
// counts as failed. Returns InsufficientContext only when every routed source
// failed or returned nothing.
func (e *Engine) Retrieve(ctx context.Context, query models.Query, routed []models.SourceDescriptor) (*Result, error) {
	service := DetectService(query.Text, e.cfg.KnownServices)

	var wg sync.WaitGroup
	var mu sync.Mutex
	bySource := make(map[string][]models.RetrievedChunk)
	var failed []string

	for _, desc := range routed {
		index, ok := e.indexes[desc.Kind]
		if !ok {
			failed = append(failed, desc.ID)
			e.logger.Warn("no index configured for routed source", map[string]interface{}{
				"sourceId": desc.ID,
			})
			continue
		}

		wg.Add(1)
		go func(desc models.SourceDescriptor, index SourceIndex) {
			defer wg.Done()

			chunks, err := e.searchWithRetry(ctx, index, query.Text, desc, service)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, desc.ID)
				metrics.SourceSearchFailures.WithLabelValues(desc.ID, string(pipelineerrors.KindOf(err))).Inc()
				e.logger.Warn("source search failed", map[string]interface{}{
					"sourceId": desc.ID,
					"traceId":  query.TraceID,
					"error":    err.Error(),
				})
				return
			}
			bySource[desc.ID] = normalizeScores(chunks)
		}(desc, index)
	}

	wg.Wait()

	total := 0
	for _, chunks := range bySource {
		total += len(chunks)
	}
	if total == 0 {
		return &Result{BySource: bySource, FailedSources: failed}, pipelineerrors.NewInsufficientContext()
	}

	e.logger.Info("retrieval joined", map[string]interface{}{
		"traceId":     query.TraceID,
		"sourceCount": len(routed),
		"failedCount": len(failed),
		"chunkCount":  total,
		"service":     service,
	})

	return &Result{BySource: bySource, FailedSources: failed}, nil
}

func (e *Engine) searchWithRetry(ctx context.Context, index SourceIndex, text string, desc models.SourceDescriptor, service string) ([]models.RetrievedChunk, error) {
	topK := e.cfg.TopK
	if k, ok := e.cfg.PerSourceTopK[desc.ID]; ok && k > 0 {
		topK = k
	}

	filter := SearchFilter{Service: service}
	if desc.Kind == models.SourceAlerts && e.cfg.AlertRecencyHours > 0 {
		filter.Since = time.Now().Add(-time.Duration(e.cfg.AlertRecencyHours) * time.Hour)
	}

	var lastErr error
	attempt := 0
	for {
		searchCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.RetrievalTimeout)*time.Millisecond)
		chunks, err := index.Search(searchCtx, text, topK, filter)
		cancel()
		if err == nil {
			return chunks, nil
		}
		lastErr = err

		kind := pipelineerrors.KindOf(err)
		if attempt >= pipelineerrors.GetRetryCount(kind) || ctx.Err() != nil {
			return nil, lastErr
		}
		attempt++

		backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, lastErr
		}
	}
}

// normalizeScores min-max normalizes raw similarity per source. A single-chunk
// or flat-score list maps to 1.0.
func normalizeScores(chunks []models.RetrievedChunk) []models.RetrievedChunk {
	if len(chunks) == 0 {
		return chunks
	}

	min, max := chunks[0].Score, chunks[0].Score
	for _, c := range chunks[1:] {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}

	out := make([]models.RetrievedChunk, len(chunks))
	for i, c := range chunks {
		if max == min {
			c.NormScore = 1.0
		} else {
			c.NormScore = (c.Score - min) / (max - min)
		}
		out[i] = c
	}
	return out
}
