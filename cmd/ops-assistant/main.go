// cmd/ops-assistant/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ops-support-assistant/internal/common/config"
	"ops-support-assistant/internal/common/database"
	"ops-support-assistant/internal/common/logger"
	"ops-support-assistant/internal/common/observability"
	"ops-support-assistant/internal/genai"
	"ops-support-assistant/internal/models"
	"ops-support-assistant/internal/notify"
	"ops-support-assistant/internal/pipeline/confidence"
	"ops-support-assistant/internal/pipeline/fusion"
	"ops-support-assistant/internal/pipeline/guardrail"
	"ops-support-assistant/internal/pipeline/intent"
	"ops-support-assistant/internal/pipeline/orchestrator"
	"ops-support-assistant/internal/pipeline/retrieval"
	"ops-support-assistant/internal/pipeline/router"
	"ops-support-assistant/internal/pipeline/synthesis"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting ops-support-assistant...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Pipeline components ---
	generator := genai.NewClient(
		&genai.Config{
			BaseURL:    cfg.GenAI.BaseURL,
			APIKey:     cfg.GenAI.APIKey,
			MaxRetries: cfg.GenAI.MaxRetries,
		},
		&genaiLoggerAdapter{log},
	)

	guard, err := guardrail.New(cfg.Guardrail.Topics, log)
	if err != nil {
		zapLog.Fatal("guardrail init failed", zap.Error(err))
	}

	classifier := &intent.Fallback{
		Primary: intent.NewGenAIClassifier(generator, cfg.Pipeline.ConfidenceThreshold, log),
		Backup:  intent.NewHeuristicClassifier(cfg.Pipeline.ConfidenceThreshold),
	}

	indexes := make(map[models.SourceKind]retrieval.SourceIndex, len(models.AllSourceKinds))
	for _, kind := range models.AllSourceKinds {
		indexes[kind] = retrieval.NewESSourceIndex(esClient.Client, cfg.Database.Elasticsearch.IndexPrefix, kind)
	}

	synthesizer, err := synthesis.New(generator, &cfg.GenAI, log)
	if err != nil {
		zapLog.Fatal("synthesizer init failed", zap.Error(err))
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notifications.SNS.Enabled {
		snsNotifier, err := notify.NewSNSNotifier(ctx, cfg.Notifications.SNS.Region, cfg.Notifications.SNS.TopicARN, log)
		if err != nil {
			zapLog.Fatal("sns notifier init failed", zap.Error(err))
		}
		notifier = snsNotifier
		zapLog.Info("SNS escalation notifier enabled")
	}

	pipeline := orchestrator.New(
		orchestrator.Deps{
			Guardrail:   guard,
			Classifier:  classifier,
			Router:      router.New(cfg.SourceWeights),
			Engine:      retrieval.NewEngine(indexes, &cfg.Pipeline, log),
			Fuser:       fusion.New(&cfg.Pipeline),
			Synthesizer: synthesizer,
			Scorer:      confidence.New(&cfg.Pipeline),
			Cache:       orchestrator.NewAnswerCache(redisClient.Client, time.Duration(cfg.Pipeline.CacheTTL)*time.Second),
			Audit:       orchestrator.NewAuditStore(pg.DB),
			Notifier:    notifier,
			Sink:        obs,
		},
		cfg, log,
	)

	// --- HTTP API ---
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var query models.Query
		if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		answer := pipeline.Process(r.Context(), query)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(answer)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		code := http.StatusOK
		if err := esClient.Ping(); err != nil {
			status = "not ready"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("ops-support-assistant stopped gracefully")
}

// genaiLoggerAdapter bridges the common logger to the genai package's local
// Logger interface.
type genaiLoggerAdapter struct {
	logger.Logger
}

func (a *genaiLoggerAdapter) With(fields map[string]interface{}) genai.Logger {
	return &genaiLoggerAdapter{a.Logger.With(fields)}
}
