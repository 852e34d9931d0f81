// Command chessmate-worker drains the embedding job queue, claiming pending
// jobs, batching them through the embedding provider, and upserting vectors.
// Multiple instances may run against the same queue.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hendrikreh/chessmate/internal/config"
	"github.com/hendrikreh/chessmate/internal/embedding"
	"github.com/hendrikreh/chessmate/internal/metrics"
	"github.com/hendrikreh/chessmate/internal/repository/postgres"
	"github.com/hendrikreh/chessmate/internal/retryutil"
	"github.com/hendrikreh/chessmate/internal/vectorstore"
	"github.com/hendrikreh/chessmate/internal/worker"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("failed to run chessmate-worker", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	workerID := "worker-" + uuid.NewString()[:8]
	logger = logger.With("worker_id", workerID)
	logger.Info("starting chessmate embedding worker", "batch_size", cfg.WorkerBatchSize)

	db, err := postgres.New(ctx, cfg.DatabaseURL, cfg.DBPoolSize)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollectionName)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}

	if cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required to run the embedding worker")
	}
	provider := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey,
		embedding.WithDimension(cfg.QdrantVectorSize),
	)

	reg := metrics.New(prometheus.DefaultRegisterer)

	jobRepo := postgres.NewEmbeddingJobRepo(db)
	positionRepo := postgres.NewPositionRepo(db)

	w := worker.New(jobRepo, positionRepo, provider, vectorStore, worker.Config{
		WorkerID:           workerID,
		BatchSize:          cfg.WorkerBatchSize,
		PollSleep:          2 * time.Second,
		MaxBatchCount:      cfg.OpenAIEmbeddingChunkSize,
		MaxCharsPerRequest: cfg.OpenAIEmbeddingMaxChars,
		MaxAttempts:        5,
		Retry: retryutil.Config{
			MaxAttempts: cfg.OpenAIRetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.OpenAIRetryBaseDelayMs) * time.Millisecond,
			MaxDelay:    30 * time.Second,
			Multiplier:  2,
			Jitter:      true,
		},
	}, reg, logger)

	go reportQueueDepth(ctx, jobRepo, reg, cfg.MaxPendingEmbeddings, logger)

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker loop: %w", err)
	}
	logger.Info("embedding worker stopped")
	return nil
}

// queueDepthRepo is the narrow PendingCount capability reportQueueDepth
// needs, satisfied by repository.EmbeddingJobRepository.
type queueDepthRepo interface {
	PendingCount(ctx context.Context) (int, error)
}

// reportQueueDepth publishes the queue depth gauge and warns when the
// backlog exceeds CHESSMATE_MAX_PENDING_EMBEDDINGS, the operator's signal to
// scale out workers.
func reportQueueDepth(ctx context.Context, jobs queueDepthRepo, reg *metrics.Registry, maxPending int, logger *slog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := jobs.PendingCount(ctx)
			if err != nil {
				logger.Warn("queue depth probe failed", "error", err)
				continue
			}
			reg.SetQueueDepth(n)
			if maxPending > 0 && n > maxPending {
				logger.Warn("embedding backlog exceeds configured maximum", "pending", n, "max_pending", maxPending)
			}
		}
	}
}
