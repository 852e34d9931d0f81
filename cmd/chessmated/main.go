// Command chessmated runs the chessmate query HTTP service: intent analysis,
// hybrid retrieval, agent re-ranking, and the health/metrics endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hendrikreh/chessmate/internal/agent"
	"github.com/hendrikreh/chessmate/internal/agentcache"
	"github.com/hendrikreh/chessmate/internal/breaker"
	"github.com/hendrikreh/chessmate/internal/config"
	"github.com/hendrikreh/chessmate/internal/embedding"
	"github.com/hendrikreh/chessmate/internal/executor"
	"github.com/hendrikreh/chessmate/internal/metrics"
	"github.com/hendrikreh/chessmate/internal/ratelimit"
	"github.com/hendrikreh/chessmate/internal/repository"
	"github.com/hendrikreh/chessmate/internal/repository/postgres"
	"github.com/hendrikreh/chessmate/internal/server"
	"github.com/hendrikreh/chessmate/internal/vectorstore"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("failed to run chessmated", "error", err)
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
	logger.Info("starting chessmate query service", "http_port", cfg.HTTPPort, "environment", cfg.Environment)

	db, err := postgres.New(ctx, cfg.DatabaseURL, cfg.DBPoolSize)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	logger.Info("connected to postgres")

	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollectionName)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	if err := vectorStore.CreateCollection(ctx, cfg.QdrantCollectionName, cfg.QdrantVectorSize, cfg.QdrantDistance); err != nil {
		logger.Warn("qdrant collection ensure failed", "error", err)
	}

	reg := metrics.New(prometheus.DefaultRegisterer)

	gameRepo := postgres.NewGameRepo(db)

	var embedProvider embedding.Provider
	if cfg.OpenAIAPIKey != "" {
		embedProvider = embedding.NewOpenAIProvider(cfg.OpenAIAPIKey)
		logger.Info("initialized OpenAI embedding provider")
	}

	execOpts := []executor.Option{
		executor.WithLogger(logger),
		executor.WithCandidateLimits(cfg.CandidateMultiplier, cfg.CandidateMax),
		executor.WithAgentTimeout(time.Duration(cfg.AgentRequestTimeoutSeconds) * time.Second),
		executor.WithVectorDimension(cfg.QdrantVectorSize),
		executor.WithMetrics(reg),
	}

	var brk *breaker.Breaker
	var redisCache *agentcache.RedisCache
	if cfg.AgentAPIKey != "" {
		brk = breaker.New(cfg.AgentCircuitBreakerThreshold, time.Duration(cfg.AgentCircuitBreakerCooloffSecs)*time.Second, reg.BreakerHook())
		execOpts = append(execOpts, executor.WithBreaker(brk))

		evaluator := agent.NewOpenAIEvaluator(cfg.AgentAPIKey,
			agent.WithTimeout(time.Duration(cfg.AgentRequestTimeoutSeconds)*time.Second),
			agent.WithLogger(logger),
			agent.WithReasoningEffort(cfg.AgentReasoningEffort),
			agent.WithVerbosity(cfg.AgentVerbosity),
		)
		execOpts = append(execOpts, executor.WithEvaluator(evaluator))

		if cfg.AgentCacheRedisURL != "" {
			cache, err := agentcache.NewRedisCache(cfg.AgentCacheRedisURL, "chessmate", time.Duration(cfg.AgentCacheTTLSeconds)*time.Second, logger)
			if err != nil {
				return fmt.Errorf("constructing agent cache: %w", err)
			}
			redisCache = cache
			execOpts = append(execOpts, executor.WithCache(cache))
		} else {
			execOpts = append(execOpts, executor.WithCache(agentcache.NewLRUCache(cfg.AgentCacheCapacity)))
		}
		logger.Info("agent evaluator enabled")
	} else {
		logger.Info("agent evaluator disabled (no AGENT_API_KEY)")
	}

	exec := executor.New(gameRepo, vectorStore, embedProvider, execOpts...)

	limiter, err := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: float64(cfg.RateLimitRequestsPerMinute) / 60,
		BucketSize:        cfg.RateLimitBucketSize,
		BodyBytesPerSec:   float64(cfg.RateLimitBodyBytesPerMin) / 60,
		BodyBucketSize:    cfg.RateLimitBodyBytesPerMin,
	})
	if err != nil {
		return fmt.Errorf("constructing rate limiter: %w", err)
	}

	// Optional checks report "skipped" (nil probe) when the backing
	// dependency was never configured.
	var redisProbe, openaiProbe func(ctx context.Context) error
	if redisCache != nil {
		redisProbe = redisCache.Ping
	}
	if embedProvider != nil {
		openaiProbe = func(context.Context) error { return nil }
	}
	health := server.NewHealthChecker(5*time.Second,
		server.Check{Name: "postgres", Required: true, Probe: db.Ping},
		server.Check{Name: "qdrant", Required: true, Probe: vectorStore.Ping},
		server.Check{Name: "redis", Required: false, Probe: redisProbe},
		server.Check{Name: "openai", Required: false, Probe: openaiProbe},
	)

	srv := server.New(server.Config{
		Port:                cfg.HTTPPort,
		MaxRequestBodyBytes: int64(cfg.MaxRequestBodyBytes),
		ShutdownTimeout:     cfg.ShutdownTimeout,
		HealthTimeout:       5 * time.Second,
		SnapshotCatalogPath: cfg.SnapshotCatalogPath,
	}, exec, limiter, health, reg, cfg.MaxQueryLimit, cfg.DefaultQueryLimit, logger)

	go reportPoolStats(ctx, db, reg)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// reportPoolStats periodically publishes the postgres pool gauges until ctx
// is cancelled.
func reportPoolStats(ctx context.Context, db *postgres.DB, reg *metrics.Registry) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stat := db.Stat()
			reg.ObservePoolStat(stat.Capacity, stat.InUse, stat.Available, stat.Waiting)
		}
	}
}

var _ repository.GameRepository = (*postgres.GameRepo)(nil)
