// Package worker drains the embedding job queue, keeping the vector store
// in sync with relational game/position metadata.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hendrikreh/chessmate/internal/embedding"
	"github.com/hendrikreh/chessmate/internal/repository"
	"github.com/hendrikreh/chessmate/internal/retryutil"
	"github.com/hendrikreh/chessmate/internal/sanitize"
	"github.com/hendrikreh/chessmate/internal/vectorstore"
)

// Metrics is the optional telemetry sink for worker throughput. Nil
// disables reporting.
type Metrics interface {
	Processed()
	Failed()
	SetQueueDepth(n int)
}

// PositionFetcher resolves the metadata a claimed job needs to build both
// an embedding request and an upsert payload. Kept as its own small
// interface (rather than widening repository.EmbeddingJobRepository) so a
// worker can be tested against an in-memory fake without a full game
// repository fake.
type PositionFetcher interface {
	// FetchPositionMeta returns the per-job metadata (game id, white,
	// black, opening slug, phases, themes, keywords) needed for the vector
	// store upsert payload.
	FetchPositionMeta(ctx context.Context, positionID int64) (PositionMeta, error)
}

// PositionMeta is the relational metadata copied into a vector store point
// payload alongside the embedding vector itself.
type PositionMeta struct {
	GameID      int64
	White       string
	Black       string
	WhiteRating *int
	BlackRating *int
	OpeningSlug string
	Phases      []string
	Themes      []string
	Keywords    []string
}

// Config tunes one Worker's batching, retry, and lifecycle knobs.
type Config struct {
	WorkerID            string
	BatchSize           int
	PollSleep           time.Duration
	MaxBatchCount       int
	MaxCharsPerRequest  int
	MaxAttempts         int
	Retry               retryutil.Config
	MaxConsecutiveEmpty int // 0 means run forever
}

// DefaultConfig mirrors the environment defaults (CHESSMATE_WORKER_BATCH_SIZE,
// OPENAI_EMBEDDING_CHUNK_SIZE/_MAX_CHARS, OPENAI_RETRY_MAX_ATTEMPTS/
// _BASE_DELAY_MS).
func DefaultConfig() Config {
	return Config{
		BatchSize:          32,
		PollSleep:          2 * time.Second,
		MaxBatchCount:      64,
		MaxCharsPerRequest: 60000,
		MaxAttempts:        5,
		Retry:              retryutil.DefaultConfig(),
	}
}

// Worker claims pending embedding jobs, embeds them in character-bounded
// sub-batches, upserts the resulting vectors, and marks each job
// complete/failed. Multiple Worker instances may run concurrently against
// the same queue; the atomic claim in repository.EmbeddingJobRepository
// guarantees they never double-process a job.
type Worker struct {
	jobs      repository.EmbeddingJobRepository
	positions PositionFetcher
	embed     embedding.Provider
	vectors   vectorstore.VectorStore
	cfg       Config
	metrics   Metrics
	log       *slog.Logger
}

// New builds a Worker. A zero-value Config.WorkerID is replaced with a
// generated id so every worker's claims are attributable in embedding_jobs.
func New(jobs repository.EmbeddingJobRepository, positions PositionFetcher, embed embedding.Provider, vectors vectorstore.VectorStore, cfg Config, metrics Metrics, log *slog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.PollSleep <= 0 {
		cfg.PollSleep = DefaultConfig().PollSleep
	}
	if cfg.MaxBatchCount <= 0 {
		cfg.MaxBatchCount = DefaultConfig().MaxBatchCount
	}
	if cfg.MaxCharsPerRequest <= 0 {
		cfg.MaxCharsPerRequest = DefaultConfig().MaxCharsPerRequest
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = fmt.Sprintf("worker-%d", time.Now().UnixNano())
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{jobs: jobs, positions: positions, embed: embed, vectors: vectors, cfg: cfg, metrics: metrics, log: log}
}

// Run loops until ctx is cancelled or, if MaxConsecutiveEmpty > 0, that many
// consecutive empty polls have elapsed. A failed poll (e.g. a transient
// claim error) is logged and retried after PollSleep; only cancellation
// stops the loop.
func (w *Worker) Run(ctx context.Context) error {
	emptyPolls := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warn("worker: poll failed", "error", sanitize.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.PollSleep):
			}
			continue
		}

		if n == 0 {
			emptyPolls++
			if w.cfg.MaxConsecutiveEmpty > 0 && emptyPolls >= w.cfg.MaxConsecutiveEmpty {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.PollSleep):
			}
			continue
		}
		emptyPolls = 0
	}
}

// RunOnce claims one batch and processes it to completion, returning the
// number of jobs claimed (0 means the queue was empty this poll).
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	claimed, err := w.jobs.Claim(ctx, w.cfg.WorkerID, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("worker: claiming batch: %w", err)
	}
	if len(claimed) == 0 {
		w.reportQueueDepth(ctx)
		return 0, nil
	}

	for _, sub := range splitByCharBudget(claimed, w.cfg.MaxBatchCount, w.cfg.MaxCharsPerRequest) {
		w.processBatch(ctx, sub)
	}

	w.reportQueueDepth(ctx)
	return len(claimed), nil
}

func (w *Worker) reportQueueDepth(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	depth, err := w.jobs.PendingCount(ctx)
	if err != nil {
		w.log.Warn("worker: pending count failed", "error", sanitize.Error(err))
		return
	}
	w.metrics.SetQueueDepth(depth)
}

// processBatch embeds one sub-batch with retry-with-backoff and upserts the
// resulting vectors. A batch-level failure (embedding call exhausted
// retries) fails every job in the batch individually rather than losing the
// whole batch silently.
func (w *Worker) processBatch(ctx context.Context, jobs []repository.EmbeddingJob) {
	okJobs := make([]repository.EmbeddingJob, 0, len(jobs))
	metas := make([]PositionMeta, 0, len(jobs))
	texts := make([]string, 0, len(jobs))
	for _, j := range jobs {
		meta, err := w.positions.FetchPositionMeta(ctx, j.PositionID)
		if err != nil {
			w.failJob(ctx, j, err)
			continue
		}
		okJobs = append(okJobs, j)
		metas = append(metas, meta)
		texts = append(texts, j.FEN)
	}
	jobs = okJobs
	if len(jobs) == 0 {
		return
	}

	vectors, err := retryutil.DoWithResult(ctx, w.cfg.Retry, func() ([][]float32, error) {
		return w.embed.EmbedBatch(ctx, texts)
	})
	if err != nil {
		for _, j := range jobs {
			w.failJob(ctx, j, err)
		}
		return
	}

	points := make([]vectorstore.Point, 0, len(jobs))
	vectorIDs := make(map[int64]string, len(jobs))
	for i, j := range jobs {
		vectorID := fmt.Sprintf("%s:%d", w.cfg.WorkerID, j.ID)
		points = append(points, vectorstore.Point{
			GameID:      metas[i].GameID,
			FEN:         j.FEN,
			Vector:      vectors[i],
			White:       metas[i].White,
			Black:       metas[i].Black,
			WhiteRating: metas[i].WhiteRating,
			BlackRating: metas[i].BlackRating,
			OpeningSlug: metas[i].OpeningSlug,
			Phases:      metas[i].Phases,
			Themes:      metas[i].Themes,
			Keywords:    metas[i].Keywords,
		})
		vectorIDs[j.ID] = vectorID
	}

	if err := retryutil.Do(ctx, w.cfg.Retry, func() error {
		return w.vectors.Upsert(ctx, points)
	}); err != nil {
		for _, j := range jobs {
			w.failJob(ctx, j, err)
		}
		return
	}

	for _, j := range jobs {
		if err := w.jobs.MarkCompleted(ctx, j.ID, vectorIDs[j.ID]); err != nil {
			w.log.Warn("worker: marking job completed failed", "job_id", j.ID, "error", sanitize.Error(err))
			continue
		}
		if w.metrics != nil {
			w.metrics.Processed()
		}
	}
}

// failJob increments attempts and transitions the job back to pending, or to
// failed once attempts are exhausted. It never propagates the error to the
// caller; a single job's failure must not stop the loop.
func (w *Worker) failJob(ctx context.Context, job repository.EmbeddingJob, cause error) {
	sanitized := sanitize.Error(cause)
	if err := w.jobs.MarkFailed(ctx, job.ID, sanitized, w.cfg.MaxAttempts); err != nil {
		w.log.Warn("worker: marking job failed failed", "job_id", job.ID, "error", sanitize.Error(err))
		return
	}
	w.log.Warn("worker: job attempt failed", "job_id", job.ID, "attempts", job.Attempts+1, "error", sanitized)
	if job.Attempts+1 >= w.cfg.MaxAttempts && w.metrics != nil {
		w.metrics.Failed()
	}
}

// splitByCharBudget groups jobs into sub-batches no larger than maxCount and
// whose summed FEN length stays under maxChars, starting a new batch whenever
// adding a job would exceed either budget.
func splitByCharBudget(jobs []repository.EmbeddingJob, maxCount, maxChars int) [][]repository.EmbeddingJob {
	var batches [][]repository.EmbeddingJob
	var current []repository.EmbeddingJob
	currentChars := 0

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}
	}

	for _, j := range jobs {
		jobChars := len(j.FEN)
		if len(current) > 0 && (len(current) >= maxCount || currentChars+jobChars > maxChars) {
			flush()
		}
		current = append(current, j)
		currentChars += jobChars
	}
	flush()
	return batches
}
