// Package repository defines domain models and data access interfaces for
// game metadata and the embedding job queue.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hendrikreh/chessmate/internal/intent"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// GameSummary is the relational projection of a game used throughout
// retrieval and scoring. Identity is ID.
type GameSummary struct {
	ID           int64
	White        string
	Black        string
	WhiteRating  *int
	BlackRating  *int
	Event        string
	PlayedOn     *time.Time
	Result       string
	ECOCode      string
	OpeningSlug  string
	OpeningName  string
}

// EmbeddingStatus is the tagged lifecycle state of an EmbeddingJob.
type EmbeddingStatus string

const (
	EmbeddingPending    EmbeddingStatus = "pending"
	EmbeddingInProgress EmbeddingStatus = "in_progress"
	EmbeddingCompleted  EmbeddingStatus = "completed"
	EmbeddingFailed     EmbeddingStatus = "failed"
)

// EmbeddingJob tracks one position's journey into the vector store.
type EmbeddingJob struct {
	ID         int64
	PositionID int64
	FEN        string
	Status     EmbeddingStatus
	Attempts   int
	LastError  string
	VectorID   string
	UpdatedAt  time.Time
}

// GameSearchResult is the page of candidates a GameRepository query returns,
// alongside the total count before pagination (used for has_more).
type GameSearchResult struct {
	Summaries []GameSummary
	Total     int
}

// GameRepository fetches candidate games honoring a query plan's filters,
// rating bounds, and pagination.
type GameRepository interface {
	// FetchCandidates returns up to limit summaries starting at offset,
	// matching plan's filters and rating bounds, ordered by a stable
	// criterion (rating/date/id) so tie-breaking in scoring is deterministic.
	FetchCandidates(ctx context.Context, plan intent.Plan, limit, offset int) (GameSearchResult, error)

	// FetchPGNs returns the raw PGN text for the given game IDs, used by the
	// agent evaluator. Missing IDs are simply omitted from the result map.
	FetchPGNs(ctx context.Context, gameIDs []int64) (map[int64]string, error)
}

// EmbeddingJobRepository manages the embedding job queue consumed by the
// embedding worker.
type EmbeddingJobRepository interface {
	// Claim atomically marks up to batchSize pending jobs in_progress for
	// workerID and returns them. Multiple callers racing this method never
	// observe the same job in their returned batch.
	Claim(ctx context.Context, workerID string, batchSize int) ([]EmbeddingJob, error)

	// MarkCompleted marks a job completed with the vector id it was stored
	// under.
	MarkCompleted(ctx context.Context, jobID int64, vectorID string) error

	// MarkFailed increments attempts and records a sanitized error. If
	// attempts now reaches maxAttempts the job transitions to failed,
	// otherwise it returns to pending for a future claim.
	MarkFailed(ctx context.Context, jobID int64, sanitizedErr string, maxAttempts int) error

	// PendingCount reports queue depth for the worker's gauge.
	PendingCount(ctx context.Context) (int, error)
}
