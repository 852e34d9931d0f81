package postgres

import (
	"context"
	"fmt"

	"github.com/hendrikreh/chessmate/internal/repository"
)

// EmbeddingJobRepo implements repository.EmbeddingJobRepository.
type EmbeddingJobRepo struct {
	db *DB
}

// NewEmbeddingJobRepo creates a new embedding job repository.
func NewEmbeddingJobRepo(db *DB) *EmbeddingJobRepo {
	return &EmbeddingJobRepo{db: db}
}

// Claim atomically transitions up to batchSize pending jobs to in_progress
// using SELECT ... FOR UPDATE SKIP LOCKED, so concurrent workers never
// observe the same row.
func (r *EmbeddingJobRepo) Claim(ctx context.Context, workerID string, batchSize int) ([]repository.EmbeddingJob, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, position_id, fen, status, attempts, last_error, vector_id, updated_at
		FROM embedding_jobs
		WHERE status = 'pending'
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, batchSize)
	if err != nil {
		return nil, fmt.Errorf("selecting claimable jobs: %w", err)
	}

	var jobs []repository.EmbeddingJob
	var ids []int64
	for rows.Next() {
		var j repository.EmbeddingJob
		var lastError, vectorID *string
		if err := rows.Scan(&j.ID, &j.PositionID, &j.FEN, &j.Status, &j.Attempts,
			&lastError, &vectorID, &j.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning claimable job: %w", err)
		}
		if lastError != nil {
			j.LastError = *lastError
		}
		if vectorID != nil {
			j.VectorID = *vectorID
		}
		j.Status = repository.EmbeddingInProgress
		jobs = append(jobs, j)
		ids = append(ids, j.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claimable jobs: %w", err)
	}

	if len(ids) > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE embedding_jobs
			SET status = 'in_progress', claimed_by = $1, updated_at = NOW()
			WHERE id = ANY($2)
		`, workerID, ids); err != nil {
			return nil, fmt.Errorf("marking jobs in_progress: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return jobs, nil
}

// MarkCompleted marks a job completed with its assigned vector id.
func (r *EmbeddingJobRepo) MarkCompleted(ctx context.Context, jobID int64, vectorID string) error {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE embedding_jobs
		SET status = 'completed', vector_id = $2, updated_at = NOW()
		WHERE id = $1
	`, jobID, vectorID)
	if err != nil {
		return fmt.Errorf("marking job completed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkFailed increments attempts and stores a sanitized error. Once attempts
// reaches maxAttempts the job transitions to failed; otherwise it returns to
// pending so a future Claim can retry it.
func (r *EmbeddingJobRepo) MarkFailed(ctx context.Context, jobID int64, sanitizedErr string, maxAttempts int) error {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE embedding_jobs
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END,
		    updated_at = NOW()
		WHERE id = $1
	`, jobID, sanitizedErr, maxAttempts)
	if err != nil {
		return fmt.Errorf("marking job failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// PendingCount reports how many jobs are waiting to be claimed.
func (r *EmbeddingJobRepo) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM embedding_jobs WHERE status = 'pending'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting pending jobs: %w", err)
	}
	return count, nil
}

var _ repository.EmbeddingJobRepository = (*EmbeddingJobRepo)(nil)
