package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hendrikreh/chessmate/internal/repository"
	"github.com/hendrikreh/chessmate/internal/vectorstore"
)

type fakeJobRepo struct {
	mu      sync.Mutex
	jobs    map[int64]*repository.EmbeddingJob
	claimed map[int64]string
}

func newFakeJobRepo(jobs ...repository.EmbeddingJob) *fakeJobRepo {
	r := &fakeJobRepo{jobs: make(map[int64]*repository.EmbeddingJob), claimed: make(map[int64]string)}
	for i := range jobs {
		j := jobs[i]
		r.jobs[j.ID] = &j
	}
	return r
}

func (r *fakeJobRepo) Claim(_ context.Context, workerID string, batchSize int) ([]repository.EmbeddingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []repository.EmbeddingJob
	for id := 1; id <= 1000 && len(out) < batchSize; id++ {
		j, ok := r.jobs[int64(id)]
		if !ok || j.Status != repository.EmbeddingPending {
			continue
		}
		j.Status = repository.EmbeddingInProgress
		r.claimed[j.ID] = workerID
		out = append(out, *j)
	}
	return out, nil
}

func (r *fakeJobRepo) MarkCompleted(_ context.Context, jobID int64, vectorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	j.Status = repository.EmbeddingCompleted
	j.VectorID = vectorID
	return nil
}

func (r *fakeJobRepo) MarkFailed(_ context.Context, jobID int64, sanitizedErr string, maxAttempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	j.Attempts++
	j.LastError = sanitizedErr
	if j.Attempts >= maxAttempts {
		j.Status = repository.EmbeddingFailed
	} else {
		j.Status = repository.EmbeddingPending
	}
	return nil
}

func (r *fakeJobRepo) PendingCount(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.jobs {
		if j.Status == repository.EmbeddingPending {
			n++
		}
	}
	return n, nil
}

type fakePositions struct{}

func (fakePositions) FetchPositionMeta(_ context.Context, positionID int64) (PositionMeta, error) {
	return PositionMeta{GameID: positionID, White: "Alice", Black: "Bob", OpeningSlug: "sicilian_defense"}, nil
}

type failingPositions struct{ failFor int64 }

func (f failingPositions) FetchPositionMeta(_ context.Context, positionID int64) (PositionMeta, error) {
	if positionID == f.failFor {
		return PositionMeta{}, fmt.Errorf("position lookup failed")
	}
	return PositionMeta{GameID: positionID}, nil
}

type fakeEmbedder struct {
	dim       int
	failCalls int
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return make([]float32, e.dim), nil
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.failCalls > 0 {
		e.failCalls--
		return nil, fmt.Errorf("embedding provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dim)
	}
	return out, nil
}

func (e *fakeEmbedder) Dimension() int    { return e.dim }
func (e *fakeEmbedder) ModelName() string { return "fake" }

// fakeRecordingStore is an in-memory VectorStore fake recording every
// point it was asked to upsert, for assertions on worker output.
type fakeRecordingStore struct {
	mu     sync.Mutex
	points []vectorstore.Point
}

func newFakeRecordingStore() *fakeRecordingStore {
	return &fakeRecordingStore{}
}

func (s *fakeRecordingStore) CreateCollection(context.Context, string, int, string) error {
	return nil
}

func (s *fakeRecordingStore) Upsert(_ context.Context, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, points...)
	return nil
}

func (s *fakeRecordingStore) Search(context.Context, []float32, []vectorstore.PayloadFilter, int) ([]vectorstore.VectorHit, error) {
	return nil, nil
}

func (s *fakeRecordingStore) Delete(context.Context, []int64) error { return nil }

func (s *fakeRecordingStore) upsertedPoints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

func TestWorkerClaimIsSerializableAcrossWorkers(t *testing.T) {
	jobs := make([]repository.EmbeddingJob, 0, 10)
	for i := int64(1); i <= 10; i++ {
		jobs = append(jobs, repository.EmbeddingJob{ID: i, PositionID: i, FEN: "fen", Status: repository.EmbeddingPending})
	}
	repo := newFakeJobRepo(jobs...)

	var wg sync.WaitGroup
	seen := make(map[int64]int)
	var mu sync.Mutex

	for w := 0; w < 2; w++ {
		wg.Add(1)
		workerID := fmt.Sprintf("w%d", w)
		go func() {
			defer wg.Done()
			claimed, err := repo.Claim(context.Background(), workerID, 3)
			require.NoError(t, err)
			mu.Lock()
			for _, j := range claimed {
				seen[j.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	total := 0
	for id, count := range seen {
		require.Equal(t, 1, count, "job %d claimed more than once", id)
		total++
	}
	require.LessOrEqual(t, total, 10)
}

func TestSplitByCharBudget(t *testing.T) {
	jobs := []repository.EmbeddingJob{
		{ID: 1, FEN: "aaaaaaaaaa"},
		{ID: 2, FEN: "bbbbbbbbbb"},
		{ID: 3, FEN: "cccccccccc"},
	}

	batches := splitByCharBudget(jobs, 10, 15)
	require.Len(t, batches, 3)

	batches = splitByCharBudget(jobs, 2, 1000)
	require.Len(t, batches, 2)
	require.Len(t, batches[0], 2)
	require.Len(t, batches[1], 1)
}

func TestWorkerRunOnceMarksJobsCompleted(t *testing.T) {
	jobs := []repository.EmbeddingJob{
		{ID: 1, PositionID: 1, FEN: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", Status: repository.EmbeddingPending},
		{ID: 2, PositionID: 2, FEN: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", Status: repository.EmbeddingPending},
	}
	repo := newFakeJobRepo(jobs...)
	vs := newFakeRecordingStore()

	w := New(repo, fakePositions{}, &fakeEmbedder{dim: 4}, vs, Config{BatchSize: 10, MaxBatchCount: 10, MaxCharsPerRequest: 1000, MaxAttempts: 3}, nil, nil)

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Equal(t, repository.EmbeddingCompleted, repo.jobs[1].Status)
	require.Equal(t, repository.EmbeddingCompleted, repo.jobs[2].Status)
	require.Equal(t, 2, vs.upsertedPoints())
}

func TestWorkerFailJobReturnsToPendingUntilMaxAttempts(t *testing.T) {
	jobs := []repository.EmbeddingJob{
		{ID: 1, PositionID: 1, FEN: "fen1", Status: repository.EmbeddingPending},
		{ID: 2, PositionID: 2, FEN: "fen2", Status: repository.EmbeddingPending},
	}
	repo := newFakeJobRepo(jobs...)
	vs := newFakeRecordingStore()

	w := New(repo, failingPositions{failFor: 1}, &fakeEmbedder{dim: 4}, vs, Config{BatchSize: 10, MaxBatchCount: 10, MaxCharsPerRequest: 1000, MaxAttempts: 3}, nil, nil)

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	require.Equal(t, repository.EmbeddingPending, repo.jobs[1].Status)
	require.Equal(t, 1, repo.jobs[1].Attempts)
	require.Equal(t, repository.EmbeddingCompleted, repo.jobs[2].Status)
}

func TestWorkerFailJobReachesFailedAfterMaxAttempts(t *testing.T) {
	jobs := []repository.EmbeddingJob{
		{ID: 1, PositionID: 1, FEN: "fen1", Status: repository.EmbeddingPending, Attempts: 2},
	}
	repo := newFakeJobRepo(jobs...)
	vs := newFakeRecordingStore()

	w := New(repo, failingPositions{failFor: 1}, &fakeEmbedder{dim: 4}, vs, Config{BatchSize: 10, MaxBatchCount: 10, MaxCharsPerRequest: 1000, MaxAttempts: 3}, nil, nil)

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, repository.EmbeddingFailed, repo.jobs[1].Status)
}

func TestWorkerRunStopsAfterConsecutiveEmptyPolls(t *testing.T) {
	repo := newFakeJobRepo()
	vs := newFakeRecordingStore()
	w := New(repo, fakePositions{}, &fakeEmbedder{dim: 4}, vs, Config{PollSleep: time.Millisecond, MaxConsecutiveEmpty: 2}, nil, nil)

	err := w.Run(context.Background())
	require.NoError(t, err)
}
