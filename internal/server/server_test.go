package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hendrikreh/chessmate/internal/executor"
	"github.com/hendrikreh/chessmate/internal/intent"
	"github.com/hendrikreh/chessmate/internal/ratelimit"
	"github.com/hendrikreh/chessmate/internal/repository"
	"github.com/hendrikreh/chessmate/internal/snapshot"
	"github.com/hendrikreh/chessmate/internal/vectorstore"
)

// fakeGames is a minimal repository.GameRepository returning one fixed
// summary, enough to drive a query end to end without a real database.
type fakeGames struct{}

func (fakeGames) FetchCandidates(_ context.Context, _ intent.Plan, limit, offset int) (repository.GameSearchResult, error) {
	summaries := []repository.GameSummary{{ID: 1, White: "Carlsen", Black: "Nepomniachtchi", Result: "1-0"}}
	return repository.GameSearchResult{Summaries: summaries, Total: len(summaries)}, nil
}

func (fakeGames) FetchPGNs(_ context.Context, ids []int64) (map[int64]string, error) {
	return map[int64]string{}, nil
}

// fakeVectors is a minimal vectorstore.VectorStore returning no hits.
type fakeVectors struct{}

func (fakeVectors) CreateCollection(context.Context, string, int, string) error { return nil }
func (fakeVectors) Upsert(context.Context, []vectorstore.Point) error           { return nil }
func (fakeVectors) Search(context.Context, []float32, []vectorstore.PayloadFilter, int) ([]vectorstore.VectorHit, error) {
	return nil, nil
}
func (fakeVectors) Delete(context.Context, []int64) error { return nil }

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *Server {
	t.Helper()
	exec := executor.New(fakeGames{}, fakeVectors{}, nil)
	return New(Config{Port: 0}, exec, limiter, nil, nil, 500, 50, nil)
}

// TestRateLimitMiddleware_KeyedByClientNotRequestID reproduces the
// regression where the rate-limit key was prefixed with chi's per-request
// RequestID: since that id is unique on every call, two requests from the
// same client could never share a bucket and the limiter could never deny.
// Keyed correctly on the client address alone, a small bucket exhausts and
// returns 429.
func TestRateLimitMiddleware_KeyedByClientNotRequestID(t *testing.T) {
	limiter, err := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: 0.001,
		BucketSize:        2,
	})
	require.NoError(t, err)

	srv := newTestServer(t, limiter)

	var sawLimited bool
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/query?q=french+defense", nil)
		req.RemoteAddr = "203.0.113.7:54321" // same client on every iteration
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code == http.StatusTooManyRequests {
			sawLimited = true
			require.NotEmpty(t, rec.Header().Get("Retry-After"))
			break
		}
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.True(t, sawLimited, "expected the limiter to eventually return 429 for a single repeatedly-requesting client")
}

// TestRateLimitMiddleware_DistinctClientsDoNotShareABucket is the inverse
// check: two distinct client addresses must not contend for the same
// bucket, confirming the key is the client address and nothing else.
func TestRateLimitMiddleware_DistinctClientsDoNotShareABucket(t *testing.T) {
	limiter, err := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: 1,
		BucketSize:        1,
	})
	require.NoError(t, err)

	srv := newTestServer(t, limiter)

	for _, addr := range []string{"198.51.100.1:1111", "198.51.100.2:2222"} {
		req := httptest.NewRequest(http.MethodGet, "/query?q=sicilian", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

// TestHandleQuery_MissingQuestion exercises the 400 path alongside the
// rate-limit tests above so this file covers the handler wiring end to end,
// not just the limiter regression.
func TestHandleQuery_MissingQuestion(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/query", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestPlanDTO_JSONRoundTrip checks the plan wire projection survives a
// marshal/unmarshal cycle unchanged.
func TestPlanDTO_JSONRoundTrip(t *testing.T) {
	whiteMin := 2500
	delta := 100
	in := planDTO{
		CleanedText: "find kings indian games",
		Limit:       50,
		Offset:      10,
		Filters: []filterDTO{
			{Field: "opening", Value: "kings_indian_defense"},
			{Field: "eco_range", Value: "E60-E99"},
		},
		Keywords: []string{"kings", "indian", "games"},
		Rating:   ratingDTO{WhiteMin: &whiteMin, MaxRatingDelta: &delta},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out planDTO
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)
}

// TestSnapshotEndpoints_CreateThenList wires internal/snapshot's catalogue
// to the /admin/snapshots routes: a POST must append a record a following
// GET can see, confirming the catalogue is an exercised feature of the
// running server, not a package only its own unit test touches.
func TestSnapshotEndpoints_CreateThenList(t *testing.T) {
	exec := executor.New(fakeGames{}, fakeVectors{}, nil)
	path := filepath.Join(t.TempDir(), "snapshots.jsonl")
	srv := New(Config{Port: 0, SnapshotCatalogPath: path}, exec, nil, nil, nil, 500, 50, nil)

	body := `{"name":"positions-2026-07-31","location":"s3://chessmate-snapshots/positions-2026-07-31.snapshot","size_bytes":1048576,"note":"weekly backup"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/snapshots", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/snapshots", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []snapshot.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&records))
	require.Len(t, records, 1)
	require.Equal(t, "positions-2026-07-31", records[0].Name)
	require.Equal(t, "weekly backup", records[0].Note)
}

// TestSnapshotEndpoints_DisabledWithoutCatalogPath confirms the routes are
// simply absent (404) rather than panicking when no catalogue is
// configured, matching the nil-disables-the-feature posture the rest of
// Server's optional dependencies (limiter/health/metrics) follow.
func TestSnapshotEndpoints_DisabledWithoutCatalogPath(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/snapshots", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
