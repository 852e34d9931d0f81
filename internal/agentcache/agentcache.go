// Package agentcache deduplicates LLM evaluations across queries.
package agentcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/hendrikreh/chessmate/internal/intent"
	"github.com/hendrikreh/chessmate/internal/repository"
)

// Usage mirrors the token accounting an agent evaluation carries, kept here
// (rather than imported from internal/agent) so this package has no
// dependency on the agent package; only Entry needs the shape.
type Usage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	ReasoningTokens int `json:"reasoning_tokens"`
}

// Entry is a cached agent evaluation result. The JSON projection is the wire
// shape the remote backend stores, so tags are part of the contract: entries
// written by one process must round-trip in another.
type Entry struct {
	GameID          int64    `json:"game_id"`
	Score           float64  `json:"score"`
	Explanation     string   `json:"explanation,omitempty"`
	Themes          []string `json:"themes,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"`
	Usage           *Usage   `json:"usage,omitempty"`
}

// Cache is the capability interface the hybrid executor depends on. Find
// must not block longer than a small bounded timeout; a slow or failed
// remote cache must degrade to a miss, never fail the query.
type Cache interface {
	Find(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, key string, entry Entry) error
	Ping(ctx context.Context) error
}

// Key computes a deterministic digest over the plan's cleaned text,
// keywords, limit, rating bounds, and the candidate's opening slug, result,
// and PGN. Stable across processes.
func Key(plan intent.Plan, summary repository.GameSummary, pgn string) string {
	h := sha256.New()
	fmt.Fprintf(h, "text:%s\n", plan.CleanedText)
	fmt.Fprintf(h, "keywords:%s\n", strings.Join(plan.Keywords, ","))
	fmt.Fprintf(h, "limit:%d\n", plan.Limit)
	fmt.Fprintf(h, "white_min:%s\n", intPtrString(plan.Rating.WhiteMin))
	fmt.Fprintf(h, "black_min:%s\n", intPtrString(plan.Rating.BlackMin))
	fmt.Fprintf(h, "max_delta:%s\n", intPtrString(plan.Rating.MaxRatingDelta))
	fmt.Fprintf(h, "opening_slug:%s\n", summary.OpeningSlug)
	fmt.Fprintf(h, "result:%s\n", summary.Result)
	fmt.Fprintf(h, "pgn:%s\n", pgn)
	return hex.EncodeToString(h.Sum(nil))
}

func intPtrString(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
