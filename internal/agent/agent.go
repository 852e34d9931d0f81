// Package agent re-scores hybrid search candidates with an LLM judge.
package agent

import (
	"context"
	"time"

	"github.com/hendrikreh/chessmate/internal/intent"
)

// Candidate is one (summary, pgn) pair offered to the evaluator, already
// bounded to candidate_max by the executor.
type Candidate struct {
	GameID      int64
	White       string
	Black       string
	Result      string
	OpeningName string
	PlayedOn    *time.Time
	WhiteRating *int
	BlackRating *int
	PGN         string
}

// Evaluation is one scored candidate as returned by the evaluator.
type Evaluation struct {
	GameID      int64
	Score       float64
	Explanation string
	Themes      []string
}

// Usage carries token accounting for one evaluator call.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
}

// Result is the outcome of one Evaluate call.
type Result struct {
	Evaluations     []Evaluation
	ReasoningEffort string
	Verbosity       string
	Usage           Usage
	Latency         time.Duration
}

// Evaluator is the capability interface the hybrid executor depends on. A
// failed call (timeout, transport error, non-success status, schema
// violation, or an empty parse) must return a non-nil error; the executor
// treats that as a circuit-breaker failure, never as a request failure.
type Evaluator interface {
	Evaluate(ctx context.Context, plan intent.Plan, candidates []Candidate) (Result, error)
}

// Cost is the dollar cost breakdown for one evaluator call, derived from
// configured per-1K-token rates. Nil when rates are not configured.
type Cost struct {
	Input     float64
	Output    float64
	Reasoning float64
	Total     float64
}

// TelemetryEvent is the structured record logged for every evaluator call.
// It is logged via slog, not shipped anywhere external.
type TelemetryEvent struct {
	Event             string    `json:"event"`
	Timestamp         time.Time `json:"timestamp"`
	QuestionTruncated string    `json:"question_truncated"`
	CandidateCount    int       `json:"candidate_count"`
	Evaluated         int       `json:"evaluated"`
	ReasoningEffort   string    `json:"reasoning_effort"`
	LatencyMs         int64     `json:"latency_ms"`
	InputTokens       int       `json:"input_tokens"`
	OutputTokens      int       `json:"output_tokens"`
	ReasoningTokens   int       `json:"reasoning_tokens"`
	Cost              *Cost     `json:"cost,omitempty"`
}

// RateCard prices per-1K-token costs for telemetry. Zero rates mean cost is
// not computed (Cost stays nil).
type RateCard struct {
	InputPer1K     float64
	OutputPer1K    float64
	ReasoningPer1K float64
}

// Compute derives a Cost from token usage, or nil if the rate card carries
// no rates at all.
func (r RateCard) Compute(u Usage) *Cost {
	if r.InputPer1K == 0 && r.OutputPer1K == 0 && r.ReasoningPer1K == 0 {
		return nil
	}
	c := &Cost{
		Input:     float64(u.InputTokens) / 1000 * r.InputPer1K,
		Output:    float64(u.OutputTokens) / 1000 * r.OutputPer1K,
		Reasoning: float64(u.ReasoningTokens) / 1000 * r.ReasoningPer1K,
	}
	c.Total = c.Input + c.Output + c.Reasoning
	return c
}

// truncateQuestion bounds a question to n runes for telemetry, matching the
// PGN truncation policy's spirit of keeping logged payloads small.
func truncateQuestion(q string, n int) string {
	r := []rune(q)
	if len(r) <= n {
		return q
	}
	return string(r[:n]) + ellipsis
}

// ReasoningEffort picks the effort heuristic: high when the query carries a
// theme filter or four-plus keywords, medium otherwise.
func ReasoningEffort(hasThemeFilter bool, keywordCount int) string {
	if hasThemeFilter || keywordCount >= 4 {
		return "high"
	}
	return "medium"
}

// Verbosity picks the response-verbosity heuristic: low for narrow queries
// (at most one filter and two keywords), medium otherwise.
func Verbosity(filterCount, keywordCount int) string {
	if filterCount <= 1 && keywordCount <= 2 {
		return "low"
	}
	return "medium"
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dedupeThemes(themes []string) []string {
	seen := make(map[string]struct{}, len(themes))
	out := make([]string, 0, len(themes))
	for _, t := range themes {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
