// Package executor coordinates SQL candidate retrieval, vector search, and
// optional LLM re-ranking into a single ranked, paginated result set.
package executor

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hendrikreh/chessmate/internal/agent"
	"github.com/hendrikreh/chessmate/internal/agentcache"
	"github.com/hendrikreh/chessmate/internal/breaker"
	"github.com/hendrikreh/chessmate/internal/embedding"
	"github.com/hendrikreh/chessmate/internal/intent"
	"github.com/hendrikreh/chessmate/internal/repository"
	"github.com/hendrikreh/chessmate/internal/sanitize"
	"github.com/hendrikreh/chessmate/internal/vectorstore"
)

// AgentStatus is the tagged outcome of the agent stage for one execution.
type AgentStatus string

const (
	AgentDisabled    AgentStatus = "disabled"
	AgentEnabled     AgentStatus = "enabled"
	AgentCircuitOpen AgentStatus = "circuit_open"
)

// AgentUsage carries per-candidate token accounting, when an agent score
// was produced (freshly evaluated or resolved from cache).
type AgentUsage struct {
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
}

// RankedResult is one scored, ready-to-render candidate.
type RankedResult struct {
	Summary          repository.GameSummary
	TotalScore       float64
	VectorScore      float64
	KeywordScore     float64
	AgentScore       *float64
	AgentExplanation string
	AgentThemes      []string
	AgentReasoning   string
	AgentUsage       *AgentUsage
	Phases           []string
	Themes           []string
	Keywords         []string
}

// Output is the full execution result returned to the HTTP layer.
type Output struct {
	Plan        intent.Plan
	Results     []RankedResult
	Total       int
	HasMore     bool
	Warnings    []string
	AgentStatus AgentStatus
}

const (
	// defaultCandidateMultiplier and defaultCandidateMax mirror the
	// configuration defaults (CHESSMATE_CANDIDATE_MULTIPLIER/_MAX) used when
	// an Executor is built without WithCandidateLimits.
	defaultCandidateMultiplier = 5
	defaultCandidateMax        = 25

	// defaultAgentTimeout mirrors AGENT_REQUEST_TIMEOUT_SECONDS's default.
	defaultAgentTimeout = 15 * time.Second

	// defaultVectorDimension mirrors QDRANT_VECTOR_SIZE's default, used only
	// for sizing the hash-fallback vector when no embedding provider or
	// dimension override is configured.
	defaultVectorDimension = 768
)

// Metrics is the optional telemetry sink for the agent stage: cache
// hit/miss counts and per-call evaluation outcomes. A nil Metrics disables
// reporting; nothing else in the executor depends on it.
type Metrics interface {
	AgentCacheHit()
	AgentCacheMiss()
	ObserveAgentEvaluation(latency time.Duration, failed bool)
}

// Executor coordinates the retrieval capabilities behind one Execute call.
// Evaluator, cache, and breaker are optional: a nil evaluator disables the
// agent stage entirely (AgentStatus = disabled).
type Executor struct {
	games      repository.GameRepository
	vectors    vectorstore.VectorStore
	embeddings embedding.Provider
	evaluator  agent.Evaluator
	cache      agentcache.Cache
	breaker    *breaker.Breaker
	metrics    Metrics
	log        *slog.Logger

	candidateMultiplier int
	candidateMax        int
	agentTimeout        time.Duration
	vectorDimension     int
}

// Option configures an Executor.
type Option func(*Executor)

// WithEvaluator attaches the LLM re-ranking stage.
func WithEvaluator(e agent.Evaluator) Option {
	return func(ex *Executor) { ex.evaluator = e }
}

// WithCache attaches the agent evaluation cache.
func WithCache(c agentcache.Cache) Option {
	return func(ex *Executor) { ex.cache = c }
}

// WithBreaker attaches the circuit breaker gating the agent stage.
func WithBreaker(b *breaker.Breaker) Option {
	return func(ex *Executor) { ex.breaker = b }
}

// WithLogger overrides the logger used for sanitized warning diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(ex *Executor) {
		if log != nil {
			ex.log = log
		}
	}
}

// WithCandidateLimits overrides the SQL over-fetch multiplier and cap.
func WithCandidateLimits(multiplier, max int) Option {
	return func(ex *Executor) {
		if multiplier > 0 {
			ex.candidateMultiplier = multiplier
		}
		if max > 0 {
			ex.candidateMax = max
		}
	}
}

// WithAgentTimeout overrides the per-call agent evaluator timeout.
func WithAgentTimeout(d time.Duration) Option {
	return func(ex *Executor) {
		if d > 0 {
			ex.agentTimeout = d
		}
	}
}

// WithVectorDimension overrides the dimension used for the hash-fallback
// vector when no embedding provider is configured. When a configured
// provider fails, the fallback uses the provider's own Dimension().
func WithVectorDimension(dim int) Option {
	return func(ex *Executor) {
		if dim > 0 {
			ex.vectorDimension = dim
		}
	}
}

// WithMetrics attaches the telemetry sink the agent stage reports cache
// hit/miss counts to.
func WithMetrics(m Metrics) Option {
	return func(ex *Executor) { ex.metrics = m }
}

// New builds an Executor over the required capabilities; optional stages
// attach through Options.
func New(games repository.GameRepository, vectors vectorstore.VectorStore, embeddings embedding.Provider, opts ...Option) *Executor {
	ex := &Executor{
		games:               games,
		vectors:             vectors,
		embeddings:          embeddings,
		log:                 slog.Default(),
		candidateMultiplier: defaultCandidateMultiplier,
		candidateMax:        defaultCandidateMax,
		agentTimeout:        defaultAgentTimeout,
		vectorDimension:     defaultVectorDimension,
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// Execute runs the full hybrid retrieval pipeline for plan. The only error it
// returns is a fatal SQL failure; every other degraded dependency surfaces as
// a warning instead.
func (ex *Executor) Execute(ctx context.Context, plan intent.Plan) (Output, error) {
	sqlLimit := ex.candidateMax
	if want := plan.Limit * ex.candidateMultiplier; want < sqlLimit {
		sqlLimit = want
	}
	if sqlLimit < plan.Limit {
		sqlLimit = plan.Limit
	}

	var (
		sqlResult repository.GameSearchResult
		sqlErr    error
		hits      []vectorstore.VectorHit
		hitsWarn  string
		hitsErr   error
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sqlResult, sqlErr = ex.games.FetchCandidates(ctx, plan, sqlLimit, plan.Offset)
	}()
	go func() {
		defer wg.Done()
		hits, hitsWarn, hitsErr = ex.searchVectors(ctx, plan)
	}()
	wg.Wait()

	if sqlErr != nil {
		return Output{}, sqlErr
	}

	var warnings []string
	if hitsWarn != "" {
		warnings = append(warnings, "embedding provider unavailable, used fallback query vector: "+hitsWarn)
	}
	if hitsErr != nil {
		warnings = append(warnings, "vector search failed: "+sanitize.Error(hitsErr))
		hits = nil
	}

	merged := mergeVectorHits(hits)

	agentStatus, evalByGame, agentWarnings := ex.runAgentStage(ctx, plan, sqlResult.Summaries)
	warnings = append(warnings, agentWarnings...)

	results := make([]RankedResult, 0, len(sqlResult.Summaries))
	for _, summary := range sqlResult.Summaries {
		hit, hasHit := merged[summary.ID]
		ratingOK := RatingPredicate(plan.Rating, summary)
		matched, total := MatchedFilters(plan, summary)

		vScore := VectorScore(hasHit, float64(hit.score), ratingOK, matched, total)

		tokens := Tokenize(summary.White, summary.Black, summary.Event, summary.OpeningName, summary.OpeningSlug)
		if hasHit {
			tokens = mergeKeywords(tokens, hit.keywords)
		}
		kScore := KeywordScore(plan.Keywords, tokens)

		base := BaseTotal(vScore, kScore)

		result := RankedResult{
			Summary:      summary,
			VectorScore:  vScore,
			KeywordScore: kScore,
		}
		if hasHit {
			result.Phases = hit.phases
			result.Themes = hit.themes
			result.Keywords = hit.keywords
		}

		if eval, ok := evalByGame[summary.ID]; ok {
			score := eval.Score
			result.AgentScore = &score
			result.AgentExplanation = eval.Explanation
			result.AgentThemes = eval.Themes
			result.AgentReasoning = eval.ReasoningEffort
			if eval.Usage != (agent.Usage{}) {
				result.AgentUsage = &AgentUsage{
					InputTokens:     eval.Usage.InputTokens,
					OutputTokens:    eval.Usage.OutputTokens,
					ReasoningTokens: eval.Usage.ReasoningTokens,
				}
			}
			result.TotalScore = TotalScore(base, &score)
		} else {
			result.TotalScore = TotalScore(base, nil)
		}

		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TotalScore > results[j].TotalScore
	})

	if len(results) > plan.Limit {
		results = results[:plan.Limit]
	}

	return Output{
		Plan:        plan,
		Results:     results,
		Total:       sqlResult.Total,
		HasMore:     sqlResult.Total > plan.Offset+len(results),
		Warnings:    warnings,
		AgentStatus: agentStatus,
	}, nil
}

// candidateWindow computes the agent stage's candidate count:
// min(candidateMax, max(plan.Limit, plan.Limit*candidateMultiplier)),
// further capped by however many SQL candidates actually came back.
func (ex *Executor) candidateWindow(plan intent.Plan, available int) int {
	window := plan.Limit
	if want := plan.Limit * ex.candidateMultiplier; want > window {
		window = want
	}
	if window > ex.candidateMax {
		window = ex.candidateMax
	}
	if window > available {
		window = available
	}
	if window < 0 {
		window = 0
	}
	return window
}

// agentResult bundles one candidate's evaluation with the call-level
// metadata (reasoning effort, usage) the agent package keeps at the Result
// level rather than per Evaluation.
type agentResult struct {
	agent.Evaluation
	ReasoningEffort string
	Usage           agent.Usage
}

// runAgentStage runs the LLM re-ranking stage: circuit-breaker gate, bulk
// PGN fetch for the whole candidate window (the cache key includes the PGN),
// cache probe, a single batched evaluator call, and
// cache population of fresh results. It never returns an error; an agent
// failure degrades to warnings and an AgentStatus the caller reports
// alongside the (possibly partial) evaluation map, never to a failed
// request.
func (ex *Executor) runAgentStage(ctx context.Context, plan intent.Plan, summaries []repository.GameSummary) (AgentStatus, map[int64]agentResult, []string) {
	if ex.evaluator == nil {
		return AgentDisabled, nil, nil
	}
	if len(summaries) == 0 {
		return AgentEnabled, nil, nil
	}

	if ex.breaker != nil && !ex.breaker.Allow() {
		return AgentCircuitOpen, nil, []string{"agent stage skipped: circuit breaker is open"}
	}

	window := ex.candidateWindow(plan, len(summaries))
	candidates := summaries[:window]
	if len(candidates) == 0 {
		return AgentEnabled, nil, nil
	}

	ids := make([]int64, len(candidates))
	for i, s := range candidates {
		ids[i] = s.ID
	}
	pgns, err := ex.games.FetchPGNs(ctx, ids)
	if err != nil {
		if ex.breaker != nil {
			ex.breaker.RecordFailure()
		}
		return AgentEnabled, nil, []string{"agent stage: fetching pgns failed: " + sanitize.Error(err)}
	}

	evalByGame := make(map[int64]agentResult, len(candidates))
	summaryByID := make(map[int64]repository.GameSummary, len(candidates))
	var toEvaluate []agent.Candidate
	var warnings []string

	for _, s := range candidates {
		summaryByID[s.ID] = s
		pgn := pgns[s.ID]

		if ex.cache != nil {
			key := agentcache.Key(plan, s, pgn)
			entry, ok, cacheErr := ex.cache.Find(ctx, key)
			if cacheErr != nil {
				ex.log.Warn("agent cache lookup failed, treating as miss", "error", sanitize.Error(cacheErr))
			}
			if ok {
				if ex.metrics != nil {
					ex.metrics.AgentCacheHit()
				}
				r := agentResult{
					Evaluation: agent.Evaluation{
						GameID:      entry.GameID,
						Score:       entry.Score,
						Explanation: entry.Explanation,
						Themes:      entry.Themes,
					},
					ReasoningEffort: entry.ReasoningEffort,
				}
				if entry.Usage != nil {
					r.Usage = agent.Usage{
						InputTokens:     entry.Usage.InputTokens,
						OutputTokens:    entry.Usage.OutputTokens,
						ReasoningTokens: entry.Usage.ReasoningTokens,
					}
				}
				evalByGame[s.ID] = r
				continue
			}
			if ex.metrics != nil {
				ex.metrics.AgentCacheMiss()
			}
		}

		toEvaluate = append(toEvaluate, agent.Candidate{
			GameID:      s.ID,
			White:       s.White,
			Black:       s.Black,
			Result:      s.Result,
			OpeningName: s.OpeningName,
			PlayedOn:    s.PlayedOn,
			WhiteRating: s.WhiteRating,
			BlackRating: s.BlackRating,
			PGN:         pgn,
		})
	}

	if len(toEvaluate) == 0 {
		return AgentEnabled, evalByGame, warnings
	}

	callCtx, cancel := context.WithTimeout(ctx, ex.agentTimeout)
	defer cancel()

	started := time.Now()
	result, evalErr := ex.evaluator.Evaluate(callCtx, plan, toEvaluate)
	if ex.metrics != nil {
		ex.metrics.ObserveAgentEvaluation(time.Since(started), evalErr != nil)
	}
	if evalErr != nil {
		if ex.breaker != nil {
			ex.breaker.RecordFailure()
		}
		warnings = append(warnings, "agent evaluation failed: "+sanitize.Error(evalErr))
		return AgentEnabled, evalByGame, warnings
	}
	if ex.breaker != nil {
		ex.breaker.RecordSuccess()
	}

	pgnByID := make(map[int64]string, len(toEvaluate))
	for _, c := range toEvaluate {
		pgnByID[c.GameID] = c.PGN
	}

	for _, eval := range result.Evaluations {
		evalByGame[eval.GameID] = agentResult{
			Evaluation:      eval,
			ReasoningEffort: result.ReasoningEffort,
			Usage:           result.Usage,
		}
		if ex.cache == nil {
			continue
		}
		summary, ok := summaryByID[eval.GameID]
		if !ok {
			continue
		}
		key := agentcache.Key(plan, summary, pgnByID[eval.GameID])
		entry := agentcache.Entry{
			GameID:          eval.GameID,
			Score:           eval.Score,
			Explanation:     eval.Explanation,
			Themes:          eval.Themes,
			ReasoningEffort: result.ReasoningEffort,
			Usage: &agentcache.Usage{
				InputTokens:     result.Usage.InputTokens,
				OutputTokens:    result.Usage.OutputTokens,
				ReasoningTokens: result.Usage.ReasoningTokens,
			},
		}
		if storeErr := ex.cache.Store(ctx, key, entry); storeErr != nil {
			ex.log.Warn("agent cache store failed", "error", sanitize.Error(storeErr))
		}
	}

	return AgentEnabled, evalByGame, warnings
}

// searchVectors computes the query vector (falling back to a deterministic
// hash vector on provider failure) and searches the vector store. The
// returned warning is non-empty when the fallback vector was used.
func (ex *Executor) searchVectors(ctx context.Context, plan intent.Plan) ([]vectorstore.VectorHit, string, error) {
	vector, fallback := ex.queryVector(ctx, plan)
	if fallback != "" {
		ex.log.Warn("embedding provider unavailable, using hash fallback vector", "reason", fallback)
	}

	filters := vectorPayloadFilters(plan)
	limit := plan.Limit * 3
	if limit < 15 {
		limit = 15
	}
	hits, err := ex.vectors.Search(ctx, vector, filters, limit)
	return hits, fallback, err
}

// queryVector returns the query embedding, falling back to a deterministic
// hash vector (and a non-empty reason string) when no provider is configured
// or the provider call fails.
func (ex *Executor) queryVector(ctx context.Context, plan intent.Plan) ([]float32, string) {
	if ex.embeddings == nil {
		return embedding.HashVector(ex.vectorDimension, plan.CleanedText), "no embedding provider configured"
	}
	vector, err := ex.embeddings.Embed(ctx, plan.CleanedText)
	if err != nil {
		return embedding.HashVector(ex.embeddings.Dimension(), plan.CleanedText), sanitize.Error(err)
	}
	return vector, ""
}

// vectorPayloadFilters maps plan filters plus rating minima onto the vector
// store's payload predicates. eco_range is excluded (the SQL layer handles
// it as a range predicate); result has no analogue in the point payload, so
// it is not pushed down either; scoring still enforces it via
// MatchedFilters against the relational summary. MaxRatingDelta is likewise
// a relational concern (it relates two payload fields, which the store's
// predicate language cannot express).
func vectorPayloadFilters(plan intent.Plan) []vectorstore.PayloadFilter {
	var filters []vectorstore.PayloadFilter
	for _, f := range plan.Filters {
		switch f.Field {
		case intent.FieldOpening:
			filters = append(filters, vectorstore.PayloadFilter{Field: "opening_slug", Value: f.Value})
		case intent.FieldPhase:
			filters = append(filters, vectorstore.PayloadFilter{Field: "phases", Value: f.Value})
		case intent.FieldTheme:
			filters = append(filters, vectorstore.PayloadFilter{Field: "themes", Value: f.Value})
		}
	}
	if plan.Rating.WhiteMin != nil {
		filters = append(filters, vectorstore.PayloadFilter{Field: "white_rating", Min: plan.Rating.WhiteMin})
	}
	if plan.Rating.BlackMin != nil {
		filters = append(filters, vectorstore.PayloadFilter{Field: "black_rating", Min: plan.Rating.BlackMin})
	}
	return filters
}

// mergedVectorHit is the per-game aggregation of one or more VectorHits.
type mergedVectorHit struct {
	score    float32
	phases   []string
	themes   []string
	keywords []string
}

// mergeVectorHits merges multiple points per game into one hit: max score,
// union of metadata (case-folded, sorted, deduplicated).
func mergeVectorHits(hits []vectorstore.VectorHit) map[int64]mergedVectorHit {
	out := make(map[int64]mergedVectorHit, len(hits))
	phaseSets := make(map[int64]map[string]struct{})
	themeSets := make(map[int64]map[string]struct{})
	keywordSets := make(map[int64]map[string]struct{})

	for _, h := range hits {
		m, ok := out[h.GameID]
		if !ok {
			m = mergedVectorHit{score: h.Score}
			phaseSets[h.GameID] = make(map[string]struct{})
			themeSets[h.GameID] = make(map[string]struct{})
			keywordSets[h.GameID] = make(map[string]struct{})
		} else if h.Score > m.score {
			m.score = h.Score
		}
		addFolded(phaseSets[h.GameID], h.Phases)
		addFolded(themeSets[h.GameID], h.Themes)
		addFolded(keywordSets[h.GameID], h.Keywords)
		out[h.GameID] = m
	}

	for gameID, m := range out {
		m.phases = sortedKeys(phaseSets[gameID])
		m.themes = sortedKeys(themeSets[gameID])
		m.keywords = sortedKeys(keywordSets[gameID])
		out[gameID] = m
	}
	return out
}

func addFolded(set map[string]struct{}, values []string) {
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
