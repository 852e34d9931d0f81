package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/hendrikreh/chessmate/internal/intent"
)

const (
	// DefaultModel is the default evaluator model.
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds a single evaluator call when the caller does
	// not supply one.
	DefaultTimeout = 20 * time.Second

	// maxPGNChars is the PGN truncation budget per candidate in the prompt.
	maxPGNChars = 3000

	// maxTelemetryQuestionChars bounds the question text echoed into the
	// telemetry event, kept well short of the PGN budget since it's a log
	// line, not a prompt.
	maxTelemetryQuestionChars = 200

	ellipsis = "..."
)

// OpenAIEvaluator implements Evaluator against the OpenAI chat completions
// API, scoring a batch of candidates in a single call.
type OpenAIEvaluator struct {
	client   openai.Client
	model    string
	timeout  time.Duration
	log      *slog.Logger
	rateCard RateCard

	effortOverride    string
	verbosityOverride string
}

// OpenAIEvaluatorOption configures an OpenAIEvaluator.
type OpenAIEvaluatorOption func(*OpenAIEvaluator)

// WithModel overrides the default evaluator model.
func WithModel(model string) OpenAIEvaluatorOption {
	return func(e *OpenAIEvaluator) {
		if model != "" {
			e.model = model
		}
	}
}

// WithTimeout overrides the default per-call timeout.
func WithTimeout(d time.Duration) OpenAIEvaluatorOption {
	return func(e *OpenAIEvaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger overrides the logger telemetry events are emitted to.
func WithLogger(log *slog.Logger) OpenAIEvaluatorOption {
	return func(e *OpenAIEvaluator) {
		if log != nil {
			e.log = log
		}
	}
}

// WithReasoningEffort pins reasoning effort (AGENT_REASONING_EFFORT) instead
// of deriving it per query. Empty keeps the per-query heuristic.
func WithReasoningEffort(effort string) OpenAIEvaluatorOption {
	return func(e *OpenAIEvaluator) { e.effortOverride = effort }
}

// WithVerbosity pins response verbosity (AGENT_VERBOSITY) instead of
// deriving it per query. Empty keeps the per-query heuristic.
func WithVerbosity(verbosity string) OpenAIEvaluatorOption {
	return func(e *OpenAIEvaluator) { e.verbosityOverride = verbosity }
}

// WithRateCard sets the per-1K-token rates used to derive telemetry cost.
func WithRateCard(rc RateCard) OpenAIEvaluatorOption {
	return func(e *OpenAIEvaluator) {
		e.rateCard = rc
	}
}

// NewOpenAIEvaluator builds an evaluator authenticated with apiKey.
func NewOpenAIEvaluator(apiKey string, opts ...OpenAIEvaluatorOption) *OpenAIEvaluator {
	e := &OpenAIEvaluator{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   DefaultModel,
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type evaluationResponse struct {
	Evaluations []rawEvaluationEntry `json:"evaluations"`
}

// rawEvaluationEntry tolerates a missing game_id or score: such entries are
// dropped individually instead of failing the whole unmarshal.
type rawEvaluationEntry struct {
	GameID      *int64   `json:"game_id"`
	Score       *float64 `json:"score"`
	Explanation string   `json:"explanation,omitempty"`
	Themes      []string `json:"themes,omitempty"`
}

// Evaluate scores candidates against plan's question in a single LLM call.
// Reasoning effort and verbosity are derived from the plan's filters and
// keywords unless pinned with WithReasoningEffort/WithVerbosity.
func (e *OpenAIEvaluator) Evaluate(ctx context.Context, plan intent.Plan, candidates []Candidate) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, fmt.Errorf("agent: no candidates to evaluate")
	}

	effort := ReasoningEffort(plan.HasThemeFilter(), len(plan.Keywords))
	if e.effortOverride != "" {
		effort = e.effortOverride
	}
	verbosity := Verbosity(len(plan.Filters), len(plan.Keywords))
	if e.verbosityOverride != "" {
		verbosity = e.verbosityOverride
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	system := "You are a chess analyst. Score each candidate game's relevance to the user's question " +
		"on a scale from 0.0 to 1.0. Use " + verbosity + " verbosity in explanations. Respond with JSON only."
	user := buildUserPrompt(plan.CleanedText, candidates)

	started := time.Now()
	completion, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ReasoningEffort: openai.ReasoningEffort(effort),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "candidate_evaluations",
					Schema: evaluationJSONSchema(),
					Strict: openai.Bool(true),
				},
			},
		},
	})
	latency := time.Since(started)

	if err != nil {
		e.emitTelemetry(plan, len(candidates), 0, effort, latency, Usage{})
		return Result{}, fmt.Errorf("agent: evaluation call failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		e.emitTelemetry(plan, len(candidates), 0, effort, latency, Usage{})
		return Result{}, fmt.Errorf("agent: evaluation call returned no choices")
	}

	content := completion.Choices[0].Message.Content
	evaluations, err := parseEvaluations(content)
	if err != nil {
		e.emitTelemetry(plan, len(candidates), 0, effort, latency, Usage{})
		return Result{}, fmt.Errorf("agent: %w", err)
	}
	if len(evaluations) == 0 {
		e.emitTelemetry(plan, len(candidates), 0, effort, latency, Usage{})
		return Result{}, fmt.Errorf("agent: evaluation response had no usable entries")
	}

	usage := Usage{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}
	if completion.Usage.CompletionTokensDetails.ReasoningTokens > 0 {
		usage.ReasoningTokens = int(completion.Usage.CompletionTokensDetails.ReasoningTokens)
	}

	e.emitTelemetry(plan, len(candidates), len(evaluations), effort, latency, usage)

	return Result{
		Evaluations:     evaluations,
		ReasoningEffort: effort,
		Verbosity:       verbosity,
		Usage:           usage,
		Latency:         latency,
	}, nil
}

// emitTelemetry logs the structured per-call event, success or failure.
func (e *OpenAIEvaluator) emitTelemetry(plan intent.Plan, candidateCount, evaluated int, effort string, latency time.Duration, usage Usage) {
	event := TelemetryEvent{
		Event:             "agent_evaluation",
		Timestamp:         time.Now(),
		QuestionTruncated: truncateQuestion(plan.CleanedText, maxTelemetryQuestionChars),
		CandidateCount:    candidateCount,
		Evaluated:         evaluated,
		ReasoningEffort:   effort,
		LatencyMs:         latency.Milliseconds(),
		InputTokens:       usage.InputTokens,
		OutputTokens:      usage.OutputTokens,
		ReasoningTokens:   usage.ReasoningTokens,
		Cost:              e.rateCard.Compute(usage),
	}
	e.log.Info("agent evaluation", "telemetry", event)
}

func parseEvaluations(content string) ([]Evaluation, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty response body")
	}

	var parsed evaluationResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	out := make([]Evaluation, 0, len(parsed.Evaluations))
	for _, raw := range parsed.Evaluations {
		if raw.GameID == nil || raw.Score == nil {
			continue
		}
		out = append(out, Evaluation{
			GameID:      *raw.GameID,
			Score:       clampScore(*raw.Score),
			Explanation: raw.Explanation,
			Themes:      dedupeThemes(raw.Themes),
		})
	}
	return out, nil
}

func buildUserPrompt(question string, candidates []Candidate) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nCandidates:\n")

	for _, c := range candidates {
		sb.WriteString(fmt.Sprintf("[game %d] %s vs %s, result %s, opening %s", c.GameID, c.White, c.Black, c.Result, c.OpeningName))
		if c.PlayedOn != nil {
			sb.WriteString(", played " + c.PlayedOn.Format("2006-01-02"))
		}
		if c.WhiteRating != nil || c.BlackRating != nil {
			sb.WriteString(fmt.Sprintf(", ratings %s/%s", ratingString(c.WhiteRating), ratingString(c.BlackRating)))
		}
		sb.WriteString("\nPGN: ")
		sb.WriteString(truncatePGN(c.PGN))
		sb.WriteString("\n\n")
	}

	sb.WriteString(`Output JSON only: {"evaluations":[{"game_id":<int>,"score":<0..1>,"explanation":"<short>","themes":["..."]}]}`)
	return sb.String()
}

func truncatePGN(pgn string) string {
	if len(pgn) <= maxPGNChars {
		return pgn
	}
	return pgn[:maxPGNChars] + ellipsis
}

func ratingString(v *int) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *v)
}

func evaluationJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"evaluations": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"game_id":     map[string]any{"type": "integer"},
						"score":       map[string]any{"type": "number"},
						"explanation": map[string]any{"type": "string"},
						"themes":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []string{"game_id", "score"},
				},
			},
		},
		"required": []string{"evaluations"},
	}
}

var _ Evaluator = (*OpenAIEvaluator)(nil)
