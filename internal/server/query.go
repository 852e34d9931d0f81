package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hendrikreh/chessmate/internal/executor"
	"github.com/hendrikreh/chessmate/internal/intent"
	"github.com/hendrikreh/chessmate/internal/sanitize"
)

// filterDTO is the wire shape of one intent.Filter.
type filterDTO struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ratingDTO is the wire shape of intent.Rating.
type ratingDTO struct {
	WhiteMin       *int `json:"white_min,omitempty"`
	BlackMin       *int `json:"black_min,omitempty"`
	MaxRatingDelta *int `json:"max_rating_delta,omitempty"`
}

// planDTO is the wire shape of intent.Plan.
type planDTO struct {
	CleanedText string      `json:"cleaned_text"`
	Limit       int         `json:"limit"`
	Offset      int         `json:"offset"`
	Filters     []filterDTO `json:"filters"`
	Keywords    []string    `json:"keywords"`
	Rating      ratingDTO   `json:"rating"`
}

// usageDTO is the wire shape of executor.AgentUsage.
type usageDTO struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	ReasoningTokens int `json:"reasoning_tokens"`
}

// resultDTO is one entry of the results array on the wire.
type resultDTO struct {
	GameID               int64     `json:"game_id"`
	White                string    `json:"white"`
	Black                string    `json:"black"`
	Result               string    `json:"result"`
	Year                 int       `json:"year,omitempty"`
	Event                string    `json:"event,omitempty"`
	OpeningSlug          string    `json:"opening_slug,omitempty"`
	OpeningName          string    `json:"opening_name,omitempty"`
	ECO                  string    `json:"eco,omitempty"`
	Phases               []string  `json:"phases,omitempty"`
	Themes               []string  `json:"themes,omitempty"`
	Keywords             []string  `json:"keywords,omitempty"`
	WhiteElo             *int      `json:"white_elo,omitempty"`
	BlackElo             *int      `json:"black_elo,omitempty"`
	Synopsis             string    `json:"synopsis"`
	Score                float64   `json:"score"`
	VectorScore          float64   `json:"vector_score"`
	KeywordScore         float64   `json:"keyword_score"`
	AgentScore           *float64  `json:"agent_score,omitempty"`
	AgentExplanation     string    `json:"agent_explanation,omitempty"`
	AgentThemes          []string  `json:"agent_themes,omitempty"`
	AgentReasoningEffort string    `json:"agent_reasoning_effort,omitempty"`
	AgentUsage           *usageDTO `json:"agent_usage,omitempty"`
}

// queryResponse is the full GET/POST /query 200 JSON body.
type queryResponse struct {
	Question    string      `json:"question"`
	Plan        planDTO     `json:"plan"`
	Summary     string      `json:"summary"`
	Results     []resultDTO `json:"results"`
	Total       int         `json:"total"`
	Offset      int         `json:"offset"`
	HasMore     bool        `json:"has_more"`
	AgentStatus string      `json:"agent_status"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// queryRequestBody is the POST /query JSON body.
type queryRequestBody struct {
	Question string `json:"question"`
	Limit    *int   `json:"limit,omitempty"`
	Offset   *int   `json:"offset,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	question, limit, offset, ok := s.parseQueryRequest(w, r)
	if !ok {
		return
	}

	plan := intent.Analyse(intent.Request{Text: question, Limit: limit, Offset: offset}, s.maxQueryLimit, s.defaultQueryLimit)

	out, err := s.executor.Execute(r.Context(), plan)
	if err != nil {
		s.log.Error("query execution failed", "error", sanitize.Error(err))
		writeJSONError(w, http.StatusInternalServerError, sanitize.Error(err))
		return
	}

	resp := buildQueryResponse(question, out)
	writeJSON(w, http.StatusOK, resp)
}

// parseQueryRequest extracts (question, limit, offset) from either a GET
// query string or a POST JSON body, writing a 400 response and returning
// ok=false when the question is missing.
func (s *Server) parseQueryRequest(w http.ResponseWriter, r *http.Request) (question string, limit, offset *int, ok bool) {
	if r.Method == http.MethodPost {
		var body queryRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return "", nil, nil, false
		}
		question = body.Question
		limit = body.Limit
		offset = body.Offset
	} else {
		q := r.URL.Query()
		question = q.Get("q")
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = &n
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				offset = &n
			}
		}
	}

	if question == "" {
		writeJSONError(w, http.StatusBadRequest, "question parameter missing")
		return "", nil, nil, false
	}
	return question, limit, offset, true
}

// buildQueryResponse maps an executor.Output onto the response wire shape.
func buildQueryResponse(question string, out executor.Output) queryResponse {
	filters := make([]filterDTO, len(out.Plan.Filters))
	for i, f := range out.Plan.Filters {
		filters[i] = filterDTO{Field: string(f.Field), Value: f.Value}
	}

	results := make([]resultDTO, len(out.Results))
	for i, r := range out.Results {
		results[i] = buildResultDTO(r)
	}

	return queryResponse{
		Question: question,
		Plan: planDTO{
			CleanedText: out.Plan.CleanedText,
			Limit:       out.Plan.Limit,
			Offset:      out.Plan.Offset,
			Filters:     filters,
			Keywords:    out.Plan.Keywords,
			Rating: ratingDTO{
				WhiteMin:       out.Plan.Rating.WhiteMin,
				BlackMin:       out.Plan.Rating.BlackMin,
				MaxRatingDelta: out.Plan.Rating.MaxRatingDelta,
			},
		},
		Summary:     summarize(out),
		Results:     results,
		Total:       out.Total,
		Offset:      out.Plan.Offset,
		HasMore:     out.HasMore,
		AgentStatus: string(out.AgentStatus),
		Warnings:    out.Warnings,
	}
}

func buildResultDTO(r executor.RankedResult) resultDTO {
	dto := resultDTO{
		GameID:               r.Summary.ID,
		White:                r.Summary.White,
		Black:                r.Summary.Black,
		Result:               r.Summary.Result,
		Event:                r.Summary.Event,
		OpeningSlug:          r.Summary.OpeningSlug,
		OpeningName:          r.Summary.OpeningName,
		ECO:                  r.Summary.ECOCode,
		Phases:               r.Phases,
		Themes:               r.Themes,
		Keywords:             r.Keywords,
		WhiteElo:             r.Summary.WhiteRating,
		BlackElo:             r.Summary.BlackRating,
		Score:                r.TotalScore,
		VectorScore:          r.VectorScore,
		KeywordScore:         r.KeywordScore,
		AgentScore:           r.AgentScore,
		AgentExplanation:     r.AgentExplanation,
		AgentThemes:          r.AgentThemes,
		AgentReasoningEffort: r.AgentReasoning,
	}
	if r.Summary.PlayedOn != nil {
		dto.Year = r.Summary.PlayedOn.Year()
	}
	if r.AgentUsage != nil {
		dto.AgentUsage = &usageDTO{
			InputTokens:     r.AgentUsage.InputTokens,
			OutputTokens:    r.AgentUsage.OutputTokens,
			ReasoningTokens: r.AgentUsage.ReasoningTokens,
		}
	}
	dto.Synopsis = synopsis(r)
	return dto
}

// synopsis builds the one-line human-readable summary for a result. It
// never depends on the agent stage, so it is present even when agent_status
// is "disabled"; agent_explanation carries the LLM's own narrative
// separately.
func synopsis(r executor.RankedResult) string {
	year := ""
	if r.Summary.PlayedOn != nil {
		year = fmt.Sprintf(" (%d)", r.Summary.PlayedOn.Year())
	}
	opening := r.Summary.OpeningName
	if opening == "" {
		opening = "an unspecified opening"
	}
	return fmt.Sprintf("%s vs %s%s: %s, result %s", r.Summary.White, r.Summary.Black, year, opening, r.Summary.Result)
}

// summarize builds the top-level human-readable summary line describing the
// overall result set.
func summarize(out executor.Output) string {
	if len(out.Results) == 0 {
		return "No games matched this query."
	}
	return fmt.Sprintf("Found %d matching game(s), showing %d.", out.Total, len(out.Results))
}
