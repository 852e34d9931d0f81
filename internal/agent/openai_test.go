package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvaluations_DropsIncompleteEntries(t *testing.T) {
	body := `{"evaluations":[
		{"game_id":1,"score":0.9,"explanation":"sharp attack","themes":["sacrifice","sacrifice"]},
		{"score":0.5},
		{"game_id":3,"score":1.4}
	]}`

	evaluations, err := parseEvaluations(body)
	require.NoError(t, err)
	require.Len(t, evaluations, 2)

	assert.Equal(t, int64(1), evaluations[0].GameID)
	assert.Equal(t, 0.9, evaluations[0].Score)
	assert.Equal(t, []string{"sacrifice"}, evaluations[0].Themes)

	assert.Equal(t, int64(3), evaluations[1].GameID)
	assert.Equal(t, 1.0, evaluations[1].Score, "score above 1 must be clamped")
}

func TestParseEvaluations_RejectsEmptyBody(t *testing.T) {
	_, err := parseEvaluations("   ")
	assert.Error(t, err)
}

func TestParseEvaluations_RejectsMalformedJSON(t *testing.T) {
	_, err := parseEvaluations("not json")
	assert.Error(t, err)
}

func TestTruncatePGN(t *testing.T) {
	short := "1. e4 e5"
	assert.Equal(t, short, truncatePGN(short))

	long := strings.Repeat("x", maxPGNChars+10)
	got := truncatePGN(long)
	assert.True(t, strings.HasSuffix(got, ellipsis))
	assert.Equal(t, maxPGNChars+len(ellipsis), len(got))
}

func TestRatingString(t *testing.T) {
	assert.Equal(t, "?", ratingString(nil))
	v := 2100
	assert.Equal(t, "2100", ratingString(&v))
}

func TestBuildUserPrompt_IncludesQuestionAndCandidates(t *testing.T) {
	prompt := buildUserPrompt("sharp sacrifices in the Sicilian", []Candidate{
		{GameID: 7, White: "Tal", Black: "Botvinnik", Result: "1-0", OpeningName: "Sicilian Defense", PGN: "1. e4 c5"},
	})
	assert.Contains(t, prompt, "sharp sacrifices in the Sicilian")
	assert.Contains(t, prompt, "[game 7]")
	assert.Contains(t, prompt, "Tal")
	assert.Contains(t, prompt, "Sicilian Defense")
}

func TestEvaluationJSONSchema_RequiresGameIDAndScore(t *testing.T) {
	schema := evaluationJSONSchema()
	required, ok := schema["required"].([]string)
	require.True(t, ok)
	assert.Contains(t, required, "evaluations")

	items := schema["properties"].(map[string]any)["evaluations"].(map[string]any)["items"].(map[string]any)
	itemRequired, ok := items["required"].([]string)
	require.True(t, ok)
	assert.Contains(t, itemRequired, "game_id")
	assert.Contains(t, itemRequired, "score")
}

func TestNewOpenAIEvaluator_DefaultsAndOptions(t *testing.T) {
	rc := RateCard{InputPer1K: 1}
	e := NewOpenAIEvaluator("test-key", WithModel("gpt-5"), WithRateCard(rc))
	assert.Equal(t, "gpt-5", e.model)
	assert.Equal(t, rc, e.rateCard)
	assert.Equal(t, DefaultTimeout, e.timeout)
	assert.NotNil(t, e.log)
}
