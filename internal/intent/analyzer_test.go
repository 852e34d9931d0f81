package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyse_KingsIndianFilter(t *testing.T) {
	req := Request{Text: "Find King's Indian games where White is 2500 and Black 100 points lower"}
	plan := Analyse(req, 500, 50)

	assert.Contains(t, plan.Filters, Filter{Field: FieldOpening, Value: "kings_indian_defense"})
	assert.Contains(t, plan.Filters, Filter{Field: FieldECORange, Value: "E60-E99"})
	require.NotNil(t, plan.Rating.WhiteMin)
	assert.Equal(t, 2500, *plan.Rating.WhiteMin)
	require.NotNil(t, plan.Rating.MaxRatingDelta)
	assert.Equal(t, 100, *plan.Rating.MaxRatingDelta)
	assert.Equal(t, 50, plan.Limit)
}

func TestAnalyse_FrenchDraws(t *testing.T) {
	req := Request{Text: "Show five French Defense endgames that end in a draw"}
	plan := Analyse(req, 500, 50)

	assert.Equal(t, 5, plan.Limit)
	assert.Contains(t, plan.Filters, Filter{Field: FieldOpening, Value: "french_defense"})
	assert.Contains(t, plan.Filters, Filter{Field: FieldECORange, Value: "C00-C19"})
	assert.Contains(t, plan.Filters, Filter{Field: FieldPhase, Value: "endgame"})
	assert.Contains(t, plan.Filters, Filter{Field: FieldResult, Value: "1/2-1/2"})
}

func TestAnalyse_RandomFive(t *testing.T) {
	req := Request{Text: "Show me 5 random games"}
	plan := Analyse(req, 500, 50)

	assert.Equal(t, 5, plan.Limit)
	assert.Empty(t, plan.Filters)
	assert.Equal(t, []string{"random", "games"}, plan.Keywords)
}

func TestAnalyse_Deterministic(t *testing.T) {
	req := Request{Text: "Find tactical King's Indian games with sacrifices"}
	first := Analyse(req, 500, 50)
	second := Analyse(req, 500, 50)
	assert.True(t, first.Equal(second))
}

func TestAnalyse_LimitBoundaries(t *testing.T) {
	zero := 0
	over := 5000
	req := Request{Text: "random games", Limit: &zero}
	plan := Analyse(req, 500, 50)
	assert.Equal(t, 1, plan.Limit)

	req2 := Request{Text: "random games", Limit: &over}
	plan2 := Analyse(req2, 500, 50)
	assert.Equal(t, 500, plan2.Limit)
}

func TestAnalyse_EmptyKeywordsOnPunctuationOnly(t *testing.T) {
	req := Request{Text: "??? !!! ..."}
	plan := Analyse(req, 500, 50)
	assert.Empty(t, plan.Keywords)
	assert.Empty(t, plan.Filters)
}

func TestAnalyse_UnicodeNormalizesWithoutCrash(t *testing.T) {
	req := Request{Text: "Zeige Partien von Müller — Réti Eröffnung ♞"}
	plan := Analyse(req, 500, 50)
	assert.Equal(t, plan.CleanedText, Analyse(req, 500, 50).CleanedText)
	assert.NotContains(t, plan.CleanedText, "♞")
}

func TestAnalyse_FrenchDefenseEmitsECORange(t *testing.T) {
	req := Request{Text: "french defense games"}
	plan := Analyse(req, 500, 50)
	assert.Contains(t, plan.Filters, Filter{Field: FieldECORange, Value: "C00-C19"})
}
