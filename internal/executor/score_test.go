package executor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hendrikreh/chessmate/internal/intent"
	"github.com/hendrikreh/chessmate/internal/repository"
)

func TestECOInRange(t *testing.T) {
	assert.True(t, ecoInRange("A10", "A10-A39"))
	assert.True(t, ecoInRange("A25", "A10-A39"))
	assert.True(t, ecoInRange("A39", "A10-A39"))
	assert.False(t, ecoInRange("A09", "A10-A39"))
	assert.False(t, ecoInRange("A40", "A10-A39"))
	assert.False(t, ecoInRange("", "A10-A39"))

	assert.True(t, ecoInRange("B01", "B01"))
	assert.False(t, ecoInRange("B02", "B01"))
}

func TestKeywordScore_EmptyKeywordsIsZero(t *testing.T) {
	tokens := Tokenize("Carlsen", "Nepomniachtchi")
	assert.Equal(t, 0.0, KeywordScore(nil, tokens))
}

func TestKeywordScore_PartialOverlap(t *testing.T) {
	tokens := Tokenize("Sicilian Defense", "Tal Memorial")
	score := KeywordScore([]string{"sicilian", "endgame"}, tokens)
	assert.Equal(t, 0.5, score)
}

func TestVectorScore_FallbackPaths(t *testing.T) {
	// Rating predicate failure zeroes the score regardless of a hit.
	assert.Equal(t, 0.0, VectorScore(true, 0.9, false, 0, 0))

	// No hit, no filters.
	assert.Equal(t, 0.6, VectorScore(false, 0, true, 0, 0))

	// No hit, half the filters matched.
	assert.InDelta(t, 0.7, VectorScore(false, 0, true, 1, 2), 1e-9)

	// A hit normalizes and clamps.
	assert.Equal(t, 1.0, VectorScore(true, 1.7, true, 0, 0))
	assert.Equal(t, 0.0, VectorScore(true, math.NaN(), true, 0, 0))
}

func TestTotalScore_AgentBlendIsClamped(t *testing.T) {
	assert.InDelta(t, 0.5, TotalScore(0.5, nil), 1e-9)

	agent := 1.0
	assert.InDelta(t, 0.6*0.9+0.4, TotalScore(0.9, &agent), 1e-9)
	assert.LessOrEqual(t, TotalScore(2.0, &agent), 1.0)
}

func TestRatingPredicate_FailsClosedOnMissingRatings(t *testing.T) {
	min := 2400
	delta := 100
	w, b := 2500, 2450

	assert.True(t, RatingPredicate(intent.Rating{}, repository.GameSummary{}))
	assert.False(t, RatingPredicate(intent.Rating{WhiteMin: &min}, repository.GameSummary{}))
	assert.True(t, RatingPredicate(intent.Rating{WhiteMin: &min, MaxRatingDelta: &delta},
		repository.GameSummary{WhiteRating: &w, BlackRating: &b}))
	assert.False(t, RatingPredicate(intent.Rating{MaxRatingDelta: &delta},
		repository.GameSummary{WhiteRating: &w}))
}
