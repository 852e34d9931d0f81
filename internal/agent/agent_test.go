package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasoningEffort(t *testing.T) {
	assert.Equal(t, "high", ReasoningEffort(true, 0))
	assert.Equal(t, "high", ReasoningEffort(false, 4))
	assert.Equal(t, "medium", ReasoningEffort(false, 3))
	assert.Equal(t, "medium", ReasoningEffort(false, 0))
}

func TestVerbosity(t *testing.T) {
	assert.Equal(t, "low", Verbosity(1, 2))
	assert.Equal(t, "low", Verbosity(0, 0))
	assert.Equal(t, "medium", Verbosity(2, 0))
	assert.Equal(t, "medium", Verbosity(0, 3))
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, clampScore(-0.5))
	assert.Equal(t, 1.0, clampScore(1.5))
	assert.Equal(t, 0.5, clampScore(0.5))
}

func TestDedupeThemes(t *testing.T) {
	got := dedupeThemes([]string{"sacrifice", "", "sacrifice", "endgame"})
	assert.Equal(t, []string{"sacrifice", "endgame"}, got)
}

func TestTruncateQuestion(t *testing.T) {
	assert.Equal(t, "hello", truncateQuestion("hello", 10))
	assert.Equal(t, "he...", truncateQuestion("hello world", 2))
}

func TestRateCard_Compute(t *testing.T) {
	var zero RateCard
	assert.Nil(t, zero.Compute(Usage{InputTokens: 100}))

	rc := RateCard{InputPer1K: 1.0, OutputPer1K: 2.0, ReasoningPer1K: 4.0}
	cost := rc.Compute(Usage{InputTokens: 1000, OutputTokens: 500, ReasoningTokens: 250})
	assert.NotNil(t, cost)
	assert.InDelta(t, 1.0, cost.Input, 1e-9)
	assert.InDelta(t, 1.0, cost.Output, 1e-9)
	assert.InDelta(t, 1.0, cost.Reasoning, 1e-9)
	assert.InDelta(t, 3.0, cost.Total, 1e-9)
}
