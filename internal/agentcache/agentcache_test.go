package agentcache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hendrikreh/chessmate/internal/intent"
	"github.com/hendrikreh/chessmate/internal/repository"
)

func TestKey_DeterministicAcrossCalls(t *testing.T) {
	plan := intent.Plan{CleanedText: "french defense endgames", Keywords: []string{"french", "endgames"}, Limit: 10}
	summary := repository.GameSummary{OpeningSlug: "french_defense", Result: "1/2-1/2"}

	k1 := Key(plan, summary, "1.e4 e6")
	k2 := Key(plan, summary, "1.e4 e6")
	assert.Equal(t, k1, k2)

	k3 := Key(plan, summary, "1.d4 d5")
	assert.NotEqual(t, k1, k3)
}

func TestEntry_JSONRoundTrip(t *testing.T) {
	in := Entry{
		GameID:          7,
		Score:           0.85,
		Explanation:     "sharp kingside attack",
		Themes:          []string{"sacrifice", "king_attack"},
		ReasoningEffort: "high",
		Usage:           &Usage{InputTokens: 1200, OutputTokens: 300, ReasoningTokens: 80},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out Entry
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestLRUCache_StoreThenFindWithinCapacity(t *testing.T) {
	cache := NewLRUCache(8)
	ctx := context.Background()

	entry := Entry{GameID: 42, Score: 0.9}
	require.NoError(t, cache.Store(ctx, "k1", entry))

	got, ok, err := cache.Find(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), got.GameID)
}

func TestLRUCache_EvictsOldestBeyondCapacity(t *testing.T) {
	cache := NewLRUCache(2)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, "a", Entry{GameID: 1}))
	require.NoError(t, cache.Store(ctx, "b", Entry{GameID: 2}))
	require.NoError(t, cache.Store(ctx, "c", Entry{GameID: 3}))

	_, ok, _ := cache.Find(ctx, "a")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok2, _ := cache.Find(ctx, "c")
	assert.True(t, ok2)
}
