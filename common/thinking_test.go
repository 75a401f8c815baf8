package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThinkingLevelBudgetTokens(t *testing.T) {
	assert.Equal(t, 0, ThinkingOff.BudgetTokens(100000))
	assert.Equal(t, 50000, ThinkingMedium.BudgetTokens(100000))
	assert.Equal(t, 95000, ThinkingXHigh.BudgetTokens(100000))
	// clamped to the floor even for a tiny max_tokens
	assert.Equal(t, minThinkingBudgetTokens, ThinkingMinimal.BudgetTokens(1000))
}

func TestThinkingLevelEffortLabel(t *testing.T) {
	assert.Equal(t, "", ThinkingOff.EffortLabel())
	assert.Equal(t, "high", ThinkingHigh.EffortLabel())
}

func TestParseThinkingLevel(t *testing.T) {
	lvl, err := ParseThinkingLevel("")
	require.NoError(t, err)
	assert.Equal(t, ThinkingOff, lvl)

	lvl, err = ParseThinkingLevel("xhigh")
	require.NoError(t, err)
	assert.Equal(t, ThinkingXHigh, lvl)

	_, err = ParseThinkingLevel("extreme")
	require.Error(t, err)
}

func TestResolveMaxTokens(t *testing.T) {
	assert.Equal(t, 4096, ResolveMaxTokens(4096, 8192))
	assert.Equal(t, 8191, ResolveMaxTokens(0, 8192))
}
