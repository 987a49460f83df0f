package prompt

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmind-ai/opsmind/types"
)

// numberedTurns builds n alternating user/assistant turns with unique
// content and the given token count each.
func numberedTurns(n, tokens int) []types.ConversationTurn {
	turns := make([]types.ConversationTurn, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range turns {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		turns[i] = types.ConversationTurn{
			Role:       role,
			Content:    fmt.Sprintf("turn-%03d", i),
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			TokenCount: tokens,
			Relevance:  1.0,
		}
	}
	return turns
}

func contents(turns []types.ConversationTurn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Content
	}
	return out
}

func TestHistoryOptimizer_EmptyHistory(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	out, err := o.Optimize(nil, HistoryOptions{Strategy: StrategyRecentMessages, MaxTokens: 100})
	require.NoError(t, err)
	assert.Empty(t, out.Turns)
	assert.Equal(t, 0, out.MessagesRemoved)
}

func TestHistoryOptimizer_RecentKeepsSuffix(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	turns := numberedTurns(10, 100)
	out, err := o.Optimize(turns, HistoryOptions{
		Strategy:  StrategyRecentMessages,
		MaxTokens: 350, // room for 3 turns
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"turn-007", "turn-008", "turn-009"}, contents(out.Turns))
	assert.Equal(t, 7, out.MessagesRemoved)
	assert.Equal(t, StrategyRecentMessages, out.StrategyApplied)
	assert.Equal(t, 1000, out.OriginalTokens)
	assert.Equal(t, 300, out.FinalTokens)
}

// Scenario: three turns, minimum of five. Nothing can be trimmed below what
// exists; everything comes back unchanged.
func TestHistoryOptimizer_MinimumLargerThanHistory(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	turns := numberedTurns(3, 100)
	out, err := o.Optimize(turns, HistoryOptions{
		Strategy:          StrategyRecentMessages,
		MinRecentMessages: 5,
		MaxTokens:         150,
	})
	require.NoError(t, err)

	assert.Equal(t, contents(turns), contents(out.Turns))
	assert.Equal(t, 0, out.MessagesRemoved)
	assert.NotEmpty(t, out.Warnings) // protected minimum does not fit the ceiling
}

func TestHistoryOptimizer_RecentProtectedWindowSurvives(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	turns := numberedTurns(10, 100)
	out, err := o.Optimize(turns, HistoryOptions{
		Strategy:          StrategyRecentMessages,
		MinRecentMessages: 5,
		MaxTokens:         200, // fits two turns, but five are protected
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"turn-005", "turn-006", "turn-007", "turn-008", "turn-009"}, contents(out.Turns))
}

func TestHistoryOptimizer_RelevanceDropsLowestFirst(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	turns := numberedTurns(5, 100)
	turns[1].Relevance = 0.1
	turns[2].Relevance = 0.3

	out, err := o.Optimize(turns, HistoryOptions{
		Strategy:  StrategyRelevanceScoring,
		MaxTokens: 300,
	})
	require.NoError(t, err)

	// The two lowest-relevance turns go; survivors keep chronological order.
	assert.Equal(t, []string{"turn-000", "turn-003", "turn-004"}, contents(out.Turns))
	assert.Equal(t, 2, out.MessagesRemoved)
}

func TestHistoryOptimizer_RelevanceNeverTouchesProtectedWindow(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	turns := numberedTurns(5, 100)
	turns[4].Relevance = 0.01 // most recent turn scores lowest

	out, err := o.Optimize(turns, HistoryOptions{
		Strategy:          StrategyRelevanceScoring,
		MinRecentMessages: 2,
		MaxTokens:         300,
	})
	require.NoError(t, err)

	got := contents(out.Turns)
	assert.Contains(t, got, "turn-003")
	assert.Contains(t, got, "turn-004")
	assert.Len(t, got, 3)
}

// Scenario: 20 turns, threshold 15, keep 5 verbatim. One summary turn plus
// five recent turns come back, with 15 turns folded into the summary.
func TestHistoryOptimizer_Summarization(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	turns := numberedTurns(20, 50)
	out, err := o.Optimize(turns, HistoryOptions{
		Strategy:            StrategySummarization,
		SummarizeThreshold:  15,
		KeepRecentOnSummary: 5,
	})
	require.NoError(t, err)

	require.Len(t, out.Turns, 6)
	assert.Equal(t, 15, out.MessagesSummarized)
	assert.Equal(t, 0, out.MessagesRemoved)
	assert.NotEmpty(t, out.Summary)

	summaryTurn := out.Turns[0]
	assert.True(t, summaryTurn.WasSummarized)
	assert.Equal(t, types.RoleSystem, summaryTurn.Role)
	assert.NotEmpty(t, summaryTurn.OriginalContent)
	assert.Equal(t, []string{"turn-015", "turn-016", "turn-017", "turn-018", "turn-019"}, contents(out.Turns[1:]))
}

func TestHistoryOptimizer_SummaryFragmentsKeepRuneBoundaries(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	turns := numberedTurns(21, 100)
	for i := range turns {
		turns[i].Content = strings.Repeat("界", 100) // over the fragment limit
	}

	out, err := o.Optimize(turns, HistoryOptions{Strategy: StrategySummarization})
	require.NoError(t, err)

	require.NotEmpty(t, out.Summary)
	assert.True(t, utf8.ValidString(out.Summary))
	require.True(t, out.Turns[0].WasSummarized)
	assert.True(t, utf8.ValidString(out.Turns[0].Content))
	assert.Contains(t, out.Summary, "...")
}

func TestHistoryOptimizer_SummarizationBelowThresholdUnchanged(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	turns := numberedTurns(10, 50)
	out, err := o.Optimize(turns, HistoryOptions{
		Strategy:           StrategySummarization,
		SummarizeThreshold: 15,
	})
	require.NoError(t, err)
	assert.Equal(t, contents(turns), contents(out.Turns))
	assert.Equal(t, 0, out.MessagesSummarized)
}

func TestHistoryOptimizer_TopicBasedDropsStaleTopics(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	turns := numberedTurns(6, 100)
	turns[0].Topics = []string{"vpc-migration"}
	turns[1].Topics = []string{"vpc-migration"}
	turns[2].Topics = []string{"cost-report"}
	// turns 3..5 untagged: treated as relevant.

	out, err := o.Optimize(turns, HistoryOptions{
		Strategy:      StrategyTopicBased,
		CurrentTopics: []string{"cost-report"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"turn-002", "turn-003", "turn-004", "turn-005"}, contents(out.Turns))
	assert.Equal(t, 2, out.MessagesRemoved)
}

func TestHistoryOptimizer_TopicBasedStopsAtCeiling(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	turns := numberedTurns(6, 100)
	for i := 0; i < 4; i++ {
		turns[i].Topics = []string{"old-topic"}
	}

	out, err := o.Optimize(turns, HistoryOptions{
		Strategy:      StrategyTopicBased,
		CurrentTopics: []string{"current-topic"},
		MaxTokens:     500, // dropping one stale turn is enough
	})
	require.NoError(t, err)

	assert.Len(t, out.Turns, 5)
	assert.Equal(t, "turn-001", out.Turns[0].Content) // oldest stale turn dropped first
}

func TestHistoryOptimizer_CompressAssistant(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	long := text(200) // 800 chars
	turns := []types.ConversationTurn{
		{Role: types.RoleUser, Content: long, TokenCount: 200},
		{Role: types.RoleAssistant, Content: long, TokenCount: 200},
	}

	out, err := o.Optimize(turns, HistoryOptions{
		Strategy:                    StrategyCompressAssistant,
		CompressedResponseMaxLength: 100,
	})
	require.NoError(t, err)

	require.Len(t, out.Turns, 2)
	assert.Equal(t, long, out.Turns[0].Content) // user turn verbatim
	assert.Contains(t, out.Turns[1].Content, "[truncated]")
	assert.Equal(t, long, out.Turns[1].OriginalContent)
	assert.Equal(t, 1, out.MessagesCompressed)
	assert.Equal(t, 0, out.MessagesRemoved)
	assert.Less(t, out.FinalTokens, out.OriginalTokens)
}

func TestHistoryOptimizer_FallbackToRecentOnNonConvergence(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	// Compression alone cannot reach the ceiling; expect the recent-messages
	// fallback plus a warning.
	turns := numberedTurns(10, 100)
	out, err := o.Optimize(turns, HistoryOptions{
		Strategy:                    StrategyCompressAssistant,
		CompressedResponseMaxLength: 100,
		MaxTokens:                   250,
	})
	require.NoError(t, err)

	assert.Equal(t, StrategyRecentMessages, out.StrategyApplied)
	assert.NotEmpty(t, out.Warnings)
	assert.LessOrEqual(t, out.FinalTokens, 250)
}

// When the fallback suffix drops the synthetic summary turn, the collapsed
// turns count as removed and the summarized tally resets.
func TestHistoryOptimizer_FallbackDropsSummaryTurn(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	turns := numberedTurns(25, 100)
	out, err := o.Optimize(turns, HistoryOptions{
		Strategy:            StrategySummarization,
		KeepRecentOnSummary: 5,
		MaxTokens:           300,
	})
	require.NoError(t, err)

	assert.Equal(t, StrategyRecentMessages, out.StrategyApplied)
	assert.NotEmpty(t, out.Warnings)
	for _, turn := range out.Turns {
		assert.False(t, turn.WasSummarized)
	}
	assert.Equal(t, 0, out.MessagesSummarized)
	assert.Empty(t, out.Summary)
	assert.Equal(t, len(turns)-len(out.Turns), out.MessagesRemoved)
}

func TestHistoryOptimizer_UnknownStrategy(t *testing.T) {
	t.Parallel()
	o := NewHistoryOptimizer(lenTokenizer{}, nil)

	_, err := o.Optimize(numberedTurns(2, 10), HistoryOptions{Strategy: "psychic"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrConfigInvalid))
}

func TestHistoryOptimizer_CounterFailurePropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("tokenizer down")
	o := NewHistoryOptimizer(failTokenizer{err: boom}, nil)

	turns := []types.ConversationTurn{{Role: types.RoleUser, Content: "hello"}}
	_, err := o.Optimize(turns, HistoryOptions{Strategy: StrategyRecentMessages})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
