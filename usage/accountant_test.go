package usage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"

	"github.com/opsmind-ai/opsmind/prompt"
	"github.com/opsmind-ai/opsmind/types"
)

func testPricing() *PricingTable {
	table := NewPricingTable()
	table.Register(ModelPricing{Model: "gpt-4o", InputPerMTokens: 2.5, OutputPerMTokens: 10})
	return table
}

func estimate(inputTokens int) prompt.TokenEstimate {
	return prompt.TokenEstimate{
		SystemPromptTokens: inputTokens,
		Model:              "gpt-4o",
		MaxContextWindow:   128000,
	}
}

func TestAccountant_RecordComputesSavings(t *testing.T) {
	t.Parallel()
	a := NewAccountant(testPricing(), nil)

	rec := a.Record("agent-1", "conv-1", estimate(10000), estimate(6000), "retrieval_trim", "gpt-4o", 1000)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "agent-1", rec.AgentID)
	assert.Equal(t, 10000, rec.OriginalTokens)
	assert.Equal(t, 6000, rec.OptimizedTokens)
	assert.Equal(t, 4000, rec.TokensSaved)
	assert.InDelta(t, 6000.0/1e6*2.5+1000.0/1e6*10, rec.CostUSD, 1e-9)
	assert.InDelta(t, 4000.0/1e6*2.5, rec.CostSavedUSD, 1e-9)
	assert.Equal(t, 1, a.Len())
}

func TestAccountant_NilPricingCostsZero(t *testing.T) {
	t.Parallel()
	a := NewAccountant(nil, nil)

	rec := a.Record("agent-1", "conv-1", estimate(10000), estimate(6000), "retrieval_trim", "gpt-4o", 0)
	assert.Zero(t, rec.CostUSD)
	assert.Zero(t, rec.CostSavedUSD)
	assert.Equal(t, 4000, rec.TokensSaved)
}

func TestAccountant_RecordOptimizationDerivesCounts(t *testing.T) {
	t.Parallel()
	a := NewAccountant(testPricing(), nil)

	out := prompt.OptimizedPrompt{
		Before:                 estimate(10000),
		After:                  estimate(6000),
		Strategy:               "retrieval_trim+history_summarization",
		RetrievalItemsRemoved:  2,
		HistoryTurnsRemoved:    3,
		HistoryTurnsSummarized: 10,
	}

	rec := a.RecordOptimization("agent-1", "conv-1", out, 500)

	assert.Equal(t, "retrieval_trim+history_summarization", rec.Strategy)
	assert.Equal(t, 2, rec.RetrievalItemsBefore)
	assert.Equal(t, 0, rec.RetrievalItemsAfter)
	// Ten turns collapsed into one summary turn plus three removed outright.
	assert.Equal(t, 12, rec.HistoryTurnsBefore)
	assert.Equal(t, 0, rec.HistoryTurnsAfter)
	assert.Equal(t, 500, rec.CompletionTokens)
}

func TestAccountant_GetSummaryEmpty(t *testing.T) {
	t.Parallel()
	a := NewAccountant(testPricing(), nil)

	summary := a.GetSummary()
	assert.Zero(t, summary.Calls)
	assert.Zero(t, summary.TokensSaved)
	assert.Zero(t, summary.AverageSavingsPercent)
	assert.Empty(t, summary.Groups)
}

func TestAccountant_AggregateRepeatable(t *testing.T) {
	t.Parallel()
	a := NewAccountant(testPricing(), nil)

	for i := 0; i < 5; i++ {
		a.Record("agent-1", "conv", estimate(1000), estimate(600), "retrieval_trim", "gpt-4o", 0)
	}

	first := a.GetSummary()
	second := a.GetSummary()
	assert.Equal(t, first, second)
	assert.Equal(t, 5, first.Calls)
	assert.Equal(t, 2000, first.TokensSaved)
	assert.InDelta(t, 40.0, first.AverageSavingsPercent, 1e-9)
}

func TestAccountant_GroupByAgent(t *testing.T) {
	t.Parallel()
	a := NewAccountant(testPricing(), nil)

	a.Record("agent-b", "conv", estimate(1000), estimate(800), "retrieval_trim", "gpt-4o", 0)
	a.Record("agent-a", "conv", estimate(2000), estimate(1000), "retrieval_trim", "gpt-4o", 0)
	a.Record("agent-a", "conv", estimate(3000), estimate(2000), "retrieval_trim", "gpt-4o", 0)

	agg := a.Aggregate(time.Time{}, time.Time{}, GroupByAgent)
	require.Len(t, agg.Groups, 2)

	// Groups come back sorted by agent id.
	assert.Equal(t, UsageKey{AgentID: "agent-a"}, agg.Groups[0].Key)
	assert.Equal(t, 2, agg.Groups[0].Calls)
	assert.Equal(t, 2000, agg.Groups[0].TokensSaved)

	assert.Equal(t, UsageKey{AgentID: "agent-b"}, agg.Groups[1].Key)
	assert.Equal(t, 1, agg.Groups[1].Calls)
	assert.Equal(t, 200, agg.Groups[1].TokensSaved)
}

func TestAccountant_GroupByDay(t *testing.T) {
	t.Parallel()
	a := NewAccountant(testPricing(), nil)

	a.Record("agent-1", "conv", estimate(1000), estimate(500), "retrieval_trim", "gpt-4o", 0)
	a.Record("agent-2", "conv", estimate(1000), estimate(500), "retrieval_trim", "gpt-4o", 0)

	agg := a.Aggregate(time.Time{}, time.Time{}, GroupByDay)
	require.Len(t, agg.Groups, 1)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), agg.Groups[0].Key.Day)
	assert.Equal(t, 2, agg.Groups[0].Calls)
}

func TestAccountant_AggregateTimeWindow(t *testing.T) {
	t.Parallel()
	a := NewAccountant(testPricing(), nil)

	a.Record("agent-1", "conv", estimate(1000), estimate(500), "retrieval_trim", "gpt-4o", 0)

	future := time.Now().UTC().Add(time.Hour)
	assert.Zero(t, a.Aggregate(future, time.Time{}, GroupByNone).Calls)
	assert.Equal(t, 1, a.Aggregate(time.Time{}, future, GroupByNone).Calls)
}

// The aggregate must equal a naive fold over the snapshot, whatever mix of
// records went in.
func TestAccountant_AggregateMatchesManualReduce(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		a := NewAccountant(testPricing(), nil)

		n := rapid.IntRange(0, 50).Draw(t, "records")
		for i := 0; i < n; i++ {
			agent := fmt.Sprintf("agent-%d", rapid.IntRange(0, 3).Draw(t, "agent"))
			original := rapid.IntRange(0, 20000).Draw(t, "original")
			optimized := rapid.IntRange(0, original+1).Draw(t, "optimized")
			completion := rapid.IntRange(0, 2000).Draw(t, "completion")
			a.Record(agent, "conv", estimate(original), estimate(optimized), "retrieval_trim", "gpt-4o", completion)
		}

		var want PromptOptimizationMetrics
		for _, rec := range a.Snapshot() {
			want.Calls++
			want.OriginalTokens += rec.OriginalTokens
			want.OptimizedTokens += rec.OptimizedTokens
			want.CompletionTokens += rec.CompletionTokens
			want.TokensSaved += rec.TokensSaved
			want.CostUSD += rec.CostUSD
			want.CostSavedUSD += rec.CostSavedUSD
		}
		if want.OriginalTokens > 0 {
			want.AverageSavingsPercent = float64(want.TokensSaved) / float64(want.OriginalTokens) * 100
		}

		got := a.GetSummary()
		assert.Equal(t, want.Calls, got.Calls)
		assert.Equal(t, want.TokensSaved, got.TokensSaved)
		assert.Equal(t, want.OriginalTokens, got.OriginalTokens)
		assert.Equal(t, want.OptimizedTokens, got.OptimizedTokens)
		assert.Equal(t, want.CompletionTokens, got.CompletionTokens)
		assert.InDelta(t, want.CostUSD, got.CostUSD, 1e-9)
		assert.InDelta(t, want.CostSavedUSD, got.CostSavedUSD, 1e-9)
		assert.InDelta(t, want.AverageSavingsPercent, got.AverageSavingsPercent, 1e-9)
	})
}

func TestAgentCostMetrics_UsageFoldsAcrossRecords(t *testing.T) {
	t.Parallel()
	a := NewAccountant(testPricing(), nil)

	a.Record("agent-1", "conv", estimate(1000), estimate(600), "retrieval_trim", "gpt-4o", 200)
	a.Record("agent-1", "conv", estimate(2000), estimate(1400), "retrieval_trim", "gpt-4o", 300)

	var total types.TokenUsage
	for _, rec := range a.Snapshot() {
		total.Add(rec.Usage())
	}

	assert.Equal(t, 2000, total.PromptTokens)
	assert.Equal(t, 500, total.CompletionTokens)
	assert.Equal(t, 2500, total.TotalTokens)

	summary := a.GetSummary()
	assert.Equal(t, summary.OptimizedTokens, total.PromptTokens)
	assert.InDelta(t, summary.CostUSD, total.Cost, 1e-9)
}

func TestAccountant_ConcurrentRecords(t *testing.T) {
	t.Parallel()
	a := NewAccountant(testPricing(), nil)

	const writers = 8
	const perWriter = 50

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		agent := fmt.Sprintf("agent-%d", w)
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				a.Record(agent, "conv", estimate(1000), estimate(600), "retrieval_trim", "gpt-4o", 0)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, writers*perWriter, a.Len())

	agg := a.Aggregate(time.Time{}, time.Time{}, GroupByAgent)
	assert.Equal(t, writers*perWriter, agg.Calls)
	require.Len(t, agg.Groups, writers)
	for _, bucket := range agg.Groups {
		assert.Equal(t, perWriter, bucket.Calls)
	}
}

func TestAccountant_RetentionDropsStaleRecords(t *testing.T) {
	t.Parallel()
	a := NewAccountant(testPricing(), nil, WithRetention(10*time.Millisecond))

	a.Record("agent-1", "conv", estimate(1000), estimate(500), "retrieval_trim", "gpt-4o", 0)
	time.Sleep(25 * time.Millisecond)
	a.Record("agent-1", "conv", estimate(1000), estimate(500), "retrieval_trim", "gpt-4o", 0)

	assert.Equal(t, 1, a.Len())
}
