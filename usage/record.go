package usage

import (
	"time"

	"github.com/opsmind-ai/opsmind/types"
)

// AgentCostMetrics is the per-call record of one prompt optimization.
// Records are write-once: created by Record, never mutated, only aggregated.
type AgentCostMetrics struct {
	ID             string    `json:"id"`
	AgentID        string    `json:"agent_id"`
	ConversationID string    `json:"conversation_id"`
	Model          string    `json:"model"`
	Strategy       string    `json:"strategy"`
	Timestamp      time.Time `json:"timestamp"`

	OriginalTokens   int `json:"original_tokens"`
	OptimizedTokens  int `json:"optimized_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TokensSaved      int `json:"tokens_saved"`

	CostUSD      float64 `json:"cost_usd"`
	CostSavedUSD float64 `json:"cost_saved_usd"`

	RetrievalItemsBefore int `json:"retrieval_items_before"`
	RetrievalItemsAfter  int `json:"retrieval_items_after"`
	HistoryTurnsBefore   int `json:"history_turns_before"`
	HistoryTurnsAfter    int `json:"history_turns_after"`
}

// Usage returns the record as a TokenUsage, the exchange currency with
// other subsystems that fold token consumption across sources.
func (m AgentCostMetrics) Usage() types.TokenUsage {
	return types.TokenUsage{
		PromptTokens:     m.OptimizedTokens,
		CompletionTokens: m.CompletionTokens,
		TotalTokens:      m.OptimizedTokens + m.CompletionTokens,
		Cost:             m.CostUSD,
	}
}

// GroupBy selects the aggregation dimension.
type GroupBy string

const (
	GroupByNone  GroupBy = ""
	GroupByAgent GroupBy = "agent"
	GroupByDay   GroupBy = "day"
)

// UsageKey is the value-typed composite aggregation key. Using a struct key
// instead of string concatenation keeps aggregation associative and
// testable.
type UsageKey struct {
	AgentID string `json:"agent_id,omitempty"`
	Day     string `json:"day,omitempty"` // "2006-01-02", UTC
}

// TokenUsageRecord is one aggregation bucket: the reduction of all per-call
// records sharing a UsageKey.
type TokenUsageRecord struct {
	Key              UsageKey `json:"key"`
	Calls            int      `json:"calls"`
	OriginalTokens   int      `json:"original_tokens"`
	OptimizedTokens  int      `json:"optimized_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TokensSaved      int      `json:"tokens_saved"`
	CostUSD          float64  `json:"cost_usd"`
	CostSavedUSD     float64  `json:"cost_saved_usd"`
}

// add folds one per-call record into the bucket.
func (r *TokenUsageRecord) add(m AgentCostMetrics) {
	r.Calls++
	r.OriginalTokens += m.OriginalTokens
	r.OptimizedTokens += m.OptimizedTokens
	r.CompletionTokens += m.CompletionTokens
	r.TokensSaved += m.TokensSaved
	r.CostUSD += m.CostUSD
	r.CostSavedUSD += m.CostSavedUSD
}

// PromptOptimizationMetrics is the aggregate view over a set of records.
// Aggregating an empty set yields the zero value, not an error.
type PromptOptimizationMetrics struct {
	Calls            int     `json:"calls"`
	OriginalTokens   int     `json:"original_tokens"`
	OptimizedTokens  int     `json:"optimized_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TokensSaved      int     `json:"tokens_saved"`
	CostUSD          float64 `json:"cost_usd"`
	CostSavedUSD     float64 `json:"cost_saved_usd"`
	// AverageSavingsPercent is tokens saved over original tokens, in percent.
	AverageSavingsPercent float64 `json:"average_savings_percent"`
	// Groups holds the per-key buckets when a GroupBy dimension was
	// requested, sorted by key for deterministic output.
	Groups []TokenUsageRecord `json:"groups,omitempty"`
}
