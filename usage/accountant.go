package usage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsmind-ai/opsmind/internal/metrics"
	"github.com/opsmind-ai/opsmind/prompt"
)

// Accountant records per-call optimization outcomes and aggregates them for
// reporting. It is the one stateful component of the core: writes are
// append-only under a mutex, reads snapshot before reducing.
type Accountant struct {
	pricing   *PricingTable
	collector *metrics.Collector
	retention time.Duration
	logger    *zap.Logger

	mu      sync.RWMutex
	records []AgentCostMetrics
}

// AccountantOption configures an Accountant.
type AccountantOption func(*Accountant)

// WithMetricsCollector exports every recorded call to Prometheus.
func WithMetricsCollector(c *metrics.Collector) AccountantOption {
	return func(a *Accountant) { a.collector = c }
}

// WithRetention drops records older than d on each write. Zero keeps
// records for the lifetime of the process.
func WithRetention(d time.Duration) AccountantOption {
	return func(a *Accountant) { a.retention = d }
}

// NewAccountant creates an Accountant. pricing may be nil (all costs report
// zero); logger may be nil.
func NewAccountant(pricing *PricingTable, logger *zap.Logger, opts ...AccountantOption) *Accountant {
	if pricing == nil {
		pricing = NewPricingTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Accountant{
		pricing: pricing,
		logger:  logger.With(zap.String("component", "usage_accountant")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record creates and stores the write-once record for one optimized call.
// completionTokens may be zero when the model call has not happened yet.
func (a *Accountant) Record(agentID, conversationID string, before, after prompt.TokenEstimate, strategy, model string, completionTokens int) AgentCostMetrics {
	originalInput := before.TotalInputTokens()
	optimizedInput := after.TotalInputTokens()

	rec := AgentCostMetrics{
		ID:               uuid.NewString(),
		AgentID:          agentID,
		ConversationID:   conversationID,
		Model:            model,
		Strategy:         strategy,
		Timestamp:        time.Now().UTC(),
		OriginalTokens:   originalInput,
		OptimizedTokens:  optimizedInput,
		CompletionTokens: completionTokens,
		TokensSaved:      originalInput - optimizedInput,
		CostUSD:          a.pricing.Cost(model, optimizedInput, completionTokens),
	}
	rec.CostSavedUSD = a.pricing.Cost(model, originalInput, completionTokens) - rec.CostUSD

	a.append(rec)
	return rec
}

// RecordOptimization is a convenience wrapper that pulls the before/after
// estimates, strategy, and category counts out of an allocator result.
func (a *Accountant) RecordOptimization(agentID, conversationID string, p prompt.OptimizedPrompt, completionTokens int) AgentCostMetrics {
	originalInput := p.Before.TotalInputTokens()
	optimizedInput := p.After.TotalInputTokens()

	rec := AgentCostMetrics{
		ID:               uuid.NewString(),
		AgentID:          agentID,
		ConversationID:   conversationID,
		Model:            p.Before.Model,
		Strategy:         p.Strategy,
		Timestamp:        time.Now().UTC(),
		OriginalTokens:   originalInput,
		OptimizedTokens:  optimizedInput,
		CompletionTokens: completionTokens,
		TokensSaved:      originalInput - optimizedInput,
		CostUSD:          a.pricing.Cost(p.Before.Model, optimizedInput, completionTokens),

		RetrievalItemsAfter: len(p.RetrievalContext),
		HistoryTurnsAfter:   len(p.History),
	}
	rec.RetrievalItemsBefore = rec.RetrievalItemsAfter + p.RetrievalItemsRemoved
	rec.HistoryTurnsBefore = rec.HistoryTurnsAfter + p.HistoryTurnsRemoved + summarizedCollapse(p)
	rec.CostSavedUSD = a.pricing.Cost(p.Before.Model, originalInput, completionTokens) - rec.CostUSD

	a.append(rec)
	return rec
}

// summarizedCollapse is the net turn-count change from collapsing N turns
// into one summary turn.
func summarizedCollapse(p prompt.OptimizedPrompt) int {
	if p.HistoryTurnsSummarized > 0 {
		return p.HistoryTurnsSummarized - 1
	}
	return 0
}

func (a *Accountant) append(rec AgentCostMetrics) {
	a.mu.Lock()
	a.records = append(a.records, rec)
	if a.retention > 0 {
		cutoff := time.Now().UTC().Add(-a.retention)
		// Records are appended in time order; drop the stale prefix.
		drop := 0
		for drop < len(a.records) && a.records[drop].Timestamp.Before(cutoff) {
			drop++
		}
		if drop > 0 {
			a.records = append([]AgentCostMetrics(nil), a.records[drop:]...)
		}
	}
	count := len(a.records)
	a.mu.Unlock()

	if a.collector != nil {
		a.collector.ObserveOptimization(rec.AgentID, rec.Strategy, rec.Model,
			rec.OptimizedTokens, rec.TokensSaved, rec.CostSavedUSD)
	}

	a.logger.Debug("recorded usage",
		zap.String("agent", rec.AgentID),
		zap.String("strategy", rec.Strategy),
		zap.Int("tokens_saved", rec.TokensSaved),
		zap.Int("records", count))
}

// Snapshot returns a copy of all stored records.
func (a *Accountant) Snapshot() []AgentCostMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]AgentCostMetrics, len(a.records))
	copy(out, a.records)
	return out
}

// Len returns the number of stored records.
func (a *Accountant) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Aggregate reduces the records falling inside [from, to] (zero bounds are
// open) grouped by the requested dimension. It reads a snapshot and never
// mutates the records, so calling it repeatedly never double-counts.
func (a *Accountant) Aggregate(from, to time.Time, groupBy GroupBy) PromptOptimizationMetrics {
	records := a.Snapshot()

	var agg PromptOptimizationMetrics
	buckets := make(map[UsageKey]*TokenUsageRecord)

	for _, rec := range records {
		if !from.IsZero() && rec.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && rec.Timestamp.After(to) {
			continue
		}

		agg.Calls++
		agg.OriginalTokens += rec.OriginalTokens
		agg.OptimizedTokens += rec.OptimizedTokens
		agg.CompletionTokens += rec.CompletionTokens
		agg.TokensSaved += rec.TokensSaved
		agg.CostUSD += rec.CostUSD
		agg.CostSavedUSD += rec.CostSavedUSD

		if groupBy == GroupByNone {
			continue
		}
		key := bucketKey(rec, groupBy)
		bucket, ok := buckets[key]
		if !ok {
			bucket = &TokenUsageRecord{Key: key}
			buckets[key] = bucket
		}
		bucket.add(rec)
	}

	if agg.OriginalTokens > 0 {
		agg.AverageSavingsPercent = float64(agg.TokensSaved) / float64(agg.OriginalTokens) * 100
	}

	if len(buckets) > 0 {
		agg.Groups = make([]TokenUsageRecord, 0, len(buckets))
		for _, b := range buckets {
			agg.Groups = append(agg.Groups, *b)
		}
		sort.Slice(agg.Groups, func(i, j int) bool {
			if agg.Groups[i].Key.AgentID != agg.Groups[j].Key.AgentID {
				return agg.Groups[i].Key.AgentID < agg.Groups[j].Key.AgentID
			}
			return agg.Groups[i].Key.Day < agg.Groups[j].Key.Day
		})
	}

	return agg
}

// GetSummary aggregates every stored record without grouping.
func (a *Accountant) GetSummary() PromptOptimizationMetrics {
	return a.Aggregate(time.Time{}, time.Time{}, GroupByNone)
}

func bucketKey(rec AgentCostMetrics, groupBy GroupBy) UsageKey {
	switch groupBy {
	case GroupByAgent:
		return UsageKey{AgentID: rec.AgentID}
	case GroupByDay:
		return UsageKey{Day: rec.Timestamp.UTC().Format("2006-01-02")}
	default:
		return UsageKey{}
	}
}
