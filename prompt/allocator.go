package prompt

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/opsmind-ai/opsmind/tokenizer"
	"github.com/opsmind-ai/opsmind/types"
)

// OptimizedPrompt is the allocator's result. The system prompt and user
// message always round-trip unchanged; only retrieval context and history
// are reducible.
type OptimizedPrompt struct {
	SystemPrompt     string                   `json:"system_prompt"`
	UserMessage      string                   `json:"user_message"`
	RetrievalContext []types.RankedItem       `json:"retrieval_context"`
	History          []types.ConversationTurn `json:"history"`

	Before TokenEstimate `json:"before"`
	After  TokenEstimate `json:"after"`

	RetrievalItemsRemoved  int `json:"retrieval_items_removed"`
	RetrievalItemsTrimmed  int `json:"retrieval_items_trimmed"`
	HistoryTurnsRemoved    int `json:"history_turns_removed"`
	HistoryTurnsSummarized int `json:"history_turns_summarized"`

	WasOptimized bool     `json:"was_optimized"`
	Strategy     string   `json:"strategy"`
	Warnings     []string `json:"warnings,omitempty"`
}

// PromptOptimizer is the root budget allocator. It orchestrates the
// estimator and the two category optimizers. It keeps no state across calls
// and is safe for concurrent use.
type PromptOptimizer struct {
	estimator *Estimator
	retrieval *RetrievalOptimizer
	history   *HistoryOptimizer
	logger    *zap.Logger
}

// NewPromptOptimizer creates a PromptOptimizer backed by the given
// tokenizer. logger may be nil.
func NewPromptOptimizer(tok tokenizer.Tokenizer, logger *zap.Logger) *PromptOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptOptimizer{
		estimator: NewEstimator(tok, logger),
		retrieval: NewRetrievalOptimizer(tok, logger),
		history:   NewHistoryOptimizer(tok, logger),
		logger:    logger.With(zap.String("component", "prompt_optimizer")),
	}
}

// Estimator exposes the underlying estimator for callers that only need
// counting.
func (p *PromptOptimizer) Estimator() *Estimator {
	return p.estimator
}

// Optimize turns a raw composite prompt into one that fits the target
// budget, best effort. When the naive estimate already fits, the inputs are
// returned untouched with WasOptimized = false. Otherwise retrieval context
// and history are trimmed in priority order (lowest priority first) with the
// estimate recomputed after each stage. A result that still exceeds the
// budget at configured minimums carries warnings and the final estimate's
// over-limit flag; it is never an error.
func (p *PromptOptimizer) Optimize(systemPrompt, userMessage string, items []types.RankedItem, turns []types.ConversationTurn, opts PromptOptimizationOptions) (OptimizedPrompt, error) {
	if err := opts.Validate(); err != nil {
		return OptimizedPrompt{}, err
	}
	priorities := opts.Priorities
	if priorities == (CategoryPriorities{}) {
		priorities = DefaultPriorities()
	}

	effectiveWindow := int(float64(opts.MaxContextWindow) * (1 - opts.SafetyBufferPercent))
	inputBudget := effectiveWindow - opts.ReservedResponseTokens
	if opts.TargetTokens > 0 && opts.TargetTokens < inputBudget {
		inputBudget = opts.TargetTokens
	}

	before, err := p.estimator.Estimate(systemPrompt, userMessage, items, turns, opts.Model, opts.MaxContextWindow, opts.ReservedResponseTokens)
	if err != nil {
		return OptimizedPrompt{}, err
	}

	result := OptimizedPrompt{
		SystemPrompt:     systemPrompt,
		UserMessage:      userMessage,
		RetrievalContext: items,
		History:          turns,
		Before:           before,
		After:            before,
		Strategy:         "none",
	}

	if before.TotalInputTokens() <= inputBudget {
		return result, nil
	}

	p.logger.Info("prompt over budget, trimming",
		zap.String("model", opts.Model),
		zap.Int("input_tokens", before.TotalInputTokens()),
		zap.Int("budget", inputBudget))

	current := before
	var stages []string

	trimRetrievalFirst := priorities.Retrieval <= priorities.History
	for _, category := range trimOrder(trimRetrievalFirst) {
		if current.TotalInputTokens() <= inputBudget {
			break
		}
		switch category {
		case CategoryRetrieval:
			if len(result.RetrievalContext) == 0 {
				continue
			}
			ceiling := categoryCeiling(inputBudget, current, CategoryRetrieval)
			ropts := opts.Retrieval
			if ropts.MaxTokens == 0 || ceiling < ropts.MaxTokens {
				ropts.MaxTokens = ceiling
			}
			optimized, err := p.retrieval.Optimize(result.RetrievalContext, ropts)
			if err != nil {
				return OptimizedPrompt{}, err
			}
			result.RetrievalContext = optimized.Items
			result.RetrievalItemsRemoved = optimized.ItemsRemoved
			result.RetrievalItemsTrimmed = optimized.ItemsTrimmed
			result.Warnings = append(result.Warnings, optimized.Warnings...)
			current.RetrievalTokens = optimized.TotalTokens
			stages = append(stages, "retrieval_trim")

		case CategoryHistory:
			if len(result.History) == 0 {
				continue
			}
			ceiling := categoryCeiling(inputBudget, current, CategoryHistory)
			hopts := opts.History
			if hopts.MaxTokens == 0 || ceiling < hopts.MaxTokens {
				hopts.MaxTokens = ceiling
			}
			if hopts.Strategy == "" {
				hopts.Strategy = PickHistoryStrategy(current, inputBudget)
			}
			optimized, err := p.history.Optimize(result.History, hopts)
			if err != nil {
				return OptimizedPrompt{}, err
			}
			result.History = optimized.Turns
			result.HistoryTurnsRemoved = optimized.MessagesRemoved
			result.HistoryTurnsSummarized = optimized.MessagesSummarized
			result.Warnings = append(result.Warnings, optimized.Warnings...)
			current.HistoryTokens = optimized.FinalTokens
			stages = append(stages, "history_"+string(optimized.StrategyApplied))
		}
	}

	after, err := p.estimator.Estimate(result.SystemPrompt, result.UserMessage, result.RetrievalContext, result.History, opts.Model, opts.MaxContextWindow, opts.ReservedResponseTokens)
	if err != nil {
		return OptimizedPrompt{}, err
	}
	result.After = after
	result.WasOptimized = len(stages) > 0
	if len(stages) > 0 {
		result.Strategy = strings.Join(stages, "+")
	}

	if after.TotalInputTokens() > inputBudget {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("prompt still exceeds budget after optimization: %d input tokens over %d (minimum guarantees could not be honored within the window)",
				after.TotalInputTokens(), inputBudget))
	}

	p.logger.Info("prompt optimized",
		zap.String("strategy", result.Strategy),
		zap.Int("before", before.TotalInputTokens()),
		zap.Int("after", after.TotalInputTokens()),
		zap.Int("budget", inputBudget))

	return result, nil
}

// PickHistoryStrategy chooses a default pruning strategy from how far the
// estimate is over the input budget. When closing the gap would cost more
// than half of the history, dropping turns loses too much continuity and
// summarization takes over; otherwise the cheap recent-messages suffix is
// enough. The allocator applies this when HistoryOptions.Strategy is empty;
// callers can use it to pre-select a strategy for their own options.
func PickHistoryStrategy(estimate TokenEstimate, inputBudget int) HistoryStrategy {
	over := estimate.TotalInputTokens() - inputBudget
	if over > 0 && estimate.HistoryTokens > 0 && over*2 > estimate.HistoryTokens {
		return StrategySummarization
	}
	return StrategyRecentMessages
}

// trimOrder returns the two reducible categories, lowest priority first.
func trimOrder(retrievalFirst bool) [2]Category {
	if retrievalFirst {
		return [2]Category{CategoryRetrieval, CategoryHistory}
	}
	return [2]Category{CategoryHistory, CategoryRetrieval}
}

// categoryCeiling is the share of the input budget left for one category
// after accounting for everything else at its current size. Floored at one
// token so a pinned-down category still shrinks to its minimum guarantees.
func categoryCeiling(inputBudget int, current TokenEstimate, category Category) int {
	ceiling := inputBudget - current.SystemPromptTokens - current.UserMessageTokens
	switch category {
	case CategoryRetrieval:
		ceiling -= current.HistoryTokens
	case CategoryHistory:
		ceiling -= current.RetrievalTokens
	}
	if ceiling < 1 {
		ceiling = 1
	}
	return ceiling
}
