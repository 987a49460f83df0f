package prompt

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/opsmind-ai/opsmind/tokenizer"
	"github.com/opsmind-ai/opsmind/types"
)

// TokenEstimate is an immutable snapshot of the token footprint of a
// composite prompt. All counts are >= 0; the over-limit flag is strictly
// determined by TotalTokens() > MaxContextWindow.
type TokenEstimate struct {
	SystemPromptTokens int    `json:"system_prompt_tokens"`
	UserMessageTokens  int    `json:"user_message_tokens"`
	RetrievalTokens    int    `json:"retrieval_tokens"`
	HistoryTokens      int    `json:"history_tokens"`
	Model              string `json:"model"`
	MaxContextWindow   int    `json:"max_context_window"`
	ReservedResponse   int    `json:"reserved_response_tokens"`
}

// TotalInputTokens is the sum of the four input categories.
func (e TokenEstimate) TotalInputTokens() int {
	return e.SystemPromptTokens + e.UserMessageTokens + e.RetrievalTokens + e.HistoryTokens
}

// TotalTokens is input plus the reserved completion tokens.
func (e TokenEstimate) TotalTokens() int {
	return e.TotalInputTokens() + e.ReservedResponse
}

// RemainingTokens is the window minus the total. Negative when over limit.
func (e TokenEstimate) RemainingTokens() int {
	return e.MaxContextWindow - e.TotalTokens()
}

// Utilization is TotalTokens as a fraction of the window.
func (e TokenEstimate) Utilization() float64 {
	if e.MaxContextWindow <= 0 {
		return 0
	}
	return float64(e.TotalTokens()) / float64(e.MaxContextWindow)
}

// ExceedsLimit reports whether the prompt overflows the context window.
func (e TokenEstimate) ExceedsLimit() bool {
	return e.TotalTokens() > e.MaxContextWindow
}

// Estimator composes per-fragment token counts into a TokenEstimate.
// It has no side effects; it fails only when the underlying tokenizer fails,
// and that failure is surfaced unchanged.
type Estimator struct {
	tok    tokenizer.Tokenizer
	logger *zap.Logger
}

// NewEstimator creates an Estimator. logger may be nil.
func NewEstimator(tok tokenizer.Tokenizer, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{
		tok:    tok,
		logger: logger.With(zap.String("component", "token_estimator")),
	}
}

// Estimate counts every fragment individually so later trimming can happen
// at item/turn granularity without recounting the whole prompt.
func (e *Estimator) Estimate(systemPrompt, userMessage string, items []types.RankedItem, turns []types.ConversationTurn, model string, contextWindow, reservedResponse int) (TokenEstimate, error) {
	sysTokens, err := e.tok.CountTokens(systemPrompt)
	if err != nil {
		return TokenEstimate{}, fmt.Errorf("count system prompt: %w", err)
	}
	userTokens, err := e.tok.CountTokens(userMessage)
	if err != nil {
		return TokenEstimate{}, fmt.Errorf("count user message: %w", err)
	}

	retrievalTokens := 0
	for i, item := range items {
		count, err := e.itemTokens(item)
		if err != nil {
			return TokenEstimate{}, fmt.Errorf("count retrieval item %d: %w", i, err)
		}
		retrievalTokens += count
	}

	historyTokens := 0
	for i, turn := range turns {
		count, err := e.turnTokens(turn)
		if err != nil {
			return TokenEstimate{}, fmt.Errorf("count history turn %d: %w", i, err)
		}
		historyTokens += count
	}

	est := TokenEstimate{
		SystemPromptTokens: sysTokens,
		UserMessageTokens:  userTokens,
		RetrievalTokens:    retrievalTokens,
		HistoryTokens:      historyTokens,
		Model:              model,
		MaxContextWindow:   contextWindow,
		ReservedResponse:   reservedResponse,
	}

	e.logger.Debug("estimated prompt",
		zap.String("model", model),
		zap.Int("total", est.TotalTokens()),
		zap.Int("window", contextWindow),
		zap.Bool("exceeds", est.ExceedsLimit()))

	return est, nil
}

// itemTokens returns the item's token count, counting the content when the
// retriever did not supply one.
func (e *Estimator) itemTokens(item types.RankedItem) (int, error) {
	if item.TokenCount > 0 {
		return item.TokenCount, nil
	}
	return e.tok.CountTokens(item.Content)
}

// turnTokens returns the turn's token count, counting the content when the
// caller did not supply one.
func (e *Estimator) turnTokens(turn types.ConversationTurn) (int, error) {
	if turn.TokenCount > 0 {
		return turn.TokenCount, nil
	}
	return e.tok.CountTokens(turn.Content)
}
