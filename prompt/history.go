package prompt

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/opsmind-ai/opsmind/tokenizer"
	"github.com/opsmind-ai/opsmind/types"
)

// OptimizedConversationHistory is the result of one history pruning pass.
// Surviving turns keep their chronological order; the protected most-recent
// window is never removed.
type OptimizedConversationHistory struct {
	Turns              []types.ConversationTurn `json:"turns"`
	OriginalTurnCount  int                      `json:"original_turn_count"`
	FinalTurnCount     int                      `json:"final_turn_count"`
	MessagesRemoved    int                      `json:"messages_removed"`
	MessagesSummarized int                      `json:"messages_summarized"`
	MessagesCompressed int                      `json:"messages_compressed"`
	Summary            string                   `json:"summary,omitempty"`
	OriginalTokens     int                      `json:"original_tokens"`
	FinalTokens        int                      `json:"final_tokens"`
	StrategyApplied    HistoryStrategy          `json:"strategy_applied"`
	Warnings           []string                 `json:"warnings,omitempty"`
}

// HistoryOptimizer prunes conversation history to fit token and message
// ceilings while preserving semantic continuity.
type HistoryOptimizer struct {
	tok    tokenizer.Tokenizer
	logger *zap.Logger
}

// NewHistoryOptimizer creates a HistoryOptimizer. logger may be nil.
func NewHistoryOptimizer(tok tokenizer.Tokenizer, logger *zap.Logger) *HistoryOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryOptimizer{
		tok:    tok,
		logger: logger.With(zap.String("component", "history_optimizer")),
	}
}

// Optimize applies the configured strategy. If the result still exceeds the
// token ceiling the optimizer falls back to RecentMessages and records a
// warning, so the call always converges as long as the protected minimum
// itself fits. An empty history is valid and yields an empty result.
func (o *HistoryOptimizer) Optimize(turns []types.ConversationTurn, opts HistoryOptions) (OptimizedConversationHistory, error) {
	if err := opts.validate(); err != nil {
		return OptimizedConversationHistory{}, err
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyRecentMessages
	}

	if len(turns) == 0 {
		return OptimizedConversationHistory{
			Turns:           []types.ConversationTurn{},
			StrategyApplied: strategy,
		}, nil
	}

	counted, err := o.withTokenCounts(turns)
	if err != nil {
		return OptimizedConversationHistory{}, err
	}
	originalTokens := sumTurnTokens(counted)

	result := OptimizedConversationHistory{
		OriginalTurnCount: len(turns),
		OriginalTokens:    originalTokens,
		StrategyApplied:   strategy,
	}

	switch strategy {
	case StrategyRecentMessages:
		result.Turns = recentSuffix(counted, opts)
	case StrategyRelevanceScoring:
		result.Turns = o.pruneByRelevance(counted, opts)
	case StrategySummarization:
		var summarized int
		result.Turns, result.Summary, summarized, err = o.summarize(counted, opts)
		result.MessagesSummarized = summarized
	case StrategyTopicBased:
		result.Turns = pruneByTopic(counted, opts)
	case StrategyCompressAssistant:
		var compressed int
		result.Turns, compressed, err = o.compressAssistantTurns(counted, opts)
		result.MessagesCompressed = compressed
	}
	if err != nil {
		return OptimizedConversationHistory{}, err
	}

	// Convergence fallback: whatever the strategy produced must still fit
	// the token ceiling, otherwise drop to the recent-messages suffix.
	if opts.MaxTokens > 0 && sumTurnTokens(result.Turns) > opts.MaxTokens && strategy != StrategyRecentMessages {
		result.Turns = recentSuffix(result.Turns, opts)
		result.StrategyApplied = StrategyRecentMessages
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("strategy %s did not converge under %d tokens; fell back to recent messages", strategy, opts.MaxTokens))
		// The fallback may drop the synthetic summary turn; the collapsed
		// turns then count as removed, not summarized.
		if result.MessagesSummarized > 0 && !hasSummaryTurn(result.Turns) {
			result.MessagesSummarized = 0
			result.Summary = ""
		}
	}

	result.FinalTurnCount = len(result.Turns)
	result.FinalTokens = sumTurnTokens(result.Turns)
	result.MessagesRemoved = result.OriginalTurnCount - result.FinalTurnCount - offsetForSummary(result)

	if opts.MaxTokens > 0 && result.FinalTokens > opts.MaxTokens {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("protected minimum of %d recent turns does not fit %d tokens", opts.MinRecentMessages, opts.MaxTokens))
	}

	o.logger.Debug("optimized history",
		zap.String("strategy", string(result.StrategyApplied)),
		zap.Int("input_turns", result.OriginalTurnCount),
		zap.Int("output_turns", result.FinalTurnCount),
		zap.Int("tokens", result.FinalTokens))

	return result, nil
}

func hasSummaryTurn(turns []types.ConversationTurn) bool {
	for _, t := range turns {
		if t.WasSummarized {
			return true
		}
	}
	return false
}

// offsetForSummary keeps the removed/summarized split coherent: summarized
// turns collapse into one synthetic turn rather than being removed.
func offsetForSummary(r OptimizedConversationHistory) int {
	if r.MessagesSummarized > 0 {
		return r.MessagesSummarized - 1
	}
	return 0
}

// withTokenCounts copies the input and fills missing token counts.
func (o *HistoryOptimizer) withTokenCounts(turns []types.ConversationTurn) ([]types.ConversationTurn, error) {
	out := make([]types.ConversationTurn, len(turns))
	copy(out, turns)
	for i := range out {
		if out[i].TokenCount > 0 {
			continue
		}
		count, err := o.tok.CountTokens(out[i].Content)
		if err != nil {
			return nil, fmt.Errorf("count history turn %d: %w", i, err)
		}
		out[i].TokenCount = count
	}
	return out, nil
}

// recentSuffix keeps the chronological suffix that satisfies the token and
// count ceilings, never fewer than the protected most-recent window.
func recentSuffix(turns []types.ConversationTurn, opts HistoryOptions) []types.ConversationTurn {
	protected := opts.MinRecentMessages
	if protected > len(turns) {
		protected = len(turns)
	}

	kept := make([]types.ConversationTurn, 0, len(turns))
	used := 0
	for i := len(turns) - 1; i >= 0; i-- {
		fromTail := len(turns) - 1 - i
		cost := turns[i].TokenCount
		if fromTail < protected {
			kept = append(kept, turns[i])
			used += cost
			continue
		}
		if opts.MaxMessages > 0 && len(kept) >= opts.MaxMessages {
			break
		}
		if opts.MaxTokens > 0 && used+cost > opts.MaxTokens {
			break
		}
		kept = append(kept, turns[i])
		used += cost
	}

	// Restore chronological order.
	for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
		kept[l], kept[r] = kept[r], kept[l]
	}
	return kept
}

// pruneByRelevance drops the lowest-relevance turns first (oldest first on
// ties) until the ceilings are satisfied. Survivors keep chronological order
// and the protected window is never touched.
func (o *HistoryOptimizer) pruneByRelevance(turns []types.ConversationTurn, opts HistoryOptions) []types.ConversationTurn {
	survivors := append([]types.ConversationTurn(nil), turns...)

	overBudget := func() bool {
		if opts.MaxMessages > 0 && len(survivors) > opts.MaxMessages {
			return true
		}
		return opts.MaxTokens > 0 && sumTurnTokens(survivors) > opts.MaxTokens
	}

	for overBudget() {
		cutoff := len(survivors) - opts.MinRecentMessages
		if cutoff <= 0 {
			break
		}
		lowest := -1
		for i := 0; i < cutoff; i++ {
			if lowest < 0 || survivors[i].EffectiveRelevance() < survivors[lowest].EffectiveRelevance() {
				lowest = i
			}
		}
		if lowest < 0 {
			break
		}
		survivors = append(survivors[:lowest], survivors[lowest+1:]...)
	}
	return survivors
}

// summarize collapses the oldest turns into one synthetic summary turn once
// the history exceeds the threshold. The most recent turns stay verbatim and
// the original content is retained on the summary turn for audit.
func (o *HistoryOptimizer) summarize(turns []types.ConversationTurn, opts HistoryOptions) ([]types.ConversationTurn, string, int, error) {
	threshold := opts.SummarizeThreshold
	if threshold <= 0 {
		threshold = 20
	}
	if len(turns) <= threshold {
		return turns, "", 0, nil
	}

	keep := opts.KeepRecentOnSummary
	if keep <= 0 {
		keep = opts.MinRecentMessages
	}
	if keep <= 0 {
		keep = 5
	}
	if keep >= len(turns) {
		return turns, "", 0, nil
	}

	old := turns[:len(turns)-keep]
	tail := turns[len(turns)-keep:]

	summary := synthesizeSummary(old)
	content := fmt.Sprintf("[Summary of %d earlier turns]\n%s", len(old), summary)
	count, err := o.tok.CountTokens(content)
	if err != nil {
		return nil, "", 0, fmt.Errorf("count summary turn: %w", err)
	}

	var original strings.Builder
	for i, t := range old {
		if i > 0 {
			original.WriteString("\n")
		}
		fmt.Fprintf(&original, "[%s] %s", t.Role, t.Content)
	}

	summaryTurn := types.ConversationTurn{
		Role:            types.RoleSystem,
		Content:         content,
		Timestamp:       old[len(old)-1].Timestamp,
		TokenCount:      count,
		Relevance:       1.0,
		WasSummarized:   true,
		OriginalContent: original.String(),
	}

	out := make([]types.ConversationTurn, 0, 1+len(tail))
	out = append(out, summaryTurn)
	out = append(out, tail...)
	return out, summary, len(old), nil
}

// pruneByTopic drops turns whose topic tags no longer intersect the current
// topics, oldest first. With no ceilings configured every stale turn outside
// the protected window is dropped; with ceilings, dropping stops as soon as
// the history fits.
func pruneByTopic(turns []types.ConversationTurn, opts HistoryOptions) []types.ConversationTurn {
	if len(opts.CurrentTopics) == 0 {
		return turns
	}
	current := make(map[string]bool, len(opts.CurrentTopics))
	for _, t := range opts.CurrentTopics {
		current[t] = true
	}

	stale := func(t types.ConversationTurn) bool {
		if len(t.Topics) == 0 {
			// Untagged turns are treated as relevant.
			return false
		}
		for _, tag := range t.Topics {
			if current[tag] {
				return false
			}
		}
		return true
	}

	hasCeiling := opts.MaxTokens > 0 || opts.MaxMessages > 0
	withinBudget := func(s []types.ConversationTurn) bool {
		if opts.MaxMessages > 0 && len(s) > opts.MaxMessages {
			return false
		}
		if opts.MaxTokens > 0 && sumTurnTokens(s) > opts.MaxTokens {
			return false
		}
		return true
	}

	survivors := append([]types.ConversationTurn(nil), turns...)
	for {
		if hasCeiling && withinBudget(survivors) {
			break
		}
		cutoff := len(survivors) - opts.MinRecentMessages
		dropped := false
		for i := 0; i < cutoff; i++ {
			if stale(survivors[i]) {
				survivors = append(survivors[:i], survivors[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			break
		}
	}
	return survivors
}

// compressAssistantTurns truncates assistant turns beyond the configured
// length, trading fidelity for tokens without removing turns. System and
// user turns are preserved verbatim.
func (o *HistoryOptimizer) compressAssistantTurns(turns []types.ConversationTurn, opts HistoryOptions) ([]types.ConversationTurn, int, error) {
	maxLen := opts.CompressedResponseMaxLength
	if maxLen <= 0 {
		maxLen = 500
	}

	const marker = "...[truncated]"
	out := make([]types.ConversationTurn, len(turns))
	copy(out, turns)
	compressed := 0

	for i := range out {
		if out[i].Role != types.RoleAssistant {
			continue
		}
		runes := []rune(out[i].Content)
		if len(runes) <= maxLen {
			continue
		}
		out[i].OriginalContent = out[i].Content
		out[i].Content = string(runes[:maxLen]) + marker
		count, err := o.tok.CountTokens(out[i].Content)
		if err != nil {
			return nil, 0, fmt.Errorf("recount compressed turn %d: %w", i, err)
		}
		out[i].TokenCount = count
		compressed++
	}
	return out, compressed, nil
}

// synthesizeSummary builds a minimal summary without an LLM: role counts
// plus the last few non-system fragments.
func synthesizeSummary(turns []types.ConversationTurn) string {
	if len(turns) == 0 {
		return "No previous turns"
	}

	var sb strings.Builder
	userCount, assistantCount := 0, 0
	for _, t := range turns {
		switch t.Role {
		case types.RoleUser:
			userCount++
		case types.RoleAssistant:
			assistantCount++
		}
	}

	fmt.Fprintf(&sb, "Stats: user=%d, assistant=%d", userCount, assistantCount)
	sb.WriteString("\nKey fragments:\n")

	shown := 0
	for i := len(turns) - 1; i >= 0 && shown < 5; i-- {
		t := turns[i]
		if t.Role == types.RoleSystem {
			continue
		}
		content := strings.TrimSpace(t.Content)
		if runes := []rune(content); len(runes) > 80 {
			content = string(runes[:80]) + "..."
		}
		content = strings.ReplaceAll(content, "\n", " ")
		fmt.Fprintf(&sb, "- [%s] %s\n", t.Role, content)
		shown++
	}
	return sb.String()
}

func sumTurnTokens(turns []types.ConversationTurn) int {
	total := 0
	for _, t := range turns {
		total += t.TokenCount
	}
	return total
}
