package prompt

import (
	"github.com/opsmind-ai/opsmind/types"
)

// Category identifies one of the four prompt content categories.
type Category string

const (
	CategorySystemPrompt Category = "system_prompt"
	CategoryUserMessage  Category = "user_message"
	CategoryRetrieval    Category = "retrieval_context"
	CategoryHistory      Category = "conversation_history"
)

// CategoryPriorities holds per-category priority weights. Higher priority is
// trimmed later. System prompt and user message are non-trimmable content
// carriers; their weights only document intent.
type CategoryPriorities struct {
	SystemPrompt int `json:"system_prompt" yaml:"system_prompt"`
	UserMessage  int `json:"user_message" yaml:"user_message"`
	Retrieval    int `json:"retrieval" yaml:"retrieval"`
	History      int `json:"history" yaml:"history"`
}

// DefaultPriorities trims retrieval context before conversation history:
// retrieval passages can be fetched again, conversational continuity cannot.
func DefaultPriorities() CategoryPriorities {
	return CategoryPriorities{
		SystemPrompt: 100,
		UserMessage:  90,
		History:      50,
		Retrieval:    40,
	}
}

// RetrievalOptions configures the retrieval context optimizer.
type RetrievalOptions struct {
	// MaxTokens is the token ceiling for the admitted set. Zero means the
	// allocator supplies the ceiling from the remaining budget.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	// MinScore is the relevance floor; items below it are skipped unless the
	// minimum-count guarantee forces them in.
	MinScore float64 `json:"min_score" yaml:"min_score"`
	// MinResults is the minimum item count guarantee. It takes precedence
	// over both the relevance floor and the token ceiling.
	MinResults int `json:"min_results" yaml:"min_results"`
	// MaxResults caps the admitted item count. Zero means unlimited.
	MaxResults int `json:"max_results" yaml:"max_results"`
	// MaxTokensPerResult is the per-item token ceiling.
	MaxTokensPerResult int `json:"max_tokens_per_result" yaml:"max_tokens_per_result"`
	// TrimLargeResults trims oversized items to MaxTokensPerResult instead
	// of dropping them.
	TrimLargeResults bool `json:"trim_large_results" yaml:"trim_large_results"`
	// PreferSourceDiversity orders equal-score items from unseen sources
	// first during admission.
	PreferSourceDiversity bool `json:"prefer_source_diversity" yaml:"prefer_source_diversity"`
}

// HistoryStrategy selects the conversation pruning behavior.
type HistoryStrategy string

const (
	// StrategyRecentMessages keeps the most recent chronological suffix.
	StrategyRecentMessages HistoryStrategy = "recent_messages"
	// StrategyRelevanceScoring drops lowest-relevance turns first.
	StrategyRelevanceScoring HistoryStrategy = "relevance_scoring"
	// StrategySummarization collapses old turns into one synthetic summary turn.
	StrategySummarization HistoryStrategy = "summarization"
	// StrategyTopicBased drops turns tagged with topics no longer current.
	StrategyTopicBased HistoryStrategy = "topic_based"
	// StrategyCompressAssistant truncates long assistant turns in place.
	StrategyCompressAssistant HistoryStrategy = "compress_assistant"
)

// HistoryOptions configures the conversation history optimizer.
type HistoryOptions struct {
	Strategy HistoryStrategy `json:"strategy" yaml:"strategy"`
	// MaxTokens is the token ceiling. Zero means the allocator supplies it.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	// MaxMessages caps the turn count. Zero means unlimited.
	MaxMessages int `json:"max_messages" yaml:"max_messages"`
	// MinRecentMessages is the protected most-recent window; turns inside it
	// are never removed.
	MinRecentMessages int `json:"min_recent_messages" yaml:"min_recent_messages"`
	// SummarizeThreshold is the turn count beyond which summarization kicks in.
	SummarizeThreshold int `json:"summarize_threshold" yaml:"summarize_threshold"`
	// KeepRecentOnSummary is how many recent turns stay verbatim when
	// summarizing. Defaults to MinRecentMessages.
	KeepRecentOnSummary int `json:"keep_recent_on_summary" yaml:"keep_recent_on_summary"`
	// CompressedResponseMaxLength is the rune ceiling for assistant turns
	// under StrategyCompressAssistant.
	CompressedResponseMaxLength int `json:"compressed_response_max_length" yaml:"compressed_response_max_length"`
	// CurrentTopics drives StrategyTopicBased; turns tagged only with other
	// topics are dropped first. Untagged turns are treated as relevant.
	CurrentTopics []string `json:"current_topics,omitempty" yaml:"current_topics,omitempty"`
}

// PromptOptimizationOptions configures one allocator call. Options are passed
// by value; there is no process-wide mutable configuration.
type PromptOptimizationOptions struct {
	// Model is the target model identifier.
	Model string `json:"model" yaml:"model"`
	// MaxContextWindow is the model's context window in tokens, supplied by
	// the model catalog.
	MaxContextWindow int `json:"max_context_window" yaml:"max_context_window"`
	// ReservedResponseTokens is reserved for the model's completion.
	ReservedResponseTokens int `json:"reserved_response_tokens" yaml:"reserved_response_tokens"`
	// TargetTokens, when positive, caps the input budget below the window.
	TargetTokens int `json:"target_tokens" yaml:"target_tokens"`
	// SafetyBufferPercent is subtracted from the nominal window before
	// allocation, e.g. 0.05 keeps 5% headroom.
	SafetyBufferPercent float64 `json:"safety_buffer_percent" yaml:"safety_buffer_percent"`

	Priorities CategoryPriorities `json:"priorities" yaml:"priorities"`
	Retrieval  RetrievalOptions   `json:"retrieval" yaml:"retrieval"`
	History    HistoryOptions     `json:"history" yaml:"history"`
}

// DefaultOptions returns options for the given model and context window with
// the default trim order and a 5% safety buffer.
func DefaultOptions(model string, contextWindow, reservedResponse int) PromptOptimizationOptions {
	return PromptOptimizationOptions{
		Model:                  model,
		MaxContextWindow:       contextWindow,
		ReservedResponseTokens: reservedResponse,
		SafetyBufferPercent:    0.05,
		Priorities:             DefaultPriorities(),
		Retrieval: RetrievalOptions{
			MinResults:       2,
			MaxResults:       20,
			TrimLargeResults: true,
		},
		History: HistoryOptions{
			Strategy:          StrategyRecentMessages,
			MinRecentMessages: 4,
		},
	}
}

// Validate fails fast on configuration errors. The core never proceeds with
// a guessed default for a broken window or reservation.
func (o PromptOptimizationOptions) Validate() error {
	if o.MaxContextWindow <= 0 {
		return types.NewErrorf(types.ErrConfigInvalid, "max context window must be positive, got %d", o.MaxContextWindow)
	}
	if o.ReservedResponseTokens < 0 {
		return types.NewErrorf(types.ErrConfigInvalid, "reserved response tokens must not be negative, got %d", o.ReservedResponseTokens)
	}
	if o.ReservedResponseTokens >= o.MaxContextWindow {
		return types.NewErrorf(types.ErrConfigInvalid, "reserved response tokens %d exceed context window %d", o.ReservedResponseTokens, o.MaxContextWindow)
	}
	if o.SafetyBufferPercent < 0 || o.SafetyBufferPercent >= 1 {
		return types.NewErrorf(types.ErrConfigInvalid, "safety buffer percent must be in [0, 1), got %g", o.SafetyBufferPercent)
	}
	if o.TargetTokens < 0 {
		return types.NewErrorf(types.ErrConfigInvalid, "target tokens must not be negative, got %d", o.TargetTokens)
	}
	if err := o.Retrieval.validate(); err != nil {
		return err
	}
	return o.History.validate()
}

func (o RetrievalOptions) validate() error {
	if o.MinScore < 0 || o.MinScore > 1 {
		return types.NewErrorf(types.ErrConfigInvalid, "min score must be in [0, 1], got %g", o.MinScore)
	}
	if o.MinResults < 0 {
		return types.NewErrorf(types.ErrConfigInvalid, "min results must not be negative, got %d", o.MinResults)
	}
	if o.MaxResults > 0 && o.MinResults > o.MaxResults {
		return types.NewErrorf(types.ErrConfigInvalid, "min results %d exceeds max results %d", o.MinResults, o.MaxResults)
	}
	if o.MaxTokens < 0 || o.MaxTokensPerResult < 0 {
		return types.NewError(types.ErrConfigInvalid, "retrieval token ceilings must not be negative")
	}
	return nil
}

func (o HistoryOptions) validate() error {
	switch o.Strategy {
	case "", StrategyRecentMessages, StrategyRelevanceScoring, StrategySummarization,
		StrategyTopicBased, StrategyCompressAssistant:
	default:
		return types.NewErrorf(types.ErrConfigInvalid, "unknown history strategy: %s", o.Strategy)
	}
	if o.MinRecentMessages < 0 {
		return types.NewErrorf(types.ErrConfigInvalid, "min recent messages must not be negative, got %d", o.MinRecentMessages)
	}
	if o.MaxMessages > 0 && o.MinRecentMessages > o.MaxMessages {
		return types.NewErrorf(types.ErrConfigInvalid, "min recent messages %d exceeds max messages %d", o.MinRecentMessages, o.MaxMessages)
	}
	if o.MaxTokens < 0 {
		return types.NewError(types.ErrConfigInvalid, "history token ceiling must not be negative")
	}
	return nil
}
