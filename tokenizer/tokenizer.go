package tokenizer

import (
	"sync"

	"github.com/opsmind-ai/opsmind/types"
)

// Tokenizer is the unified token counting interface.
//
// CountTokens may fail (an exact tokenizer can require one-time encoding
// setup); failures must be surfaced to the caller, never masked, since an
// inaccurate count breaks every downstream budget guarantee.
type Tokenizer interface {
	// CountTokens returns the token count for the given text.
	CountTokens(text string) (int, error)

	// MaxTokens returns the model's maximum context length.
	MaxTokens() int

	// Name returns the tokenizer's name.
	Name() string
}

// Global tokenizer registry.
var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// RegisterTokenizer registers a tokenizer for the given model name.
func RegisterTokenizer(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// GetTokenizer returns the tokenizer registered for the given model.
// It also tries prefix matching (e.g. "gpt-4o" serves "gpt-4o-2024-08-06").
func GetTokenizer(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}

	// Longest-prefix match so "gpt-4o-..." resolves to gpt-4o, not gpt-4.
	var best Tokenizer
	bestLen := -1
	for prefix, t := range modelTokenizers {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix && len(prefix) > bestLen {
			best, bestLen = t, len(prefix)
		}
	}
	if best != nil {
		return best, nil
	}

	return nil, types.NewErrorf(types.ErrModelNotFound, "no tokenizer registered for model: %s", model)
}

// GetTokenizerOrEstimator returns the registered tokenizer for the model,
// falling back to the generic character-ratio estimator when none is
// registered.
func GetTokenizerOrEstimator(model string) Tokenizer {
	t, err := GetTokenizer(model)
	if err != nil {
		return NewEstimatorTokenizer(model, 0)
	}
	return t
}
