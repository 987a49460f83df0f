package usage

import "sync"

// ModelPricing defines the cost per token for a specific model, expressed
// in USD per one million tokens.
type ModelPricing struct {
	Model            string  `json:"model" yaml:"model"`
	InputPerMTokens  float64 `json:"input_per_m_tokens" yaml:"input_per_m_tokens"`
	OutputPerMTokens float64 `json:"output_per_m_tokens" yaml:"output_per_m_tokens"`
}

// PricingTable maps model names to rates. Lookup falls back to prefix
// matching so dated variants ("gpt-4o-2024-08-06") resolve to their family
// rate. Safe for concurrent use.
type PricingTable struct {
	mu    sync.RWMutex
	rates map[string]ModelPricing
}

// NewPricingTable creates an empty table.
func NewPricingTable() *PricingTable {
	return &PricingTable{rates: make(map[string]ModelPricing)}
}

// Register adds or replaces the rate for a model.
func (t *PricingTable) Register(p ModelPricing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[p.Model] = p
}

// Lookup returns the rate for the model, trying exact then prefix match.
func (t *PricingTable) Lookup(model string) (ModelPricing, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if p, ok := t.rates[model]; ok {
		return p, true
	}
	var best ModelPricing
	bestLen := -1
	for prefix, p := range t.rates {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix && len(prefix) > bestLen {
			best, bestLen = p, len(prefix)
		}
	}
	return best, bestLen >= 0
}

// Cost returns the USD cost for the given token counts. An unknown model
// costs zero: savings reporting degrades, budget enforcement does not.
func (t *PricingTable) Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p.InputPerMTokens + float64(outputTokens)/1e6*p.OutputPerMTokens
}
