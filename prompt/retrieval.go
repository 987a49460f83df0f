package prompt

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/opsmind-ai/opsmind/tokenizer"
	"github.com/opsmind-ai/opsmind/types"
)

// OptimizedRetrievalContext is the result of one retrieval trimming pass.
// Items keep their relevance-ranked order; they are never reordered except
// by the original ranking.
type OptimizedRetrievalContext struct {
	Items        []types.RankedItem `json:"items"`
	ItemsRemoved int                `json:"items_removed"`
	ItemsTrimmed int                `json:"items_trimmed"`
	TotalTokens  int                `json:"total_tokens"`
	AverageScore float64            `json:"average_score"`
	MinScore     float64            `json:"min_score"`
	Warnings     []string           `json:"warnings,omitempty"`
}

// RetrievalOptimizer selects a relevance-maximizing subset of ranked items
// within a token ceiling. This is a bounded greedy selection, not optimal
// knapsack: determinism and stability across repeated calls beat optimality.
type RetrievalOptimizer struct {
	tok    tokenizer.Tokenizer
	logger *zap.Logger
}

// NewRetrievalOptimizer creates a RetrievalOptimizer. logger may be nil.
func NewRetrievalOptimizer(tok tokenizer.Tokenizer, logger *zap.Logger) *RetrievalOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalOptimizer{
		tok:    tok,
		logger: logger.With(zap.String("component", "retrieval_optimizer")),
	}
}

// Optimize greedily admits items in relevance order while the running total
// stays under the token ceiling. The minimum-count guarantee takes precedence
// over the relevance floor and the ceiling: the first MinResults items are
// force-admitted. An empty input is valid and yields an empty result.
func (o *RetrievalOptimizer) Optimize(items []types.RankedItem, opts RetrievalOptions) (OptimizedRetrievalContext, error) {
	if err := opts.validate(); err != nil {
		return OptimizedRetrievalContext{}, err
	}
	if len(items) == 0 {
		return OptimizedRetrievalContext{Items: []types.RankedItem{}}, nil
	}

	candidates, err := o.withTokenCounts(items)
	if err != nil {
		return OptimizedRetrievalContext{}, err
	}

	// Stable sort by score descending: ties keep the upstream retriever's
	// order, which is assumed already relevance-ranked.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if opts.PreferSourceDiversity {
		candidates = diversifyTies(candidates)
	}

	result := OptimizedRetrievalContext{Items: make([]types.RankedItem, 0, len(candidates))}
	total := 0

	for _, item := range candidates {
		forced := len(result.Items) < opts.MinResults

		if opts.MaxTokensPerResult > 0 && item.TokenCount > opts.MaxTokensPerResult {
			if opts.TrimLargeResults {
				trimmed, err := o.trimItem(item, opts.MaxTokensPerResult)
				if err != nil {
					return OptimizedRetrievalContext{}, err
				}
				item = trimmed
				result.ItemsTrimmed++
			} else if !forced {
				continue
			}
		}

		if !forced {
			if item.Score < opts.MinScore {
				continue
			}
			if opts.MaxResults > 0 && len(result.Items) >= opts.MaxResults {
				continue
			}
			if opts.MaxTokens > 0 && total+item.TokenCount > opts.MaxTokens {
				continue
			}
		}

		result.Items = append(result.Items, item)
		total += item.TokenCount
	}

	if opts.MaxTokens > 0 && total > opts.MaxTokens {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("minimum result count %d exceeds token ceiling %d (total %d)", opts.MinResults, opts.MaxTokens, total))
	}

	result.ItemsRemoved = len(items) - len(result.Items)
	result.TotalTokens = total
	result.AverageScore, result.MinScore = scoreStats(result.Items)

	o.logger.Debug("optimized retrieval context",
		zap.Int("input", len(items)),
		zap.Int("kept", len(result.Items)),
		zap.Int("trimmed", result.ItemsTrimmed),
		zap.Int("tokens", total))

	return result, nil
}

// withTokenCounts copies the input (the optimizer owns it read-only) and
// fills missing token counts.
func (o *RetrievalOptimizer) withTokenCounts(items []types.RankedItem) ([]types.RankedItem, error) {
	out := make([]types.RankedItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].TokenCount > 0 {
			continue
		}
		count, err := o.tok.CountTokens(out[i].Content)
		if err != nil {
			return nil, fmt.Errorf("count retrieval item %d: %w", i, err)
		}
		out[i].TokenCount = count
	}
	return out, nil
}

// trimItem cuts the item's content down to maxTokens, recounting after each
// cut. Content is cut proportionally with a small margin, the way a
// character-ratio estimate converges fastest.
func (o *RetrievalOptimizer) trimItem(item types.RankedItem, maxTokens int) (types.RankedItem, error) {
	const marker = "\n...[truncated]"
	for attempt := 0; attempt < 5 && item.TokenCount > maxTokens; attempt++ {
		ratio := float64(maxTokens) / float64(item.TokenCount) * 0.9
		targetLen := int(float64(len(item.Content)) * ratio)
		if targetLen < 1 {
			targetLen = 1
		}
		if targetLen >= len(item.Content) {
			break
		}
		// Back off to a rune boundary so the cut never splits a multi-byte
		// character.
		for targetLen > 0 && !utf8.RuneStart(item.Content[targetLen]) {
			targetLen--
		}
		item.Content = item.Content[:targetLen] + marker
		count, err := o.tok.CountTokens(item.Content)
		if err != nil {
			return types.RankedItem{}, fmt.Errorf("recount trimmed item: %w", err)
		}
		item.TokenCount = count
	}
	return item, nil
}

// diversifyTies reorders runs of equal-score items so that sources not yet
// seen come first. Order within a run is otherwise preserved.
func diversifyTies(items []types.RankedItem) []types.RankedItem {
	out := make([]types.RankedItem, 0, len(items))
	seen := make(map[string]bool)

	for start := 0; start < len(items); {
		end := start + 1
		for end < len(items) && items[end].Score == items[start].Score {
			end++
		}
		run := append([]types.RankedItem(nil), items[start:end]...)
		for len(run) > 0 {
			pick := 0
			for i, item := range run {
				if item.Source != "" && !seen[item.Source] {
					pick = i
					break
				}
			}
			chosen := run[pick]
			out = append(out, chosen)
			seen[chosen.Source] = true
			run = append(run[:pick], run[pick+1:]...)
		}
		start = end
	}
	return out
}

func scoreStats(items []types.RankedItem) (avg, min float64) {
	if len(items) == 0 {
		return 0, 0
	}
	sum := 0.0
	min = items[0].Score
	for _, item := range items {
		sum += item.Score
		if item.Score < min {
			min = item.Score
		}
	}
	return sum / float64(len(items)), min
}
