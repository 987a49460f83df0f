// Package opsmind provides a top-level convenience entry point for the
// prompt-budget core with minimal boilerplate.
//
// Usage:
//
//	import "github.com/opsmind-ai/opsmind"
//
//	core, err := opsmind.New(nil) // built-in defaults
//	optimized, rec, err := core.Optimize(ctxReq)
//
// This is a thin wrapper wiring config, tokenizer, allocator, and accountant
// together; each piece can also be used on its own.
package opsmind

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/opsmind-ai/opsmind/config"
	"github.com/opsmind-ai/opsmind/internal/metrics"
	"github.com/opsmind-ai/opsmind/prompt"
	"github.com/opsmind-ai/opsmind/tokenizer"
	"github.com/opsmind-ai/opsmind/types"
	"github.com/opsmind-ai/opsmind/usage"
)

// Request is the composite-prompt request submitted by the dispatcher.
// RetrievalContext arrives already relevance-ranked from the retrieval
// collaborator; Options, when zero, are resolved from the model catalog.
type Request struct {
	AgentID          string
	ConversationID   string
	Model            string
	SystemPrompt     string
	UserMessage      string
	RetrievalContext []types.RankedItem
	History          []types.ConversationTurn
	Options          *prompt.PromptOptimizationOptions
}

// Core bundles the allocator and the accountant for one process.
type Core struct {
	cfg        *config.Config
	logger     *zap.Logger
	optimizer  *prompt.PromptOptimizer // non-nil only when a tokenizer was injected
	accountant *usage.Accountant
}

// Option configures the Core created by [New].
type Option func(*coreOptions)

type coreOptions struct {
	logger     *zap.Logger
	tok        tokenizer.Tokenizer
	registerer prometheus.Registerer
	metricsOn  bool
}

// WithLogger sets a custom zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *coreOptions) { o.logger = l }
}

// WithTokenizer overrides the token counter for every request. By default
// each request resolves the registered tokenizer for its model, falling back
// to the character estimator.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(o *coreOptions) { o.tok = t }
}

// WithPrometheus enables metric export on the given registerer (nil uses
// the default registerer).
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(o *coreOptions) {
		o.registerer = reg
		o.metricsOn = true
	}
}

// New creates a Core. A nil cfg uses [config.DefaultConfig].
func New(cfg *config.Config, opts ...Option) (*Core, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o coreOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = cfg.BuildLogger()
		if err != nil {
			return nil, err
		}
	}

	accOpts := []usage.AccountantOption{}
	if o.metricsOn {
		accOpts = append(accOpts, usage.WithMetricsCollector(
			metrics.NewCollector("opsmind", o.registerer, logger)))
	}

	core := &Core{
		cfg:        cfg,
		logger:     logger,
		accountant: usage.NewAccountant(cfg.PricingTable(), logger, accOpts...),
	}
	if o.tok != nil {
		core.optimizer = prompt.NewPromptOptimizer(o.tok, logger)
	}
	return core, nil
}

// optimizerFor returns the allocator for one request's model. With an
// injected tokenizer the allocator is fixed; otherwise the model resolves
// its tokenizer from the registry on every call, so tokenizers registered
// after New are picked up.
func (c *Core) optimizerFor(model string) *prompt.PromptOptimizer {
	if c.optimizer != nil {
		return c.optimizer
	}
	return prompt.NewPromptOptimizer(tokenizer.GetTokenizerOrEstimator(model), c.logger)
}

// Optimize runs one composite-prompt request through the allocator and
// records the outcome. completionTokens is unknown at this point and is
// recorded as zero; callers that need completion accounting can use
// [Core.Accountant] directly after the model call.
func (c *Core) Optimize(req Request) (prompt.OptimizedPrompt, usage.AgentCostMetrics, error) {
	var opts prompt.PromptOptimizationOptions
	if req.Options != nil {
		opts = *req.Options
	} else {
		resolved, err := c.cfg.OptionsForModel(req.Model)
		if err != nil {
			return prompt.OptimizedPrompt{}, usage.AgentCostMetrics{}, err
		}
		opts = resolved
	}

	optimized, err := c.optimizerFor(req.Model).Optimize(req.SystemPrompt, req.UserMessage, req.RetrievalContext, req.History, opts)
	if err != nil {
		return prompt.OptimizedPrompt{}, usage.AgentCostMetrics{}, err
	}

	rec := c.accountant.RecordOptimization(req.AgentID, req.ConversationID, optimized, 0)
	return optimized, rec, nil
}

// Optimizer returns the allocator used for the given model.
func (c *Core) Optimizer(model string) *prompt.PromptOptimizer {
	return c.optimizerFor(model)
}

// Accountant returns the underlying usage accountant.
func (c *Core) Accountant() *usage.Accountant {
	return c.accountant
}
