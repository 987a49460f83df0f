package config

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/opsmind-ai/opsmind/prompt"
	"github.com/opsmind-ai/opsmind/types"
	"github.com/opsmind-ai/opsmind/usage"
)

// Config is the complete configuration of the prompt-budget core.
type Config struct {
	// Log configures the zap logger.
	Log LogConfig `yaml:"log"`
	// Models is the model catalog: context window sizes and reserved
	// completion tokens per model, supplied by the model-catalog
	// collaborator rather than hard-coded in the optimizers.
	Models map[string]ModelConfig `yaml:"models"`
	// Pricing is the per-model rate table in USD per million tokens.
	Pricing []usage.ModelPricing `yaml:"pricing"`
	// Optimizer holds the default optimization options applied per call.
	Optimizer OptimizerConfig `yaml:"optimizer"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// ModelConfig describes one model in the catalog.
type ModelConfig struct {
	ContextWindow            int `yaml:"context_window"`
	ReservedCompletionTokens int `yaml:"reserved_completion_tokens"`
}

// OptimizerConfig holds the default allocation options.
type OptimizerConfig struct {
	SafetyBufferPercent float64                   `yaml:"safety_buffer_percent"`
	Priorities          prompt.CategoryPriorities `yaml:"priorities"`
	Retrieval           prompt.RetrievalOptions   `yaml:"retrieval"`
	History             prompt.HistoryOptions     `yaml:"history"`
}

// DefaultConfig returns the built-in defaults: a small catalog of common
// models and the standard trim order. Deployments are expected to override
// the catalog and pricing from YAML.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Models: map[string]ModelConfig{
			"gpt-4o":        {ContextWindow: 128000, ReservedCompletionTokens: 4096},
			"gpt-4o-mini":   {ContextWindow: 128000, ReservedCompletionTokens: 4096},
			"gpt-4":         {ContextWindow: 8192, ReservedCompletionTokens: 2048},
			"gpt-3.5-turbo": {ContextWindow: 16385, ReservedCompletionTokens: 2048},
		},
		Optimizer: OptimizerConfig{
			SafetyBufferPercent: 0.05,
			Priorities:          prompt.DefaultPriorities(),
			Retrieval: prompt.RetrievalOptions{
				MinResults:       2,
				MaxResults:       20,
				TrimLargeResults: true,
			},
			History: prompt.HistoryOptions{
				Strategy:          prompt.StrategyRecentMessages,
				MinRecentMessages: 4,
			},
		},
	}
}

// Load reads configuration with defaults → YAML file → environment
// precedence. An empty path skips the file stage.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides selected scalars from OPSMIND_* variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPSMIND_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("OPSMIND_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("OPSMIND_SAFETY_BUFFER_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Optimizer.SafetyBufferPercent = f
		}
	}
}

// Validate fails fast on broken configuration.
func (c *Config) Validate() error {
	for name, m := range c.Models {
		if m.ContextWindow <= 0 {
			return types.NewErrorf(types.ErrConfigInvalid, "model %s: context window must be positive, got %d", name, m.ContextWindow)
		}
		if m.ReservedCompletionTokens < 0 {
			return types.NewErrorf(types.ErrConfigInvalid, "model %s: reserved completion tokens must not be negative, got %d", name, m.ReservedCompletionTokens)
		}
		if m.ReservedCompletionTokens >= m.ContextWindow {
			return types.NewErrorf(types.ErrConfigInvalid, "model %s: reserved completion tokens %d exceed context window %d", name, m.ReservedCompletionTokens, m.ContextWindow)
		}
	}
	for _, p := range c.Pricing {
		if p.Model == "" {
			return types.NewError(types.ErrConfigInvalid, "pricing entry without model name")
		}
		if p.InputPerMTokens < 0 || p.OutputPerMTokens < 0 {
			return types.NewErrorf(types.ErrConfigInvalid, "pricing for %s must not be negative", p.Model)
		}
	}
	if c.Optimizer.SafetyBufferPercent < 0 || c.Optimizer.SafetyBufferPercent >= 1 {
		return types.NewErrorf(types.ErrConfigInvalid, "safety buffer percent must be in [0, 1), got %g", c.Optimizer.SafetyBufferPercent)
	}
	return nil
}

// ModelFor returns the catalog entry for the model, trying exact then
// prefix match.
func (c *Config) ModelFor(model string) (ModelConfig, error) {
	if m, ok := c.Models[model]; ok {
		return m, nil
	}
	var best ModelConfig
	bestLen := -1
	for prefix, m := range c.Models {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix && len(prefix) > bestLen {
			best, bestLen = m, len(prefix)
		}
	}
	if bestLen >= 0 {
		return best, nil
	}
	return ModelConfig{}, types.NewErrorf(types.ErrModelNotFound, "model not in catalog: %s", model)
}

// OptionsForModel builds per-call optimization options from the catalog
// entry and the configured defaults.
func (c *Config) OptionsForModel(model string) (prompt.PromptOptimizationOptions, error) {
	m, err := c.ModelFor(model)
	if err != nil {
		return prompt.PromptOptimizationOptions{}, err
	}
	opts := prompt.PromptOptimizationOptions{
		Model:                  model,
		MaxContextWindow:       m.ContextWindow,
		ReservedResponseTokens: m.ReservedCompletionTokens,
		SafetyBufferPercent:    c.Optimizer.SafetyBufferPercent,
		Priorities:             c.Optimizer.Priorities,
		Retrieval:              c.Optimizer.Retrieval,
		History:                c.Optimizer.History,
	}
	return opts, opts.Validate()
}

// PricingTable builds the usage rate table from the configured entries.
func (c *Config) PricingTable() *usage.PricingTable {
	t := usage.NewPricingTable()
	for _, p := range c.Pricing {
		t.Register(p)
	}
	return t
}

// BuildLogger constructs a zap logger from the log configuration.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, types.NewErrorf(types.ErrConfigInvalid, "invalid log level: %s", c.Log.Level).WithCause(err)
	}

	zcfg := zap.NewProductionConfig()
	if c.Log.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
