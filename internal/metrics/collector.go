// Package metrics provides internal Prometheus metrics collection for the
// prompt-budget core. This package is internal and should not be imported by
// external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector exports optimization and cost-savings metrics.
type Collector struct {
	optimizationsTotal *prometheus.CounterVec
	tokensSavedTotal   *prometheus.CounterVec
	costSavedTotal     *prometheus.CounterVec
	promptTokensTotal  *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a Collector registered on reg. A nil reg uses the
// default Prometheus registerer. Labels are kept low-cardinality: agent id,
// strategy, and model only.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	return &Collector{
		optimizationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompt_optimizations_total",
				Help:      "Total number of prompt optimizations recorded",
			},
			[]string{"agent", "strategy"},
		),
		tokensSavedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompt_tokens_saved_total",
				Help:      "Total prompt tokens saved by optimization",
			},
			[]string{"agent"},
		),
		costSavedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompt_cost_saved_usd_total",
				Help:      "Total estimated cost saved by optimization in USD",
			},
			[]string{"agent"},
		),
		promptTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompt_tokens_total",
				Help:      "Total prompt tokens sent after optimization",
			},
			[]string{"agent", "model"},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// ObserveOptimization records one optimization outcome.
func (c *Collector) ObserveOptimization(agentID, strategy, model string, promptTokens, tokensSaved int, costSaved float64) {
	c.optimizationsTotal.WithLabelValues(agentID, strategy).Inc()
	c.promptTokensTotal.WithLabelValues(agentID, model).Add(float64(promptTokens))
	if tokensSaved > 0 {
		c.tokensSavedTotal.WithLabelValues(agentID).Add(float64(tokensSaved))
	}
	if costSaved > 0 {
		c.costSavedTotal.WithLabelValues(agentID).Add(costSaved)
	}
}
