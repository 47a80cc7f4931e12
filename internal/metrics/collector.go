// Package metrics exports run telemetry to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/avi3tal/agentgraph/internal/engine"
)

// Collector implements engine.Recorder.
type Collector struct {
	runsTotal      *prometheus.CounterVec
	runSteps       *prometheus.HistogramVec
	decisionsTotal *prometheus.CounterVec
	policyRetries  *prometheus.CounterVec
	nodeDispatches *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

var _ engine.Recorder = (*Collector)(nil)

// NewCollector registers the collector's metrics with reg.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Workflow runs by terminal reason",
		},
		[]string{"workflow", "reason"},
	)

	c.runSteps = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_steps",
			Help:      "Node dispatches per workflow run",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 20, 50},
		},
		[]string{"workflow"},
	)

	c.decisionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by outcome",
		},
		[]string{"workflow", "outcome"},
	)

	c.policyRetries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_retries_total",
			Help:      "Retried routing calls",
		},
		[]string{"workflow"},
	)

	c.nodeDispatches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_dispatches_total",
			Help:      "Node calls by status",
		},
		[]string{"workflow", "node", "status"},
	)

	c.nodeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"workflow", "node"},
	)

	return c
}

func (c *Collector) RunFinished(workflow string, reason engine.Reason, steps int) {
	c.runsTotal.WithLabelValues(workflow, string(reason)).Inc()
	c.runSteps.WithLabelValues(workflow).Observe(float64(steps))
}

func (c *Collector) DecisionMade(workflow, outcome string) {
	c.decisionsTotal.WithLabelValues(workflow, outcome).Inc()
}

func (c *Collector) PolicyRetried(workflow string) {
	c.policyRetries.WithLabelValues(workflow).Inc()
}

func (c *Collector) NodeDispatched(workflow, node string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
		c.logger.Debug("node dispatch failed",
			zap.String("workflow", workflow),
			zap.String("node", node),
			zap.Error(err),
		)
	}
	c.nodeDispatches.WithLabelValues(workflow, node, status).Inc()
	c.nodeDuration.WithLabelValues(workflow, node).Observe(seconds)
}
