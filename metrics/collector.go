// Package metrics records flow executions as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tluyben/crmflow/flow"
)

const namespace = "crmflow"

// Collector implements flow.Observer.
type Collector struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewCollector registers the flow metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flow_executions_total",
				Help:      "Flow executions by flow and outcome (success or failed stage).",
			},
			[]string{"flow", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flow_execution_duration_seconds",
				Help:      "Flow execution latency, model call included.",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"flow"},
		),
	}
}

// ObserveExecution records one finished execution.
func (c *Collector) ObserveExecution(exec *flow.Execution) {
	c.executions.WithLabelValues(exec.Flow, exec.Outcome()).Inc()
	c.duration.WithLabelValues(exec.Flow).Observe(exec.Duration.Seconds())
}
