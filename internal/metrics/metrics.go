// Package metrics holds the Prometheus collectors for workflow execution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors registered against one registry. Using a
// dedicated registry instead of the global default keeps tests isolated and
// lets an embedding process mount several independent engines.
type Metrics struct {
	registry *prometheus.Registry

	Executions         *prometheus.CounterVec
	ExecutionDuration  prometheus.Histogram
	TokensConsumed     prometheus.Counter
	ValidationFailures prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow",
			Name:      "executions_total",
			Help:      "Workflow executions by terminal status.",
		}, []string{"status"}),
		ExecutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentflow",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of workflow executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		TokensConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentflow",
			Name:      "tokens_consumed_total",
			Help:      "Model tokens consumed across all executions.",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentflow",
			Name:      "validation_failures_total",
			Help:      "Workflow specs rejected by validation.",
		}),
	}
	m.registry.MustRegister(
		m.Executions,
		m.ExecutionDuration,
		m.TokensConsumed,
		m.ValidationFailures,
	)
	return m
}

// ObserveExecution records one finished run.
func (m *Metrics) ObserveExecution(status string, seconds float64, tokens int) {
	m.Executions.WithLabelValues(status).Inc()
	m.ExecutionDuration.Observe(seconds)
	if tokens > 0 {
		m.TokensConsumed.Add(float64(tokens))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
