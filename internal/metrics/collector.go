// Package metrics expõe os contadores Prometheus do agentnet.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diogoX451/agentnet/internal/core/domain"
)

// Collector agrupa as métricas em um registry próprio (sem estado global).
// Todos os métodos aceitam receiver nil.
type Collector struct {
	registry *prometheus.Registry

	probesTotal          *prometheus.CounterVec
	agentStatus          *prometheus.GaugeVec
	agentRequestsTotal   *prometheus.CounterVec
	agentRequestDuration *prometheus.HistogramVec

	stepAttemptsTotal *prometheus.CounterVec
	executionsTotal   *prometheus.CounterVec
	executionsRunning prometheus.Gauge
	executionDuration *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		probesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_probes_total",
			Help:      "Health probes by agent and result",
		}, []string{"agent", "result"}),

		agentStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_status",
			Help:      "Agent status (0=unknown, 1=online, 2=degraded, 3=offline)",
		}, []string{"agent"}),

		agentRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_requests_total",
			Help:      "Agent requests by agent, action and result",
		}, []string{"agent", "action", "result"}),

		agentRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_request_duration_seconds",
			Help:      "Agent request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent", "action"}),

		stepAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_attempts_total",
			Help:      "Workflow step attempts by workflow, step and result",
		}, []string{"workflow", "step", "result"}),

		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Finished workflow executions by workflow and status",
		}, []string{"workflow", "status"}),

		executionsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_running",
			Help:      "Workflow executions currently running",
		}),

		executionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Workflow execution duration in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"workflow"}),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler endpoint /metrics
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveProbe(agentID string, ok bool) {
	if c == nil {
		return
	}
	c.probesTotal.WithLabelValues(agentID, result(ok)).Inc()
}

func (c *Collector) SetAgentStatus(agentID string, status domain.AgentStatus) {
	if c == nil {
		return
	}
	var v float64
	switch status {
	case domain.AgentOnline:
		v = 1
	case domain.AgentDegraded:
		v = 2
	case domain.AgentOffline:
		v = 3
	}
	c.agentStatus.WithLabelValues(agentID).Set(v)
}

func (c *Collector) ObserveAgentRequest(agentID, action string, ok bool, d time.Duration) {
	if c == nil {
		return
	}
	c.agentRequestsTotal.WithLabelValues(agentID, action, result(ok)).Inc()
	c.agentRequestDuration.WithLabelValues(agentID, action).Observe(d.Seconds())
}

func (c *Collector) ObserveStepAttempt(workflowID, stepID string, ok bool) {
	if c == nil {
		return
	}
	c.stepAttemptsTotal.WithLabelValues(workflowID, stepID, result(ok)).Inc()
}

func (c *Collector) ExecutionStarted() {
	if c == nil {
		return
	}
	c.executionsRunning.Inc()
}

func (c *Collector) ExecutionFinished(workflowID string, status domain.ExecutionStatus, d time.Duration) {
	if c == nil {
		return
	}
	c.executionsRunning.Dec()
	c.executionsTotal.WithLabelValues(workflowID, string(status)).Inc()
	c.executionDuration.WithLabelValues(workflowID).Observe(d.Seconds())
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
