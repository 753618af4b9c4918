// Package metrics exposes Prometheus metrics for research sessions and
// analyst stages.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "equityresearch"

// Metrics holds the service collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	activeSessions   prometheus.Gauge
	stageDuration    *prometheus.HistogramVec
	toolServerUp     *prometheus.GaugeVec
}

// New creates the collectors and registers them with Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Research sessions picked up by a worker.",
		}, []string{"kind"}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Research sessions finished, by terminal status.",
		}, []string{"kind", "status"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of research sessions.",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
		}, []string{"kind"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Research sessions currently running.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of analyst stages by agent and outcome.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"agent", "outcome"}),
		toolServerUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tool_server_up",
			Help:      "1 if the last health probe of the tool server succeeded.",
		}, []string{"server"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsStarted,
		m.sessionsFinished,
		m.sessionDuration,
		m.activeSessions,
		m.stageDuration,
		m.toolServerUp,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionStarted counts a session moving to running.
func (m *Metrics) SessionStarted(kind string) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(kind).Inc()
	m.activeSessions.Inc()
}

// SessionFinished counts a session reaching a terminal status. started
// reports whether SessionStarted was called for it.
func (m *Metrics) SessionFinished(kind, status string, duration time.Duration, started bool) {
	if m == nil {
		return
	}
	m.sessionsFinished.WithLabelValues(kind, status).Inc()
	if started {
		m.activeSessions.Dec()
		m.sessionDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// StageFinished implements research.Observer.
func (m *Metrics) StageFinished(agentName, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(agentName, outcome).Observe(duration.Seconds())
}

// ToolServerProbed records a tool server health probe.
func (m *Metrics) ToolServerProbed(serverID string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.toolServerUp.WithLabelValues(serverID).Set(v)
}
