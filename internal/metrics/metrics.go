// Package metrics exposes Prometheus collectors for logins, guard decisions
// and session housekeeping. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	logins        *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	decisionTime  prometheus.Histogram
	revoked       *prometheus.CounterVec
	reaped        prometheus.Counter
	cacheLookups  *prometheus.CounterVec
	activeSockets prometheus.Gauge
}

// New builds the collectors on a private registry along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_guard_decisions_total",
			Help: "Guard outcomes by result and reason.",
		}, []string{"result", "reason"}),
		decisionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authcore_guard_duration_seconds",
			Help:    "Time spent authenticating and authorizing one request.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_sessions_revoked_total",
			Help: "Token rows marked inactive by cause.",
		}, []string{"cause"}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_sessions_reaped_total",
			Help: "Expired token rows marked inactive by the reaper.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_permission_cache_lookups_total",
			Help: "Permission decision cache lookups by outcome.",
		}, []string{"outcome"}),
		activeSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authcore_session_sockets",
			Help: "Open session-event websocket connections.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.logins, m.decisions, m.decisionTime, m.revoked, m.reaped, m.cacheLookups, m.activeSockets,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDecision(result, reason string, started time.Time) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(result, reason).Inc()
	m.decisionTime.Observe(time.Since(started).Seconds())
}

func (m *Metrics) AddRevoked(cause string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.WithLabelValues(cause).Add(float64(n))
}

func (m *Metrics) AddReaped(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.Add(float64(n))
}

func (m *Metrics) ObserveCache(outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SocketOpened() {
	if m == nil {
		return
	}
	m.activeSockets.Inc()
}

func (m *Metrics) SocketClosed() {
	if m == nil {
		return
	}
	m.activeSockets.Dec()
}
