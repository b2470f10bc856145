// Package observability carries the playground's Prometheus collectors and
// its slog setup.
//
// Collectors live on a private registry so that several servers (or tests)
// can coexist in one process. Mount Handler under /metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors.
type Metrics struct {
	reg *prometheus.Registry

	compiles        *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec
	shares          *prometheus.CounterVec
	migrations      prometheus.Counter
	sessions        prometheus.Gauge
	snapshots       *prometheus.CounterVec
}

// NewMetrics registers every collector, plus the Go and process collectors,
// on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		compiles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "weslplay_compiles_total",
			Help: "Compiles by backend and outcome (ok, failure, discarded).",
		}, []string{"backend", "outcome"}),
		compileDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weslplay_compile_duration_seconds",
			Help:    "Backend call duration.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"backend"}),
		shares: f.NewCounterVec(prometheus.CounterOpts{
			Name: "weslplay_share_ops_total",
			Help: "Snapshot save and load operations by outcome.",
		}, []string{"op", "outcome"}),
		migrations: f.NewCounter(prometheus.CounterOpts{
			Name: "weslplay_store_migrations_total",
			Help: "Local stores wiped because of a version mismatch.",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "weslplay_sessions_active",
			Help: "Open playground sessions.",
		}),
		snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Name: "weslplay_snapshot_store_total",
			Help: "Embedded snapshot store requests (save, hit, miss).",
		}, []string{"result"}),
	}
}

// Registry exposes the registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveCompile records one delivered or discarded compile.
func (m *Metrics) ObserveCompile(backend, outcome string, d time.Duration) {
	m.compiles.WithLabelValues(backend, outcome).Inc()
	m.compileDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// ObserveShare records a save or load through the share client.
func (m *Metrics) ObserveShare(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.shares.WithLabelValues(op, outcome).Inc()
}

// StoreMigrated counts a wiped local store.
func (m *Metrics) StoreMigrated() { m.migrations.Inc() }

// SessionOpened and SessionClosed track the active session gauge.
func (m *Metrics) SessionOpened() { m.sessions.Inc() }
func (m *Metrics) SessionClosed() { m.sessions.Dec() }

// SnapshotSaved and SnapshotLoaded count embedded store traffic.
func (m *Metrics) SnapshotSaved(string, int) { m.snapshots.WithLabelValues("save").Inc() }
func (m *Metrics) SnapshotLoaded(_ string, found bool) {
	if found {
		m.snapshots.WithLabelValues("hit").Inc()
		return
	}
	m.snapshots.WithLabelValues("miss").Inc()
}
