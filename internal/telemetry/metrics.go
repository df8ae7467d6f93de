package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects keyreplay's Prometheus metrics in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	lookups         *prometheus.CounterVec
	scriptRuns      *prometheus.CounterVec
	commands        *prometheus.CounterVec
	decryptDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyreplay_lookups_total",
			Help: "Account descriptor lookups by result.",
		}, []string{"result"}),
		scriptRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyreplay_script_runs_total",
			Help: "Completed script runs by status.",
		}, []string{"status"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyreplay_commands_total",
			Help: "Script commands dispatched by name.",
		}, []string{"command"}),
		decryptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keyreplay_decrypt_duration_seconds",
			Help:    "Time spent decrypting secret files, including waiting for hardware confirmation.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.lookups,
		m.scriptRuns,
		m.commands,
		m.decryptDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordLookup counts a descriptor lookup; result is "ok", "not_found" or "error".
func (m *Metrics) RecordLookup(result string) {
	m.lookups.WithLabelValues(result).Inc()
}

// RecordScriptRun counts a finished script run.
func (m *Metrics) RecordScriptRun(status string) {
	m.scriptRuns.WithLabelValues(status).Inc()
}

// RecordCommand counts one dispatched script command.
func (m *Metrics) RecordCommand(name string) {
	switch name {
	case "typedelay", "type", "key", "notify", "sleep":
	default:
		name = "other"
	}
	m.commands.WithLabelValues(name).Inc()
}

// ObserveDecrypt records how long a decryption took.
func (m *Metrics) ObserveDecrypt(status string, d time.Duration) {
	m.decryptDuration.WithLabelValues(status).Observe(d.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler that serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
