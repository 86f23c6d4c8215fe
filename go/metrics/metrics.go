// Package metrics wires the core subsystems' observable state into
// Prometheus, against a caller-supplied registry rather than the global
// default so multiple harbors can coexist in one process (tests in
// particular).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the gauges and counters a harbor process exposes.
type Metrics struct {
	HandlesLive  prometheus.Gauge
	SlotSize     prometheus.Gauge
	NamesBound   prometheus.Gauge
	HostMemory   *prometheus.GaugeVec
	HostMemLimit *prometheus.GaugeVec
	TrapSignals  *prometheus.CounterVec
	ScriptErrors *prometheus.CounterVec
}

// New builds a Metrics and registers every collector against reg.
func New(reg *prometheus.Registry) *Metrics {
	var m = &Metrics{
		HandlesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "actorcore",
			Subsystem: "handle",
			Name:      "live",
			Help:      "Number of currently registered service handles.",
		}),
		SlotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "actorcore",
			Subsystem: "handle",
			Name:      "slot_size",
			Help:      "Current size of the handle registry's slot table.",
		}),
		NamesBound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "actorcore",
			Subsystem: "handle",
			Name:      "names_bound",
			Help:      "Number of currently bound handle aliases.",
		}),
		HostMemory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "actorcore",
			Subsystem: "scripthost",
			Name:      "memory_bytes",
			Help:      "Accounted interpreter memory usage by service handle.",
		}, []string{"handle"}),
		HostMemLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "actorcore",
			Subsystem: "scripthost",
			Name:      "memory_limit_bytes",
			Help:      "Configured interpreter memory limit by service handle, 0 if unlimited.",
		}, []string{"handle"}),
		TrapSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actorcore",
			Subsystem: "scripthost",
			Name:      "trap_signals_total",
			Help:      "Interrupt signals delivered to a service's interpreter, by signal number.",
		}, []string{"handle", "signal"}),
		ScriptErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actorcore",
			Subsystem: "scripthost",
			Name:      "script_errors_total",
			Help:      "Script errors raised, by lifecycle stage.",
		}, []string{"handle", "stage"}),
	}

	reg.MustRegister(
		m.HandlesLive, m.SlotSize, m.NamesBound,
		m.HostMemory, m.HostMemLimit, m.TrapSignals, m.ScriptErrors,
	)
	return m
}
