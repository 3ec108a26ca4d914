// Package metrics exposes the watchdog's own loop counters in Prometheus
// format. It covers the daemon, not the router: probe cycles, failures,
// heals and channel state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fritz_watchdog"

var (
	registry = prometheus.NewRegistry()

	CyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Probe cycles executed.",
	})
	ProbeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_failures_total",
		Help:      "Probe calls that failed at the transport level.",
	})
	HealsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "heals_total",
		Help:      "Remediation actions issued, by action.",
	}, []string{"action"})
	MaintenanceReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "maintenance_reconnects_total",
		Help:      "Scheduled or operator-requested reconnects executed.",
	})

	Presence = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "wan_present",
		Help:      "1 while the WAN address is present.",
	})
	BadCycles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bad_cycles",
		Help:      "Consecutive cycles without a WAN address.",
	})
	HealAttempts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "heal_attempts",
		Help:      "Remediation attempts since the address was last present.",
	})
	Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "control_channel_up",
		Help:      "1 while a TR-064 session is established.",
	})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		CyclesTotal,
		ProbeFailuresTotal,
		HealsTotal,
		MaintenanceReconnectsTotal,
		Presence,
		BadCycles,
		HealAttempts,
		Connected,
	)
}

// Handler serves the registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
