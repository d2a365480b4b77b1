package channel

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the channel adapter.
type Metrics struct {
	EventsTotal   *prometheus.CounterVec
	EmitsTotal    *prometheus.CounterVec
	EmitFailures  prometheus.Counter
	Reconnects    prometheus.Counter
	Connected     prometheus.Gauge
}

// NewMetrics creates and registers the adapter metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentdeck_channel_events_total",
			Help: "Inbound events received, by event kind.",
		}, []string{"event"}),
		EmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentdeck_channel_emits_total",
			Help: "Outbound actions emitted, by action kind.",
		}, []string{"action"}),
		EmitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentdeck_channel_emit_failures_total",
			Help: "Outbound actions dropped because the channel was down or backed up.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentdeck_channel_reconnects_total",
			Help: "Connection attempts after the initial one.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentdeck_channel_connected",
			Help: "1 while the channel is connected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.EventsTotal, m.EmitsTotal, m.EmitFailures, m.Reconnects, m.Connected)
	}
	return m
}
