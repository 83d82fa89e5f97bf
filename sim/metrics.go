package sim

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/parallel-qsim/qsim/sim/wire"
)

// Metrics is the per-partition instrumentation bundle. Each rank registers
// its own collector set with a rank label so the channel-backed multi-rank
// runs can share one registry.
type Metrics struct {
	Departures  prometheus.Counter
	Arrivals    prometheus.Counter
	Teleports   prometheus.Counter
	Handovers   prometheus.Counter
	Events      prometheus.Counter
	OnNetwork   prometheus.Gauge
	ActiveLocal prometheus.Gauge
	TickSeconds prometheus.Histogram
}

// NewMetrics registers the collector bundle for one rank.
func NewMetrics(reg prometheus.Registerer, rank uint32) *Metrics {
	labels := prometheus.Labels{"rank": fmt.Sprintf("%d", rank)}
	m := &Metrics{
		Departures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qsim", Name: "departures_total",
			Help: "Agents that entered the simulation.", ConstLabels: labels,
		}),
		Arrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qsim", Name: "arrivals_total",
			Help: "Agents that completed their route.", ConstLabels: labels,
		}),
		Teleports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qsim", Name: "teleports_total",
			Help: "Trips moved outside the queue physics.", ConstLabels: labels,
		}),
		Handovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qsim", Name: "handovers_total",
			Help: "Vehicles handed to another partition.", ConstLabels: labels,
		}),
		Events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qsim", Name: "events_total",
			Help: "Events published to the stream.", ConstLabels: labels,
		}),
		OnNetwork: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qsim", Name: "vehicles_on_network",
			Help: "Vehicles currently held by this partition's links.", ConstLabels: labels,
		}),
		ActiveLocal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qsim", Name: "active_agents",
			Help: "Local agents scheduled, travelling or teleporting.", ConstLabels: labels,
		}),
		TickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "qsim", Name: "tick_duration_seconds",
			Help:        "Wall-clock time per simulated tick.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
	}
	reg.MustRegister(m.Departures, m.Arrivals, m.Teleports, m.Handovers,
		m.Events, m.OnNetwork, m.ActiveLocal, m.TickSeconds)
	return m
}

// HandleEvent makes the bundle an event subscriber so the stream is
// counted without extra plumbing in the tick loop.
func (m *Metrics) HandleEvent(e *wire.Event) {
	m.Events.Inc()
	switch e.Kind {
	case wire.EventDeparture:
		m.Departures.Inc()
	case wire.EventArrival:
		m.Arrivals.Inc()
	case wire.EventTravelled:
		m.Teleports.Inc()
	case wire.EventPassedAlong:
		m.Handovers.Inc()
	}
}
