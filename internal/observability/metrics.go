package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all SDK and relay metrics.
type Metrics struct {
	// Flow metrics
	FlowsLaunched  *prometheus.CounterVec
	FlowsSettled   *prometheus.CounterVec
	FlowDuration   *prometheus.HistogramVec
	ActiveFlows    prometheus.Gauge
	QRCodeRestarts prometheus.Counter

	// Polling metrics
	PollTicks         *prometheus.CounterVec
	LookupDuration    prometheus.Histogram
	StatusTransitions *prometheus.CounterVec

	// Bus metrics
	BusEventsEmitted  *prometheus.CounterVec
	BusEventsReceived *prometheus.CounterVec

	// Relay HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RelayFramesStored   *prometheus.CounterVec

	// Gateway metrics
	GatewayRequests     *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		FlowsLaunched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flows_launched_total",
				Help:      "Total number of payment flows launched by presentation kind",
			},
			[]string{"kind"},
		),
		FlowsSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flows_settled_total",
				Help:      "Total number of flow settlements by outcome",
			},
			[]string{"kind", "outcome"},
		),
		FlowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flow_duration_seconds",
				Help:      "Flow duration from launch to settlement in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"kind", "outcome"},
		),
		ActiveFlows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_flows",
				Help:      "Number of currently active flows",
			},
		),
		QRCodeRestarts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "qr_code_restarts_total",
				Help:      "Total number of QR code restarts requested by the embedded UI",
			},
		),
		PollTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_ticks_total",
				Help:      "Total number of status lookup ticks by observed status",
			},
			[]string{"status"},
		),
		LookupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lookup_duration_seconds",
				Help:      "Status lookup round-trip duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
		StatusTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Payment context status transitions observed while polling",
			},
			[]string{"from", "to"},
		),
		BusEventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_events_emitted_total",
				Help:      "Total number of bus events emitted to the child context",
			},
			[]string{"kind"},
		),
		BusEventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_events_received_total",
				Help:      "Total number of bus events received from the child context",
			},
			[]string{"kind"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of relay HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Relay HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"method", "route"},
		),
		RelayFramesStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_frames_stored_total",
				Help:      "Total number of frames accepted by the relay by event kind",
			},
			[]string{"kind"},
		),
		GatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Total number of gateway GraphQL requests by operation and result",
			},
			[]string{"operation", "result"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.FlowsLaunched,
		m.FlowsSettled,
		m.FlowDuration,
		m.ActiveFlows,
		m.QRCodeRestarts,
		m.PollTicks,
		m.LookupDuration,
		m.StatusTransitions,
		m.BusEventsEmitted,
		m.BusEventsReceived,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RelayFramesStored,
		m.GatewayRequests,
		m.CircuitBreakerState,
	)

	return m
}
