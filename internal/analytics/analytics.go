// Package analytics is the fire-and-forget event sink the flows report to.
package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Sink receives named analytics events. Implementations must never block and
// never fail the caller.
type Sink interface {
	Send(name string)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Send(string) {}

// LogSink records events to the structured log and a counter.
type LogSink struct {
	log     zerolog.Logger
	counter *prometheus.CounterVec
}

// NewLogSink builds a sink backed by zerolog and an optional registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewLogSink(log zerolog.Logger, namespace string, reg prometheus.Registerer) *LogSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_events_total",
			Help:      "Total number of analytics events by name",
		},
		[]string{"name"},
	)
	reg.MustRegister(counter)
	return &LogSink{log: log, counter: counter}
}

func (s *LogSink) Send(name string) {
	s.counter.WithLabelValues(name).Inc()
	s.log.Debug().Str("event", name).Msg("analytics")
}
