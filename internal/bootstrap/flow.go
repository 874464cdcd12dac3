package bootstrap

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cassiomorais/framelink/internal/analytics"
	"github.com/cassiomorais/framelink/internal/bus"
	"github.com/cassiomorais/framelink/internal/config"
	"github.com/cassiomorais/framelink/internal/graphql"
	"github.com/cassiomorais/framelink/internal/observability"
	"github.com/cassiomorais/framelink/internal/venmodesktop"
)

// DesktopFlow bundles the client-side pieces of one desktop payment flow:
// the channel bus bound to a fresh channel id, the gateway client behind its
// circuit breaker, and the poller driving the QR-code lifecycle.
type DesktopFlow struct {
	Bus     *bus.Bus
	Gateway *graphql.Client
	Poller  *venmodesktop.Poller
}

// NewDesktopFlow wires a flow over the given transport. A host embedding the
// SDK builds one per checkout; the relay binary never calls this.
func NewDesktopFlow(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics, sink analytics.Sink, transport bus.Transport) (*DesktopFlow, error) {
	if sink == nil {
		sink = analytics.NopSink{}
	}

	gateway := graphql.NewClient(&cfg.Gateway,
		graphql.WithLogger(observability.ComponentLogger(logger, "gateway")),
		graphql.WithMetrics(metrics),
		graphql.WithTracer(observability.Tracer("framelink/gateway")),
	)

	channelBus := bus.New(uuid.NewString(), transport,
		bus.WithLogger(observability.ComponentLogger(logger, "bus")),
		bus.WithMetrics(metrics),
	)

	client := venmodesktop.NewContextClient(gateway, &cfg.Gateway,
		observability.ComponentLogger(logger, "venmo-desktop"))

	poller, err := venmodesktop.NewPoller(venmodesktop.Config{
		Client:            client,
		Bus:               channelBus,
		PollInterval:      cfg.Flow.PollInterval,
		ConfirmationDelay: cfg.Flow.ConfirmationDelay,
		Logger:            observability.ComponentLogger(logger, "poller"),
		Metrics:           metrics,
		Analytics:         sink,
	})
	if err != nil {
		channelBus.Teardown()
		return nil, err
	}

	return &DesktopFlow{Bus: channelBus, Gateway: gateway, Poller: poller}, nil
}

// NewDesktopFlow wires a flow from the app's shared runtime pieces.
func (a *App) NewDesktopFlow(transport bus.Transport) (*DesktopFlow, error) {
	return NewDesktopFlow(a.Config, a.Logger, a.Metrics, a.Analytics, transport)
}
