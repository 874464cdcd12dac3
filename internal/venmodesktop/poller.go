package venmodesktop

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/cassiomorais/framelink/internal/analytics"
	"github.com/cassiomorais/framelink/internal/bus"
	"github.com/cassiomorais/framelink/internal/flowerr"
	"github.com/cassiomorais/framelink/internal/observability"
)

// FlowResult is the success payload of a desktop flow.
type FlowResult struct {
	PaymentMethodNonce string
	Username           string
}

// Config constructs a Poller.
type Config struct {
	Client ContextClient
	Bus    *bus.Bus

	// PollInterval is the fixed delay between status lookups. No backoff:
	// the context's own TTL bounds total polling duration.
	PollInterval time.Duration
	// ConfirmationDelay holds the success screen up before the flow
	// completes, so the embedded UI can show its confirmation state.
	ConfirmationDelay time.Duration

	Clock     clockwork.Clock
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
	Analytics analytics.Sink
	Tracer    trace.Tracer
}

type chainSettlement struct {
	// gen identifies which poll chain produced this settlement; -1 marks a
	// bus-event settlement, valid regardless of the active chain.
	gen    int
	result *FlowResult
	err    error
}

// Poller drives one desktop QR-code flow: create a server-side payment
// context, render it, and poll its status at a fixed interval until terminal,
// while bus events from the embedded iframe can interrupt at any point.
// Exactly one settlement happens per launch.
type Poller struct {
	client            ContextClient
	bus               *bus.Bus
	pollInterval      time.Duration
	confirmationDelay time.Duration
	clock             clockwork.Clock
	log               zerolog.Logger
	metrics           *observability.Metrics
	analytics         analytics.Sink
	tracer            trace.Tracer

	mu        sync.Mutex
	hidden    bool
	launched  bool
	torn      bool
	contextID string

	teardownOnce sync.Once
}

// NewPoller validates config and builds a Poller.
func NewPoller(cfg Config) (*Poller, error) {
	if cfg.Client == nil {
		return nil, flowerr.NewValidationError("client", "is required")
	}
	if cfg.Bus == nil {
		return nil, flowerr.NewValidationError("bus", "is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ConfirmationDelay < 0 {
		cfg.ConfirmationDelay = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Analytics == nil {
		cfg.Analytics = analytics.NopSink{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.Tracer("framelink/venmodesktop")
	}
	return &Poller{
		client:            cfg.Client,
		bus:               cfg.Bus,
		pollInterval:      cfg.PollInterval,
		confirmationDelay: cfg.ConfirmationDelay,
		clock:             cfg.Clock,
		log:               cfg.Logger.With().Str("component", "venmo-desktop").Logger(),
		metrics:           cfg.Metrics,
		analytics:         cfg.Analytics,
		tracer:            cfg.Tracer,
	}, nil
}

// Initialize blocks until the embedded child context reports ready, or ctx
// expires. Must run before LaunchDesktopFlow.
func (p *Poller) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.torn {
		p.mu.Unlock()
		return flowerr.ErrPollerTornDown
	}
	p.mu.Unlock()

	ready := make(chan struct{}, 1)
	off := p.bus.On(bus.KindReady, func(bus.Event) {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	defer off()

	select {
	case <-ready:
		p.analytics.Send("venmo.desktop.frame.ready")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LaunchDesktopFlow runs the full create → poll → settle lifecycle and blocks
// until the flow settles or ctx is done. A request-new-qr-code event from the
// embedded UI restarts the create/poll chain without settling; the previous
// chain is forcibly canceled first, so there is never more than one lookup
// chain in flight.
func (p *Poller) LaunchDesktopFlow(ctx context.Context) (*FlowResult, error) {
	p.mu.Lock()
	if p.torn {
		p.mu.Unlock()
		return nil, flowerr.ErrPollerTornDown
	}
	if p.launched {
		p.mu.Unlock()
		return nil, flowerr.ErrFlowInProgress
	}
	p.launched = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.launched = false
		p.mu.Unlock()
	}()

	ctx, span := observability.StartSpan(ctx, p.tracer, "venmo.desktop.flow", "")
	defer span.End()

	if p.metrics != nil {
		p.metrics.FlowsLaunched.WithLabelValues("qr-code").Inc()
		p.metrics.ActiveFlows.Inc()
		defer p.metrics.ActiveFlows.Dec()
	}
	p.analytics.Send("venmo.desktop.flow.launched")
	start := p.clock.Now()

	settle := make(chan chainSettlement, 4)
	restart := make(chan struct{}, 1)

	offs := p.armTerminalHandlers(ctx, settle, restart)
	defer func() {
		for _, off := range offs {
			off()
		}
	}()

	gen := 0
	chainCtx, cancelChain := context.WithCancel(ctx)
	defer func() { cancelChain() }()
	go p.runChain(chainCtx, gen, settle)

	for {
		select {
		case st := <-settle:
			if st.gen >= 0 && st.gen != gen {
				// A chain canceled by a restart settled late; ignore it.
				continue
			}
			cancelChain()
			return p.finish(start, st)
		case <-restart:
			cancelChain()
			gen++
			chainCtx, cancelChain = context.WithCancel(ctx)
			if p.metrics != nil {
				p.metrics.QRCodeRestarts.Inc()
			}
			p.analytics.Send("venmo.desktop.qr-code.restarted")
			p.log.Info().Int("generation", gen).Msg("restarting payment context chain")
			go p.runChain(chainCtx, gen, settle)
		case <-ctx.Done():
			cancelChain()
			return nil, ctx.Err()
		}
	}
}

func (p *Poller) finish(start time.Time, st chainSettlement) (*FlowResult, error) {
	outcome := "completed"
	if st.err != nil {
		if fe, ok := flowerr.AsFlowError(st.err); ok {
			outcome = string(fe.Reason)
		} else {
			outcome = "error"
		}
	}
	if p.metrics != nil {
		p.metrics.FlowsSettled.WithLabelValues("qr-code", outcome).Inc()
		p.metrics.FlowDuration.WithLabelValues("qr-code", outcome).Observe(p.clock.Since(start).Seconds())
	}
	p.analytics.Send("venmo.desktop.flow." + outcome)
	p.log.Info().Str("outcome", outcome).Msg("desktop flow settled")
	if st.err != nil {
		return nil, st.err
	}
	return st.result, nil
}

// armTerminalHandlers registers the out-of-band bus handlers that live for
// the whole launch: customer cancel, completed authorization, unknown error,
// and the restart request.
func (p *Poller) armTerminalHandlers(ctx context.Context, settle chan<- chainSettlement, restart chan<- struct{}) []bus.Unsubscribe {
	return []bus.Unsubscribe{
		p.bus.On(bus.KindCustomerCanceled, func(bus.Event) {
			p.analytics.Send("venmo.desktop.customer-canceled")
			go func() {
				if id := p.currentContextID(); id != "" {
					if err := p.client.Update(ctx, id, StatusCanceled); err != nil {
						p.log.Warn().Err(err).Msg("canceled update mutation failed")
					}
				}
				trySettle(settle, chainSettlement{
					gen: -1,
					err: flowerr.NewFlowError(flowerr.ReasonCustomerCanceled, false, nil),
				})
			}()
		}),
		p.bus.On(bus.KindAuthorizationCompleted, func(ev bus.Event) {
			var payload bus.AuthorizationCompletedPayload
			if err := ev.Decode(&payload); err != nil {
				trySettle(settle, chainSettlement{
					gen: -1,
					err: flowerr.NewFlowError(flowerr.ReasonUnknownError, false, err),
				})
				return
			}
			p.analytics.Send("venmo.desktop.authorization-completed")
			trySettle(settle, chainSettlement{gen: -1, result: &FlowResult{
				PaymentMethodNonce: payload.PaymentMethodNonce,
				Username:           NormalizeUsername(payload.Username),
			}})
		}),
		p.bus.On(bus.KindUnknownError, func(ev bus.Event) {
			var payload bus.UnknownErrorPayload
			_ = ev.Decode(&payload)
			p.analytics.Send("venmo.desktop.unknown-error")
			trySettle(settle, chainSettlement{
				gen: -1,
				err: flowerr.NewFlowError(flowerr.ReasonUnknownError, false, remoteError(payload.Message)),
			})
		}),
		p.bus.On(bus.KindRequestNewQRCode, func(bus.Event) {
			select {
			case restart <- struct{}{}:
			default:
			}
		}),
	}
}

// runChain executes one create → poll lifecycle. It settles at most once and
// returns without settling when its context is canceled (a restart or an
// already-settled launch).
func (p *Poller) runChain(ctx context.Context, gen int, settle chan<- chainSettlement) {
	createCtx, createSpan := observability.StartSpan(ctx, p.tracer, "venmo.desktop.context.create", "")
	created, err := p.client.Create(createCtx)
	createSpan.End()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.settleChain(ctx, settle, chainSettlement{gen: gen, err: err})
		return
	}

	pc := &PaymentContext{
		ID:         created.ID,
		Status:     created.Status,
		CreatedAt:  created.CreatedAt,
		ExpiresAt:  created.ExpiresAt,
		MerchantID: created.MerchantID,
	}
	p.setCurrentContextID(pc.ID)
	defer p.setCurrentContextID("")

	// Re-anchor the server-declared TTL to the local clock: only the
	// duration is trusted across the clock-skew boundary.
	expiredTime := p.clock.Now().Add(pc.TTL())

	p.log.Info().Str("context_id", pc.ID).Time("expires", expiredTime).Msg("payment context created")
	p.emitUI(ctx, bus.KindDisplayQRCode, bus.DisplayQRCodePayload{ContextID: pc.ID, MerchantID: pc.MerchantID})
	p.analytics.Send("venmo.desktop.qr-code.displayed")

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.pollInterval):
		}

		// Strictly after: a lookup scheduled exactly at the deadline still runs.
		if p.clock.Now().After(expiredTime) {
			if err := p.client.Update(ctx, pc.ID, StatusExpired); err != nil {
				p.log.Warn().Err(err).Str("context_id", pc.ID).Msg("expired update mutation failed")
			}
			p.emitUI(ctx, bus.KindDisplayError, bus.DisplayErrorPayload{Message: "Something went wrong with the authorization."})
			p.analytics.Send("venmo.desktop.flow.timed-out")
			p.settleChain(ctx, settle, chainSettlement{
				gen: gen,
				err: flowerr.NewFlowError(flowerr.ReasonTimeout, true, nil),
			})
			return
		}

		lookupStart := p.clock.Now()
		lookupCtx, lookupSpan := observability.StartSpan(ctx, p.tracer, "venmo.desktop.context.lookup", pc.ID)
		lookup, err := p.client.Lookup(lookupCtx, pc.ID)
		lookupSpan.End()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// A failed lookup aborts the chain; no silent retry loop.
			p.settleChain(ctx, settle, chainSettlement{gen: gen, err: err})
			return
		}
		if p.metrics != nil {
			p.metrics.LookupDuration.Observe(p.clock.Since(lookupStart).Seconds())
			p.metrics.PollTicks.WithLabelValues(string(lookup.Status)).Inc()
		}

		prev := pc.Status
		changed, obsErr := pc.Observe(lookup.Status)
		if obsErr != nil {
			p.log.Warn().Str("from", string(prev)).Str("to", string(lookup.Status)).Msg("ignoring transition out of terminal status")
			continue
		}
		if !changed {
			continue
		}
		if p.metrics != nil {
			p.metrics.StatusTransitions.WithLabelValues(string(prev), string(pc.Status)).Inc()
		}
		p.log.Debug().Str("context_id", pc.ID).Str("from", string(prev)).Str("to", string(pc.Status)).Msg("status transition")

		switch pc.Status {
		case StatusScanned:
			p.emitUI(ctx, bus.KindAuthorizing, nil)
			p.analytics.Send("venmo.desktop.qr-code.scanned")

		case StatusApproved:
			p.emitUI(ctx, bus.KindAuthorize, nil)
			p.analytics.Send("venmo.desktop.flow.approved")
			// Hold the success screen up before completing downstream.
			select {
			case <-ctx.Done():
				return
			case <-p.clock.After(p.confirmationDelay):
			}
			p.settleChain(ctx, settle, chainSettlement{gen: gen, result: &FlowResult{
				PaymentMethodNonce: lookup.PaymentMethodID,
				Username:           NormalizeUsername(lookup.UserName),
			}})
			return

		case StatusCanceled:
			p.emitUI(ctx, bus.KindDisplayError, bus.DisplayErrorPayload{Message: "The authorization was canceled."})
			p.settleChain(ctx, settle, chainSettlement{
				gen: gen,
				err: flowerr.NewFlowError(flowerr.ReasonCanceled, true, nil),
			})
			return

		case StatusExpired, StatusFailed:
			p.emitUI(ctx, bus.KindDisplayError, bus.DisplayErrorPayload{Message: "Something went wrong with the authorization."})
			reason := flowerr.ReasonExpired
			if pc.Status == StatusFailed {
				reason = flowerr.ReasonFailed
			}
			p.settleChain(ctx, settle, chainSettlement{
				gen: gen,
				err: flowerr.NewFlowError(reason, true, nil),
			})
			return
		}
	}
}

// HideDesktopFlow suppresses further UI signaling to the child context. The
// poll loop itself keeps running until it naturally settles.
func (p *Poller) HideDesktopFlow() {
	p.mu.Lock()
	p.hidden = true
	p.mu.Unlock()
	p.analytics.Send("venmo.desktop.flow.hidden")
}

// ShowDesktopFlow re-enables UI signaling after HideDesktopFlow.
func (p *Poller) ShowDesktopFlow() {
	p.mu.Lock()
	p.hidden = false
	p.mu.Unlock()
	p.analytics.Send("venmo.desktop.flow.shown")
}

// Teardown notifies the child context and tears down the bus. Idempotent.
func (p *Poller) Teardown(ctx context.Context) {
	p.teardownOnce.Do(func() {
		p.mu.Lock()
		p.torn = true
		p.mu.Unlock()

		ev, _ := bus.NewEvent(bus.KindClosedFromParent, nil)
		if err := p.bus.Emit(ctx, ev); err != nil {
			p.log.Debug().Err(err).Msg("closed-from-parent emit failed")
		}
		p.bus.Teardown()
	})
}

// emitUI sends a display event to the child context. Suppressed while hidden;
// never errors.
func (p *Poller) emitUI(ctx context.Context, kind bus.Kind, payload any) {
	p.mu.Lock()
	hidden := p.hidden
	p.mu.Unlock()
	if hidden {
		return
	}
	ev, err := bus.NewEvent(kind, payload)
	if err != nil {
		p.log.Warn().Err(err).Str("kind", string(kind)).Msg("building UI event failed")
		return
	}
	if err := p.bus.Emit(ctx, ev); err != nil {
		p.log.Debug().Err(err).Str("kind", string(kind)).Msg("UI emit failed")
	}
}

func (p *Poller) settleChain(ctx context.Context, settle chan<- chainSettlement, st chainSettlement) {
	select {
	case settle <- st:
	case <-ctx.Done():
	}
}

func trySettle(settle chan<- chainSettlement, st chainSettlement) {
	select {
	case settle <- st:
	default:
	}
}

// currentContextID tracks the live payment context so out-of-band cancel
// handlers can address their update mutation.
func (p *Poller) currentContextID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contextID
}

func (p *Poller) setCurrentContextID(id string) {
	p.mu.Lock()
	p.contextID = id
	p.mu.Unlock()
}

type remoteError string

func (e remoteError) Error() string { return string(e) }
