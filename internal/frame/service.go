package frame

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cassiomorais/framelink/internal/bus"
	"github.com/cassiomorais/framelink/internal/flowerr"
	"github.com/cassiomorais/framelink/internal/observability"
	"github.com/cassiomorais/framelink/pkg/saga"
)

// State is the caller-supplied flow state forwarded to the child context as
// query data.
type State struct {
	Amount                  string `validate:"omitempty"`
	Currency                string `validate:"omitempty,len=3"`
	Flow                    string `validate:"required,oneof=checkout vault"`
	Locale                  string `validate:"omitempty"`
	ShippingAddressOverride string `validate:"omitempty"`
	ClientConfigurationID   string `validate:"omitempty"`
}

// Config constructs a Service.
type Config struct {
	Handle           Handle
	Transport        bus.Transport
	DispatchFrameURL string `validate:"required,url"`
	OpenFrameURL     string `validate:"required,url"`
	State            State

	// CloseCheckInterval is how often the manual-close watcher samples
	// Handle.IsClosed while a flow is open.
	CloseCheckInterval time.Duration

	Logger  zerolog.Logger
	Metrics *observability.Metrics
	Clock   clockwork.Clock
}

// Result is the completion payload relayed from the child context.
type Result struct {
	PaymentMethodNonce string
	Username           string
	Event              bus.Event
}

type settlement struct {
	result *Result
	err    error
}

// Service coordinates one child context and one bus for the duration of a
// single external payment flow. Exactly one settlement happens per Open call:
// whichever of {completion event, manual-close detection} fires first wins and
// every other listener is removed.
type Service struct {
	handle    Handle
	transport bus.Transport

	channelID   string
	dispatchURL string
	openURL     string
	state       State

	closeCheckInterval time.Duration
	log                zerolog.Logger
	metrics            *observability.Metrics
	clock              clockwork.Clock

	mu          sync.Mutex
	bus         *bus.Bus
	initialized bool
	opened      bool
	torn        bool
	// selfClosed marks a service-initiated Close, which must not settle the
	// in-flight operation as a user cancellation.
	selfClosed bool

	teardownOnce sync.Once
}

// NewService validates the config and constructs a Service. The channel id is
// freshly generated and unique to this instance.
func NewService(cfg Config) (*Service, error) {
	if cfg.Handle == nil {
		return nil, flowerr.NewValidationError("handle", "is required")
	}
	if cfg.Transport == nil {
		return nil, flowerr.NewValidationError("transport", "is required")
	}
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid frame service config: %w", err)
	}
	if err := v.Struct(cfg.State); err != nil {
		return nil, fmt.Errorf("invalid flow state: %w", err)
	}

	if cfg.CloseCheckInterval <= 0 {
		cfg.CloseCheckInterval = 500 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &Service{
		handle:             cfg.Handle,
		transport:          cfg.Transport,
		channelID:          uuid.NewString(),
		dispatchURL:        cfg.DispatchFrameURL,
		openURL:            cfg.OpenFrameURL,
		state:              cfg.State,
		closeCheckInterval: cfg.CloseCheckInterval,
		log:                cfg.Logger.With().Str("component", "frame-service").Logger(),
		metrics:            cfg.Metrics,
		clock:              cfg.Clock,
	}, nil
}

// ChannelID returns the channel identifier shared with the child context.
func (s *Service) ChannelID() string { return s.channelID }

// Initialize binds the bus to the transport. Must run before Open.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torn {
		return flowerr.ErrFrameTornDown
	}
	if s.initialized {
		return nil
	}
	s.bus = bus.New(s.channelID, s.transport,
		bus.WithLogger(s.log),
		bus.WithMetrics(s.metrics),
	)
	s.initialized = true
	return nil
}

// Open opens the child context, arms the completion listeners and the
// manual-close watcher, and blocks until the flow settles or ctx is done.
func (s *Service) Open(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return nil, flowerr.ErrFrameTornDown
	}
	if !s.initialized {
		s.mu.Unlock()
		return nil, flowerr.ErrFrameNotInitialized
	}
	if s.opened {
		s.mu.Unlock()
		return nil, flowerr.ErrFrameAlreadyOpen
	}
	s.opened = true
	s.selfClosed = false
	b := s.bus
	s.mu.Unlock()

	openURL, err := s.buildOpenURL()
	if err != nil {
		return nil, err
	}

	settle := make(chan settlement, 1)
	watcherStop := make(chan struct{})
	var stopOnce sync.Once
	stopWatcher := func() { stopOnce.Do(func() { close(watcherStop) }) }

	setup := saga.New("frame-open").
		AddStep(saga.Step{
			Name: "open-child-context",
			Execute: func(ctx context.Context) error {
				return s.handle.Open(ctx, openURL)
			},
			Compensate: func(ctx context.Context) error {
				return s.handle.Close()
			},
		}).
		AddStep(saga.Step{
			Name: "arm-bus-listeners",
			Execute: func(ctx context.Context) error {
				s.armCompletionListeners(b, settle)
				return nil
			},
			Compensate: func(ctx context.Context) error {
				b.OffAll()
				return nil
			},
		})
	if _, err := setup.Execute(ctx); err != nil {
		return nil, err
	}

	go s.watchManualClose(settle, watcherStop)

	if s.metrics != nil {
		s.metrics.FlowsLaunched.WithLabelValues(string(s.handle.Kind())).Inc()
		s.metrics.ActiveFlows.Inc()
		defer s.metrics.ActiveFlows.Dec()
	}
	start := s.clock.Now()

	var st settlement
	select {
	case st = <-settle:
	case <-ctx.Done():
		st = settlement{err: ctx.Err()}
	}

	// First settlement wins; silence everything else immediately.
	stopWatcher()
	b.OffAll()

	outcome := "completed"
	if st.err != nil {
		outcome = outcomeLabel(st.err)
	}
	if s.metrics != nil {
		kind := string(s.handle.Kind())
		s.metrics.FlowsSettled.WithLabelValues(kind, outcome).Inc()
		s.metrics.FlowDuration.WithLabelValues(kind, outcome).Observe(s.clock.Since(start).Seconds())
	}
	s.log.Info().Str("channel", s.channelID).Str("outcome", outcome).Msg("flow settled")

	return st.result, st.err
}

func (s *Service) armCompletionListeners(b *bus.Bus, settle chan<- settlement) {
	b.On(bus.KindAuthorizationCompleted, func(ev bus.Event) {
		var payload bus.AuthorizationCompletedPayload
		if err := ev.Decode(&payload); err != nil {
			trySettle(settle, settlement{err: flowerr.NewFlowError(flowerr.ReasonUnknownError, false, err)})
			return
		}
		trySettle(settle, settlement{result: &Result{
			PaymentMethodNonce: payload.PaymentMethodNonce,
			Username:           payload.Username,
			Event:              ev,
		}})
	})
	b.On(bus.KindUnknownError, func(ev bus.Event) {
		var payload bus.UnknownErrorPayload
		_ = ev.Decode(&payload)
		trySettle(settle, settlement{err: flowerr.NewFlowError(
			flowerr.ReasonUnknownError, false, fmt.Errorf("child context error: %s", payload.Message),
		)})
	})
}

// watchManualClose polls the handle's closed flag. A user-driven close rejects
// the in-flight operation with a cancellation reason distinct from protocol
// errors; a service-driven Close does not settle at all.
func (s *Service) watchManualClose(settle chan<- settlement, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-s.clock.After(s.closeCheckInterval):
		}
		if !s.handle.IsClosed() {
			continue
		}
		s.mu.Lock()
		selfClosed := s.selfClosed
		s.mu.Unlock()
		if !selfClosed {
			trySettle(settle, settlement{err: flowerr.NewFlowError(
				flowerr.ReasonCustomerCanceled, false, flowerr.ErrFrameClosed,
			)})
		}
		return
	}
}

// Redirect navigates the existing child context, for flows where the child
// signals it needs a full-page redirect instead of message-based completion.
func (s *Service) Redirect(ctx context.Context, target string) error {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return flowerr.ErrFrameTornDown
	}
	s.mu.Unlock()
	return s.handle.Redirect(ctx, target)
}

// Focus raises the child context.
func (s *Service) Focus() error {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return flowerr.ErrFrameTornDown
	}
	s.mu.Unlock()
	return s.handle.Focus()
}

// Close closes the child context without settling the outstanding operation.
// Used when the merchant flow is superseded by another action; the caller is
// expected to cancel the Open context itself.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return flowerr.ErrFrameTornDown
	}
	s.selfClosed = true
	b := s.bus
	s.mu.Unlock()

	if b != nil {
		ev, _ := bus.NewEvent(bus.KindClosedFromParent, nil)
		if err := b.Emit(ctx, ev); err != nil {
			s.log.Debug().Err(err).Msg("closed-from-parent emit failed")
		}
	}
	return s.handle.Close()
}

// Teardown tears down the bus and ensures the handle is closed. Idempotent;
// all other methods reject after the first call.
func (s *Service) Teardown(ctx context.Context) {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.selfClosed = true
		s.torn = true
		b := s.bus
		s.mu.Unlock()

		if err := s.handle.Close(); err != nil {
			s.log.Warn().Err(err).Msg("handle close failed during teardown")
		}
		if b != nil {
			b.Teardown()
		}
	})
}

func (s *Service) buildOpenURL() (string, error) {
	u, err := url.Parse(s.openURL)
	if err != nil {
		return "", fmt.Errorf("parse open frame url: %w", err)
	}
	q := u.Query()
	q.Set("channel", s.channelID)
	q.Set("dispatchFrameUrl", s.dispatchURL)
	if s.state.Amount != "" {
		q.Set("amount", s.state.Amount)
	}
	if s.state.Currency != "" {
		q.Set("currency", s.state.Currency)
	}
	q.Set("flow", s.state.Flow)
	if s.state.Locale != "" {
		q.Set("locale", s.state.Locale)
	}
	if s.state.ShippingAddressOverride != "" {
		q.Set("shippingAddressOverride", s.state.ShippingAddressOverride)
	}
	if s.state.ClientConfigurationID != "" {
		q.Set("configurationId", s.state.ClientConfigurationID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func trySettle(settle chan<- settlement, st settlement) {
	select {
	case settle <- st:
	default:
	}
}

func outcomeLabel(err error) string {
	if fe, ok := flowerr.AsFlowError(err); ok {
		return string(fe.Reason)
	}
	return "error"
}
