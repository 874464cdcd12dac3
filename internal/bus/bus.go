// Package bus implements the named, bidirectional event channel used to
// coordinate a parent page with an isolated child context. Both sides bind to
// a shared channel id; everything else is best-effort message passing over a
// Transport. The bus itself never times out: if the remote context never
// loads, handlers simply never fire, and callers carry their own deadline.
package bus

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cassiomorais/framelink/internal/flowerr"
	"github.com/cassiomorais/framelink/internal/observability"
)

// Handler receives one bus event. Handlers run on the bus dispatch goroutine
// and must not block.
type Handler func(Event)

// Unsubscribe detaches a handler registered with On. Safe to call more than
// once.
type Unsubscribe func()

type subscription struct {
	kind    Kind
	handler Handler
}

// Bus is one side of a named channel. A Bus is owned by exactly one
// FrameService or poller; channel ids are never shared between owners.
type Bus struct {
	channelID string
	transport Transport
	log       zerolog.Logger
	metrics   *observability.Metrics

	mu           sync.Mutex
	subs         map[Kind][]*subscription
	selfOrigin   string
	targetOrigin string
	torn         bool

	teardownOnce sync.Once
	done         chan struct{}
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(b *Bus) { b.log = log }
}

// WithMetrics attaches bus event counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// WithOrigin declares this side's origin, stamped onto every outgoing frame.
func WithOrigin(origin string) Option {
	return func(b *Bus) { b.selfOrigin = origin }
}

// New binds a bus to the given channel id and transport and starts
// dispatching inbound frames.
func New(channelID string, transport Transport, opts ...Option) *Bus {
	b := &Bus{
		channelID: channelID,
		transport: transport,
		log:       zerolog.Nop(),
		subs:      make(map[Kind][]*subscription),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.dispatchLoop()
	return b
}

// ChannelID returns the process-unique channel identifier.
func (b *Bus) ChannelID() string {
	return b.channelID
}

// On registers a handler for the given event kind and returns its
// unsubscribe function.
func (b *Bus) On(kind Kind, handler Handler) Unsubscribe {
	sub := &subscription{kind: kind, handler: handler}

	b.mu.Lock()
	if !b.torn {
		b.subs[kind] = append(b.subs[kind], sub)
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.off(sub) })
	}
}

func (b *Bus) off(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[sub.kind]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// OffAll removes every registered handler. Used when a single settlement must
// win and all other listeners have to be silenced at once.
func (b *Bus) OffAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[Kind][]*subscription)
}

// Target scopes subsequent emits to the given verified origin. Inbound frames
// from any other origin are dropped from then on.
func (b *Bus) Target(origin string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targetOrigin = origin
}

// Emit sends one event to the remote side of the channel.
func (b *Bus) Emit(ctx context.Context, event Event) error {
	b.mu.Lock()
	if b.torn {
		b.mu.Unlock()
		return flowerr.ErrChannelClosed
	}
	frame := Frame{
		ChannelID:    b.channelID,
		Origin:       b.selfOrigin,
		TargetOrigin: b.targetOrigin,
		Event:        event,
	}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.BusEventsEmitted.WithLabelValues(string(event.Kind)).Inc()
	}
	b.log.Debug().Str("channel", b.channelID).Str("kind", string(event.Kind)).Msg("emit")
	return b.transport.Send(ctx, frame)
}

// Teardown detaches all handlers and closes the transport. Idempotent and
// safe to call after the remote context has already vanished.
func (b *Bus) Teardown() {
	b.teardownOnce.Do(func() {
		b.mu.Lock()
		b.torn = true
		b.subs = make(map[Kind][]*subscription)
		b.mu.Unlock()

		close(b.done)
		if err := b.transport.Close(); err != nil {
			b.log.Warn().Err(err).Str("channel", b.channelID).Msg("transport close failed during teardown")
		}
	})
}

func (b *Bus) dispatchLoop() {
	for {
		select {
		case frame, ok := <-b.transport.Receive():
			if !ok {
				return
			}
			b.dispatch(frame)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) dispatch(frame Frame) {
	if frame.ChannelID != b.channelID {
		return
	}

	b.mu.Lock()
	if b.torn {
		b.mu.Unlock()
		return
	}
	if b.targetOrigin != "" && frame.Origin != "" && frame.Origin != b.targetOrigin {
		b.mu.Unlock()
		b.log.Warn().Str("channel", b.channelID).Str("origin", frame.Origin).Msg("dropping frame from unverified origin")
		return
	}
	if frame.TargetOrigin != "" && b.selfOrigin != "" && frame.TargetOrigin != b.selfOrigin {
		b.mu.Unlock()
		return
	}
	handlers := make([]Handler, 0, len(b.subs[frame.Event.Kind]))
	for _, sub := range b.subs[frame.Event.Kind] {
		handlers = append(handlers, sub.handler)
	}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.BusEventsReceived.WithLabelValues(string(frame.Event.Kind)).Inc()
	}
	for _, h := range handlers {
		h(frame.Event)
	}
}
