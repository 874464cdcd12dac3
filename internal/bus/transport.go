package bus

import (
	"context"
	"sync"
)

// Frame carries one event across contexts, addressed by channel id.
// Origin is the sender's origin; TargetOrigin, when set, restricts delivery to
// a receiver with that origin.
type Frame struct {
	ChannelID    string `json:"channelId"`
	Origin       string `json:"origin,omitempty"`
	TargetOrigin string `json:"targetOrigin,omitempty"`
	Event        Event  `json:"event"`
}

// Transport moves frames between two contexts. Delivery is best-effort: a
// frame sent after the remote side is gone is silently dropped, matching
// postMessage semantics.
type Transport interface {
	Send(ctx context.Context, frame Frame) error
	// Receive returns the inbound frame stream. The channel is closed when
	// the transport is closed.
	Receive() <-chan Frame
	Close() error
}

// memoryTransport is one end of an in-process transport pair. It backs unit
// tests and embedders that host both sides in one process.
type memoryTransport struct {
	in   chan Frame
	peer *memoryTransport

	mu     sync.RWMutex
	closed bool
}

// NewMemoryPair returns two connected transports. Frames sent on one end are
// received on the other.
func NewMemoryPair() (Transport, Transport) {
	a := &memoryTransport{in: make(chan Frame, 64)}
	b := &memoryTransport{in: make(chan Frame, 64)}
	a.peer = b
	b.peer = a
	return a, b
}

func (t *memoryTransport) Send(ctx context.Context, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	peer := t.peer
	peer.mu.RLock()
	defer peer.mu.RUnlock()
	if peer.closed {
		// Remote context is gone; drop, like postMessage into a closed window.
		return nil
	}
	select {
	case peer.in <- frame:
	default:
		// Receiver not draining; best-effort delivery drops the frame.
	}
	return nil
}

func (t *memoryTransport) Receive() <-chan Frame {
	return t.in
}

func (t *memoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.in)
	return nil
}
