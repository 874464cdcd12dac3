// Package frame owns the child contexts a payment flow runs in: a popup
// window, a modal overlay, or an inline surface embedded by the caller. The
// host application supplies the presentation primitives; this package tracks
// lifecycle and guarantees a single settlement per opened flow.
package frame

import (
	"context"
	"sync"

	"github.com/cassiomorais/framelink/internal/flowerr"
)

// Kind is the presentation strategy for a child context.
type Kind string

const (
	KindPopup  Kind = "popup"
	KindModal  Kind = "modal"
	KindInline Kind = "inline"
)

// Handle is a polymorphic child context. Lifecycle is strictly
// uninitialized → open → closed; a closed handle is never reopened.
type Handle interface {
	Open(ctx context.Context, url string) error
	Focus() error
	Close() error
	IsClosed() bool
	Redirect(ctx context.Context, url string) error
	Kind() Kind
}

// handleState tracks the shared open/closed lifecycle of a handle.
type handleState struct {
	mu     sync.Mutex
	opened bool
	closed bool
}

func (s *handleState) markOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return flowerr.ErrFrameClosed
	}
	if s.opened {
		return flowerr.ErrFrameAlreadyOpen
	}
	s.opened = true
	return nil
}

// markClosed flips to closed and reports whether this call did the closing.
// Closing an already-closed handle is a no-op.
func (s *handleState) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func (s *handleState) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *handleState) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened && !s.closed
}
