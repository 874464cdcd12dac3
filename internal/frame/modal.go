package frame

import (
	"context"

	"github.com/cassiomorais/framelink/internal/flowerr"
)

// Overlay is a host-supplied full-viewport modal surface. The host decides
// how to build it (on iOS a scrollable wrapper around the frame, because the
// frame itself cannot scroll there).
type Overlay interface {
	Show(ctx context.Context, url string) error
	SetURL(ctx context.Context, url string) error
	Hide() error
}

// Modal is the modal-overlay child context. The service owns its DOM
// lifecycle through the host overlay.
type Modal struct {
	state   handleState
	overlay Overlay
}

// NewModal builds a modal handle over the host's overlay surface.
func NewModal(overlay Overlay) *Modal {
	return &Modal{overlay: overlay}
}

func (m *Modal) Kind() Kind { return KindModal }

func (m *Modal) Open(ctx context.Context, url string) error {
	if err := m.state.markOpen(); err != nil {
		return err
	}
	if err := m.overlay.Show(ctx, url); err != nil {
		m.state.markClosed()
		return err
	}
	return nil
}

// Focus is a no-op for modals; the overlay already covers the page.
func (m *Modal) Focus() error { return nil }

func (m *Modal) Close() error {
	if !m.state.markClosed() {
		return nil
	}
	return m.overlay.Hide()
}

func (m *Modal) IsClosed() bool {
	return m.state.isClosed()
}

func (m *Modal) Redirect(ctx context.Context, url string) error {
	if m.state.isClosed() {
		return flowerr.ErrFrameClosed
	}
	return m.overlay.SetURL(ctx, url)
}

// scrollLockedModal decorates a modal with the WKWebView scroll lock. The
// lock is acquired before the overlay shows and released on every close path,
// even when Open never fully completed.
type scrollLockedModal struct {
	Handle
	page HostPage

	lock *ScrollLock
}

// WithScrollLock wraps a handle so the host page scroll state is saved on
// open and restored on close.
func WithScrollLock(h Handle, page HostPage) Handle {
	return &scrollLockedModal{Handle: h, page: page}
}

func (s *scrollLockedModal) Open(ctx context.Context, url string) error {
	s.lock = AcquireScrollLock(s.page)
	if err := s.Handle.Open(ctx, url); err != nil {
		s.lock.Release()
		return err
	}
	return nil
}

func (s *scrollLockedModal) Close() error {
	err := s.Handle.Close()
	if s.lock != nil {
		s.lock.Release()
	}
	return err
}
