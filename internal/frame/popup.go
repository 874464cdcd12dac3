package frame

import (
	"context"
	"fmt"

	"github.com/cassiomorais/framelink/internal/flowerr"
)

// Window is a native browser-chrome-owned window supplied by the host. Script
// cannot prevent the user from closing it, so IsClosed reflects the host's
// own closed flag.
type Window interface {
	Navigate(ctx context.Context, url string) error
	Focus() error
	Close() error
	IsClosed() bool
}

// WindowFeatures describes the requested popup geometry.
type WindowFeatures struct {
	Name   string
	Width  int
	Height int
	Left   int
	Top    int
}

// WindowOpener opens popup windows. The host may refuse (popup blocked), in
// which case it returns an error or a nil window.
type WindowOpener interface {
	OpenWindow(ctx context.Context, url string, features WindowFeatures) (Window, error)
}

// Viewport describes the opener window's geometry, used to center popups.
type Viewport struct {
	Width   int
	Height  int
	OffsetX int
	OffsetY int
}

// center positions a popup dimension inside the viewport:
// offset + (viewport - popup) / 2, rounded toward the viewport.
func center(viewportDim, popupDim, viewportOffset int) int {
	return viewportOffset + (viewportDim-popupDim)/2
}

// Popup is the popup-window child context.
type Popup struct {
	state    handleState
	opener   WindowOpener
	viewport Viewport
	width    int
	height   int
	name     string

	window Window
}

// NewPopup builds a popup handle over the host's window opener.
func NewPopup(opener WindowOpener, viewport Viewport, width, height int, name string) *Popup {
	return &Popup{
		opener:   opener,
		viewport: viewport,
		width:    width,
		height:   height,
		name:     name,
	}
}

func (p *Popup) Kind() Kind { return KindPopup }

// Open opens the popup centered in the viewport. A refused open surfaces as
// ErrPopupBlocked so callers can distinguish it from a silent hang.
func (p *Popup) Open(ctx context.Context, url string) error {
	if err := p.state.markOpen(); err != nil {
		return err
	}

	features := WindowFeatures{
		Name:   p.name,
		Width:  p.width,
		Height: p.height,
		Left:   center(p.viewport.Width, p.width, p.viewport.OffsetX),
		Top:    center(p.viewport.Height, p.height, p.viewport.OffsetY),
	}
	win, err := p.opener.OpenWindow(ctx, url, features)
	if err != nil {
		p.state.markClosed()
		return fmt.Errorf("%w: %v", flowerr.ErrPopupBlocked, err)
	}
	if win == nil {
		p.state.markClosed()
		return flowerr.ErrPopupBlocked
	}
	p.window = win
	return nil
}

func (p *Popup) Focus() error {
	if !p.state.isOpen() || p.window == nil {
		return flowerr.ErrFrameClosed
	}
	return p.window.Focus()
}

func (p *Popup) Close() error {
	if !p.state.markClosed() {
		return nil
	}
	if p.window == nil {
		return nil
	}
	return p.window.Close()
}

// IsClosed is true once Close ran or the user closed the window.
func (p *Popup) IsClosed() bool {
	if p.state.isClosed() {
		return true
	}
	return p.window != nil && p.window.IsClosed()
}

func (p *Popup) Redirect(ctx context.Context, url string) error {
	if p.IsClosed() || p.window == nil {
		return flowerr.ErrFrameClosed
	}
	return p.window.Navigate(ctx, url)
}
