package frame

import (
	"context"

	"github.com/cassiomorais/framelink/internal/flowerr"
)

// Navigator lets an inline handle redirect the caller-owned surface. The
// service never owns the surface's lifecycle, only its messaging.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Inline is the embedded child context. The caller owns its DOM; Close only
// flips local state.
type Inline struct {
	state     handleState
	navigator Navigator
}

// NewInline builds an inline handle. navigator may be nil when the caller
// handles navigation itself.
func NewInline(navigator Navigator) *Inline {
	return &Inline{navigator: navigator}
}

func (i *Inline) Kind() Kind { return KindInline }

func (i *Inline) Open(ctx context.Context, url string) error {
	if err := i.state.markOpen(); err != nil {
		return err
	}
	if i.navigator != nil {
		return i.navigator.Navigate(ctx, url)
	}
	return nil
}

func (i *Inline) Focus() error { return nil }

func (i *Inline) Close() error {
	i.state.markClosed()
	return nil
}

func (i *Inline) IsClosed() bool {
	return i.state.isClosed()
}

func (i *Inline) Redirect(ctx context.Context, url string) error {
	if i.state.isClosed() {
		return flowerr.ErrFrameClosed
	}
	if i.navigator == nil {
		return flowerr.ErrInvalidInput
	}
	return i.navigator.Navigate(ctx, url)
}
