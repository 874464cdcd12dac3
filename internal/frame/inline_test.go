package frame_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/framelink/internal/flowerr"
	"github.com/cassiomorais/framelink/internal/frame"
	"github.com/cassiomorais/framelink/internal/testutil"
)

func TestInline_OpenNavigatesCallerSurface(t *testing.T) {
	nav := &testutil.MockWindow{}
	h := frame.NewInline(nav)

	require.NoError(t, h.Open(context.Background(), "https://payments.example/frame"))
	assert.Equal(t, []string{"https://payments.example/frame"}, nav.Navigations())
	assert.Equal(t, frame.KindInline, h.Kind())
}

func TestInline_OpenWithoutNavigator(t *testing.T) {
	h := frame.NewInline(nil)

	require.NoError(t, h.Open(context.Background(), "https://payments.example/frame"))
	assert.ErrorIs(t, h.Redirect(context.Background(), "https://payments.example/next"), flowerr.ErrInvalidInput)
}

func TestInline_CloseOnlyFlipsState(t *testing.T) {
	nav := &testutil.MockWindow{}
	h := frame.NewInline(nav)
	require.NoError(t, h.Open(context.Background(), "https://payments.example/frame"))

	require.NoError(t, h.Close())
	assert.True(t, h.IsClosed())
	// The caller owns the surface; closing the handle never touches it.
	assert.False(t, nav.IsClosed())
	assert.ErrorIs(t, h.Redirect(context.Background(), "https://payments.example/next"), flowerr.ErrFrameClosed)
}
