package frame_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/framelink/internal/flowerr"
	"github.com/cassiomorais/framelink/internal/frame"
	"github.com/cassiomorais/framelink/internal/testutil"
)

func newPopup(opener *testutil.MockWindowOpener) *frame.Popup {
	viewport := frame.Viewport{Width: 1000, Height: 800, OffsetX: 10, OffsetY: 20}
	return frame.NewPopup(opener, viewport, 400, 570, "venmoDesktopWallet")
}

func TestPopup_OpenCentersWindow(t *testing.T) {
	opener := &testutil.MockWindowOpener{}
	p := newPopup(opener)

	require.NoError(t, p.Open(context.Background(), "https://payments.example/frame"))

	features := opener.Features()
	require.Len(t, features, 1)
	assert.Equal(t, 400, features[0].Width)
	assert.Equal(t, 570, features[0].Height)
	assert.Equal(t, 10+(1000-400)/2, features[0].Left)
	assert.Equal(t, 20+(800-570)/2, features[0].Top)
	assert.Equal(t, "venmoDesktopWallet", features[0].Name)
	assert.Equal(t, []string{"https://payments.example/frame"}, opener.OpenedURLs())
}

func TestPopup_OpenTwiceFails(t *testing.T) {
	p := newPopup(&testutil.MockWindowOpener{})

	require.NoError(t, p.Open(context.Background(), "https://payments.example/frame"))
	err := p.Open(context.Background(), "https://payments.example/frame")
	assert.ErrorIs(t, err, flowerr.ErrFrameAlreadyOpen)
}

func TestPopup_BlockedOpen(t *testing.T) {
	opener := &testutil.MockWindowOpener{
		OpenWindowFunc: func(context.Context, string, frame.WindowFeatures) (frame.Window, error) {
			return nil, errors.New("blocked by browser")
		},
	}
	p := newPopup(opener)

	err := p.Open(context.Background(), "https://payments.example/frame")
	assert.ErrorIs(t, err, flowerr.ErrPopupBlocked)
	assert.True(t, p.IsClosed())
}

func TestPopup_NilWindowIsBlocked(t *testing.T) {
	opener := &testutil.MockWindowOpener{
		OpenWindowFunc: func(context.Context, string, frame.WindowFeatures) (frame.Window, error) {
			return nil, nil
		},
	}
	p := newPopup(opener)

	err := p.Open(context.Background(), "https://payments.example/frame")
	assert.ErrorIs(t, err, flowerr.ErrPopupBlocked)
}

func TestPopup_UserCloseIsVisible(t *testing.T) {
	opener := &testutil.MockWindowOpener{}
	p := newPopup(opener)
	require.NoError(t, p.Open(context.Background(), "https://payments.example/frame"))
	assert.False(t, p.IsClosed())

	opener.Window.SimulateUserClose()
	assert.True(t, p.IsClosed())
}

func TestPopup_CloseIsIdempotent(t *testing.T) {
	opener := &testutil.MockWindowOpener{}
	p := newPopup(opener)
	require.NoError(t, p.Open(context.Background(), "https://payments.example/frame"))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, p.IsClosed())
	assert.True(t, opener.Window.IsClosed())
}

func TestPopup_RedirectAndFocus(t *testing.T) {
	opener := &testutil.MockWindowOpener{}
	p := newPopup(opener)
	require.NoError(t, p.Open(context.Background(), "https://payments.example/frame"))

	require.NoError(t, p.Focus())
	require.NoError(t, p.Redirect(context.Background(), "https://payments.example/next"))
	assert.Equal(t, []string{"https://payments.example/next"}, opener.Window.Navigations())

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Redirect(context.Background(), "https://payments.example/next"), flowerr.ErrFrameClosed)
	assert.ErrorIs(t, p.Focus(), flowerr.ErrFrameClosed)
}

func TestPopup_ClosedHandleNeverReopens(t *testing.T) {
	p := newPopup(&testutil.MockWindowOpener{})
	require.NoError(t, p.Open(context.Background(), "https://payments.example/frame"))
	require.NoError(t, p.Close())

	err := p.Open(context.Background(), "https://payments.example/frame")
	assert.ErrorIs(t, err, flowerr.ErrFrameClosed)
}
