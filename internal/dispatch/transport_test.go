package dispatch_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/framelink/internal/bus"
	"github.com/cassiomorais/framelink/internal/dispatch"
)

func newRelay(t *testing.T) *httptest.Server {
	t.Helper()
	store := dispatch.NewMemoryStore(time.Minute, nil)
	t.Cleanup(func() { store.Close() })

	srv := dispatch.NewServer(dispatch.ServerDeps{
		Store:   store,
		Claimer: dispatch.NewMemoryClaimer(nil),
		Logger:  zerolog.Nop(),
		Relay:   relayConfig(),
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTPTransport_RoundTrip(t *testing.T) {
	ts := newRelay(t)
	channelID := uuid.NewString()

	parent := dispatch.NewHTTPTransport(ts.URL, channelID, dispatch.SideParent,
		dispatch.WithPollWait(100*time.Millisecond))
	child := dispatch.NewHTTPTransport(ts.URL, channelID, dispatch.SideChild,
		dispatch.WithPollWait(100*time.Millisecond))
	defer parent.Close()
	defer child.Close()

	ctx := context.Background()
	ev, err := bus.NewEvent(bus.KindDisplayQRCode, bus.DisplayQRCodePayload{ContextID: "ctx1"})
	require.NoError(t, err)
	require.NoError(t, parent.Send(ctx, bus.Frame{ChannelID: channelID, Event: ev}))

	select {
	case frame := <-child.Receive():
		assert.Equal(t, bus.KindDisplayQRCode, frame.Event.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("child never received the relayed frame")
	}

	// A sender must not read back its own frames.
	select {
	case frame := <-parent.Receive():
		t.Fatalf("parent received its own frame: %s", frame.Event.Kind)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestHTTPTransport_CarriesABus(t *testing.T) {
	ts := newRelay(t)
	channelID := uuid.NewString()

	parentTr := dispatch.NewHTTPTransport(ts.URL, channelID, dispatch.SideParent,
		dispatch.WithPollWait(100*time.Millisecond))
	childTr := dispatch.NewHTTPTransport(ts.URL, channelID, dispatch.SideChild,
		dispatch.WithPollWait(100*time.Millisecond))

	parent := bus.New(channelID, parentTr)
	child := bus.New(channelID, childTr)
	defer parent.Teardown()
	defer child.Teardown()

	got := make(chan bus.Event, 1)
	parent.On(bus.KindAuthorizationCompleted, func(ev bus.Event) { got <- ev })

	ctx := context.Background()
	ev, err := bus.NewEvent(bus.KindAuthorizationCompleted, bus.AuthorizationCompletedPayload{
		PaymentMethodNonce: "pm1",
		Username:           "jane",
	})
	require.NoError(t, err)
	require.NoError(t, child.Emit(ctx, ev))

	select {
	case received := <-got:
		var payload bus.AuthorizationCompletedPayload
		require.NoError(t, received.Decode(&payload))
		assert.Equal(t, "pm1", payload.PaymentMethodNonce)
		assert.Equal(t, "jane", payload.Username)
	case <-time.After(5 * time.Second):
		t.Fatal("parent bus never dispatched the relayed event")
	}
}

func TestHTTPTransport_Claim(t *testing.T) {
	ts := newRelay(t)
	channelID := uuid.NewString()

	a := dispatch.NewHTTPTransport(ts.URL, channelID, dispatch.SideParent)
	b := dispatch.NewHTTPTransport(ts.URL, channelID, dispatch.SideParent)
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, a.Claim(ctx, "tab-a"))
	assert.Error(t, b.Claim(ctx, "tab-b"))
}
