package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pair(t *testing.T, channelID string) (*Bus, *Bus) {
	t.Helper()
	parentEnd, childEnd := NewMemoryPair()
	parent := New(channelID, parentEnd, WithOrigin("https://merchant.example.com"))
	child := New(channelID, childEnd, WithOrigin("https://gateway.example.com"))
	t.Cleanup(parent.Teardown)
	t.Cleanup(child.Teardown)
	return parent, child
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_EmitDeliversToRemoteHandler(t *testing.T) {
	parent, child := pair(t, "chan-1")

	got := make(chan Event, 1)
	child.On(KindDisplayQRCode, func(ev Event) { got <- ev })

	ev, err := NewEvent(KindDisplayQRCode, DisplayQRCodePayload{ContextID: "ctx1", MerchantID: "m1"})
	require.NoError(t, err)
	require.NoError(t, parent.Emit(context.Background(), ev))

	received := waitEvent(t, got)
	var payload DisplayQRCodePayload
	require.NoError(t, received.Decode(&payload))
	assert.Equal(t, "ctx1", payload.ContextID)
	assert.Equal(t, "m1", payload.MerchantID)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	parent, child := pair(t, "chan-2")

	got := make(chan Event, 4)
	off := child.On(KindAuthorizing, func(ev Event) { got <- ev })

	ev, _ := NewEvent(KindAuthorizing, nil)
	require.NoError(t, parent.Emit(context.Background(), ev))
	waitEvent(t, got)

	off()
	off() // safe to call twice

	require.NoError(t, parent.Emit(context.Background(), ev))
	select {
	case <-got:
		t.Fatal("handler fired after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_OffAllSilencesEveryHandler(t *testing.T) {
	parent, child := pair(t, "chan-3")

	got := make(chan Event, 4)
	child.On(KindAuthorize, func(ev Event) { got <- ev })
	child.On(KindUnknownError, func(ev Event) { got <- ev })
	child.OffAll()

	ev, _ := NewEvent(KindAuthorize, nil)
	require.NoError(t, parent.Emit(context.Background(), ev))
	ev, _ = NewEvent(KindUnknownError, nil)
	require.NoError(t, parent.Emit(context.Background(), ev))

	select {
	case <-got:
		t.Fatal("handler fired after OffAll")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_ChannelIDMismatchIsDropped(t *testing.T) {
	parentEnd, childEnd := NewMemoryPair()
	parent := New("chan-a", parentEnd)
	child := New("chan-b", childEnd)
	t.Cleanup(parent.Teardown)
	t.Cleanup(child.Teardown)

	got := make(chan Event, 1)
	child.On(KindReady, func(ev Event) { got <- ev })

	ev, _ := NewEvent(KindReady, nil)
	require.NoError(t, parent.Emit(context.Background(), ev))

	select {
	case <-got:
		t.Fatal("event crossed channels with different ids")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_TargetDropsUnverifiedOrigin(t *testing.T) {
	parentEnd, childEnd := NewMemoryPair()
	parent := New("chan-4", parentEnd, WithOrigin("https://merchant.example.com"))
	child := New("chan-4", childEnd, WithOrigin("https://evil.example.com"))
	t.Cleanup(parent.Teardown)
	t.Cleanup(child.Teardown)

	parent.Target("https://gateway.example.com")

	got := make(chan Event, 1)
	parent.On(KindAuthorizationCompleted, func(ev Event) { got <- ev })

	ev, _ := NewEvent(KindAuthorizationCompleted, AuthorizationCompletedPayload{PaymentMethodNonce: "n"})
	require.NoError(t, child.Emit(context.Background(), ev))

	select {
	case <-got:
		t.Fatal("frame from unverified origin was delivered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_TeardownIsIdempotent(t *testing.T) {
	parentEnd, _ := NewMemoryPair()
	b := New("chan-5", parentEnd)

	b.Teardown()
	b.Teardown() // must not panic or error

	err := b.Emit(context.Background(), Event{Kind: KindReady})
	assert.Error(t, err)
}

func TestBus_EmitAfterRemoteGoneIsSilent(t *testing.T) {
	parentEnd, childEnd := NewMemoryPair()
	parent := New("chan-6", parentEnd)
	t.Cleanup(parent.Teardown)

	require.NoError(t, childEnd.Close())

	ev, _ := NewEvent(KindClosedFromParent, nil)
	assert.NoError(t, parent.Emit(context.Background(), ev))
}

func TestEvent_DecodeWithoutPayload(t *testing.T) {
	ev := Event{Kind: KindReady}
	var payload DisplayErrorPayload
	assert.Error(t, ev.Decode(&payload))
}
