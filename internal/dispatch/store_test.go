package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/framelink/internal/bus"
	"github.com/cassiomorais/framelink/internal/flowerr"
)

func frameOf(kind bus.Kind) bus.Frame {
	ev, _ := bus.NewEvent(kind, nil)
	return bus.Frame{ChannelID: "chan1", Event: ev}
}

func TestMemoryStore_AppendThenRead(t *testing.T) {
	store := NewMemoryStore(time.Minute, nil)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "chan1", frameOf(bus.KindReady)))
	require.NoError(t, store.Append(ctx, "chan1", frameOf(bus.KindAuthorize)))

	records, err := store.Read(ctx, "chan1", "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, bus.KindReady, records[0].Frame.Event.Kind)
	assert.Equal(t, bus.KindAuthorize, records[1].Frame.Event.Kind)

	// Resuming from the last cursor yields only what came after.
	require.NoError(t, store.Append(ctx, "chan1", frameOf(bus.KindAuthorizing)))
	records, err = store.Read(ctx, "chan1", records[1].Cursor)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, bus.KindAuthorizing, records[0].Frame.Event.Kind)
}

func TestMemoryStore_ChannelsAreIsolated(t *testing.T) {
	store := NewMemoryStore(time.Minute, nil)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "chan1", frameOf(bus.KindReady)))

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	records, err := store.Read(shortCtx, "chan2", "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryStore_ReadBlocksUntilAppend(t *testing.T) {
	store := NewMemoryStore(time.Minute, nil)
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type result struct {
		records []Record
		err     error
	}
	got := make(chan result, 1)
	go func() {
		records, err := store.Read(ctx, "chan1", "")
		got <- result{records, err}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, store.Append(ctx, "chan1", frameOf(bus.KindDisplayQRCode)))

	select {
	case r := <-got:
		require.NoError(t, r.err)
		require.Len(t, r.records, 1)
		assert.Equal(t, bus.KindDisplayQRCode, r.records[0].Frame.Event.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not wake up on append")
	}
}

func TestMemoryStore_ReadTimesOutEmpty(t *testing.T) {
	store := NewMemoryStore(time.Minute, nil)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	records, err := store.Read(ctx, "chan1", "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryStore_RejectsMalformedCursor(t *testing.T) {
	store := NewMemoryStore(time.Minute, nil)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "chan1", frameOf(bus.KindReady)))

	records, err := store.Read(ctx, "chan1", "not-a-cursor")
	require.Error(t, err)
	assert.Nil(t, records)

	var verr *flowerr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "cursor", verr.Field)
}

func TestValidStreamCursor(t *testing.T) {
	tests := []struct {
		cursor string
		valid  bool
	}{
		{"0", true},
		{"1693526400000-0", true},
		{"42", true},
		{"", false},
		{"abc", false},
		{"1693526400000-0'; FLUSHALL", false},
	}

	for _, tt := range tests {
		t.Run(tt.cursor, func(t *testing.T) {
			assert.Equal(t, tt.valid, validStreamCursor(tt.cursor))
		})
	}
}

func TestMemoryStore_ExpiresIdleChannels(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(time.Minute, clock).(*memoryStore)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "chan1", frameOf(bus.KindReady)))

	// Two janitor sweeps put the idle channel past its TTL.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(31 * time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(31 * time.Second)

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		_, ok := store.channels["chan1"]
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMemoryClaimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	claimer := NewMemoryClaimer(clock)
	ctx := context.Background()

	ok, err := claimer.Claim(ctx, "chan1", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Another owner is rejected while the claim is live.
	ok, err = claimer.Claim(ctx, "chan1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// The holder can refresh its own claim.
	ok, err = claimer.Claim(ctx, "chan1", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Error(t, claimer.Release(ctx, "chan1", "owner-b"))
	require.NoError(t, claimer.Release(ctx, "chan1", "owner-a"))

	ok, err = claimer.Claim(ctx, "chan1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryClaimer_ExpiredClaimIsReclaimable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	claimer := NewMemoryClaimer(clock)
	ctx := context.Background()

	ok, err := claimer.Claim(ctx, "chan1", "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(2 * time.Minute)

	ok, err = claimer.Claim(ctx, "chan1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
