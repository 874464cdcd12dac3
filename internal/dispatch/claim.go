package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cassiomorais/framelink/internal/flowerr"
)

// Claimer hands out exclusive ownership of a channel id. A parent context
// claims its channel before opening the child context so a second tab cannot
// hijack the settlement stream.
type Claimer interface {
	// Claim reports whether owner now holds the channel. Claiming a channel
	// you already hold refreshes the TTL.
	Claim(ctx context.Context, channelID, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, channelID, owner string) error
}

type claim struct {
	owner   string
	expires time.Time
}

type memoryClaimer struct {
	mu     sync.Mutex
	claims map[string]claim
	clock  clockwork.Clock
}

// NewMemoryClaimer builds an in-process Claimer.
func NewMemoryClaimer(clock clockwork.Clock) Claimer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &memoryClaimer{claims: make(map[string]claim), clock: clock}
}

func (c *memoryClaimer) Claim(_ context.Context, channelID, owner string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	current, ok := c.claims[channelID]
	if ok && current.expires.After(now) && current.owner != owner {
		return false, nil
	}
	c.claims[channelID] = claim{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (c *memoryClaimer) Release(_ context.Context, channelID, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.claims[channelID]
	if !ok || current.owner != owner || !current.expires.After(c.clock.Now()) {
		return flowerr.ErrClaimNotHeld
	}
	delete(c.claims, channelID)
	return nil
}
