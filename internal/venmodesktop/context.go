// Package venmodesktop drives the QR-code desktop payment flow: a server-side
// payment context is created, rendered as a QR code in the child iframe, and
// polled until it reaches a terminal status, while bus events from the iframe
// can interrupt the flow at any moment.
package venmodesktop

import (
	"strings"
	"time"

	"github.com/cassiomorais/framelink/internal/flowerr"
)

// Status is the server-side payment context status. Unrecognized values are
// tolerated so the server can introduce new statuses without breaking older
// clients.
type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusScanned  Status = "SCANNED"
	StatusApproved Status = "APPROVED"
	StatusExpired  Status = "EXPIRED"
	StatusFailed   Status = "FAILED"
	StatusCanceled Status = "CANCELED"
)

// Terminal reports whether no further transition is expected. APPROVED is
// terminal for this flow even though it is the success case.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusExpired, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Known reports whether the status is one this client understands.
func (s Status) Known() bool {
	switch s {
	case StatusCreated, StatusScanned, StatusApproved, StatusExpired, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// PaymentContext is the client's cached view of the server-side resource.
// The server owns the real lifecycle; the client holds only the id and the
// last observed status.
type PaymentContext struct {
	ID              string
	Status          Status
	CreatedAt       time.Time
	ExpiresAt       time.Time
	MerchantID      string
	PaymentMethodID string
	UserName        string
}

// TTL is the server-declared lifetime of the context. Only the duration is
// trusted; absolute server timestamps are not compared against the local
// clock.
func (c *PaymentContext) TTL() time.Duration {
	return c.ExpiresAt.Sub(c.CreatedAt)
}

// Observe records a status reported by a lookup. Unknown statuses are ignored
// and change nothing. Once terminal, any further transition is rejected.
func (c *PaymentContext) Observe(next Status) (changed bool, err error) {
	if !next.Known() {
		return false, nil
	}
	if next == c.Status {
		return false, nil
	}
	if c.Status.Terminal() {
		return false, flowerr.ErrContextTerminal
	}
	c.Status = next
	return true, nil
}

// NormalizeUsername strips any leading @ signs from the server-provided
// username and prepends exactly one. Idempotent.
func NormalizeUsername(raw string) string {
	return "@" + strings.TrimLeft(raw, "@")
}
