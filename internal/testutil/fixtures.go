package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/cassiomorais/framelink/internal/venmodesktop"
)

// NewTestCreateResult builds a create-mutation result with the given TTL,
// anchored at t0.
func NewTestCreateResult(id string, t0 time.Time, ttl time.Duration) *venmodesktop.CreateResult {
	return &venmodesktop.CreateResult{
		ID:         id,
		MerchantID: "merchant-" + uuid.NewString()[:8],
		CreatedAt:  t0,
		ExpiresAt:  t0.Add(ttl),
		Status:     venmodesktop.StatusCreated,
	}
}

// Lookup builds a lookup result for scripting.
func Lookup(status venmodesktop.Status) venmodesktop.LookupResult {
	return venmodesktop.LookupResult{Status: status}
}

// ApprovedLookup builds the terminal-success lookup result.
func ApprovedLookup(paymentMethodID, userName string) venmodesktop.LookupResult {
	return venmodesktop.LookupResult{
		Status:          venmodesktop.StatusApproved,
		PaymentMethodID: paymentMethodID,
		UserName:        userName,
	}
}
