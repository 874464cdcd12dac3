package venmodesktop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cassiomorais/framelink/internal/config"
	"github.com/cassiomorais/framelink/internal/graphql"
	"github.com/cassiomorais/framelink/pkg/retry"
)

// CreateResult is the gateway's answer to a create mutation.
type CreateResult struct {
	ID         string
	MerchantID string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Status     Status
}

// LookupResult is the gateway's answer to a status lookup.
type LookupResult struct {
	Status          Status
	PaymentMethodID string
	UserName        string
}

// ContextClient drives the server-side payment context resource. The legacy
// and current gateway schemas are two implementations chosen once at
// construction.
type ContextClient interface {
	Create(ctx context.Context) (*CreateResult, error)
	Update(ctx context.Context, id string, status Status) error
	Lookup(ctx context.Context, id string) (*LookupResult, error)
}

const (
	createMutation = `mutation CreateVenmoPaymentContext($input: CreateVenmoPaymentContextInput!) {
  createVenmoPaymentContext(input: $input) {
    venmoPaymentContext { id merchantId createdAt expiresAt status }
  }
}`

	legacyCreateMutation = `mutation CreateVenmoQRCodePaymentContext($input: CreateVenmoQRCodePaymentContextInput!) {
  createVenmoQRCodePaymentContext(input: $input) {
    venmoQRCodePaymentContext { id merchantId createdAt expiresAt status }
  }
}`

	updateMutation = `mutation UpdateVenmoPaymentContextStatus($input: UpdateVenmoPaymentContextStatusInput!) {
  updateVenmoPaymentContextStatus(input: $input) { clientMutationId }
}`

	legacyUpdateMutation = `mutation UpdateVenmoQRCodePaymentContextStatus($input: UpdateVenmoQRCodePaymentContextInput!) {
  updateVenmoQRCodePaymentContext(input: $input) { clientMutationId }
}`

	lookupQuery = `query PaymentContext($id: ID!) {
  node(id: $id) {
    ... on VenmoPaymentContext { status paymentMethodId userName }
  }
}`
)

type contextWire struct {
	ID         string    `json:"id"`
	MerchantID string    `json:"merchantId"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Status     Status    `json:"status"`
}

type nodeWire struct {
	Node struct {
		Status          Status `json:"status"`
		PaymentMethodID string `json:"paymentMethodId"`
		UserName        string `json:"userName"`
	} `json:"node"`
}

// gatewayClient is the shared machinery behind both schema strategies.
type gatewayClient struct {
	exec        graphql.Executor
	environment string
	intent      string
	retryCfg    retry.Config
	log         zerolog.Logger

	createOp     string
	createDoc    string
	createField  string
	contextField string
	updateOp     string
	updateDoc    string
}

// NewContextClient picks the schema strategy from config.
func NewContextClient(exec graphql.Executor, cfg *config.GatewayConfig, log zerolog.Logger) ContextClient {
	retryCfg := retry.Config{
		MaxAttempts:  cfg.CreateRetries,
		InitialDelay: cfg.CreateRetryDelay,
		MaxDelay:     10 * time.Second,
	}
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}

	base := gatewayClient{
		exec:        exec,
		environment: cfg.Environment,
		intent:      "PAY_FROM_APP",
		retryCfg:    retryCfg,
		log:         log,
	}
	if cfg.UseLegacyQRCodeMutation {
		// Older QR-code schema kept for gateways that have not migrated yet.
		base.createOp = "CreateVenmoQRCodePaymentContext"
		base.createDoc = legacyCreateMutation
		base.createField = "createVenmoQRCodePaymentContext"
		base.contextField = "venmoQRCodePaymentContext"
		base.updateOp = "UpdateVenmoQRCodePaymentContextStatus"
		base.updateDoc = legacyUpdateMutation
	} else {
		base.createOp = "CreateVenmoPaymentContext"
		base.createDoc = createMutation
		base.createField = "createVenmoPaymentContext"
		base.contextField = "venmoPaymentContext"
		base.updateOp = "UpdateVenmoPaymentContextStatus"
		base.updateDoc = updateMutation
	}
	return &base
}

// Create issues the create mutation. Failures before the flow starts are safe
// to retry, so this is the one gateway call that goes through backoff.
func (g *gatewayClient) Create(ctx context.Context) (*CreateResult, error) {
	variables := map[string]any{
		"input": map[string]any{
			"environment": g.environment,
			"intent":      g.intent,
		},
	}

	data, err := retry.DoWithResult(ctx, g.retryCfg, func() (json.RawMessage, error) {
		return g.exec.Execute(ctx, g.createOp, g.createDoc, variables)
	}, func(attempt uint, err error) {
		g.log.Warn().Uint("attempt", attempt).Err(err).Msg("create payment context retry")
	})
	if err != nil {
		return nil, fmt.Errorf("create payment context: %w", err)
	}

	var payload map[string]map[string]contextWire
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}
	wire, ok := payload[g.createField][g.contextField]
	if !ok || wire.ID == "" {
		return nil, fmt.Errorf("create payment context: empty response")
	}
	return &CreateResult{
		ID:         wire.ID,
		MerchantID: wire.MerchantID,
		CreatedAt:  wire.CreatedAt,
		ExpiresAt:  wire.ExpiresAt,
		Status:     wire.Status,
	}, nil
}

// Update issues a status update mutation. The return payload carries nothing
// meaningful; the call is a fire-and-forget confirmation.
func (g *gatewayClient) Update(ctx context.Context, id string, status Status) error {
	variables := map[string]any{
		"input": map[string]any{
			"id":     id,
			"status": string(status),
		},
	}
	if _, err := g.exec.Execute(ctx, g.updateOp, g.updateDoc, variables); err != nil {
		return fmt.Errorf("update payment context %s to %s: %w", id, status, err)
	}
	return nil
}

// Lookup fetches the current status via the generic node-by-id query. Never
// retried: a failed lookup aborts its poll chain.
func (g *gatewayClient) Lookup(ctx context.Context, id string) (*LookupResult, error) {
	data, err := g.exec.Execute(ctx, "PaymentContext", lookupQuery, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("lookup payment context %s: %w", id, err)
	}
	var payload nodeWire
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	return &LookupResult{
		Status:          payload.Node.Status,
		PaymentMethodID: payload.Node.PaymentMethodID,
		UserName:        payload.Node.UserName,
	}, nil
}
