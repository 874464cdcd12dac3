package bus

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a bus event. The string values are a wire contract with the
// embedded child context and must remain stable.
type Kind string

const (
	KindReady                  Kind = "ready"
	KindRequestNewQRCode       Kind = "request-new-qr-code"
	KindCustomerCanceled       Kind = "customer-canceled"
	KindAuthorizationCompleted Kind = "authorization-completed"
	KindUnknownError           Kind = "unknown-error"
	KindDisplayQRCode          Kind = "display-qr-code"
	KindDisplayError           Kind = "display-error"
	KindAuthorize              Kind = "authorize"
	KindAuthorizing            Kind = "authorizing"
	KindClosedFromParent       Kind = "closed-from-parent"
)

// Event is one message exchanged between the parent page and a child context.
type Event struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with the payload marshaled to JSON.
// A nil payload produces an event with no body.
func NewEvent(kind Kind, payload any) (Event, error) {
	if payload == nil {
		return Event{Kind: kind}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Event{Kind: kind, Payload: raw}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Kind)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// DisplayQRCodePayload tells the child context which payment context to render.
type DisplayQRCodePayload struct {
	ContextID  string `json:"id"`
	MerchantID string `json:"merchantId"`
}

// DisplayErrorPayload carries a human-readable failure message for the child
// context to render.
type DisplayErrorPayload struct {
	Message string `json:"message"`
}

// AuthorizationCompletedPayload is forwarded by the child context when the
// authorization finished outside the polling path.
type AuthorizationCompletedPayload struct {
	PaymentMethodNonce string `json:"paymentMethodNonce"`
	Username           string `json:"username"`
}

// UnknownErrorPayload carries diagnostics for an unexpected child failure.
type UnknownErrorPayload struct {
	Message string `json:"message"`
}
