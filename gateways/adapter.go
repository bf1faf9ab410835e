package gateways

import (
	"context"
	"net/http"

	"commerce-engine/models"
)

// CreatePaymentRequest is the canonical outbound payment request. The
// idempotency key sent to the provider is always the order number, so a
// retried call cannot create a second provider-side charge.
type CreatePaymentRequest struct {
	OrderNumber string
	Amount      int // smallest currency unit
	Currency    string
	ProductName string
	CustomerID  string
}

// CreatePaymentResult carries the redirect URL and the provider's id for the
// new payment.
type CreatePaymentResult struct {
	PaymentURL   string
	ProviderTxID string
}

// Notification is the engine-internal canonical form of a gateway callback or
// polled status response.
type Notification struct {
	Gateway      models.PaymentGateway
	ProviderTxID string
	OrderNumber  string
	Status       models.PaymentStatus
	Amount       int
	RawPayload   string
}

// Adapter translates between the engine's canonical model and one provider's
// wire format, including signature verification. The orchestrator depends
// only on this interface.
type Adapter interface {
	Gateway() models.PaymentGateway
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error)
	// ParseCallback verifies the payload signature and returns the canonical
	// notification. A verification failure returns apperrors.ErrInvalidSignature.
	ParseCallback(headers http.Header, body []byte) (*Notification, error)
	QueryStatus(ctx context.Context, providerTxID string) (*Notification, error)
}

// Registry maps gateway names to adapters.
type Registry map[models.PaymentGateway]Adapter

func (r Registry) Get(gateway models.PaymentGateway) (Adapter, bool) {
	a, ok := r[gateway]
	return a, ok
}
