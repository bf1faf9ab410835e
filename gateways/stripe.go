package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"commerce-engine/apperrors"
	"commerce-engine/models"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"
)

// StripeAdapter implements Adapter on top of Stripe Checkout sessions.
type StripeAdapter struct {
	SecretKey  string
	WebhookKey string
	SuccessURL string
	CancelURL  string
}

func NewStripeAdapter(secretKey, webhookKey, successURL, cancelURL string) *StripeAdapter {
	stripe.Key = secretKey
	return &StripeAdapter{
		SecretKey:  secretKey,
		WebhookKey: webhookKey,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	}
}

func (a *StripeAdapter) Gateway() models.PaymentGateway { return models.GatewayStripe }

func (a *StripeAdapter) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
				UnitAmount: stripe.Int64(int64(req.Amount)),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(a.SuccessURL),
		CancelURL:         stripe.String(a.CancelURL),
		ClientReferenceID: stripe.String(req.OrderNumber),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.OrderNumber)
	params.AddMetadata("order_number", req.OrderNumber)
	params.AddMetadata("customer_id", req.CustomerID)

	sess, err := session.New(params)
	if err != nil {
		return nil, err
	}

	return &CreatePaymentResult{
		PaymentURL:   sess.URL,
		ProviderTxID: sess.ID,
	}, nil
}

func (a *StripeAdapter) ParseCallback(headers http.Header, body []byte) (*Notification, error) {
	event, err := webhook.ConstructEvent(body, headers.Get("Stripe-Signature"), a.WebhookKey)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidSignature, err)
	}

	var status models.PaymentStatus
	switch event.Type {
	case "checkout.session.completed":
		status = models.PaymentSuccess
	case "checkout.session.expired":
		status = models.PaymentExpired
	case "checkout.session.async_payment_failed":
		status = models.PaymentFailed
	default:
		return nil, apperrors.Wrap(apperrors.ErrValidation, fmt.Errorf("unhandled stripe event %q", event.Type))
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, err)
	}

	return &Notification{
		Gateway:      models.GatewayStripe,
		ProviderTxID: sess.ID,
		OrderNumber:  sess.ClientReferenceID,
		Status:       status,
		Amount:       int(sess.AmountTotal),
		RawPayload:   string(body),
	}, nil
}

func (a *StripeAdapter) QueryStatus(ctx context.Context, providerTxID string) (*Notification, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := session.Get(providerTxID, params)
	if err != nil {
		return nil, err
	}

	status := models.PaymentProcessing
	switch sess.Status {
	case stripe.CheckoutSessionStatusComplete:
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			status = models.PaymentSuccess
		}
	case stripe.CheckoutSessionStatusExpired:
		status = models.PaymentExpired
	}

	raw, _ := json.Marshal(sess)
	return &Notification{
		Gateway:      models.GatewayStripe,
		ProviderTxID: sess.ID,
		OrderNumber:  sess.ClientReferenceID,
		Status:       status,
		Amount:       int(sess.AmountTotal),
		RawPayload:   string(raw),
	}, nil
}
