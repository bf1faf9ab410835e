package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"commerce-engine/apperrors"
	"commerce-engine/models"
)

// ManualAdapter is the internal manual-payment path: bank transfers and
// cash-on-pickup confirmed by an operator from the admin panel. The "callback"
// is an internal request signed with a shared secret.
type ManualAdapter struct {
	Secret string
}

func NewManualAdapter(secret string) *ManualAdapter {
	return &ManualAdapter{Secret: secret}
}

func (a *ManualAdapter) Gateway() models.PaymentGateway { return models.GatewayManual }

func (a *ManualAdapter) CreatePayment(_ context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error) {
	// Nothing to dispatch; the operator settles the payment out of band.
	return &CreatePaymentResult{
		PaymentURL:   "",
		ProviderTxID: "MAN-" + req.OrderNumber,
	}, nil
}

type manualCallbackBody struct {
	TransactionID string `json:"transaction_id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	Amount        int    `json:"amount"`
}

func (a *ManualAdapter) ParseCallback(headers http.Header, body []byte) (*Notification, error) {
	signature := headers.Get("X-Manual-Signature")
	mac := hmac.New(sha256.New, []byte(a.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if signature == "" || subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidSignature, fmt.Errorf("manual confirmation signature mismatch"))
	}

	var cb manualCallbackBody
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, err)
	}

	status := models.PaymentStatus(cb.Status)
	if !status.IsTerminal() {
		return nil, apperrors.Wrap(apperrors.ErrValidation, fmt.Errorf("manual confirmation must carry a terminal status, got %q", cb.Status))
	}

	return &Notification{
		Gateway:      models.GatewayManual,
		ProviderTxID: cb.TransactionID,
		OrderNumber:  cb.OrderNumber,
		Status:       status,
		Amount:       cb.Amount,
		RawPayload:   string(body),
	}, nil
}

func (a *ManualAdapter) QueryStatus(_ context.Context, providerTxID string) (*Notification, error) {
	// Manual payments have no remote side to reconcile against; the poller
	// only ever expires them via the initiate timeout.
	return &Notification{
		Gateway:      models.GatewayManual,
		ProviderTxID: providerTxID,
		Status:       models.PaymentProcessing,
	}, nil
}
