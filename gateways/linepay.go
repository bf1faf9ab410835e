package gateways

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"commerce-engine/apperrors"
	"commerce-engine/models"

	"github.com/google/uuid"
)

// LinePayAdapter implements Adapter for the LINE Pay v3 API. Requests are
// signed with HMAC-SHA256 over channelSecret + path + body + nonce; inbound
// notifications carry the same signature scheme over the raw body.
type LinePayAdapter struct {
	ChannelID     string
	ChannelSecret string
	Endpoint      string
	ConfirmURL    string
	CancelURL     string
	Client        *http.Client
}

func NewLinePayAdapter(channelID, channelSecret, endpoint, confirmURL, cancelURL string) *LinePayAdapter {
	return &LinePayAdapter{
		ChannelID:     channelID,
		ChannelSecret: channelSecret,
		Endpoint:      endpoint,
		ConfirmURL:    confirmURL,
		CancelURL:     cancelURL,
		Client:        &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *LinePayAdapter) Gateway() models.PaymentGateway { return models.GatewayLinePay }

type linePayRequestBody struct {
	Amount       int              `json:"amount"`
	Currency     string           `json:"currency"`
	OrderID      string           `json:"orderId"`
	Packages     []linePayPackage `json:"packages"`
	RedirectURLs struct {
		ConfirmURL string `json:"confirmUrl"`
		CancelURL  string `json:"cancelUrl"`
	} `json:"redirectUrls"`
}

type linePayPackage struct {
	ID       string           `json:"id"`
	Amount   int              `json:"amount"`
	Name     string           `json:"name"`
	Products []linePayProduct `json:"products"`
}

type linePayProduct struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int    `json:"price"`
}

type linePayResponse struct {
	ReturnCode    string `json:"returnCode"`
	ReturnMessage string `json:"returnMessage"`
	Info          struct {
		TransactionID int64 `json:"transactionId"`
		PaymentURL    struct {
			Web string `json:"web"`
		} `json:"paymentUrl"`
	} `json:"info"`
}

func (a *LinePayAdapter) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error) {
	body := linePayRequestBody{
		Amount:   req.Amount,
		Currency: req.Currency,
		OrderID:  req.OrderNumber,
		Packages: []linePayPackage{{
			ID:     req.OrderNumber,
			Amount: req.Amount,
			Name:   req.ProductName,
			Products: []linePayProduct{{
				Name:     req.ProductName,
				Quantity: 1,
				Price:    req.Amount,
			}},
		}},
	}
	body.RedirectURLs.ConfirmURL = a.ConfirmURL
	body.RedirectURLs.CancelURL = a.CancelURL

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	// Order number doubles as the idempotency key: LINE Pay rejects a second
	// request for the same orderId, so a retried create cannot double-charge.
	var out linePayResponse
	if err := a.call(ctx, http.MethodPost, "/v3/payments/request", string(payload), &out); err != nil {
		return nil, err
	}
	if out.ReturnCode != "0000" {
		return nil, fmt.Errorf("line pay request rejected: %s %s", out.ReturnCode, out.ReturnMessage)
	}

	return &CreatePaymentResult{
		PaymentURL:   out.Info.PaymentURL.Web,
		ProviderTxID: fmt.Sprintf("%d", out.Info.TransactionID),
	}, nil
}

type linePayCallbackBody struct {
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
	ReturnCode    string `json:"returnCode"`
	Amount        int    `json:"amount"`
}

func (a *LinePayAdapter) ParseCallback(headers http.Header, body []byte) (*Notification, error) {
	signature := headers.Get("X-LINE-Authorization")
	nonce := headers.Get("X-LINE-Authorization-Nonce")
	expected := a.sign(string(body) + nonce)
	if signature == "" || subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidSignature, fmt.Errorf("line pay signature mismatch"))
	}

	var cb linePayCallbackBody
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, err)
	}

	return &Notification{
		Gateway:      models.GatewayLinePay,
		ProviderTxID: cb.TransactionID,
		OrderNumber:  cb.OrderID,
		Status:       linePayStatus(cb.ReturnCode),
		Amount:       cb.Amount,
		RawPayload:   string(body),
	}, nil
}

func (a *LinePayAdapter) QueryStatus(ctx context.Context, providerTxID string) (*Notification, error) {
	path := "/v3/payments/requests/" + providerTxID + "/check"

	var out struct {
		ReturnCode string `json:"returnCode"`
	}
	if err := a.call(ctx, http.MethodGet, path, "", &out); err != nil {
		return nil, err
	}

	return &Notification{
		Gateway:      models.GatewayLinePay,
		ProviderTxID: providerTxID,
		Status:       linePayStatus(out.ReturnCode),
		RawPayload:   fmt.Sprintf(`{"returnCode":%q}`, out.ReturnCode),
	}, nil
}

// linePayStatus maps LINE Pay return codes onto the transaction state machine.
func linePayStatus(code string) models.PaymentStatus {
	switch code {
	case "0000":
		return models.PaymentSuccess
	case "0121":
		return models.PaymentCancelled
	case "0122":
		return models.PaymentFailed
	case "0123":
		return models.PaymentExpired
	default:
		return models.PaymentProcessing
	}
}

func (a *LinePayAdapter) call(ctx context.Context, method, path, body string, out interface{}) error {
	nonce := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, method, a.Endpoint+path, bytes.NewReader([]byte(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-LINE-ChannelId", a.ChannelID)
	req.Header.Set("X-LINE-Authorization-Nonce", nonce)
	req.Header.Set("X-LINE-Authorization", a.sign(a.ChannelSecret+path+body+nonce))

	resp, err := a.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("line pay returned HTTP %d: %s", resp.StatusCode, data)
	}
	return json.Unmarshal(data, out)
}

func (a *LinePayAdapter) sign(message string) string {
	mac := hmac.New(sha256.New, []byte(a.ChannelSecret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
