package gateways

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"commerce-engine/apperrors"
	"commerce-engine/models"
)

// ECPayAdapter implements Adapter for ECPay's AIO checkout. ECPay identifies
// payments by MerchantTradeNo (our order number), so that is what the engine
// tracks as the provider transaction id; ECPay's own TradeNo stays in the raw
// payload for audit.
type ECPayAdapter struct {
	MerchantID string
	HashKey    string
	HashIV     string
	Endpoint   string
	ReturnURL  string
	Client     *http.Client
}

func NewECPayAdapter(merchantID, hashKey, hashIV, endpoint, returnURL string) *ECPayAdapter {
	return &ECPayAdapter{
		MerchantID: merchantID,
		HashKey:    hashKey,
		HashIV:     hashIV,
		Endpoint:   endpoint,
		ReturnURL:  returnURL,
		Client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *ECPayAdapter) Gateway() models.PaymentGateway { return models.GatewayECPay }

func (a *ECPayAdapter) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error) {
	params := map[string]string{
		"MerchantID":        a.MerchantID,
		"MerchantTradeNo":   req.OrderNumber,
		"MerchantTradeDate": time.Now().Format("2006/01/02 15:04:05"),
		"PaymentType":       "aio",
		"TotalAmount":       strconv.Itoa(req.Amount / 100), // ECPay wants whole TWD
		"TradeDesc":         "commerce-engine checkout",
		"ItemName":          req.ProductName,
		"ReturnURL":         a.ReturnURL,
		"ChoosePayment":     "ALL",
		"EncryptType":       "1",
	}
	params["CheckMacValue"] = a.CheckMacValue(params)

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	return &CreatePaymentResult{
		PaymentURL:   a.Endpoint + "/Cashier/AioCheckOut/V5?" + values.Encode(),
		ProviderTxID: req.OrderNumber,
	}, nil
}

func (a *ECPayAdapter) ParseCallback(_ http.Header, body []byte) (*Notification, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, err)
	}

	params := map[string]string{}
	for k := range values {
		params[k] = values.Get(k)
	}

	received := params["CheckMacValue"]
	delete(params, "CheckMacValue")
	expected := a.CheckMacValue(params)
	if received == "" || subtle.ConstantTimeCompare([]byte(received), []byte(expected)) != 1 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidSignature, fmt.Errorf("ecpay CheckMacValue mismatch"))
	}

	status := models.PaymentFailed
	if params["RtnCode"] == "1" {
		status = models.PaymentSuccess
	}

	amount := 0
	if v, err := strconv.Atoi(params["TradeAmt"]); err == nil {
		amount = v * 100
	}

	return &Notification{
		Gateway:      models.GatewayECPay,
		ProviderTxID: params["MerchantTradeNo"],
		OrderNumber:  params["MerchantTradeNo"],
		Status:       status,
		Amount:       amount,
		RawPayload:   string(body),
	}, nil
}

func (a *ECPayAdapter) QueryStatus(ctx context.Context, providerTxID string) (*Notification, error) {
	params := map[string]string{
		"MerchantID":      a.MerchantID,
		"MerchantTradeNo": providerTxID,
		"TimeStamp":       strconv.FormatInt(time.Now().Unix(), 10),
	}
	params["CheckMacValue"] = a.CheckMacValue(params)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.Endpoint+"/Cashier/QueryTradeInfo/V5", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("ecpay query response malformed: %w", err)
	}

	// TradeStatus: 1 = paid, 10200095 = not paid yet, 0 = order exists unpaid.
	status := models.PaymentProcessing
	if values.Get("TradeStatus") == "1" {
		status = models.PaymentSuccess
	}

	amount := 0
	if v, err := strconv.Atoi(values.Get("TradeAmt")); err == nil {
		amount = v * 100
	}

	return &Notification{
		Gateway:      models.GatewayECPay,
		ProviderTxID: providerTxID,
		OrderNumber:  values.Get("MerchantTradeNo"),
		Status:       status,
		Amount:       amount,
		RawPayload:   string(body),
	}, nil
}

// CheckMacValue computes ECPay's signature: sort the params, wrap them in
// HashKey/HashIV, URL-encode with ECPay's .NET-style character set, lowercase,
// SHA256, uppercase hex.
func (a *ECPayAdapter) CheckMacValue(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("HashKey=" + a.HashKey)
	for _, k := range keys {
		b.WriteString("&" + k + "=" + params[k])
	}
	b.WriteString("&HashIV=" + a.HashIV)

	encoded := strings.ToLower(url.QueryEscape(b.String()))
	for escaped, bare := range dotNetEscapes {
		encoded = strings.ReplaceAll(encoded, escaped, bare)
	}

	sum := sha256.Sum256([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// ECPay signs against .NET's UrlEncode output, which leaves these characters
// bare where Go escapes them.
var dotNetEscapes = map[string]string{
	"%2d": "-",
	"%5f": "_",
	"%2e": ".",
	"%21": "!",
	"%2a": "*",
	"%28": "(",
	"%29": ")",
}
