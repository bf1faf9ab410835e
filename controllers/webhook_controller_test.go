package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"commerce-engine/apperrors"
	"commerce-engine/models"
	"commerce-engine/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type mockProcessor struct {
	result *services.ProcessingResult
	err    error
	calls  int
}

func (m *mockProcessor) ApplyCallback(_ context.Context, _ models.PaymentGateway, _ http.Header, _ []byte) (*services.ProcessingResult, error) {
	m.calls++
	return m.result, m.err
}

type mockLogRepo struct {
	created   []*models.PaymentCallbackLog
	outcomes  map[uuid.UUID]map[string]interface{}
	createErr error
}

func (m *mockLogRepo) Create(_ context.Context, log *models.PaymentCallbackLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	log.ID = uuid.New()
	m.created = append(m.created, log)
	return nil
}

func (m *mockLogRepo) RecordOutcome(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if m.outcomes == nil {
		m.outcomes = map[uuid.UUID]map[string]interface{}{}
	}
	m.outcomes[id] = updates
	return nil
}

func (m *mockLogRepo) List(_ context.Context, _ *models.PaymentGateway, _, _ int) ([]models.PaymentCallbackLog, int64, error) {
	return nil, 0, nil
}

func postCallback(wc *WebhookController, gateway, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	r := gin.New()
	r.POST("/callbacks/:gateway", wc.Receive)
	req := httptest.NewRequest(http.MethodPost, "/callbacks/"+gateway, strings.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

func TestReceive_LogsBeforeAndAfterProcessing(t *testing.T) {
	logs := &mockLogRepo{}
	proc := &mockProcessor{result: &services.ProcessingResult{
		TransactionID: uuid.New(),
		ProviderTxID:  "LP-123",
		Status:        models.PaymentSuccess,
		Applied:       true,
	}}
	wc := &WebhookController{Processor: proc, Logs: logs, Logger: zap.NewNop()}

	w := postCallback(wc, "linepay", `{"transactionId":"LP-123"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, proc.calls)

	assert.Len(t, logs.created, 1)
	entry := logs.created[0]
	assert.Equal(t, models.GatewayLinePay, entry.Gateway)
	assert.Equal(t, models.CallbackReceived, entry.Result, "phase one is written before processing")
	assert.Equal(t, `{"transactionId":"LP-123"}`, entry.RawParams)

	outcome := logs.outcomes[entry.ID]
	assert.Equal(t, models.CallbackProcessed, outcome["result"])
	assert.Equal(t, "LP-123", outcome["provider_tx_id"])
	assert.Equal(t, string(models.PaymentSuccess), outcome["parsed_status"])
}

func TestReceive_DuplicateIsLoggedIgnored(t *testing.T) {
	logs := &mockLogRepo{}
	proc := &mockProcessor{result: &services.ProcessingResult{
		ProviderTxID: "LP-123",
		Status:       models.PaymentSuccess,
		Duplicate:    true,
	}}
	wc := &WebhookController{Processor: proc, Logs: logs, Logger: zap.NewNop()}

	w := postCallback(wc, "linepay", `{}`)

	assert.Equal(t, http.StatusOK, w.Code)
	outcome := logs.outcomes[logs.created[0].ID]
	assert.Equal(t, models.CallbackIgnored, outcome["result"])
	assert.Equal(t, "duplicate delivery", outcome["error_message"])
}

func TestReceive_ProcessingErrorStillAcknowledges(t *testing.T) {
	logs := &mockLogRepo{}
	proc := &mockProcessor{err: errors.New("database unavailable")}
	wc := &WebhookController{Processor: proc, Logs: logs, Logger: zap.NewNop()}

	w := postCallback(wc, "linepay", `{}`)

	assert.Equal(t, http.StatusOK, w.Code, "the gateway must not retry on internal failures")
	outcome := logs.outcomes[logs.created[0].ID]
	assert.Equal(t, models.CallbackError, outcome["result"])
	assert.Equal(t, "database unavailable", outcome["error_message"])
}

func TestReceive_InvalidSignatureIsIgnoredNotError(t *testing.T) {
	logs := &mockLogRepo{}
	proc := &mockProcessor{err: apperrors.Wrap(apperrors.ErrInvalidSignature, errors.New("mismatch"))}
	wc := &WebhookController{Processor: proc, Logs: logs, Logger: zap.NewNop()}

	w := postCallback(wc, "linepay", `{}`)

	assert.Equal(t, http.StatusOK, w.Code)
	outcome := logs.outcomes[logs.created[0].ID]
	assert.Equal(t, models.CallbackIgnored, outcome["result"])
}

func TestReceive_ECPayGetsPlainTextAck(t *testing.T) {
	logs := &mockLogRepo{}
	proc := &mockProcessor{result: &services.ProcessingResult{Applied: true, Status: models.PaymentSuccess}}
	wc := &WebhookController{Processor: proc, Logs: logs, Logger: zap.NewNop()}

	w := postCallback(wc, "ecpay", "RtnCode=1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1|OK", w.Body.String())
}

func TestReceive_UnknownGatewayIs404(t *testing.T) {
	logs := &mockLogRepo{}
	proc := &mockProcessor{}
	wc := &WebhookController{Processor: proc, Logs: logs, Logger: zap.NewNop()}

	w := postCallback(wc, "paypal", `{}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, logs.created)
	assert.Equal(t, 0, proc.calls)
}

func TestReceive_LogFailureRefusesCallback(t *testing.T) {
	logs := &mockLogRepo{createErr: errors.New("disk full")}
	proc := &mockProcessor{}
	wc := &WebhookController{Processor: proc, Logs: logs, Logger: zap.NewNop()}

	w := postCallback(wc, "linepay", `{}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code, "without a durable receipt the gateway must retry")
	assert.Equal(t, 0, proc.calls)
}
