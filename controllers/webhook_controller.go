package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"commerce-engine/apperrors"
	"commerce-engine/models"
	"commerce-engine/repository"
	"commerce-engine/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CallbackProcessor is the part of the payment orchestrator the webhook
// pipeline needs.
type CallbackProcessor interface {
	ApplyCallback(ctx context.Context, gateway models.PaymentGateway, headers http.Header, body []byte) (*services.ProcessingResult, error)
}

// WebhookController is the callback ingestion pipeline: it durably logs every
// inbound webhook before processing and acknowledges the gateway with 200
// regardless of the processing outcome, so provider retry storms never build
// up. Failures live in the callback log and the operator channel, not in the
// HTTP response.
type WebhookController struct {
	Processor CallbackProcessor
	Logs      repository.CallbackLogRepository
	Logger    *zap.Logger
}

var webhookGateways = map[string]models.PaymentGateway{
	"linepay": models.GatewayLinePay,
	"ecpay":   models.GatewayECPay,
	"stripe":  models.GatewayStripe,
	"manual":  models.GatewayManual,
}

// Receive handles POST /callbacks/:gateway.
func (wc *WebhookController) Receive(c *gin.Context) {
	gateway, ok := webhookGateways[c.Param("gateway")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown gateway"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	start := time.Now()

	// Phase one: the receipt is on disk before any processing, so even a
	// crash mid-processing leaves an audit trail.
	logEntry := &models.PaymentCallbackLog{
		Gateway:   gateway,
		RawParams: string(body),
		Result:    models.CallbackReceived,
		RequestIP: c.ClientIP(),
	}
	if err := wc.Logs.Create(c.Request.Context(), logEntry); err != nil {
		wc.Logger.Error("Failed to log inbound callback",
			zap.String("gateway", string(gateway)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record callback"})
		return
	}

	result, procErr := wc.Processor.ApplyCallback(c.Request.Context(), gateway, c.Request.Header, body)

	// Phase two: record the outcome on the same row.
	wc.recordOutcome(c.Request.Context(), logEntry, result, procErr, time.Since(start))

	if gateway == models.GatewayECPay {
		// ECPay retries unless it reads exactly this body.
		c.String(http.StatusOK, "1|OK")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (wc *WebhookController) recordOutcome(ctx context.Context, logEntry *models.PaymentCallbackLog, result *services.ProcessingResult, procErr error, latency time.Duration) {
	updates := map[string]interface{}{
		"latency_ms": latency.Milliseconds(),
	}
	if result != nil {
		updates["provider_tx_id"] = result.ProviderTxID
		updates["parsed_status"] = string(result.Status)
	}

	switch {
	case procErr == nil && result != nil && result.Applied:
		updates["result"] = models.CallbackProcessed
	case procErr == nil && result != nil && result.Duplicate:
		updates["result"] = models.CallbackIgnored
		updates["error_message"] = "duplicate delivery"
	case procErr == nil:
		updates["result"] = models.CallbackIgnored
		updates["error_message"] = "no transition applied"
	case errors.Is(procErr, apperrors.ErrInvalidSignature),
		errors.Is(procErr, apperrors.ErrUnknownTransaction):
		updates["result"] = models.CallbackIgnored
		updates["error_message"] = procErr.Error()
	default:
		updates["result"] = models.CallbackError
		updates["error_message"] = procErr.Error()
	}

	if err := wc.Logs.RecordOutcome(ctx, logEntry.ID, updates); err != nil {
		wc.Logger.Error("Failed to record callback outcome",
			zap.String("callback_log_id", logEntry.ID.String()),
			zap.Error(err),
		)
	}
}
