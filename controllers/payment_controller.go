package controllers

import (
	"net/http"

	"commerce-engine/apperrors"
	"commerce-engine/middleware"
	"commerce-engine/models"
	"commerce-engine/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PaymentController struct {
	Orchestrator *services.PaymentOrchestrator
	Logger       *zap.Logger
}

// InitiatePayment starts a payment attempt for an order and returns the
// redirect URL.
func (pc *PaymentController) InitiatePayment(c *gin.Context) {
	var req struct {
		OrderID string `json:"order_id" binding:"required"`
		Gateway string `json:"gateway" binding:"required"`
		Amount  int    `json:"amount" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	tx, err := pc.Orchestrator.Initiate(c.Request.Context(), orderID, models.PaymentGateway(req.Gateway), req.Amount)
	if err != nil {
		pc.Logger.Warn("Payment initiation rejected",
			zap.String("order_id", req.OrderID),
			zap.String("gateway", req.Gateway),
			zap.Error(err),
		)
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

// GetOrderTransactions returns the payment history for an order.
func (pc *PaymentController) GetOrderTransactions(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("orderID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	txs, err := pc.Orchestrator.Transactions(c.Request.Context(), orderID)
	if err != nil {
		pc.Logger.Error("Failed to fetch transactions",
			zap.String("order_id", orderID.String()),
			zap.String("user_id", middleware.GetUserID(c)),
			zap.Error(err),
		)
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
