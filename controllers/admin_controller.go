package controllers

import (
	"net/http"
	"strconv"
	"time"

	"commerce-engine/apperrors"
	"commerce-engine/middleware"
	"commerce-engine/models"
	"commerce-engine/repository"
	"commerce-engine/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminController backs the admin SPA: order lifecycle actions, payment
// reconciliation on demand, and the audit/alert surfaces.
type AdminController struct {
	Orders       *services.OrderService
	Orchestrator *services.PaymentOrchestrator
	Inventory    *services.InventoryService
	Store        repository.Store
	Logger       *zap.Logger
}

var adminOrderEvents = map[string]services.OrderEvent{
	"fulfill":  services.EventFulfillmentStarted,
	"ship":     services.EventShipmentCreated,
	"deliver":  services.EventDeliveryConfirmed,
	"complete": services.EventFinalized,
	"cancel":   services.EventManualCancel,
	"refund":   services.EventRefundApproved,
}

// ApplyOrderEvent handles POST /admin/orders/:id/:action.
func (ac *AdminController) ApplyOrderEvent(c *gin.Context) {
	event, ok := adminOrderEvents[c.Param("action")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := ac.Orders.ApplyEvent(c.Request.Context(), orderID, event)
	if err != nil {
		ac.Logger.Warn("Order event rejected",
			zap.String("order_id", orderID.String()),
			zap.String("action", c.Param("action")),
			zap.String("admin_id", middleware.GetAdminID(c)),
			zap.Error(err),
		)
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// QueryPaymentStatus handles POST /admin/payments/:gateway/:providerTxID/query:
// an on-demand reconciliation pull for a stuck transaction.
func (ac *AdminController) QueryPaymentStatus(c *gin.Context) {
	tx, err := ac.Orchestrator.QueryStatus(c.Request.Context(),
		models.PaymentGateway(c.Param("gateway")), c.Param("providerTxID"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// ListCallbackLogs handles GET /admin/callback-logs.
func (ac *AdminController) ListCallbackLogs(c *gin.Context) {
	page, limit := pagination(c)

	var gateway *models.PaymentGateway
	if g := c.Query("gateway"); g != "" {
		gw := models.PaymentGateway(g)
		gateway = &gw
	}

	logs, total, err := ac.Store.CallbackLogs().List(c.Request.Context(), gateway, page, limit)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "total": total, "page": page, "limit": limit})
}

// ListMovements handles GET /admin/inventory/movements.
func (ac *AdminController) ListMovements(c *gin.Context) {
	page, limit := pagination(c)

	var productID *uuid.UUID
	if p := c.Query("product_id"); p != "" {
		id, err := uuid.Parse(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
			return
		}
		productID = &id
	}

	movements, total, err := ac.Store.Inventory().ListMovements(c.Request.Context(), productID, page, limit)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements, "total": total, "page": page, "limit": limit})
}

// ListAlerts handles GET /admin/inventory/alerts.
func (ac *AdminController) ListAlerts(c *gin.Context) {
	page, limit := pagination(c)

	var resolved *bool
	if r := c.Query("resolved"); r != "" {
		v, err := strconv.ParseBool(r)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resolved filter"})
			return
		}
		resolved = &v
	}

	alerts, total, err := ac.Store.Inventory().ListAlerts(c.Request.Context(), resolved, page, limit)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "total": total, "page": page, "limit": limit})
}

// AcknowledgeAlert handles POST /admin/inventory/alerts/:id/ack: a manual
// resolve regardless of the current stock level.
func (ac *AdminController) AcknowledgeAlert(c *gin.Context) {
	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}

	inv := ac.Store.Inventory()
	if _, err := inv.FindAlertByID(c.Request.Context(), alertID); err != nil {
		apperrors.HandleError(c, apperrors.Wrap(apperrors.ErrNotFound, err))
		return
	}

	now := time.Now().UTC()
	if err := inv.UpdateAlert(c.Request.Context(), alertID, map[string]interface{}{
		"resolved":    true,
		"resolved_at": now,
	}); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	ac.Logger.Info("Inventory alert acknowledged",
		zap.String("alert_id", alertID.String()),
		zap.String("admin_id", middleware.GetAdminID(c)),
	)
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}

// SetStock handles POST /admin/inventory/stock.
func (ac *AdminController) SetStock(c *gin.Context) {
	var req struct {
		ProductID   string `json:"product_id" binding:"required"`
		Available   int    `json:"available" binding:"gte=0"`
		SafetyStock int    `json:"safety_stock" binding:"gte=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	stock, err := ac.Inventory.SetStock(c.Request.Context(), productID, req.Available, req.SafetyStock, middleware.GetAdminID(c))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

// GetStock handles GET /admin/inventory/stock/:productID.
func (ac *AdminController) GetStock(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("productID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	stock, err := ac.Inventory.GetStock(c.Request.Context(), productID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}
