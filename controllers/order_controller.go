package controllers

import (
	"net/http"
	"strconv"

	"commerce-engine/apperrors"
	"commerce-engine/middleware"
	"commerce-engine/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderController struct {
	Orders *services.OrderService
	Logger *zap.Logger
}

// CreateOrder creates an order and reserves its stock atomically.
func (oc *OrderController) CreateOrder(c *gin.Context) {
	userID, err := uuid.Parse(middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req services.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := oc.Orders.CreateOrder(c.Request.Context(), userID, &req)
	if err != nil {
		oc.Logger.Warn("Order creation rejected",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// GetOrder retrieves one of the caller's orders.
func (oc *OrderController) GetOrder(c *gin.Context) {
	userID, err := uuid.Parse(middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := oc.Orders.GetOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// GetUserOrders lists the caller's orders with pagination.
func (oc *OrderController) GetUserOrders(c *gin.Context) {
	userID, err := uuid.Parse(middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	page, limit := pagination(c)
	resp, err := oc.Orders.GetUserOrders(c.Request.Context(), userID, page, limit)
	if err != nil {
		oc.Logger.Error("Failed to fetch orders",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetAllOrders lists orders across users (admin only).
func (oc *OrderController) GetAllOrders(c *gin.Context) {
	page, limit := pagination(c)
	resp, err := oc.Orders.GetAllOrders(c.Request.Context(), page, limit)
	if err != nil {
		oc.Logger.Error("Failed to fetch all orders",
			zap.String("admin_id", middleware.GetAdminID(c)),
			zap.Error(err),
		)
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
