package routes

import (
	"commerce-engine/controllers"
	"commerce-engine/middleware"

	"github.com/gin-gonic/gin"
)

func Register(r *gin.Engine,
	oc *controllers.OrderController,
	pc *controllers.PaymentController,
	wc *controllers.WebhookController,
	ac *controllers.AdminController,
) {
	// Gateway webhooks carry their own signatures; no auth middleware.
	r.POST("/callbacks/:gateway", wc.Receive)

	orders := r.Group("/orders")
	orders.Use(middleware.AuthMiddleware())
	orders.POST("", oc.CreateOrder)
	orders.GET("", oc.GetUserOrders)
	orders.GET("/:id", oc.GetOrder)

	payments := r.Group("/payments")
	payments.Use(middleware.AuthMiddleware())
	payments.POST("/initiate", pc.InitiatePayment)
	payments.GET("/order/:orderID", pc.GetOrderTransactions)

	admin := r.Group("/admin")
	admin.Use(middleware.AdminMiddleware())
	admin.GET("/orders", oc.GetAllOrders)
	admin.POST("/orders/:id/:action", ac.ApplyOrderEvent)
	admin.POST("/payments/:gateway/:providerTxID/query", ac.QueryPaymentStatus)
	admin.GET("/callback-logs", ac.ListCallbackLogs)
	admin.GET("/inventory/movements", ac.ListMovements)
	admin.GET("/inventory/alerts", ac.ListAlerts)
	admin.POST("/inventory/alerts/:id/ack", ac.AcknowledgeAlert)
	admin.POST("/inventory/stock", ac.SetStock)
	admin.GET("/inventory/stock/:productID", ac.GetStock)
}
