package services

import (
	"fmt"

	"commerce-engine/apperrors"
	"commerce-engine/models"
)

// OrderEvent is a payment, shipment or admin event driving the order status
// machine. Orders are never mutated by anything else.
type OrderEvent string

const (
	EventPaymentSucceeded   OrderEvent = "payment_succeeded"
	EventPaymentFailed      OrderEvent = "payment_failed" // also cancelled / expired
	EventManualCancel       OrderEvent = "manual_cancel"
	EventFulfillmentStarted OrderEvent = "fulfillment_started"
	EventShipmentCreated    OrderEvent = "shipment_created"
	EventDeliveryConfirmed  OrderEvent = "delivery_confirmed"
	EventFinalized          OrderEvent = "finalized"
	EventRefundApproved     OrderEvent = "refund_approved"
)

var orderTransitions = map[models.OrderStatus]map[OrderEvent]models.OrderStatus{
	models.OrderPending: {
		EventPaymentFailed: models.OrderCancelled,
		EventManualCancel:  models.OrderCancelled,
	},
	models.OrderPendingPayment: {
		EventPaymentSucceeded: models.OrderPaid,
		EventPaymentFailed:    models.OrderCancelled,
		EventManualCancel:     models.OrderCancelled,
	},
	models.OrderPaid: {
		EventFulfillmentStarted: models.OrderProcessing,
		EventManualCancel:       models.OrderCancelled,
		EventRefundApproved:     models.OrderRefunded,
	},
	models.OrderProcessing: {
		EventShipmentCreated: models.OrderShipped,
		EventRefundApproved:  models.OrderRefunded,
	},
	models.OrderShipped: {
		EventDeliveryConfirmed: models.OrderDelivered,
		EventRefundApproved:    models.OrderRefunded,
	},
	models.OrderDelivered: {
		EventFinalized: models.OrderCompleted,
	},
}

// NextOrderStatus resolves the status an event moves the order to, or
// ErrInvalidTransition when the event is not accepted from the current status.
func NextOrderStatus(current models.OrderStatus, event OrderEvent) (models.OrderStatus, error) {
	if next, ok := orderTransitions[current][event]; ok {
		return next, nil
	}
	return "", apperrors.Wrap(apperrors.ErrInvalidTransition,
		fmt.Errorf("event %s not accepted from status %s", event, current))
}
