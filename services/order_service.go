package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerce-engine/apperrors"
	"commerce-engine/models"
	"commerce-engine/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateOrderRequest struct {
	Currency string                   `json:"currency" binding:"required"`
	Items    []CreateOrderItemRequest `json:"items" binding:"required,dive"`
}

type CreateOrderItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
	UnitPrice int       `json:"unit_price" binding:"required,min=1"`
}

type OrderListResponse struct {
	Orders []models.Order `json:"orders"`
	Meta   MetaData       `json:"meta"`
}

type MetaData struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalOrders int64 `json:"total_orders"`
	TotalPages  int64 `json:"total_pages"`
	HasMore     bool  `json:"has_more"`
}

// OrderService creates orders (with their stock reservations) and applies
// order status events through the transition table.
type OrderService struct {
	store     repository.Store
	inventory *InventoryService
	locks     *KeyedLock
	logger    *zap.Logger
}

func NewOrderService(store repository.Store, inventory *InventoryService, locks *KeyedLock, logger *zap.Logger) *OrderService {
	return &OrderService{store: store, inventory: inventory, locks: locks, logger: logger}
}

// CreateOrder validates the request, computes the total from line subtotals
// and reserves stock in the same transaction as the order insert, so a
// shortfall on any item leaves neither an order nor a partial reservation.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, req *CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrValidation, fmt.Errorf("at least one item is required"))
	}

	amount := 0
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.UnitPrice <= 0 {
			return nil, apperrors.Wrap(apperrors.ErrValidation,
				fmt.Errorf("product %s: quantity and unit price must be positive", item.ProductID))
		}
		items = append(items, models.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
		amount += item.Quantity * item.UnitPrice
	}

	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: newOrderNumber(),
		UserID:      userID,
		Amount:      amount,
		Currency:    strings.ToUpper(req.Currency),
		Status:      models.OrderPendingPayment,
		OrderItems:  items,
	}

	err := s.store.Transaction(ctx, func(st repository.Store) error {
		if err := st.Orders().Create(ctx, order); err != nil {
			return err
		}
		return s.inventory.Reserve(ctx, st, order.ID, order.OrderItems)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Int("amount", order.Amount),
	)
	return order, nil
}

// ApplyEvent runs an order status event under the per-order lock, handling
// the inventory side effects of cancellation before the status write commits.
func (s *OrderService) ApplyEvent(ctx context.Context, orderID uuid.UUID, event OrderEvent) (*models.Order, error) {
	s.locks.Lock(orderID.String())
	defer s.locks.Unlock(orderID.String())

	var updated *models.Order
	err := s.store.Transaction(ctx, func(st repository.Store) error {
		order, err := st.Orders().FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.Wrap(apperrors.ErrNotFound, err)
			}
			return err
		}

		next, err := applyEventTx(ctx, st, s.inventory, order, event)
		if err != nil {
			return err
		}

		order.Status = next
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", orderID.String()),
		zap.String("event", string(event)),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// applyEventTx resolves and persists the transition and its inventory side
// effects inside the caller's transaction. Shared with the payment
// orchestrator, which drives the same table from gateway outcomes.
func applyEventTx(ctx context.Context, st repository.Store, inventory *InventoryService, order *models.Order, event OrderEvent) (models.OrderStatus, error) {
	next, err := NextOrderStatus(order.Status, event)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{}
	switch next {
	case models.OrderPaid:
		updates["paid_at"] = now
	case models.OrderCancelled:
		updates["canceled_at"] = now
	case models.OrderCompleted:
		updates["completed_at"] = now
	}

	// Inventory settles before the status write commits; both roll back
	// together on failure.
	switch next {
	case models.OrderPaid:
		if err := inventory.Confirm(ctx, st, order.ID); err != nil {
			return "", err
		}
	case models.OrderCancelled:
		if order.Status == models.OrderPaid {
			if err := inventory.ReverseConfirmed(ctx, st, order.ID); err != nil {
				return "", err
			}
		} else {
			if err := inventory.Release(ctx, st, order.ID); err != nil {
				return "", err
			}
		}
	}

	if err := st.Orders().UpdateStatus(ctx, order.ID, next, updates); err != nil {
		return "", err
	}
	return next, nil
}

// GetOrder retrieves a specific order for a user.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, err)
		}
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, fmt.Errorf("order %s does not belong to user", orderID))
	}
	return order, nil
}

// GetUserOrders retrieves paginated orders for a specific user.
func (s *OrderService) GetUserOrders(ctx context.Context, userID uuid.UUID, page, limit int) (*OrderListResponse, error) {
	orders, total, err := s.store.Orders().FindByUserID(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}
	return listResponse(orders, total, page, limit), nil
}

// GetAllOrders retrieves paginated orders across users (admin only).
func (s *OrderService) GetAllOrders(ctx context.Context, page, limit int) (*OrderListResponse, error) {
	orders, total, err := s.store.Orders().FindAll(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	return listResponse(orders, total, page, limit), nil
}

func listResponse(orders []models.Order, total int64, page, limit int) *OrderListResponse {
	return &OrderListResponse{
		Orders: orders,
		Meta: MetaData{
			Page:        page,
			Limit:       limit,
			TotalOrders: total,
			TotalPages:  calculateTotalPages(total, limit),
			HasMore:     total > int64(page*limit),
		},
	}
}

func calculateTotalPages(total int64, limit int) int64 {
	if limit == 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}

func newOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("ORD%s%s", time.Now().UTC().Format("20060102"), suffix)
}
