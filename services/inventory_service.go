package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-engine/apperrors"
	"commerce-engine/kafka"
	"commerce-engine/models"
	"commerce-engine/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InventoryService owns the stock ledger: reservations, the movement log and
// threshold alerts. Mutating methods take the Store they should write
// through, so callers can compose them into a surrounding transaction.
type InventoryService struct {
	store    repository.Store
	notifier kafka.NotifierAPI
	logger   *zap.Logger
}

func NewInventoryService(store repository.Store, notifier kafka.NotifierAPI, logger *zap.Logger) *InventoryService {
	return &InventoryService{store: store, notifier: notifier, logger: logger}
}

// Reserve locks stock for every order item. Any shortfall fails the whole
// call; the surrounding transaction rollback guarantees no partial
// reservation survives.
func (s *InventoryService) Reserve(ctx context.Context, st repository.Store, orderID uuid.UUID, items []models.OrderItem) error {
	inv := st.Inventory()
	for _, item := range items {
		if err := inv.AdjustStock(ctx, item.ProductID, -item.Quantity, item.Quantity); err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) || errors.Is(err, repository.ErrNotFound) {
				return apperrors.Wrap(apperrors.ErrInsufficientStock,
					fmt.Errorf("product %s: requested %d", item.ProductID, item.Quantity))
			}
			return err
		}
		if err := inv.CreateReservation(ctx, &models.StockReservation{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Status:    models.ReservationActive,
		}); err != nil {
			return err
		}
		if err := s.EvaluateAlerts(ctx, st, item.ProductID); err != nil {
			return err
		}
	}

	s.logger.Info("Stock reserved",
		zap.String("order_id", orderID.String()),
		zap.Int("items", len(items)),
	)
	return nil
}

// Confirm converts the order's active reservations into permanent decrements,
// writing one movement log entry per item. Calling it again is a no-op.
func (s *InventoryService) Confirm(ctx context.Context, st repository.Store, orderID uuid.UUID) error {
	inv := st.Inventory()
	reservations, err := inv.FindReservations(ctx, orderID, models.ReservationActive)
	if err != nil {
		return err
	}
	if len(reservations) == 0 {
		s.logger.Info("No active reservations to confirm", zap.String("order_id", orderID.String()))
		return nil
	}

	for _, res := range reservations {
		if err := inv.AdjustStock(ctx, res.ProductID, 0, -res.Quantity); err != nil {
			return err
		}
		stock, err := inv.GetStock(ctx, res.ProductID)
		if err != nil {
			return err
		}
		if err := inv.CreateMovement(ctx, &models.InventoryMovementLog{
			ProductID:   res.ProductID,
			ChangeType:  models.MovementDecrease,
			Source:      models.SourceOrder,
			SourceRef:   orderID.String(),
			Delta:       res.Quantity,
			BeforeStock: stock.AvailableStock + res.Quantity,
			AfterStock:  stock.AvailableStock,
		}); err != nil {
			return err
		}
		if err := s.EvaluateAlerts(ctx, st, res.ProductID); err != nil {
			return err
		}
	}

	if _, err := inv.SettleReservations(ctx, orderID, models.ReservationActive, models.ReservationConfirmed); err != nil {
		return err
	}

	s.logger.Info("Stock confirmed",
		zap.String("order_id", orderID.String()),
		zap.Int("items", len(reservations)),
	)
	return nil
}

// Release restores the order's active reservations to available stock and
// writes compensating movement entries. Calling it again is a no-op.
func (s *InventoryService) Release(ctx context.Context, st repository.Store, orderID uuid.UUID) error {
	inv := st.Inventory()
	reservations, err := inv.FindReservations(ctx, orderID, models.ReservationActive)
	if err != nil {
		return err
	}
	if len(reservations) == 0 {
		s.logger.Info("No active reservations to release", zap.String("order_id", orderID.String()))
		return nil
	}

	return s.restore(ctx, st, orderID, reservations, models.ReservationActive)
}

// ReverseConfirmed compensates an already-confirmed order (cancellation of a
// paid order): confirmed quantities go back to available stock with
// compensating movement entries.
func (s *InventoryService) ReverseConfirmed(ctx context.Context, st repository.Store, orderID uuid.UUID) error {
	reservations, err := st.Inventory().FindReservations(ctx, orderID, models.ReservationConfirmed)
	if err != nil {
		return err
	}
	if len(reservations) == 0 {
		return nil
	}
	return s.restore(ctx, st, orderID, reservations, models.ReservationConfirmed)
}

func (s *InventoryService) restore(ctx context.Context, st repository.Store, orderID uuid.UUID, reservations []models.StockReservation, from models.ReservationStatus) error {
	inv := st.Inventory()
	for _, res := range reservations {
		lockedDelta := -res.Quantity
		if from == models.ReservationConfirmed {
			lockedDelta = 0 // the lock was already cleared at confirm time
		}
		if err := inv.AdjustStock(ctx, res.ProductID, res.Quantity, lockedDelta); err != nil {
			return err
		}
		stock, err := inv.GetStock(ctx, res.ProductID)
		if err != nil {
			return err
		}
		if err := inv.CreateMovement(ctx, &models.InventoryMovementLog{
			ProductID:   res.ProductID,
			ChangeType:  models.MovementIncrease,
			Source:      models.SourceOrder,
			SourceRef:   orderID.String(),
			Delta:       res.Quantity,
			BeforeStock: stock.AvailableStock - res.Quantity,
			AfterStock:  stock.AvailableStock,
		}); err != nil {
			return err
		}
		if err := s.EvaluateAlerts(ctx, st, res.ProductID); err != nil {
			return err
		}
	}

	if _, err := inv.SettleReservations(ctx, orderID, from, models.ReservationReleased); err != nil {
		return err
	}

	s.logger.Info("Stock restored",
		zap.String("order_id", orderID.String()),
		zap.Int("items", len(reservations)),
	)
	return nil
}

// SetStock sets the available stock and safety threshold for a product,
// creating the record on first use. The change is journaled as a SET movement
// with the delta derived from before/after.
func (s *InventoryService) SetStock(ctx context.Context, productID uuid.UUID, available, safetyStock int, operator string) (*models.InventoryStock, error) {
	if available < 0 || safetyStock < 0 {
		return nil, apperrors.Wrap(apperrors.ErrValidation, fmt.Errorf("stock values must be non-negative"))
	}

	var result *models.InventoryStock
	err := s.store.Transaction(ctx, func(st repository.Store) error {
		inv := st.Inventory()
		before := 0
		stock, err := inv.GetStock(ctx, productID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			stock = &models.InventoryStock{
				ProductID:      productID,
				AvailableStock: available,
				SafetyStock:    safetyStock,
			}
			if err := inv.CreateStock(ctx, stock); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			before = stock.AvailableStock
			if err := inv.UpdateStock(ctx, productID, map[string]interface{}{
				"available_stock": available,
				"safety_stock":    safetyStock,
			}); err != nil {
				return err
			}
			stock.AvailableStock = available
			stock.SafetyStock = safetyStock
		}

		if err := inv.CreateMovement(ctx, &models.InventoryMovementLog{
			ProductID:   productID,
			ChangeType:  models.MovementSet,
			Source:      models.SourceRestock,
			SourceRef:   operator,
			Delta:       available - before,
			BeforeStock: before,
			AfterStock:  available,
		}); err != nil {
			return err
		}

		if err := s.EvaluateAlerts(ctx, st, productID); err != nil {
			return err
		}

		result = stock
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stock set",
		zap.String("product_id", productID.String()),
		zap.Int("available", available),
		zap.Int("safety_stock", safetyStock),
	)
	return result, nil
}

// EvaluateAlerts recomputes the alert level for a product from its current
// available stock only. A SET to zero raises OUT_OF_STOCK no matter what
// direction the stock moved or what alert was open before.
func (s *InventoryService) EvaluateAlerts(ctx context.Context, st repository.Store, productID uuid.UUID) error {
	inv := st.Inventory()
	stock, err := inv.GetStock(ctx, productID)
	if err != nil {
		return err
	}

	level := alertLevelFor(stock.AvailableStock, stock.SafetyStock)

	open, err := inv.FindOpenAlert(ctx, productID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	switch {
	case level == "" && open != nil:
		now := time.Now().UTC()
		if err := inv.UpdateAlert(ctx, open.ID, map[string]interface{}{
			"resolved":    true,
			"resolved_at": now,
		}); err != nil {
			return err
		}
		s.logger.Info("Inventory alert resolved",
			zap.String("product_id", productID.String()),
			zap.String("level", string(open.Level)),
		)

	case level != "" && open == nil:
		if err := inv.CreateAlert(ctx, &models.InventoryAlert{
			ProductID: productID,
			Level:     level,
		}); err != nil {
			return err
		}
		s.notifyAlert(ctx, productID, level)

	case level != "" && open != nil && open.Level != level:
		if err := inv.UpdateAlert(ctx, open.ID, map[string]interface{}{
			"level": level,
		}); err != nil {
			return err
		}
		s.notifyAlert(ctx, productID, level)
	}

	return nil
}

func alertLevelFor(available, safetyStock int) models.AlertLevel {
	switch {
	case available == 0:
		return models.AlertOutOfStock
	case available <= safetyStock/2:
		return models.AlertCritical
	case available <= safetyStock:
		return models.AlertLow
	default:
		return ""
	}
}

func (s *InventoryService) notifyAlert(ctx context.Context, productID uuid.UUID, level models.AlertLevel) {
	severity := "warning"
	if level == models.AlertOutOfStock {
		severity = "critical"
	}
	// Best-effort: the stock write must not fail on a notification error.
	_ = s.notifier.Notify(ctx, models.OperatorNotification{
		Type:      models.NotifyInventoryAlert,
		Severity:  severity,
		ProductID: productID.String(),
		Message:   fmt.Sprintf("inventory alert %s for product %s", level, productID),
		Timestamp: time.Now().UTC(),
	})
}

// GetStock returns the current stock row for a product.
func (s *InventoryService) GetStock(ctx context.Context, productID uuid.UUID) (*models.InventoryStock, error) {
	stock, err := s.store.Inventory().GetStock(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, err)
		}
		return nil, err
	}
	return stock, nil
}
