package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"commerce-engine/apperrors"
	"commerce-engine/gateways"
	"commerce-engine/kafka"
	"commerce-engine/models"
	"commerce-engine/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcessingResult reports what applying a gateway notification did.
type ProcessingResult struct {
	TransactionID uuid.UUID            `json:"transaction_id"`
	OrderID       uuid.UUID            `json:"order_id"`
	ProviderTxID  string               `json:"provider_tx_id"`
	Status        models.PaymentStatus `json:"status"`
	Applied       bool                 `json:"applied"`
	Duplicate     bool                 `json:"duplicate"`
}

// PaymentOrchestrator owns payment transactions: it creates them, dispatches
// to the right gateway adapter, and is the single authoritative entry point
// for state transitions, whether pushed by a webhook or pulled by the poller.
type PaymentOrchestrator struct {
	store          repository.Store
	adapters       gateways.Registry
	inventory      *InventoryService
	locks          *KeyedLock
	notifier       kafka.NotifierAPI
	logger         *zap.Logger
	gatewayTimeout time.Duration
}

func NewPaymentOrchestrator(
	store repository.Store,
	adapters gateways.Registry,
	inventory *InventoryService,
	locks *KeyedLock,
	notifier kafka.NotifierAPI,
	logger *zap.Logger,
	gatewayTimeout time.Duration,
) *PaymentOrchestrator {
	return &PaymentOrchestrator{
		store:          store,
		adapters:       adapters,
		inventory:      inventory,
		locks:          locks,
		notifier:       notifier,
		logger:         logger,
		gatewayTimeout: gatewayTimeout,
	}
}

// Initiate starts a payment attempt for the order. A second call while an
// attempt is in flight fails with a conflict, except when the earlier attempt
// never got dispatched (gateway timeout left it INITIATED), in which case the
// same transaction is re-dispatched. The provider-side idempotency key is the
// order number, so a re-dispatch cannot double-charge.
func (s *PaymentOrchestrator) Initiate(ctx context.Context, orderID uuid.UUID, gateway models.PaymentGateway, amount int) (*models.PaymentTransaction, error) {
	adapter, ok := s.adapters.Get(gateway)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrValidation, fmt.Errorf("unknown gateway %q", gateway))
	}

	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, err)
		}
		return nil, err
	}

	if amount <= 0 || amount != order.Amount {
		return nil, apperrors.Wrap(apperrors.ErrValidation,
			fmt.Errorf("amount %d does not match order total %d", amount, order.Amount))
	}
	if order.Status != models.OrderPending && order.Status != models.OrderPendingPayment {
		return nil, apperrors.Wrap(apperrors.ErrConflict,
			fmt.Errorf("order %s is %s, not awaiting payment", orderID, order.Status))
	}

	s.locks.Lock(orderID.String())
	defer s.locks.Unlock(orderID.String())

	tx, err := s.store.Payments().FindActiveByOrderID(ctx, orderID)
	switch {
	case err == nil && tx.Status == models.PaymentProcessing:
		return nil, apperrors.Wrap(apperrors.ErrConflict,
			fmt.Errorf("order %s already has transaction %s in flight", orderID, tx.ID))
	case err == nil:
		if tx.Gateway != gateway {
			return nil, apperrors.Wrap(apperrors.ErrConflict,
				fmt.Errorf("order %s already has a %s attempt pending", orderID, tx.Gateway))
		}
		// INITIATED leftover from a timed-out dispatch: retry it.
		s.logger.Info("Re-dispatching undelivered payment attempt",
			zap.String("order_id", orderID.String()),
			zap.String("transaction_id", tx.ID.String()),
		)
	case errors.Is(err, repository.ErrNotFound):
		tx = &models.PaymentTransaction{
			ID:       uuid.New(),
			OrderID:  orderID,
			Gateway:  gateway,
			Status:   models.PaymentInitiated,
			Amount:   amount,
			Currency: order.Currency,
		}
		if err := s.store.Payments().Create(ctx, tx); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	result, err := adapter.CreatePayment(cctx, gateways.CreatePaymentRequest{
		OrderNumber: order.OrderNumber,
		Amount:      amount,
		Currency:    order.Currency,
		ProductName: fmt.Sprintf("Order %s", order.OrderNumber),
		CustomerID:  order.UserID.String(),
	})
	if err != nil {
		// The transaction stays INITIATED so a retry or the poller can
		// resolve it without creating a second active attempt.
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("Gateway dispatch timed out",
				zap.String("order_id", orderID.String()),
				zap.String("gateway", string(gateway)),
			)
			return nil, apperrors.Wrap(apperrors.ErrGatewayTimeout, err)
		}
		return nil, fmt.Errorf("gateway dispatch failed: %w", err)
	}

	// PROCESSING only once the adapter confirmed dispatch.
	updates := map[string]interface{}{
		"provider_tx_id": result.ProviderTxID,
		"payment_url":    result.PaymentURL,
		"status":         models.PaymentProcessing,
	}
	if err := s.store.Payments().Update(ctx, tx.ID, updates); err != nil {
		return nil, err
	}
	tx.ProviderTxID = result.ProviderTxID
	tx.PaymentURL = &result.PaymentURL
	tx.Status = models.PaymentProcessing

	s.logger.Info("Payment initiated",
		zap.String("order_id", orderID.String()),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("gateway", string(gateway)),
		zap.String("provider_tx_id", result.ProviderTxID),
	)
	return tx, nil
}

// ApplyCallback verifies and applies an inbound gateway webhook. It is safe
// against duplicates, replays and out-of-order delivery.
func (s *PaymentOrchestrator) ApplyCallback(ctx context.Context, gateway models.PaymentGateway, headers http.Header, body []byte) (*ProcessingResult, error) {
	adapter, ok := s.adapters.Get(gateway)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrValidation, fmt.Errorf("unknown gateway %q", gateway))
	}

	notification, err := adapter.ParseCallback(headers, body)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidSignature) {
			s.logger.Warn("Callback signature verification failed",
				zap.String("gateway", string(gateway)),
			)
			s.notify(ctx, models.OperatorNotification{
				Type:     models.NotifySignatureFailure,
				Severity: "critical",
				Gateway:  string(gateway),
				Message:  "webhook signature verification failed",
			})
		}
		return nil, err
	}

	return s.Apply(ctx, notification)
}

// Apply routes a canonical notification through the transaction state
// machine under the per-order lock.
func (s *PaymentOrchestrator) Apply(ctx context.Context, n *gateways.Notification) (*ProcessingResult, error) {
	tx, err := s.store.Payments().FindByProviderTxID(ctx, n.Gateway, n.ProviderTxID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Callback for unknown transaction",
				zap.String("gateway", string(n.Gateway)),
				zap.String("provider_tx_id", n.ProviderTxID),
			)
			s.notify(ctx, models.OperatorNotification{
				Type:     models.NotifyUnknownTransaction,
				Severity: "warning",
				Gateway:  string(n.Gateway),
				Message:  fmt.Sprintf("callback references unknown transaction %s", n.ProviderTxID),
			})
			return nil, apperrors.Wrap(apperrors.ErrUnknownTransaction,
				fmt.Errorf("no transaction for %s/%s", n.Gateway, n.ProviderTxID))
		}
		return nil, err
	}

	s.locks.Lock(tx.OrderID.String())
	defer s.locks.Unlock(tx.OrderID.String())

	// Re-read under the lock: a concurrent caller may have settled it.
	tx, err = s.store.Payments().FindByID(ctx, tx.ID)
	if err != nil {
		return nil, err
	}

	result := &ProcessingResult{
		TransactionID: tx.ID,
		OrderID:       tx.OrderID,
		ProviderTxID:  tx.ProviderTxID,
		Status:        tx.Status,
	}

	if n.Amount != 0 && n.Amount != tx.Amount {
		s.logger.Warn("Callback amount differs from transaction amount",
			zap.String("transaction_id", tx.ID.String()),
			zap.Int("callback_amount", n.Amount),
			zap.Int("transaction_amount", tx.Amount),
		)
	}

	if tx.Status.IsTerminal() {
		if n.Status == tx.Status {
			// Exact duplicate replay: acknowledged, nothing re-applied.
			result.Duplicate = true
			s.logger.Info("Duplicate terminal callback ignored",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("status", string(tx.Status)),
			)
			return result, nil
		}
		if n.Status.IsTerminal() {
			// First writer wins; the discrepancy goes to manual review.
			s.logger.Error("Conflicting terminal outcome reported",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("recorded", string(tx.Status)),
				zap.String("reported", string(n.Status)),
			)
			s.notify(ctx, models.OperatorNotification{
				Type:          models.NotifyStateConflict,
				Severity:      "critical",
				OrderID:       tx.OrderID.String(),
				TransactionID: tx.ID.String(),
				Gateway:       string(tx.Gateway),
				Message:       fmt.Sprintf("gateway reported %s but %s is recorded", n.Status, tx.Status),
			})
			return result, apperrors.Wrap(apperrors.ErrStateConflict,
				fmt.Errorf("transaction %s already %s, gateway reported %s", tx.ID, tx.Status, n.Status))
		}
		// Stale non-terminal report after settlement: nothing to do.
		return result, nil
	}

	if !n.Status.IsTerminal() {
		if tx.Status == models.PaymentInitiated && n.Status == models.PaymentProcessing {
			if err := s.store.Payments().Update(ctx, tx.ID, map[string]interface{}{
				"status":       models.PaymentProcessing,
				"raw_response": n.RawPayload,
			}); err != nil {
				return nil, err
			}
			result.Status = models.PaymentProcessing
			result.Applied = true
		}
		return result, nil
	}

	if err := s.settle(ctx, tx, n.Status, n.RawPayload); err != nil {
		return nil, err
	}

	result.Status = n.Status
	result.Applied = true
	return result, nil
}

// settle records the terminal outcome and runs the order + inventory side
// effects in one transaction. The caller must hold the order lock.
func (s *PaymentOrchestrator) settle(ctx context.Context, tx *models.PaymentTransaction, status models.PaymentStatus, rawPayload string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status": status,
	}
	if rawPayload != "" {
		updates["raw_response"] = rawPayload
	}
	if status == models.PaymentSuccess {
		updates["succeeded_at"] = now
	} else {
		updates["failed_at"] = now
	}

	paidAfterCancel := false
	err := s.store.Transaction(ctx, func(st repository.Store) error {
		if err := st.Payments().Update(ctx, tx.ID, updates); err != nil {
			return err
		}

		order, err := st.Orders().FindByID(ctx, tx.OrderID)
		if err != nil {
			return err
		}

		event := EventPaymentFailed
		if status == models.PaymentSuccess {
			event = EventPaymentSucceeded
		}

		if _, err := applyEventTx(ctx, st, s.inventory, order, event); err != nil {
			// An order already cancelled by an admin accepts no payment
			// event, but the gateway's verified outcome is still recorded
			// so the transaction reaches a terminal state. A SUCCESS here
			// means the customer paid for released stock; an operator has
			// to refund it.
			if order.Status == models.OrderCancelled {
				paidAfterCancel = event == EventPaymentSucceeded
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	if paidAfterCancel {
		s.notify(ctx, models.OperatorNotification{
			Type:          models.NotifyStateConflict,
			Severity:      "critical",
			OrderID:       tx.OrderID.String(),
			TransactionID: tx.ID.String(),
			Gateway:       string(tx.Gateway),
			Message:       "payment succeeded for a cancelled order, refund required",
		})
	}

	s.logger.Info("Payment settled",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("order_id", tx.OrderID.String()),
		zap.String("status", string(status)),
	)
	return nil
}

// QueryStatus pulls the provider's view of a transaction and applies it under
// the exact same idempotency and conflict rules as a pushed callback. It
// never invents a terminal state on its own.
func (s *PaymentOrchestrator) QueryStatus(ctx context.Context, gateway models.PaymentGateway, providerTxID string) (*models.PaymentTransaction, error) {
	adapter, ok := s.adapters.Get(gateway)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrValidation, fmt.Errorf("unknown gateway %q", gateway))
	}

	tx, err := s.store.Payments().FindByProviderTxID(ctx, gateway, providerTxID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrUnknownTransaction, err)
		}
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	notification, err := adapter.QueryStatus(cctx, providerTxID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Wrap(apperrors.ErrGatewayTimeout, err)
		}
		return nil, err
	}
	notification.Gateway = gateway
	notification.ProviderTxID = providerTxID

	if _, err := s.Apply(ctx, notification); err != nil && !errors.Is(err, apperrors.ErrStateConflict) {
		return nil, err
	}

	return s.store.Payments().FindByID(ctx, tx.ID)
}

// Expire moves an INITIATED transaction that never saw a provider response
// to EXPIRED, cancelling the order and releasing its reservation. Called by
// the reconciliation poller once the initiate timeout has passed.
func (s *PaymentOrchestrator) Expire(ctx context.Context, txID uuid.UUID) error {
	tx, err := s.store.Payments().FindByID(ctx, txID)
	if err != nil {
		return err
	}

	s.locks.Lock(tx.OrderID.String())
	defer s.locks.Unlock(tx.OrderID.String())

	tx, err = s.store.Payments().FindByID(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Status != models.PaymentInitiated {
		return nil
	}

	return s.settle(ctx, tx, models.PaymentExpired, "")
}

// Transactions returns the payment history for an order, newest first.
func (s *PaymentOrchestrator) Transactions(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	return s.store.Payments().FindByOrderID(ctx, orderID)
}

func (s *PaymentOrchestrator) notify(ctx context.Context, n models.OperatorNotification) {
	n.Timestamp = time.Now().UTC()
	// Best-effort: operator alerting must never fail payment processing.
	_ = s.notifier.Notify(ctx, n)
}
