package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"commerce-engine/apperrors"
	"commerce-engine/kafka"
	"commerce-engine/models"
	"commerce-engine/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const reconcilerBatchSize = 100

// Reconciler is the background poller that resolves transactions whose
// webhooks were lost: it re-queries the gateway for stale PROCESSING
// transactions and expires INITIATED ones past the initiate timeout. An
// in-flight marker guarantees it never runs two queries for the same
// transaction concurrently.
type Reconciler struct {
	store        repository.Store
	orchestrator *PaymentOrchestrator
	notifier     kafka.NotifierAPI
	logger       *zap.Logger

	interval        time.Duration
	gracePeriod     time.Duration
	initiateTimeout time.Duration
	retryBudget     int

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

func NewReconciler(
	store repository.Store,
	orchestrator *PaymentOrchestrator,
	notifier kafka.NotifierAPI,
	logger *zap.Logger,
	interval, gracePeriod, initiateTimeout time.Duration,
	retryBudget int,
) *Reconciler {
	return &Reconciler{
		store:           store,
		orchestrator:    orchestrator,
		notifier:        notifier,
		logger:          logger,
		interval:        interval,
		gracePeriod:     gracePeriod,
		initiateTimeout: initiateTimeout,
		retryBudget:     retryBudget,
		inflight:        make(map[uuid.UUID]struct{}),
	}
}

// Run loops until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("Reconciliation poller started",
		zap.Duration("interval", r.interval),
		zap.Duration("grace_period", r.gracePeriod),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciliation poller stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep picks up every non-terminal transaction older than the grace period
// and reconciles each one once.
func (r *Reconciler) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.gracePeriod)
	stale, err := r.store.Payments().FindStale(ctx, cutoff, reconcilerBatchSize)
	if err != nil {
		r.logger.Error("Failed to list stale transactions", zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	for _, tx := range stale {
		if !r.markInflight(tx.ID) {
			continue
		}
		wg.Add(1)
		go func(tx models.PaymentTransaction) {
			defer wg.Done()
			defer r.clearInflight(tx.ID)
			r.reconcile(ctx, tx)
		}(tx)
	}
	wg.Wait()
}

func (r *Reconciler) reconcile(ctx context.Context, tx models.PaymentTransaction) {
	if tx.Status == models.PaymentInitiated && time.Since(tx.CreatedAt) > r.initiateTimeout {
		if err := r.orchestrator.Expire(ctx, tx.ID); err != nil {
			r.logger.Error("Failed to expire transaction",
				zap.String("transaction_id", tx.ID.String()),
				zap.Error(err),
			)
		} else {
			r.logger.Info("Transaction expired with no provider response",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("order_id", tx.OrderID.String()),
			)
		}
		return
	}

	if tx.ProviderTxID == "" {
		// Dispatch never completed; nothing to query yet.
		return
	}

	if err := r.store.Payments().IncrementPollAttempts(ctx, tx.ID); err != nil {
		r.logger.Error("Failed to count poll attempt",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
	}

	updated, err := r.orchestrator.QueryStatus(ctx, tx.Gateway, tx.ProviderTxID)
	if err != nil {
		if errors.Is(err, apperrors.ErrGatewayTimeout) {
			r.logger.Warn("Gateway query timed out",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("gateway", string(tx.Gateway)),
			)
		} else {
			r.logger.Error("Gateway query failed",
				zap.String("transaction_id", tx.ID.String()),
				zap.Error(err),
			)
		}
		r.escalateIfExhausted(ctx, tx)
		return
	}

	if updated.Status.IsTerminal() {
		r.logger.Info("Reconciliation resolved transaction",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("status", string(updated.Status)),
		)
		return
	}

	r.escalateIfExhausted(ctx, tx)
}

// escalateIfExhausted raises an operator notification exactly when the retry
// budget is hit.
func (r *Reconciler) escalateIfExhausted(ctx context.Context, tx models.PaymentTransaction) {
	if tx.PollAttempts+1 != r.retryBudget {
		return
	}
	_ = r.notifier.Notify(ctx, models.OperatorNotification{
		Type:          models.NotifyPollBudgetExceeded,
		Severity:      "critical",
		OrderID:       tx.OrderID.String(),
		TransactionID: tx.ID.String(),
		Gateway:       string(tx.Gateway),
		Message:       "transaction still unresolved after poll retry budget",
		Timestamp:     time.Now().UTC(),
	})
}

func (r *Reconciler) markInflight(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[id]; busy {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Reconciler) clearInflight(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, id)
}
