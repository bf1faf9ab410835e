package repository

import (
	"context"
	"time"

	"commerce-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentRepository defines the interface for payment transaction data access
type PaymentRepository interface {
	Create(ctx context.Context, tx *models.PaymentTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByProviderTxID(ctx context.Context, gateway models.PaymentGateway, providerTxID string) (*models.PaymentTransaction, error)
	FindActiveByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	FindStale(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentTransaction, error)
	IncrementPollAttempts(ctx context.Context, id uuid.UUID) error
}

// GormPaymentRepository implements PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new instance of GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) PaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &tx, nil
}

func (r *GormPaymentRepository) FindByProviderTxID(ctx context.Context, gateway models.PaymentGateway, providerTxID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("gateway = ? AND provider_tx_id = ?", gateway, providerTxID).
		First(&tx).Error; err != nil {
		return nil, translateErr(err)
	}
	return &tx, nil
}

// FindActiveByOrderID returns the single non-terminal transaction for the
// order, or ErrNotFound.
func (r *GormPaymentRepository) FindActiveByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID,
			[]models.PaymentStatus{models.PaymentInitiated, models.PaymentProcessing}).
		First(&tx).Error; err != nil {
		return nil, translateErr(err)
	}
	return &tx, nil
}

func (r *GormPaymentRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *GormPaymentRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// FindStale returns non-terminal transactions last touched before olderThan,
// for the reconciliation poller.
func (r *GormPaymentRepository) FindStale(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]models.PaymentStatus{models.PaymentInitiated, models.PaymentProcessing}, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *GormPaymentRepository) IncrementPollAttempts(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Update("poll_attempts", gorm.Expr("poll_attempts + 1")).Error
}
