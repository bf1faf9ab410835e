package repository

import (
	"context"

	"commerce-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CallbackLogRepository defines the interface for the append-only webhook
// audit trail. Rows get exactly one outcome update and are never deleted.
type CallbackLogRepository interface {
	Create(ctx context.Context, log *models.PaymentCallbackLog) error
	RecordOutcome(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	List(ctx context.Context, gateway *models.PaymentGateway, page, limit int) ([]models.PaymentCallbackLog, int64, error)
}

// GormCallbackLogRepository implements CallbackLogRepository using GORM
type GormCallbackLogRepository struct {
	db *gorm.DB
}

// NewGormCallbackLogRepository creates a new instance of GormCallbackLogRepository
func NewGormCallbackLogRepository(db *gorm.DB) CallbackLogRepository {
	return &GormCallbackLogRepository{db: db}
}

func (r *GormCallbackLogRepository) Create(ctx context.Context, log *models.PaymentCallbackLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *GormCallbackLogRepository) RecordOutcome(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentCallbackLog{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *GormCallbackLogRepository) List(ctx context.Context, gateway *models.PaymentGateway, page, limit int) ([]models.PaymentCallbackLog, int64, error) {
	var logs []models.PaymentCallbackLog
	var total int64

	query := r.db.WithContext(ctx).Model(&models.PaymentCallbackLog{})
	if gateway != nil {
		query = query.Where("gateway = ?", *gateway)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
