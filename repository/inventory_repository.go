package repository

import (
	"context"
	"errors"

	"commerce-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InventoryRepository defines the interface for stock, reservation, movement
// and alert data access.
type InventoryRepository interface {
	GetStock(ctx context.Context, productID uuid.UUID) (*models.InventoryStock, error)
	CreateStock(ctx context.Context, stock *models.InventoryStock) error
	UpdateStock(ctx context.Context, productID uuid.UUID, updates map[string]interface{}) error
	// AdjustStock atomically applies the deltas, refusing any change that
	// would drive a counter negative.
	AdjustStock(ctx context.Context, productID uuid.UUID, availableDelta, lockedDelta int) error

	CreateReservation(ctx context.Context, res *models.StockReservation) error
	FindReservations(ctx context.Context, orderID uuid.UUID, status models.ReservationStatus) ([]models.StockReservation, error)
	// SettleReservations flips every reservation of the order from one status
	// to another, returning the number of rows changed.
	SettleReservations(ctx context.Context, orderID uuid.UUID, from, to models.ReservationStatus) (int64, error)

	CreateMovement(ctx context.Context, movement *models.InventoryMovementLog) error
	ListMovements(ctx context.Context, productID *uuid.UUID, page, limit int) ([]models.InventoryMovementLog, int64, error)
	CountMovementsByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)

	FindOpenAlert(ctx context.Context, productID uuid.UUID) (*models.InventoryAlert, error)
	CreateAlert(ctx context.Context, alert *models.InventoryAlert) error
	UpdateAlert(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	ListAlerts(ctx context.Context, resolved *bool, page, limit int) ([]models.InventoryAlert, int64, error)
	FindAlertByID(ctx context.Context, id uuid.UUID) (*models.InventoryAlert, error)
}

// GormInventoryRepository implements InventoryRepository using GORM
type GormInventoryRepository struct {
	db *gorm.DB
}

// NewGormInventoryRepository creates a new instance of GormInventoryRepository
func NewGormInventoryRepository(db *gorm.DB) InventoryRepository {
	return &GormInventoryRepository{db: db}
}

func (r *GormInventoryRepository) GetStock(ctx context.Context, productID uuid.UUID) (*models.InventoryStock, error) {
	var stock models.InventoryStock
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&stock).Error; err != nil {
		return nil, translateErr(err)
	}
	return &stock, nil
}

func (r *GormInventoryRepository) CreateStock(ctx context.Context, stock *models.InventoryStock) error {
	return r.db.WithContext(ctx).Create(stock).Error
}

func (r *GormInventoryRepository) UpdateStock(ctx context.Context, productID uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryStock{}).
		Where("product_id = ?", productID).
		Updates(updates).Error
}

func (r *GormInventoryRepository) AdjustStock(ctx context.Context, productID uuid.UUID, availableDelta, lockedDelta int) error {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryStock{}).
		Where("product_id = ? AND available_stock + ? >= 0 AND locked_stock + ? >= 0",
			productID, availableDelta, lockedDelta).
		Updates(map[string]interface{}{
			"available_stock": gorm.Expr("available_stock + ?", availableDelta),
			"locked_stock":    gorm.Expr("locked_stock + ?", lockedDelta),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either the row is missing or the guard refused the change.
		if _, err := r.GetStock(ctx, productID); err != nil {
			return err
		}
		return ErrInsufficientStock
	}
	return nil
}

func (r *GormInventoryRepository) CreateReservation(ctx context.Context, res *models.StockReservation) error {
	return r.db.WithContext(ctx).Create(res).Error
}

func (r *GormInventoryRepository) FindReservations(ctx context.Context, orderID uuid.UUID, status models.ReservationStatus) ([]models.StockReservation, error) {
	var reservations []models.StockReservation
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, status).
		Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

func (r *GormInventoryRepository) SettleReservations(ctx context.Context, orderID uuid.UUID, from, to models.ReservationStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

func (r *GormInventoryRepository) CreateMovement(ctx context.Context, movement *models.InventoryMovementLog) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *GormInventoryRepository) ListMovements(ctx context.Context, productID *uuid.UUID, page, limit int) ([]models.InventoryMovementLog, int64, error) {
	var movements []models.InventoryMovementLog
	var total int64

	query := r.db.WithContext(ctx).Model(&models.InventoryMovementLog{})
	if productID != nil {
		query = query.Where("product_id = ?", *productID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&movements).Error; err != nil {
		return nil, 0, err
	}

	return movements, total, nil
}

func (r *GormInventoryRepository) CountMovementsByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryMovementLog{}).
		Where("source = ? AND source_ref = ?", models.SourceOrder, orderID.String()).
		Count(&count).Error
	return count, err
}

func (r *GormInventoryRepository) FindOpenAlert(ctx context.Context, productID uuid.UUID) (*models.InventoryAlert, error) {
	var alert models.InventoryAlert
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND resolved = ?", productID, false).
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

func (r *GormInventoryRepository) CreateAlert(ctx context.Context, alert *models.InventoryAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *GormInventoryRepository) UpdateAlert(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryAlert{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *GormInventoryRepository) ListAlerts(ctx context.Context, resolved *bool, page, limit int) ([]models.InventoryAlert, int64, error) {
	var alerts []models.InventoryAlert
	var total int64

	query := r.db.WithContext(ctx).Model(&models.InventoryAlert{})
	if resolved != nil {
		query = query.Where("resolved = ?", *resolved)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&alerts).Error; err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}

func (r *GormInventoryRepository) FindAlertByID(ctx context.Context, id uuid.UUID) (*models.InventoryAlert, error) {
	var alert models.InventoryAlert
	if err := r.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &alert, nil
}
