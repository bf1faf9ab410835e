package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Store bundles the engine repositories behind a single handle so services
// can run multi-entity writes in one database transaction.
type Store interface {
	Orders() OrderRepository
	Payments() PaymentRepository
	Inventory() InventoryRepository
	CallbackLogs() CallbackLogRepository

	// Transaction runs fn against a Store bound to a single database
	// transaction; fn returning an error rolls everything back.
	Transaction(ctx context.Context, fn func(Store) error) error
}

// GormStore implements Store using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Orders() OrderRepository            { return &GormOrderRepository{db: s.db} }
func (s *GormStore) Payments() PaymentRepository        { return &GormPaymentRepository{db: s.db} }
func (s *GormStore) Inventory() InventoryRepository     { return &GormInventoryRepository{db: s.db} }
func (s *GormStore) CallbackLogs() CallbackLogRepository { return &GormCallbackLogRepository{db: s.db} }

func (s *GormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}

func translateErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
