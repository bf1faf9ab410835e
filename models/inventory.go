package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryStock is the materialized current-state row per product. The
// movement log is the source of truth for audit; this row is what reserve,
// confirm and release mutate under guarded updates.
type InventoryStock struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID      uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"product_id"`
	AvailableStock int       `gorm:"not null;default:0" json:"available_stock"`
	LockedStock    int       `gorm:"not null;default:0" json:"locked_stock"`
	SafetyStock    int       `gorm:"not null;default:0" json:"safety_stock"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// StockReservation records the quantity locked per order item so Confirm and
// Release know what to settle, and cannot settle it twice.
type StockReservation struct {
	ID        uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID   uuid.UUID         `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID uuid.UUID         `gorm:"type:uuid;not null;index" json:"product_id"`
	Quantity  int               `gorm:"not null" json:"quantity"`
	Status    ReservationStatus `gorm:"type:varchar(20);not null;default:'ACTIVE'" json:"status"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type MovementType string

const (
	MovementIncrease MovementType = "INCREASE"
	MovementDecrease MovementType = "DECREASE"
	MovementSet      MovementType = "SET"
)

type MovementSource string

const (
	SourceOrder   MovementSource = "ORDER"
	SourceManual  MovementSource = "MANUAL"
	SourceRestock MovementSource = "RESTOCK"
)

// InventoryMovementLog is the append-only stock ledger. For INCREASE and
// DECREASE entries AfterStock = BeforeStock +/- Delta; for SET the AfterStock
// value is authoritative and Delta is derived.
type InventoryMovementLog struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"product_id"`
	ChangeType  MovementType   `gorm:"type:varchar(10);not null" json:"change_type"`
	Source      MovementSource `gorm:"type:varchar(10);not null" json:"source"`
	SourceRef   string         `gorm:"type:varchar(64);index" json:"source_ref"` // order id, operator id, ...
	Delta       int            `gorm:"not null" json:"delta"`
	BeforeStock int            `gorm:"not null" json:"before_stock"`
	AfterStock  int            `gorm:"not null" json:"after_stock"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

type AlertLevel string

const (
	AlertLow        AlertLevel = "LOW"
	AlertCritical   AlertLevel = "CRITICAL"
	AlertOutOfStock AlertLevel = "OUT_OF_STOCK"
)

// InventoryAlert is derived state, re-evaluated from the current stock value
// after every movement.
type InventoryAlert struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"product_id"`
	Level      AlertLevel `gorm:"type:varchar(20);not null" json:"level"`
	Resolved   bool       `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
