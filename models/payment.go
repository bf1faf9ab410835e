package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentGateway string

const (
	GatewayLinePay PaymentGateway = "LINE_PAY"
	GatewayECPay   PaymentGateway = "ECPAY"
	GatewayStripe  PaymentGateway = "STRIPE"
	GatewayManual  PaymentGateway = "MANUAL"
)

type PaymentStatus string

const (
	PaymentInitiated  PaymentStatus = "INITIATED"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentSuccess    PaymentStatus = "SUCCESS"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentCancelled  PaymentStatus = "CANCELLED"
	PaymentExpired    PaymentStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is accepted from s.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentSuccess, PaymentFailed, PaymentCancelled, PaymentExpired:
		return true
	}
	return false
}

type PaymentTransaction struct {
	ID      uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID uuid.UUID `gorm:"type:uuid;index;not null" json:"order_id"`
	// ProviderTxID stays empty until the adapter confirms dispatch, so the
	// unique index is partial: undispatched rows never collide.
	Gateway      PaymentGateway `gorm:"type:varchar(20);not null;index:ux_payment_provider_tx,unique,priority:1,where:provider_tx_id <> ''" json:"gateway"`
	ProviderTxID string         `gorm:"type:varchar(191);index:ux_payment_provider_tx,unique,priority:2" json:"provider_tx_id"`
	Status       PaymentStatus  `gorm:"type:varchar(20);not null" json:"status"`
	Amount       int            `gorm:"not null" json:"amount"`
	Currency     string         `gorm:"type:varchar(10);not null" json:"currency"`
	PaymentURL   *string        `gorm:"type:varchar(1024)" json:"payment_url,omitempty"`
	RawResponse  *string        `gorm:"type:jsonb" json:"-"` // provider payload, audit only
	PollAttempts int            `gorm:"not null;default:0" json:"-"`
	SucceededAt  *time.Time     `json:"succeeded_at,omitempty"`
	FailedAt     *time.Time     `json:"failed_at,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}
