package models

import (
	"time"

	"github.com/google/uuid"
)

type CallbackResult string

const (
	CallbackReceived  CallbackResult = "RECEIVED"
	CallbackProcessed CallbackResult = "PROCESSED"
	CallbackIgnored   CallbackResult = "IGNORED" // duplicate replay, unknown tx, bad signature
	CallbackError     CallbackResult = "ERROR"
)

// PaymentCallbackLog is the append-only audit record for every inbound
// gateway webhook. Rows are written on receipt and updated exactly once
// with the processing outcome; they are never deleted.
type PaymentCallbackLog struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Gateway      PaymentGateway `gorm:"type:varchar(20);not null;index" json:"gateway"`
	ProviderTxID string         `gorm:"type:varchar(191);index" json:"provider_tx_id"`
	RawParams    string         `gorm:"type:text;not null" json:"raw_params"`
	ParsedStatus string         `gorm:"type:varchar(20)" json:"parsed_status"`
	Result       CallbackResult `gorm:"type:varchar(20);not null" json:"result"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	RequestIP    string         `gorm:"type:varchar(64)" json:"request_ip"`
	LatencyMS    int64          `json:"latency_ms"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
