package models

import "time"

// OperatorNotification is published to the notifications topic for the admin
// surface: signature failures, state conflicts, exhausted poll budgets and
// inventory alerts.
type OperatorNotification struct {
	Type          string    `json:"type"`
	Severity      string    `json:"severity"` // "warning" or "critical"
	OrderID       string    `json:"order_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ProductID     string    `json:"product_id,omitempty"`
	Gateway       string    `json:"gateway,omitempty"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

const (
	NotifySignatureFailure   = "signature_failure"
	NotifyStateConflict      = "state_conflict"
	NotifyUnknownTransaction = "unknown_transaction"
	NotifyPollBudgetExceeded = "poll_budget_exceeded"
	NotifyInventoryAlert     = "inventory_alert"
)
