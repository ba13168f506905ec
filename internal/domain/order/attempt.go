package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttemptStatus string

const (
	AttemptStarted       AttemptStatus = "started"
	AttemptSucceeded     AttemptStatus = "succeeded"
	AttemptDeclined      AttemptStatus = "declined"
	AttemptFailed        AttemptStatus = "failed"
	AttemptIndeterminate AttemptStatus = "indeterminate"
)

// SettlementAttempt is one entry of an order's append-only settlement log.
// A started attempt is committed before the gateway is called.
type SettlementAttempt struct {
	ID            string
	OrderID       int64
	Status        AttemptStatus
	Amount        decimal.Decimal
	TransactionID string
	Error         string
	TraceID       string
	StartedAt     time.Time
	FinishedAt    *time.Time
}

func NewSettlementAttempt(id string, orderID int64, amount decimal.Decimal, traceID string, now time.Time) *SettlementAttempt {
	return &SettlementAttempt{
		ID:        id,
		OrderID:   orderID,
		Status:    AttemptStarted,
		Amount:    amount,
		TraceID:   traceID,
		StartedAt: now,
	}
}

// Finish closes the attempt with its outcome.
func (a *SettlementAttempt) Finish(status AttemptStatus, transactionID, errMsg string, now time.Time) {
	a.Status = status
	a.TransactionID = transactionID
	a.Error = errMsg
	a.FinishedAt = &now
}

func (a *SettlementAttempt) IsOpen() bool {
	return a.Status == AttemptStarted
}

// IsStale reports whether a started attempt has outlived the given window.
func (a *SettlementAttempt) IsStale(now time.Time, after time.Duration) bool {
	return a.IsOpen() && now.Sub(a.StartedAt) > after
}

// OrderStatus maps a finished attempt onto the order status it implies.
func (s AttemptStatus) OrderStatus() Status {
	switch s {
	case AttemptSucceeded:
		return StatusSettled
	case AttemptDeclined, AttemptFailed:
		return StatusSettlementFailed
	case AttemptIndeterminate:
		return StatusSettlementIndeterminate
	default:
		return StatusSettlementPending
	}
}
