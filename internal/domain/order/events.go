package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated               = "OrderCreated"
	EventShippingInformationUpdated = "ShippingInformationUpdated"
	EventCreditCardSubmitted        = "CreditCardSubmitted"
	EventSettlementSucceeded        = "SettlementSucceeded"
	EventSettlementFailed           = "SettlementFailed"
	EventSettlementIndeterminate    = "SettlementIndeterminate"
)

type OrderCreated struct {
	OrderID   int64     `json:"order_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

type ShippingInformationUpdated struct {
	OrderID   int64     `json:"order_id"`
	Email     string    `json:"email"`
	Province  string    `json:"province"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreditCardSubmitted struct {
	OrderID     int64     `json:"order_id"`
	LastDigits  string    `json:"last_digits"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type SettlementSucceeded struct {
	OrderID       int64           `json:"order_id"`
	AttemptID     string          `json:"attempt_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Email         string          `json:"email,omitempty"`
	SettledAt     time.Time       `json:"settled_at"`
}

// SettlementFailed is published for declined, failed and indeterminate attempts.
type SettlementFailed struct {
	OrderID   int64         `json:"order_id"`
	AttemptID string        `json:"attempt_id"`
	Outcome   AttemptStatus `json:"outcome"`
	Reason    string        `json:"reason"`
	FailedAt  time.Time     `json:"failed_at"`
}
