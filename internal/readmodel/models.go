package readmodel

import (
	"time"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/shopspring/decimal"
)

// Amount renders a decimal as a bare JSON number with two fractional digits.
type Amount decimal.Decimal

func NewAmount(d decimal.Decimal) Amount {
	return Amount(d)
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.Decimal(a)
}

func (a Amount) String() string {
	return decimal.Decimal(a).StringFixed(2)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*a = Amount(d)
	return nil
}

// ProductReadModel is the read model for products
type ProductReadModel struct {
	Name        string  `json:"name"`
	ID          int64   `json:"id"`
	InStock     bool    `json:"in_stock"`
	Description *string `json:"description"`
	Price       Amount  `json:"price"`
	Weight      *int    `json:"weight"`
	Image       string  `json:"image"`
}

func NewProductReadModel(p *product.Product) ProductReadModel {
	return ProductReadModel{
		Name:        p.Name,
		ID:          p.ID,
		InStock:     p.InStock,
		Description: p.Description,
		Price:       NewAmount(p.Price),
		Weight:      p.Weight,
		Image:       p.Image,
	}
}

type ProductListResponse struct {
	Products []ProductReadModel `json:"products"`
}

type ProductResponse struct {
	Product ProductReadModel `json:"product"`
}

// LineItemReadModel is the product line of an order
type LineItemReadModel struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

// CreditCardReadModel is the masked view of a card. It renders as {} when
// no card is on file.
type CreditCardReadModel struct {
	Name            string `json:"name,omitempty"`
	FirstDigits     string `json:"first_digits,omitempty"`
	LastDigits      string `json:"last_digits,omitempty"`
	ExpirationYear  int    `json:"expiration_year,omitempty"`
	ExpirationMonth int    `json:"expiration_month,omitempty"`
}

func NewCreditCardReadModel(c *order.CreditCard) CreditCardReadModel {
	return CreditCardReadModel{
		Name:            c.Name,
		FirstDigits:     c.FirstDigits(),
		LastDigits:      c.LastDigits(),
		ExpirationYear:  c.ExpirationYear,
		ExpirationMonth: c.ExpirationMonth,
	}
}

type ShippingInformationReadModel struct {
	Country    string `json:"country,omitempty"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
}

func NewShippingInformationReadModel(s *order.ShippingInformation) ShippingInformationReadModel {
	return ShippingInformationReadModel{
		Country:    s.Country,
		Address:    s.Address,
		PostalCode: s.PostalCode,
		City:       s.City,
		Province:   s.Province,
	}
}

type TransactionReadModel struct {
	ID            string  `json:"id,omitempty"`
	Success       *bool   `json:"success,omitempty"`
	AmountCharged *Amount `json:"amount_charged,omitempty"`
}

func NewTransactionReadModel(t *order.Transaction) TransactionReadModel {
	success := t.Success
	amount := NewAmount(t.AmountCharged)
	return TransactionReadModel{ID: t.ID, Success: &success, AmountCharged: &amount}
}

// OrderReadModel is the resolved view of an order. TotalPriceTax is nil
// until shipping information is on file.
type OrderReadModel struct {
	ID                  int64                        `json:"id"`
	TotalPrice          Amount                       `json:"total_price"`
	TotalPriceTax       *Amount                      `json:"total_price_tax"`
	Email               *string                      `json:"email"`
	CreditCard          CreditCardReadModel          `json:"credit_card"`
	ShippingInformation ShippingInformationReadModel `json:"shipping_information"`
	Transaction         TransactionReadModel         `json:"transaction"`
	Paid                bool                         `json:"paid"`
	Product             LineItemReadModel            `json:"product"`
	ShippingPrice       Amount                       `json:"shipping_price"`
	Status              string                       `json:"status"`
}

// AmountDue is the taxed total plus shipping.
func (o *OrderReadModel) AmountDue() (decimal.Decimal, error) {
	if o.TotalPriceTax == nil {
		return decimal.Zero, order.ErrShippingInformationRequired
	}
	return o.TotalPriceTax.Decimal().Add(o.ShippingPrice.Decimal()), nil
}

type OrderResponse struct {
	Order OrderReadModel `json:"order"`
}

// SettlementAttemptReadModel is one entry of an order's settlement log
type SettlementAttemptReadModel struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Amount        Amount     `json:"amount"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Error         string     `json:"error,omitempty"`
	TraceID       string     `json:"trace_id,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

func NewSettlementAttemptReadModel(a *order.SettlementAttempt) SettlementAttemptReadModel {
	return SettlementAttemptReadModel{
		ID:            a.ID,
		Status:        string(a.Status),
		Amount:        NewAmount(a.Amount),
		TransactionID: a.TransactionID,
		Error:         a.Error,
		TraceID:       a.TraceID,
		StartedAt:     a.StartedAt,
		FinishedAt:    a.FinishedAt,
	}
}

type SettlementAttemptListResponse struct {
	OrderID  int64                        `json:"order_id"`
	Attempts []SettlementAttemptReadModel `json:"settlement_attempts"`
}
