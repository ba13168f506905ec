package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const AggregateType = "Order"

var (
	ErrOrderNotFound               = errors.New("order not found")
	ErrValidation                  = errors.New("validation failed")
	ErrOrderAlreadySettled         = errors.New("order is already settled")
	ErrSettlementInProgress        = errors.New("settlement already in progress for order")
	ErrShippingInformationRequired = errors.New("shipping information is required before settlement")
	ErrSettlementFailed            = errors.New("settlement failed")
	ErrSettlementIndeterminate     = errors.New("settlement outcome unknown")
	ErrDuplicateTransaction        = errors.New("transaction id already recorded")
	ErrInvalidStatus               = errors.New("invalid order status transition")
)

// Order is the root of an order graph. The line item is fixed at creation;
// the other references are filled in by later submissions.
type Order struct {
	ID                    int64
	LineItemID            int64
	Email                 *string
	CreditCardID          *int64
	ShippingInformationID *int64
	TransactionID         *string
	Paid                  bool
	Status                Status
	Version               int
}

// New returns an order for a freshly written line item.
func New(lineItemID int64) *Order {
	return &Order{
		LineItemID: lineItemID,
		Status:     StatusCreated,
	}
}

// Clone returns a deep copy so callers can mutate it without touching stored state.
func (o *Order) Clone() *Order {
	c := *o
	if o.Email != nil {
		v := *o.Email
		c.Email = &v
	}
	if o.CreditCardID != nil {
		v := *o.CreditCardID
		c.CreditCardID = &v
	}
	if o.ShippingInformationID != nil {
		v := *o.ShippingInformationID
		c.ShippingInformationID = &v
	}
	if o.TransactionID != nil {
		v := *o.TransactionID
		c.TransactionID = &v
	}
	return &c
}

type LineItem struct {
	ID        int64
	ProductID int64
	Quantity  int
}

type ShippingInformation struct {
	ID         int64
	Country    string
	Address    string
	PostalCode string
	City       string
	Province   string
}

// Normalize trims every field and upper-cases the province code.
func (s *ShippingInformation) Normalize() {
	s.Country = strings.TrimSpace(s.Country)
	s.Address = strings.TrimSpace(s.Address)
	s.PostalCode = strings.TrimSpace(s.PostalCode)
	s.City = strings.TrimSpace(s.City)
	s.Province = strings.ToUpper(strings.TrimSpace(s.Province))
}

func (s *ShippingInformation) Validate() error {
	switch {
	case s.Country == "", s.Address == "", s.PostalCode == "", s.City == "", s.Province == "":
		return fmt.Errorf("%w: shipping information fields are required", ErrValidation)
	case len(s.Province) != 2:
		return fmt.Errorf("%w: province must be a 2-character code", ErrValidation)
	}
	return nil
}

// Card numbers shorter than MinCardNumberLength would let the first and last
// four digits of the masked view overlap into the whole number.
const (
	MinCardNumberLength = 13
	MaxCardNumberLength = 16
)

type CreditCard struct {
	ID              int64
	Name            string
	Number          string
	ExpirationYear  int
	CVV             string
	ExpirationMonth int
}

// FirstDigits returns the first four digits of the card number.
func (c *CreditCard) FirstDigits() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[:4]
}

// LastDigits returns the last four digits of the card number.
func (c *CreditCard) LastDigits() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// Transaction is the record of a successful charge. Its id is issued by the
// payment gateway and is never generated locally.
type Transaction struct {
	ID            string
	Success       bool
	AmountCharged decimal.Decimal
}
