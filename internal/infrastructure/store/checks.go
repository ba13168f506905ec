package store

import (
	"fmt"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
)

// The functions below mirror the CHECK constraints in schema.sql so the
// memory store rejects the same rows PostgreSQL does.

func checkProduct(p *product.Product) error {
	if !p.Price.IsPositive() {
		return fmt.Errorf("%w: products.price > 0", ErrCheckViolation)
	}
	if p.Weight != nil && *p.Weight <= 0 {
		return fmt.Errorf("%w: products.weight > 0", ErrCheckViolation)
	}
	return nil
}

func checkLineItem(li *order.LineItem) error {
	if li.Quantity <= 0 {
		return fmt.Errorf("%w: line_items.quantity > 0", ErrCheckViolation)
	}
	return nil
}

func checkShippingInformation(s *order.ShippingInformation) error {
	if len(s.Province) > 2 {
		return fmt.Errorf("%w: shipping_information.province is at most 2 characters", ErrCheckViolation)
	}
	return nil
}

func checkCreditCard(c *order.CreditCard) error {
	switch {
	case c.ExpirationMonth < 1 || c.ExpirationMonth > 12:
		return fmt.Errorf("%w: credit_cards.expiration_month between 1 and 12", ErrCheckViolation)
	case c.ExpirationYear < 1000 || c.ExpirationYear > 9999:
		return fmt.Errorf("%w: credit_cards.expiration_year has 4 digits", ErrCheckViolation)
	case !isDigits(c.CVV, 3, 3):
		return fmt.Errorf("%w: credit_cards.cvv has 3 digits", ErrCheckViolation)
	case !isDigits(c.Number, order.MinCardNumberLength, order.MaxCardNumberLength):
		return fmt.Errorf("%w: credit_cards.number has 13 to 16 digits", ErrCheckViolation)
	}
	return nil
}

func checkTransaction(t *order.Transaction) error {
	if t.ID == "" || len(t.ID) > 32 {
		return fmt.Errorf("%w: transactions.id has 1 to 32 characters", ErrCheckViolation)
	}
	return nil
}

func isDigits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
