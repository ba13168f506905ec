// Package pricing holds the tax-rate and shipping-cost tables used to price orders.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnknownRegion = errors.New("unknown tax region")

// Engine resolves tax rates and shipping costs.
type Engine interface {
	TaxRate(region string) (decimal.Decimal, error)
	ShippingPrice(weightGrams int) decimal.Decimal
}

// Bracket charges Price for any total weight strictly below UpTo grams.
type Bracket struct {
	UpTo  int
	Price decimal.Decimal
}

// Table is an Engine backed by static lookup tables.
type Table struct {
	rates    map[string]decimal.Decimal
	brackets []Bracket
	overflow decimal.Decimal
}

// NewTable builds a Table. Brackets must be sorted by UpTo; weights past the
// last bracket cost overflow.
func NewTable(rates map[string]decimal.Decimal, brackets []Bracket, overflow decimal.Decimal) *Table {
	normalized := make(map[string]decimal.Decimal, len(rates))
	for region, rate := range rates {
		normalized[strings.ToUpper(region)] = rate
	}
	return &Table{rates: normalized, brackets: brackets, overflow: overflow}
}

// Default returns the Canadian provincial tax table and the weight-based
// shipping brackets.
func Default() *Table {
	return NewTable(
		map[string]decimal.Decimal{
			"QC": decimal.RequireFromString("0.15"),
			"ON": decimal.RequireFromString("0.13"),
			"AB": decimal.RequireFromString("0.05"),
			"BC": decimal.RequireFromString("0.12"),
			"NS": decimal.RequireFromString("0.14"),
		},
		[]Bracket{
			{UpTo: 500, Price: decimal.RequireFromString("5.00")},
			{UpTo: 2000, Price: decimal.RequireFromString("10.00")},
		},
		decimal.RequireFromString("25.00"),
	)
}

func (t *Table) TaxRate(region string) (decimal.Decimal, error) {
	rate, ok := t.rates[strings.ToUpper(strings.TrimSpace(region))]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}
	return rate, nil
}

func (t *Table) ShippingPrice(weightGrams int) decimal.Decimal {
	for _, b := range t.brackets {
		if weightGrams < b.UpTo {
			return b.Price
		}
	}
	return t.overflow
}

// Regions lists the supported region codes.
func (t *Table) Regions() []string {
	out := make([]string, 0, len(t.rates))
	for region := range t.rates {
		out = append(out, region)
	}
	return out
}

// WithTax applies the region's tax rate to amount, rounded to cents.
func WithTax(e Engine, amount decimal.Decimal, region string) (decimal.Decimal, error) {
	rate, err := e.TaxRate(region)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(decimal.NewFromInt(1).Add(rate)).Round(2), nil
}
