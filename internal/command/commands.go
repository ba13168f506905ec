package command

import (
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/shopspring/decimal"
)

// Product Commands
type CreateProduct struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	InStock     *bool           `json:"in_stock"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Weight      *int            `json:"weight"`
	Image       string          `json:"image"`
}

type DropProducts struct{}

// Order Commands
type AddOrder struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type PutShippingInformation struct {
	OrderID             int64                     `json:"order_id"`
	Email               string                    `json:"email"`
	ShippingInformation order.ShippingInformation `json:"shipping_information"`
}

type PutCreditCard struct {
	OrderID    int64            `json:"order_id"`
	CreditCard order.CreditCard `json:"credit_card"`
}
