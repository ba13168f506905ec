package api

import (
	"strings"

	"github.com/example/ec-checkout/internal/command"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/shopspring/decimal"
)

type productLine struct {
	ID       int64 `json:"id" validate:"required,gt=0"`
	Quantity *int  `json:"quantity" validate:"required"`
}

// AddOrderRequest is the body of POST /order
type AddOrderRequest struct {
	Product *productLine `json:"product" validate:"required"`
}

type shippingInformationRequest struct {
	Country    string `json:"country" validate:"required"`
	Address    string `json:"address" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	City       string `json:"city" validate:"required"`
	Province   string `json:"province" validate:"required,len=2"`
}

type orderUpdate struct {
	Email               string                      `json:"email" validate:"required,email"`
	ShippingInformation *shippingInformationRequest `json:"shipping_information" validate:"required"`
}

type creditCardRequest struct {
	Name            string `json:"name" validate:"required"`
	Number          string `json:"number" validate:"required,number,min=13,max=16"`
	ExpirationYear  int    `json:"expiration_year" validate:"required"`
	CVV             string `json:"cvv" validate:"required"`
	ExpirationMonth int    `json:"expiration_month" validate:"required"`
}

// PutOrderRequest is the body of PUT /order/{id}. Exactly one of the two
// sections must be present.
type PutOrderRequest struct {
	Order      *orderUpdate       `json:"order"`
	CreditCard *creditCardRequest `json:"credit_card"`
}

func (r *orderUpdate) toCommand(orderID int64) command.PutShippingInformation {
	return command.PutShippingInformation{
		OrderID: orderID,
		Email:   r.Email,
		ShippingInformation: order.ShippingInformation{
			Country:    r.ShippingInformation.Country,
			Address:    r.ShippingInformation.Address,
			PostalCode: r.ShippingInformation.PostalCode,
			City:       r.ShippingInformation.City,
			Province:   r.ShippingInformation.Province,
		},
	}
}

// normalize drops the spaces card numbers are often typed with.
func (r *creditCardRequest) normalize() {
	r.Number = strings.ReplaceAll(r.Number, " ", "")
}

func (r *creditCardRequest) toCommand(orderID int64) command.PutCreditCard {
	return command.PutCreditCard{
		OrderID: orderID,
		CreditCard: order.CreditCard{
			Name:            strings.TrimSpace(r.Name),
			Number:          r.Number,
			ExpirationYear:  r.ExpirationYear,
			CVV:             strings.TrimSpace(r.CVV),
			ExpirationMonth: r.ExpirationMonth,
		},
	}
}

type productRequest struct {
	ID          int64           `json:"id" validate:"gte=0"`
	Name        string          `json:"name" validate:"required"`
	InStock     *bool           `json:"in_stock"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Weight      *int            `json:"weight" validate:"omitempty,gt=0"`
	Image       string          `json:"image"`
}

// CreateProductRequest is the body of POST /products
type CreateProductRequest struct {
	Product *productRequest `json:"product" validate:"required"`
}

func (r *productRequest) toCommand() command.CreateProduct {
	return command.CreateProduct{
		ID:          r.ID,
		Name:        r.Name,
		InStock:     r.InStock,
		Description: r.Description,
		Price:       r.Price,
		Weight:      r.Weight,
		Image:       r.Image,
	}
}

// TokenRequest is the body of POST /admin/token
type TokenRequest struct {
	Key string `json:"key" validate:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}
