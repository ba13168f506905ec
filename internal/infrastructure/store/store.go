// Package store persists the order graph and the product catalog.
package store

import (
	"context"
	"errors"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrCheckViolation      = errors.New("check constraint violated")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrForeignKeyViolation = errors.New("foreign key violated")
	ErrConflict            = errors.New("record was modified concurrently")
)

// Store is a transactional record store. Every write made through the Tx
// passed to fn commits together when fn returns nil and is discarded otherwise.
type Store interface {
	product.Repository
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the order graph inside one transaction. Lookups return
// ErrNotFound for routine absence. Updates keep the record's identity.
type Tx interface {
	GetProduct(ctx context.Context, id int64) (*product.Product, error)

	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	// LockOrder reads the order and holds it against concurrent writers until the transaction ends.
	LockOrder(ctx context.Context, id int64) (*order.Order, error)
	InsertOrder(ctx context.Context, o *order.Order) error
	// UpdateOrder fails with ErrConflict when o.Version is stale and bumps it otherwise.
	UpdateOrder(ctx context.Context, o *order.Order) error

	GetLineItem(ctx context.Context, id int64) (*order.LineItem, error)
	InsertLineItem(ctx context.Context, li *order.LineItem) error

	GetShippingInformation(ctx context.Context, id int64) (*order.ShippingInformation, error)
	InsertShippingInformation(ctx context.Context, s *order.ShippingInformation) error
	UpdateShippingInformation(ctx context.Context, s *order.ShippingInformation) error

	GetCreditCard(ctx context.Context, id int64) (*order.CreditCard, error)
	InsertCreditCard(ctx context.Context, c *order.CreditCard) error
	UpdateCreditCard(ctx context.Context, c *order.CreditCard) error

	GetTransaction(ctx context.Context, id string) (*order.Transaction, error)
	InsertTransaction(ctx context.Context, t *order.Transaction) error

	InsertSettlementAttempt(ctx context.Context, a *order.SettlementAttempt) error
	UpdateSettlementAttempt(ctx context.Context, a *order.SettlementAttempt) error
	// ListSettlementAttempts returns an order's attempts, oldest first.
	ListSettlementAttempts(ctx context.Context, orderID int64) ([]order.SettlementAttempt, error)
	LatestSettlementAttempt(ctx context.Context, orderID int64) (*order.SettlementAttempt, error)
}
