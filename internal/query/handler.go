// Package query resolves orders and products into their read models.
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/pricing"
	"github.com/example/ec-checkout/internal/readmodel"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reconciler settles attempts that were abandoned mid-flight before an
// order is read.
type Reconciler interface {
	ReconcileStale(ctx context.Context, orderID int64) error
}

// Handler handles queries against the store
type Handler struct {
	store      store.Store
	pricing    pricing.Engine
	reconciler Reconciler
	logger     *zap.Logger
}

// NewHandler creates a new query handler
func NewHandler(st store.Store, engine pricing.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		store:   st,
		pricing: engine,
		logger:  logger.Named("query"),
	}
}

// SetReconciler installs r to run ahead of every GetOrder.
func (h *Handler) SetReconciler(r Reconciler) {
	h.reconciler = r
}

// ============================================
// Product Queries
// ============================================

// GetProduct retrieves a product by ID
func (h *Handler) GetProduct(ctx context.Context, id int64) (*readmodel.ProductReadModel, error) {
	p, err := h.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	view := readmodel.NewProductReadModel(p)
	return &view, nil
}

// ListProducts returns all products ordered by id
func (h *Handler) ListProducts(ctx context.Context) ([]readmodel.ProductReadModel, error) {
	products, err := h.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	views := make([]readmodel.ProductReadModel, 0, len(products))
	for i := range products {
		views = append(views, readmodel.NewProductReadModel(&products[i]))
	}
	return views, nil
}

// ============================================
// Order Queries
// ============================================

// GetOrder resolves the order identified by id.
func (h *Handler) GetOrder(ctx context.Context, id int64) (*readmodel.OrderReadModel, error) {
	if h.reconciler != nil {
		if err := h.reconciler.ReconcileStale(ctx, id); err != nil && !errors.Is(err, order.ErrOrderNotFound) {
			h.logger.Warn("stale settlement reconciliation failed", zap.Int64("order_id", id), zap.Error(err))
		}
	}

	var view *readmodel.OrderReadModel
	err := h.store.WithTx(ctx, func(tx store.Tx) error {
		v, err := h.Resolve(ctx, tx, id)
		if err != nil {
			return err
		}
		view = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Resolve builds the order view from the records visible to tx.
func (h *Handler) Resolve(ctx context.Context, tx store.Tx, id int64) (*readmodel.OrderReadModel, error) {
	o, err := tx.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", order.ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return h.resolve(ctx, tx, o)
}

func (h *Handler) resolve(ctx context.Context, tx store.Tx, o *order.Order) (*readmodel.OrderReadModel, error) {
	li, err := tx.GetLineItem(ctx, o.LineItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load line item of order %d: %w", o.ID, err)
	}
	p, err := tx.GetProduct(ctx, li.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: order %d references product %d", product.ErrProductNotFound, o.ID, li.ProductID)
		}
		return nil, fmt.Errorf("failed to load product of order %d: %w", o.ID, err)
	}

	total := p.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
	view := &readmodel.OrderReadModel{
		ID:            o.ID,
		TotalPrice:    readmodel.NewAmount(total),
		Email:         o.Email,
		Paid:          o.Paid,
		Product:       readmodel.LineItemReadModel{ID: p.ID, Quantity: li.Quantity},
		ShippingPrice: readmodel.NewAmount(h.pricing.ShippingPrice(p.ShippingWeight() * li.Quantity)),
		Status:        string(o.Status),
	}

	if o.ShippingInformationID != nil {
		si, err := tx.GetShippingInformation(ctx, *o.ShippingInformationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load shipping information of order %d: %w", o.ID, err)
		}
		taxed, err := pricing.WithTax(h.pricing, total, si.Province)
		if err != nil {
			return nil, err
		}
		amount := readmodel.NewAmount(taxed)
		view.TotalPriceTax = &amount
		view.ShippingInformation = readmodel.NewShippingInformationReadModel(si)
	}

	if o.CreditCardID != nil {
		cc, err := tx.GetCreditCard(ctx, *o.CreditCardID)
		if err != nil {
			return nil, fmt.Errorf("failed to load credit card of order %d: %w", o.ID, err)
		}
		view.CreditCard = readmodel.NewCreditCardReadModel(cc)
	}

	if o.TransactionID != nil {
		t, err := tx.GetTransaction(ctx, *o.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load transaction of order %d: %w", o.ID, err)
		}
		view.Transaction = readmodel.NewTransactionReadModel(t)
	}

	return view, nil
}

// ListSettlementAttempts returns the settlement log of an order, oldest first.
func (h *Handler) ListSettlementAttempts(ctx context.Context, orderID int64) ([]readmodel.SettlementAttemptReadModel, error) {
	var views []readmodel.SettlementAttemptReadModel
	err := h.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetOrder(ctx, orderID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %d", order.ErrOrderNotFound, orderID)
			}
			return err
		}
		attempts, err := tx.ListSettlementAttempts(ctx, orderID)
		if err != nil {
			return err
		}
		views = make([]readmodel.SettlementAttemptReadModel, 0, len(attempts))
		for i := range attempts {
			views = append(views, readmodel.NewSettlementAttemptReadModel(&attempts[i]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}
