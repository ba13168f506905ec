// Package command holds the mutating entry points of the checkout workflow.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/lock"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/infrastructure/telemetry"
	"github.com/example/ec-checkout/internal/pricing"
	"github.com/example/ec-checkout/internal/query"
	"github.com/example/ec-checkout/internal/readmodel"
	"github.com/example/ec-checkout/internal/settlement"
	"go.uber.org/zap"
)

type Handler struct {
	productSvc *product.Service
	store      store.Store
	query      *query.Handler
	saga       *settlement.Saga
	locker     lock.Locker
	pricing    pricing.Engine
	publisher  kafka.Publisher
	metrics    *telemetry.Metrics
	logger     *zap.Logger

	// LockWait bounds how long a write waits for an order held by another
	// request. Zero waits as long as the request context allows.
	LockWait time.Duration
	now      func() time.Time
}

func NewHandler(
	productSvc *product.Service,
	st store.Store,
	q *query.Handler,
	saga *settlement.Saga,
	locker lock.Locker,
	engine pricing.Engine,
	publisher kafka.Publisher,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		productSvc: productSvc,
		store:      st,
		query:      q,
		saga:       saga,
		locker:     locker,
		pricing:    engine,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger.Named("command"),
		now:        time.Now,
	}
}

// ============================================
// Product Commands
// ============================================

// CreateProduct adds a product to the catalog. An explicit id is kept as given.
func (h *Handler) CreateProduct(ctx context.Context, cmd CreateProduct) (*product.Product, error) {
	p := product.Product{
		ID:          cmd.ID,
		Name:        cmd.Name,
		InStock:     true,
		Description: cmd.Description,
		Price:       cmd.Price,
		Weight:      cmd.Weight,
		Image:       cmd.Image,
	}
	if cmd.InStock != nil {
		p.InStock = *cmd.InStock
	}
	return h.productSvc.Create(ctx, p)
}

// DropProducts empties the catalog.
func (h *Handler) DropProducts(ctx context.Context, _ DropProducts) error {
	return h.productSvc.DropAll(ctx)
}

// ============================================
// Order Commands
// ============================================

// AddOrder creates an order for one product line and returns its id. The
// line item and the order commit together or not at all.
func (h *Handler) AddOrder(ctx context.Context, cmd AddOrder) (int64, error) {
	var created *order.Order
	var li *order.LineItem
	err := h.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProduct(ctx, cmd.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %d", product.ErrProductNotFound, cmd.ProductID)
			}
			return err
		}
		if !p.InStock {
			return fmt.Errorf("%w: %d", product.ErrOutOfStock, p.ID)
		}

		li = &order.LineItem{ProductID: p.ID, Quantity: cmd.Quantity}
		if err := tx.InsertLineItem(ctx, li); err != nil {
			if errors.Is(err, store.ErrCheckViolation) {
				return fmt.Errorf("%w: %w", order.ErrValidation, err)
			}
			return fmt.Errorf("failed to insert line item: %w", err)
		}

		created = order.New(li.ID)
		if err := tx.InsertOrder(ctx, created); err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	h.metrics.RecordOrderCreated()
	h.publish(ctx, created.ID, order.EventOrderCreated, order.OrderCreated{
		OrderID:   created.ID,
		ProductID: li.ProductID,
		Quantity:  li.Quantity,
		CreatedAt: h.now().UTC(),
	})
	h.logger.Info("order created", zap.Int64("order_id", created.ID), zap.Int64("product_id", li.ProductID), zap.Int("quantity", li.Quantity))
	return created.ID, nil
}

// PutShippingInformation records the buyer's email and address, creating
// the shipping record on first use and updating it in place afterwards.
func (h *Handler) PutShippingInformation(ctx context.Context, cmd PutShippingInformation) (*readmodel.OrderReadModel, error) {
	si := cmd.ShippingInformation
	si.Normalize()
	if err := si.Validate(); err != nil {
		return nil, err
	}
	if _, err := h.pricing.TaxRate(si.Province); err != nil {
		return nil, fmt.Errorf("%w: province: %w", order.ErrValidation, err)
	}
	email := strings.TrimSpace(cmd.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", order.ErrValidation)
	}

	unlock, err := h.lockOrder(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var view *readmodel.OrderReadModel
	err = h.store.WithTx(ctx, func(tx store.Tx) error {
		o, err := tx.LockOrder(ctx, cmd.OrderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %d", order.ErrOrderNotFound, cmd.OrderID)
			}
			return err
		}
		switch {
		case o.IsSettled():
			return order.ErrOrderAlreadySettled
		case o.Status == order.StatusSettlementPending:
			return order.ErrSettlementInProgress
		}

		if o.ShippingInformationID != nil {
			si.ID = *o.ShippingInformationID
			err = tx.UpdateShippingInformation(ctx, &si)
		} else {
			err = tx.InsertShippingInformation(ctx, &si)
			o.ShippingInformationID = &si.ID
		}
		if err != nil {
			if errors.Is(err, store.ErrCheckViolation) {
				return fmt.Errorf("%w: %w", order.ErrValidation, err)
			}
			return fmt.Errorf("failed to store shipping information: %w", err)
		}

		o.Email = &email
		o.ShippingSubmitted()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		view, err = h.query.Resolve(ctx, tx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	h.publish(ctx, cmd.OrderID, order.EventShippingInformationUpdated, order.ShippingInformationUpdated{
		OrderID:   cmd.OrderID,
		Email:     email,
		Province:  si.Province,
		UpdatedAt: h.now().UTC(),
	})
	return view, nil
}

// PutCreditCard stores the card and settles the order with it. The order
// stays locked until the outcome is recorded.
func (h *Handler) PutCreditCard(ctx context.Context, cmd PutCreditCard) (*readmodel.OrderReadModel, error) {
	unlock, err := h.lockOrder(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return h.saga.Settle(ctx, cmd.OrderID, cmd.CreditCard)
}

func (h *Handler) lockOrder(ctx context.Context, orderID int64) (lock.Unlock, error) {
	lockCtx := ctx
	if h.LockWait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, h.LockWait)
		defer cancel()
	}
	unlock, err := h.locker.Lock(lockCtx, lock.OrderKey(orderID))
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, fmt.Errorf("%w: %w", order.ErrSettlementInProgress, err)
		}
		return nil, err
	}
	return unlock, nil
}

func (h *Handler) publish(ctx context.Context, orderID int64, eventType string, data any) {
	if err := kafka.PublishEvent(ctx, h.publisher, strconv.FormatInt(orderID, 10), order.AggregateType, eventType, data); err != nil {
		h.logger.Warn("failed to publish event", zap.String("event_type", eventType), zap.Int64("order_id", orderID), zap.Error(err))
	}
}
