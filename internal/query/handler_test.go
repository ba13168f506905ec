package query

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueryHandler() (*Handler, *store.MemoryStore) {
	st := store.NewMemoryStore()
	return NewHandler(st, pricing.Default(), zap.NewNop()), st
}

func intPtr(v int) *int { return &v }

func seedProduct(t *testing.T, st *store.MemoryStore, price string, weight *int) *product.Product {
	t.Helper()
	p := &product.Product{Name: "Widget", InStock: true, Price: decimal.RequireFromString(price), Weight: weight, Image: "widget.jpg"}
	require.NoError(t, st.CreateProduct(context.Background(), p))
	return p
}

func seedOrder(t *testing.T, st *store.MemoryStore, productID int64, quantity int, mutate func(ctx context.Context, tx store.Tx, o *order.Order) error) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		li := &order.LineItem{ProductID: productID, Quantity: quantity}
		if err := tx.InsertLineItem(ctx, li); err != nil {
			return err
		}
		o := order.New(li.ID)
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		if mutate != nil {
			if err := mutate(ctx, tx, o); err != nil {
				return err
			}
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return err
			}
		}
		id = o.ID
		return nil
	}))
	return id
}

func withShipping(province string) func(ctx context.Context, tx store.Tx, o *order.Order) error {
	return func(ctx context.Context, tx store.Tx, o *order.Order) error {
		si := &order.ShippingInformation{Country: "Canada", Address: "1 Main St", PostalCode: "G1A 1A1", City: "Quebec", Province: province}
		if err := tx.InsertShippingInformation(ctx, si); err != nil {
			return err
		}
		email := "buyer@example.com"
		o.Email = &email
		o.ShippingInformationID = &si.ID
		o.ShippingSubmitted()
		return nil
	}
}

type stubReconciler struct {
	calls []int64
	err   error
}

func (r *stubReconciler) ReconcileStale(_ context.Context, orderID int64) error {
	r.calls = append(r.calls, orderID)
	return r.err
}

// ============================================
// Product Query Tests
// ============================================

func TestHandler_GetProduct_Found(t *testing.T) {
	handler, st := newTestQueryHandler()
	p := seedProduct(t, st, "28.10", intPtr(400))

	view, err := handler.GetProduct(context.Background(), p.ID)

	require.NoError(t, err)
	assert.Equal(t, p.ID, view.ID)
	assert.Equal(t, "Widget", view.Name)
	assert.Equal(t, "28.10", view.Price.String())
	assert.Equal(t, 400, *view.Weight)
}

func TestHandler_GetProduct_NotFound(t *testing.T) {
	handler, _ := newTestQueryHandler()

	view, err := handler.GetProduct(context.Background(), 99)

	assert.ErrorIs(t, err, product.ErrProductNotFound)
	assert.Nil(t, view)
}

func TestHandler_ListProducts(t *testing.T) {
	handler, st := newTestQueryHandler()
	seedProduct(t, st, "1.00", nil)
	seedProduct(t, st, "2.00", nil)
	seedProduct(t, st, "3.00", nil)

	views, err := handler.ListProducts(context.Background())

	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, int64(1), views[0].ID)
	assert.Equal(t, "3.00", views[2].Price.String())
}

func TestHandler_ListProducts_Empty(t *testing.T) {
	handler, _ := newTestQueryHandler()

	views, err := handler.ListProducts(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
}

// ============================================
// Order Query Tests
// ============================================

func TestHandler_GetOrder_NotFound(t *testing.T) {
	handler, _ := newTestQueryHandler()

	view, err := handler.GetOrder(context.Background(), 42)

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	assert.Nil(t, view)
}

func TestHandler_GetOrder_TotalPriceIsExact(t *testing.T) {
	handler, st := newTestQueryHandler()
	p := seedProduct(t, st, "10.00", intPtr(100))
	id := seedOrder(t, st, p.ID, 3, nil)

	for i := 0; i < 3; i++ {
		view, err := handler.GetOrder(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "30.00", view.TotalPrice.String())
	}
}

func TestHandler_GetOrder_WithoutShipping(t *testing.T) {
	handler, st := newTestQueryHandler()
	p := seedProduct(t, st, "28.10", intPtr(400))
	id := seedOrder(t, st, p.ID, 1, nil)

	view, err := handler.GetOrder(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, id, view.ID)
	assert.Nil(t, view.TotalPriceTax)
	assert.Nil(t, view.Email)
	assert.False(t, view.Paid)
	assert.Equal(t, p.ID, view.Product.ID)
	assert.Equal(t, 1, view.Product.Quantity)
	assert.Equal(t, "5.00", view.ShippingPrice.String())
	assert.Equal(t, string(order.StatusCreated), view.Status)
	assert.Empty(t, view.CreditCard)
	assert.Empty(t, view.ShippingInformation)
	assert.Empty(t, view.Transaction)
}

func TestHandler_GetOrder_TaxFollowsProvince(t *testing.T) {
	tests := []struct {
		province string
		want     string
	}{
		{"QC", "34.50"},
		{"ON", "33.90"},
		{"AB", "31.50"},
		{"BC", "33.60"},
		{"NS", "34.20"},
	}

	for _, tt := range tests {
		t.Run(tt.province, func(t *testing.T) {
			handler, st := newTestQueryHandler()
			p := seedProduct(t, st, "10.00", intPtr(100))
			id := seedOrder(t, st, p.ID, 3, withShipping(tt.province))

			view, err := handler.GetOrder(context.Background(), id)

			require.NoError(t, err)
			require.NotNil(t, view.TotalPriceTax)
			assert.Equal(t, tt.want, view.TotalPriceTax.String())
			assert.Equal(t, tt.province, view.ShippingInformation.Province)
			assert.Equal(t, "buyer@example.com", *view.Email)
			assert.Equal(t, string(order.StatusShippingSet), view.Status)
		})
	}
}

func TestHandler_GetOrder_UnknownRegion(t *testing.T) {
	handler, st := newTestQueryHandler()
	p := seedProduct(t, st, "10.00", nil)
	id := seedOrder(t, st, p.ID, 1, withShipping("ZZ"))

	view, err := handler.GetOrder(context.Background(), id)

	assert.ErrorIs(t, err, pricing.ErrUnknownRegion)
	assert.Nil(t, view)
}

func TestHandler_GetOrder_ShippingPriceByTotalWeight(t *testing.T) {
	tests := []struct {
		name     string
		weight   *int
		quantity int
		want     string
	}{
		{"no weight", nil, 5, "5.00"},
		{"light", intPtr(499), 1, "5.00"},
		{"exactly 500", intPtr(250), 2, "10.00"},
		{"medium", intPtr(1999), 1, "10.00"},
		{"exactly 2000", intPtr(1000), 2, "25.00"},
		{"heavy", intPtr(3000), 1, "25.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, st := newTestQueryHandler()
			p := seedProduct(t, st, "1.00", tt.weight)
			id := seedOrder(t, st, p.ID, tt.quantity, nil)

			view, err := handler.GetOrder(context.Background(), id)

			require.NoError(t, err)
			assert.Equal(t, tt.want, view.ShippingPrice.String())
		})
	}
}

func TestHandler_GetOrder_MasksCardAndRendersTransaction(t *testing.T) {
	handler, st := newTestQueryHandler()
	p := seedProduct(t, st, "10.00", intPtr(100))
	id := seedOrder(t, st, p.ID, 1, func(ctx context.Context, tx store.Tx, o *order.Order) error {
		cc := &order.CreditCard{Name: "John Doe", Number: "4111111111111111", CVV: "123", ExpirationYear: 2030, ExpirationMonth: 9}
		if err := tx.InsertCreditCard(ctx, cc); err != nil {
			return err
		}
		tr := &order.Transaction{ID: "tx-1", Success: true, AmountCharged: decimal.RequireFromString("16.50")}
		if err := tx.InsertTransaction(ctx, tr); err != nil {
			return err
		}
		o.CreditCardID = &cc.ID
		o.TransactionID = &tr.ID
		o.Paid = true
		return nil
	})

	view, err := handler.GetOrder(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, "4111", view.CreditCard.FirstDigits)
	assert.Equal(t, "1111", view.CreditCard.LastDigits)
	assert.Equal(t, "John Doe", view.CreditCard.Name)
	assert.Equal(t, "tx-1", view.Transaction.ID)
	require.NotNil(t, view.Transaction.Success)
	assert.True(t, *view.Transaction.Success)
	assert.Equal(t, "16.50", view.Transaction.AmountCharged.String())
	assert.True(t, view.Paid)
}

func TestHandler_GetOrder_RunsReconciler(t *testing.T) {
	handler, st := newTestQueryHandler()
	p := seedProduct(t, st, "10.00", nil)
	id := seedOrder(t, st, p.ID, 1, nil)
	reconciler := &stubReconciler{}
	handler.SetReconciler(reconciler)

	_, err := handler.GetOrder(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, []int64{id}, reconciler.calls)
}

func TestHandler_GetOrder_ReconcilerFailureDoesNotBlockRead(t *testing.T) {
	handler, st := newTestQueryHandler()
	p := seedProduct(t, st, "10.00", nil)
	id := seedOrder(t, st, p.ID, 1, nil)
	handler.SetReconciler(&stubReconciler{err: errors.New("store unavailable")})

	view, err := handler.GetOrder(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, id, view.ID)
}

// ============================================
// Settlement Log Query Tests
// ============================================

func TestHandler_ListSettlementAttempts(t *testing.T) {
	handler, st := newTestQueryHandler()
	p := seedProduct(t, st, "10.00", nil)
	id := seedOrder(t, st, p.ID, 1, nil)

	views, err := handler.ListSettlementAttempts(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, views)

	_, err = handler.ListSettlementAttempts(context.Background(), id+1)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}
