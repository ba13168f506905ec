package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	kafkamocks "github.com/example/ec-checkout/internal/infrastructure/kafka/mocks"
	"github.com/example/ec-checkout/internal/infrastructure/lock"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/infrastructure/telemetry"
	"github.com/example/ec-checkout/internal/payment"
	paymentmocks "github.com/example/ec-checkout/internal/payment/mocks"
	"github.com/example/ec-checkout/internal/pricing"
	"github.com/example/ec-checkout/internal/query"
	"github.com/example/ec-checkout/internal/settlement"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	handler   *Handler
	store     *store.MemoryStore
	query     *query.Handler
	gateway   *paymentmocks.MockGateway
	publisher *kafkamocks.MockPublisher
	locker    *lock.KeyedMutex
}

func newTestHandler(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := store.NewMemoryStore()
	engine := pricing.Default()
	q := query.NewHandler(st, engine, logger)
	gw := paymentmocks.NewMockGateway()
	pub := kafkamocks.NewMockPublisher()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	saga := settlement.NewSaga(st, q, gw, pub, metrics, logger, settlement.Config{GatewayTimeout: 50 * time.Millisecond})
	locker := lock.NewKeyedMutex()

	handler := NewHandler(product.NewService(st), st, q, saga, locker, engine, pub, metrics, logger)
	return &testEnv{handler: handler, store: st, query: q, gateway: gw, publisher: pub, locker: locker}
}

func (e *testEnv) createProduct(t *testing.T, price string, weight int) *product.Product {
	t.Helper()
	p, err := e.handler.CreateProduct(context.Background(), CreateProduct{
		Name:   "Widget",
		Price:  decimal.RequireFromString(price),
		Weight: &weight,
		Image:  "widget.jpg",
	})
	require.NoError(t, err)
	return p
}

func qcShipping(id int64) PutShippingInformation {
	return PutShippingInformation{
		OrderID: id,
		Email:   "buyer@example.com",
		ShippingInformation: order.ShippingInformation{
			Country:    "Canada",
			Address:    "201 Stewart St",
			PostalCode: "G7X 3Y7",
			City:       "Chicoutimi",
			Province:   "QC",
		},
	}
}

func card(number string) PutCreditCard {
	return PutCreditCard{CreditCard: order.CreditCard{Name: "John Doe", Number: number, ExpirationYear: 2030, CVV: "123", ExpirationMonth: 9}}
}

// ============================================
// Create Product Tests
// ============================================

func TestHandler_CreateProduct_Success(t *testing.T) {
	env := newTestHandler(t)

	p, err := env.handler.CreateProduct(context.Background(), CreateProduct{Name: "  Brown eggs ", Price: decimal.RequireFromString("28.10")})

	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "Brown eggs", p.Name)
	assert.True(t, p.InStock)
}

func TestHandler_CreateProduct_ExplicitIDAndOutOfStock(t *testing.T) {
	env := newTestHandler(t)
	inStock := false

	p, err := env.handler.CreateProduct(context.Background(), CreateProduct{ID: 7, Name: "Sold out", InStock: &inStock, Price: decimal.RequireFromString("1.00")})

	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	assert.False(t, p.InStock)

	_, err = env.handler.CreateProduct(context.Background(), CreateProduct{ID: 7, Name: "Again", Price: decimal.RequireFromString("1.00")})
	assert.ErrorIs(t, err, product.ErrDuplicateProduct)
}

func TestHandler_CreateProduct_InvalidPrice(t *testing.T) {
	env := newTestHandler(t)

	p, err := env.handler.CreateProduct(context.Background(), CreateProduct{Name: "Free", Price: decimal.Zero})

	assert.ErrorIs(t, err, product.ErrInvalidPrice)
	assert.Nil(t, p)
}

func TestHandler_DropProducts(t *testing.T) {
	env := newTestHandler(t)
	env.createProduct(t, "1.00", 100)

	require.NoError(t, env.handler.DropProducts(context.Background(), DropProducts{}))

	views, err := env.query.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, views)
}

// ============================================
// Add Order Tests
// ============================================

func TestHandler_AddOrder_RoundTrip(t *testing.T) {
	env := newTestHandler(t)
	p := env.createProduct(t, "10.00", 100)

	id, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)

	view, err := env.query.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, p.ID, view.Product.ID)
	assert.Equal(t, 3, view.Product.Quantity)
	assert.Equal(t, "30.00", view.TotalPrice.String())
	assert.Equal(t, string(order.StatusCreated), view.Status)
	assert.Equal(t, []string{order.EventOrderCreated}, env.publisher.EventTypes())
}

func TestHandler_AddOrder_ProductNotFound(t *testing.T) {
	env := newTestHandler(t)

	_, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: 99, Quantity: 1})

	assert.ErrorIs(t, err, product.ErrProductNotFound)
	assert.Empty(t, env.publisher.PublishCalls)
}

func TestHandler_AddOrder_OutOfStock(t *testing.T) {
	env := newTestHandler(t)
	inStock := false
	p, err := env.handler.CreateProduct(context.Background(), CreateProduct{Name: "Gone", InStock: &inStock, Price: decimal.RequireFromString("1.00")})
	require.NoError(t, err)

	_, err = env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 1})

	assert.ErrorIs(t, err, product.ErrOutOfStock)
}

func TestHandler_AddOrder_ZeroQuantityRejectedByStore(t *testing.T) {
	env := newTestHandler(t)
	p := env.createProduct(t, "1.00", 100)

	_, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 0})

	assert.ErrorIs(t, err, order.ErrValidation)
	assert.ErrorIs(t, err, store.ErrCheckViolation)
}

func TestHandler_AddOrder_OrderWriteFailureRollsBackLineItem(t *testing.T) {
	env := newTestHandler(t)
	p := env.createProduct(t, "1.00", 100)
	env.store.SetFault("InsertOrder", errors.New("disk full"))

	_, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 1})
	require.Error(t, err)

	// no orphan line item keeps the catalog pinned
	assert.NoError(t, env.handler.DropProducts(context.Background(), DropProducts{}))
}

// ============================================
// Put Shipping Information Tests
// ============================================

func TestHandler_PutShippingInformation_Success(t *testing.T) {
	env := newTestHandler(t)
	p := env.createProduct(t, "10.00", 100)
	id, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)

	view, err := env.handler.PutShippingInformation(context.Background(), qcShipping(id))

	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", *view.Email)
	require.NotNil(t, view.TotalPriceTax)
	assert.Equal(t, "34.50", view.TotalPriceTax.String())
	assert.Equal(t, "QC", view.ShippingInformation.Province)
	assert.Equal(t, string(order.StatusShippingSet), view.Status)
	assert.Contains(t, env.publisher.EventTypes(), order.EventShippingInformationUpdated)
}

func TestHandler_PutShippingInformation_ResubmitUpdatesInPlace(t *testing.T) {
	env := newTestHandler(t)
	p := env.createProduct(t, "10.00", 100)
	id, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)

	_, err = env.handler.PutShippingInformation(context.Background(), qcShipping(id))
	require.NoError(t, err)
	var firstID int64
	require.NoError(t, env.store.WithTx(context.Background(), func(tx store.Tx) error {
		o, err := tx.GetOrder(context.Background(), id)
		firstID = *o.ShippingInformationID
		return err
	}))

	second := qcShipping(id)
	second.ShippingInformation.Province = "on"
	second.ShippingInformation.City = "Toronto"
	view, err := env.handler.PutShippingInformation(context.Background(), second)

	require.NoError(t, err)
	assert.Equal(t, "33.90", view.TotalPriceTax.String())
	assert.Equal(t, "ON", view.ShippingInformation.Province)
	assert.Equal(t, "Toronto", view.ShippingInformation.City)
	require.NoError(t, env.store.WithTx(context.Background(), func(tx store.Tx) error {
		o, err := tx.GetOrder(context.Background(), id)
		if err != nil {
			return err
		}
		assert.Equal(t, firstID, *o.ShippingInformationID)
		si, err := tx.GetShippingInformation(context.Background(), firstID)
		if err != nil {
			return err
		}
		assert.Equal(t, "Toronto", si.City)
		return nil
	}))
}

func TestHandler_PutShippingInformation_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cmd *PutShippingInformation)
		want   error
	}{
		{"missing city", func(cmd *PutShippingInformation) { cmd.ShippingInformation.City = " " }, order.ErrValidation},
		{"long province", func(cmd *PutShippingInformation) { cmd.ShippingInformation.Province = "QCC" }, order.ErrValidation},
		{"unknown province", func(cmd *PutShippingInformation) { cmd.ShippingInformation.Province = "ZZ" }, pricing.ErrUnknownRegion},
		{"missing email", func(cmd *PutShippingInformation) { cmd.Email = "" }, order.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestHandler(t)
			p := env.createProduct(t, "10.00", 100)
			id, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 1})
			require.NoError(t, err)
			cmd := qcShipping(id)
			tt.mutate(&cmd)

			view, err := env.handler.PutShippingInformation(context.Background(), cmd)

			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, view)
		})
	}
}

func TestHandler_PutShippingInformation_OrderNotFound(t *testing.T) {
	env := newTestHandler(t)

	_, err := env.handler.PutShippingInformation(context.Background(), qcShipping(12))

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestHandler_PutShippingInformation_AfterSettlement(t *testing.T) {
	env := newTestHandler(t)
	p := env.createProduct(t, "10.00", 100)
	id, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = env.handler.PutShippingInformation(context.Background(), qcShipping(id))
	require.NoError(t, err)
	cmd := card("4111111111111111")
	cmd.OrderID = id
	_, err = env.handler.PutCreditCard(context.Background(), cmd)
	require.NoError(t, err)

	_, err = env.handler.PutShippingInformation(context.Background(), qcShipping(id))

	assert.ErrorIs(t, err, order.ErrOrderAlreadySettled)
}

// ============================================
// Put Credit Card Tests
// ============================================

func TestHandler_PutCreditCard_Success(t *testing.T) {
	env := newTestHandler(t)
	p := env.createProduct(t, "10.00", 100)
	id, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = env.handler.PutShippingInformation(context.Background(), qcShipping(id))
	require.NoError(t, err)
	cmd := card("4111111111111111")
	cmd.OrderID = id

	view, err := env.handler.PutCreditCard(context.Background(), cmd)

	require.NoError(t, err)
	assert.True(t, view.Paid)
	assert.Equal(t, "4111", view.CreditCard.FirstDigits)
	assert.Equal(t, "1111", view.CreditCard.LastDigits)
	assert.Equal(t, "39.50", env.gateway.ChargeCalls[0].Amount.StringFixed(2))
}

func TestHandler_PutCreditCard_WithoutShipping(t *testing.T) {
	env := newTestHandler(t)
	p := env.createProduct(t, "10.00", 100)
	id, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	cmd := card("4111111111111111")
	cmd.OrderID = id

	_, err = env.handler.PutCreditCard(context.Background(), cmd)

	assert.ErrorIs(t, err, order.ErrShippingInformationRequired)
	assert.Equal(t, 0, env.gateway.Calls())
}

func TestHandler_PutCreditCard_GatewayFailureThenRetry(t *testing.T) {
	env := newTestHandler(t)
	p := env.createProduct(t, "10.00", 100)
	id, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = env.handler.PutShippingInformation(context.Background(), qcShipping(id))
	require.NoError(t, err)
	env.gateway.ChargeFunc = paymentmocks.BlockUntilDone()
	cmd := card("4111111111111111")
	cmd.OrderID = id

	_, err = env.handler.PutCreditCard(context.Background(), cmd)
	require.ErrorIs(t, err, order.ErrSettlementIndeterminate)

	view, err := env.query.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "1111", view.CreditCard.LastDigits)
	assert.Empty(t, view.Transaction)

	env.gateway.Reset()
	view, err = env.handler.PutCreditCard(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, view.Paid)
	assert.NotEmpty(t, view.Transaction.ID)
	assert.Equal(t, 1, env.gateway.Calls())
}

func TestHandler_PutCreditCard_ConcurrentSubmissionsChargeOnce(t *testing.T) {
	env := newTestHandler(t)
	p := env.createProduct(t, "10.00", 100)
	id, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = env.handler.PutShippingInformation(context.Background(), qcShipping(id))
	require.NoError(t, err)
	cmd := card("4111111111111111")
	cmd.OrderID = id

	const submissions = 5
	var wg sync.WaitGroup
	errs := make([]error, submissions)
	for i := 0; i < submissions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.handler.PutCreditCard(context.Background(), cmd)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, order.ErrOrderAlreadySettled)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, env.gateway.Calls())
}

func TestHandler_PutCreditCard_LockWait(t *testing.T) {
	env := newTestHandler(t)
	env.handler.LockWait = 10 * time.Millisecond
	unlock, err := env.locker.Lock(context.Background(), lock.OrderKey(1))
	require.NoError(t, err)
	defer unlock()

	cmd := card("4111111111111111")
	cmd.OrderID = 1
	_, err = env.handler.PutCreditCard(context.Background(), cmd)

	assert.ErrorIs(t, err, order.ErrSettlementInProgress)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
}

func TestHandler_PutCreditCard_Declined(t *testing.T) {
	env := newTestHandler(t)
	p := env.createProduct(t, "10.00", 100)
	id, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = env.handler.PutShippingInformation(context.Background(), qcShipping(id))
	require.NoError(t, err)
	env.gateway.ChargeErr = &payment.DeclineError{Code: "card-declined", Name: "The card was declined"}
	cmd := card("4000000000000002")
	cmd.OrderID = id

	_, err = env.handler.PutCreditCard(context.Background(), cmd)

	assert.ErrorIs(t, err, payment.ErrCardDeclined)
	view, err := env.query.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusSettlementFailed), view.Status)
	assert.False(t, view.Paid)
}

func TestHandler_PutCreditCard_ShortNumberRejected(t *testing.T) {
	for _, number := range []string{"123", "123456", "424242424242"} {
		t.Run(number, func(t *testing.T) {
			env := newTestHandler(t)
			p := env.createProduct(t, "10.00", 100)
			id, err := env.handler.AddOrder(context.Background(), AddOrder{ProductID: p.ID, Quantity: 1})
			require.NoError(t, err)
			_, err = env.handler.PutShippingInformation(context.Background(), qcShipping(id))
			require.NoError(t, err)
			cmd := card(number)
			cmd.OrderID = id

			_, err = env.handler.PutCreditCard(context.Background(), cmd)

			assert.ErrorIs(t, err, order.ErrValidation)
			assert.ErrorIs(t, err, store.ErrCheckViolation)
			assert.Equal(t, 0, env.gateway.Calls())
			view, err := env.query.GetOrder(context.Background(), id)
			require.NoError(t, err)
			assert.Empty(t, view.CreditCard.FirstDigits)
			assert.Empty(t, view.CreditCard.LastDigits)
		})
	}
}
