package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
)

// MemoryStore is an in-memory Store. Transactions are serialized and commit
// by swapping in the working copy they mutated. fn must not call back into
// the MemoryStore itself.
type MemoryStore struct {
	mu     sync.Mutex
	state  *memoryState
	faults map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state:  newMemoryState(),
		faults: make(map[string]error),
	}
}

// SetFault makes every later call of the named Tx method fail with err.
// A nil err clears the fault.
func (s *MemoryStore) SetFault(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memoryTx{state: work, faults: s.faults}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// CreateProduct stores p, assigning an id when p.ID is zero.
func (s *MemoryStore) CreateProduct(_ context.Context, p *product.Product) error {
	if err := checkProduct(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	if p.ID == 0 {
		for {
			st.productSeq++
			if _, taken := st.products[st.productSeq]; !taken {
				break
			}
		}
		p.ID = st.productSeq
	} else if _, exists := st.products[p.ID]; exists {
		return fmt.Errorf("%w: id %d", product.ErrDuplicateProduct, p.ID)
	}
	st.products[p.ID] = cloneProduct(*p)
	return nil
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]product.Product, 0, len(s.state.products))
	for _, p := range s.state.products {
		products = append(products, cloneProduct(p))
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id int64) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.state.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", product.ErrProductNotFound, id)
	}
	c := cloneProduct(p)
	return &c, nil
}

func (s *MemoryStore) DeleteProducts(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.state.lineItems) > 0 {
		return product.ErrProductInUse
	}
	s.state.products = make(map[int64]product.Product)
	return nil
}

type memoryState struct {
	products      map[int64]product.Product
	lineItems     map[int64]order.LineItem
	shipping      map[int64]order.ShippingInformation
	cards         map[int64]order.CreditCard
	transactions  map[string]order.Transaction
	orders        map[int64]order.Order
	attempts      map[string]order.SettlementAttempt
	orderAttempts map[int64][]string

	productSeq  int64
	lineItemSeq int64
	shippingSeq int64
	cardSeq     int64
	orderSeq    int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		products:      make(map[int64]product.Product),
		lineItems:     make(map[int64]order.LineItem),
		shipping:      make(map[int64]order.ShippingInformation),
		cards:         make(map[int64]order.CreditCard),
		transactions:  make(map[string]order.Transaction),
		orders:        make(map[int64]order.Order),
		attempts:      make(map[string]order.SettlementAttempt),
		orderAttempts: make(map[int64][]string),
	}
}

// clone copies the maps. Stored values are never mutated in place, so
// sharing their pointer fields between copies is safe.
func (st *memoryState) clone() *memoryState {
	c := *st
	c.products = copyMap(st.products)
	c.lineItems = copyMap(st.lineItems)
	c.shipping = copyMap(st.shipping)
	c.cards = copyMap(st.cards)
	c.transactions = copyMap(st.transactions)
	c.orders = copyMap(st.orders)
	c.attempts = copyMap(st.attempts)
	c.orderAttempts = make(map[int64][]string, len(st.orderAttempts))
	for id, ids := range st.orderAttempts {
		c.orderAttempts[id] = append([]string(nil), ids...)
	}
	return &c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneProduct(p product.Product) product.Product {
	if p.Description != nil {
		v := *p.Description
		p.Description = &v
	}
	if p.Weight != nil {
		v := *p.Weight
		p.Weight = &v
	}
	return p
}

func cloneAttempt(a order.SettlementAttempt) order.SettlementAttempt {
	if a.FinishedAt != nil {
		v := *a.FinishedAt
		a.FinishedAt = &v
	}
	return a
}

type memoryTx struct {
	state  *memoryState
	faults map[string]error
}

func (tx *memoryTx) fault(method string) error {
	if err, ok := tx.faults[method]; ok {
		return err
	}
	return nil
}

func (tx *memoryTx) GetProduct(_ context.Context, id int64) (*product.Product, error) {
	p, ok := tx.state.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", ErrNotFound, id)
	}
	c := cloneProduct(p)
	return &c, nil
}

func (tx *memoryTx) GetOrder(_ context.Context, id int64) (*order.Order, error) {
	o, ok := tx.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	return o.Clone(), nil
}

// LockOrder is GetOrder: memory transactions are already serialized.
func (tx *memoryTx) LockOrder(ctx context.Context, id int64) (*order.Order, error) {
	return tx.GetOrder(ctx, id)
}

func (tx *memoryTx) checkOrderRefs(o *order.Order) error {
	if _, ok := tx.state.lineItems[o.LineItemID]; !ok {
		return fmt.Errorf("%w: orders.line_item_id %d", ErrForeignKeyViolation, o.LineItemID)
	}
	if o.CreditCardID != nil {
		if _, ok := tx.state.cards[*o.CreditCardID]; !ok {
			return fmt.Errorf("%w: orders.credit_card_id %d", ErrForeignKeyViolation, *o.CreditCardID)
		}
	}
	if o.ShippingInformationID != nil {
		if _, ok := tx.state.shipping[*o.ShippingInformationID]; !ok {
			return fmt.Errorf("%w: orders.shipping_information_id %d", ErrForeignKeyViolation, *o.ShippingInformationID)
		}
	}
	if o.TransactionID != nil {
		if _, ok := tx.state.transactions[*o.TransactionID]; !ok {
			return fmt.Errorf("%w: orders.transaction_id %s", ErrForeignKeyViolation, *o.TransactionID)
		}
	}
	return nil
}

func (tx *memoryTx) InsertOrder(_ context.Context, o *order.Order) error {
	if err := tx.fault("InsertOrder"); err != nil {
		return err
	}
	if err := tx.checkOrderRefs(o); err != nil {
		return err
	}
	for _, existing := range tx.state.orders {
		if existing.LineItemID == o.LineItemID {
			return fmt.Errorf("%w: orders.line_item_id %d", ErrDuplicateKey, o.LineItemID)
		}
	}
	tx.state.orderSeq++
	o.ID = tx.state.orderSeq
	o.Version = 1
	tx.state.orders[o.ID] = *o.Clone()
	return nil
}

func (tx *memoryTx) UpdateOrder(_ context.Context, o *order.Order) error {
	if err := tx.fault("UpdateOrder"); err != nil {
		return err
	}
	current, ok := tx.state.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: order %d", ErrNotFound, o.ID)
	}
	if current.Version != o.Version {
		return fmt.Errorf("%w: order %d", ErrConflict, o.ID)
	}
	if err := tx.checkOrderRefs(o); err != nil {
		return err
	}
	o.Version++
	tx.state.orders[o.ID] = *o.Clone()
	return nil
}

func (tx *memoryTx) GetLineItem(_ context.Context, id int64) (*order.LineItem, error) {
	li, ok := tx.state.lineItems[id]
	if !ok {
		return nil, fmt.Errorf("%w: line item %d", ErrNotFound, id)
	}
	return &li, nil
}

func (tx *memoryTx) InsertLineItem(_ context.Context, li *order.LineItem) error {
	if err := tx.fault("InsertLineItem"); err != nil {
		return err
	}
	if err := checkLineItem(li); err != nil {
		return err
	}
	if _, ok := tx.state.products[li.ProductID]; !ok {
		return fmt.Errorf("%w: line_items.product_id %d", ErrForeignKeyViolation, li.ProductID)
	}
	tx.state.lineItemSeq++
	li.ID = tx.state.lineItemSeq
	tx.state.lineItems[li.ID] = *li
	return nil
}

func (tx *memoryTx) GetShippingInformation(_ context.Context, id int64) (*order.ShippingInformation, error) {
	s, ok := tx.state.shipping[id]
	if !ok {
		return nil, fmt.Errorf("%w: shipping information %d", ErrNotFound, id)
	}
	return &s, nil
}

func (tx *memoryTx) InsertShippingInformation(_ context.Context, s *order.ShippingInformation) error {
	if err := tx.fault("InsertShippingInformation"); err != nil {
		return err
	}
	if err := checkShippingInformation(s); err != nil {
		return err
	}
	tx.state.shippingSeq++
	s.ID = tx.state.shippingSeq
	tx.state.shipping[s.ID] = *s
	return nil
}

func (tx *memoryTx) UpdateShippingInformation(_ context.Context, s *order.ShippingInformation) error {
	if err := tx.fault("UpdateShippingInformation"); err != nil {
		return err
	}
	if _, ok := tx.state.shipping[s.ID]; !ok {
		return fmt.Errorf("%w: shipping information %d", ErrNotFound, s.ID)
	}
	if err := checkShippingInformation(s); err != nil {
		return err
	}
	tx.state.shipping[s.ID] = *s
	return nil
}

func (tx *memoryTx) GetCreditCard(_ context.Context, id int64) (*order.CreditCard, error) {
	c, ok := tx.state.cards[id]
	if !ok {
		return nil, fmt.Errorf("%w: credit card %d", ErrNotFound, id)
	}
	return &c, nil
}

func (tx *memoryTx) InsertCreditCard(_ context.Context, c *order.CreditCard) error {
	if err := tx.fault("InsertCreditCard"); err != nil {
		return err
	}
	if err := checkCreditCard(c); err != nil {
		return err
	}
	tx.state.cardSeq++
	c.ID = tx.state.cardSeq
	tx.state.cards[c.ID] = *c
	return nil
}

func (tx *memoryTx) UpdateCreditCard(_ context.Context, c *order.CreditCard) error {
	if err := tx.fault("UpdateCreditCard"); err != nil {
		return err
	}
	if _, ok := tx.state.cards[c.ID]; !ok {
		return fmt.Errorf("%w: credit card %d", ErrNotFound, c.ID)
	}
	if err := checkCreditCard(c); err != nil {
		return err
	}
	tx.state.cards[c.ID] = *c
	return nil
}

func (tx *memoryTx) GetTransaction(_ context.Context, id string) (*order.Transaction, error) {
	t, ok := tx.state.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	return &t, nil
}

func (tx *memoryTx) InsertTransaction(_ context.Context, t *order.Transaction) error {
	if err := tx.fault("InsertTransaction"); err != nil {
		return err
	}
	if err := checkTransaction(t); err != nil {
		return err
	}
	if _, exists := tx.state.transactions[t.ID]; exists {
		return fmt.Errorf("%w: transactions.id %s", ErrDuplicateKey, t.ID)
	}
	tx.state.transactions[t.ID] = *t
	return nil
}

func (tx *memoryTx) InsertSettlementAttempt(_ context.Context, a *order.SettlementAttempt) error {
	if err := tx.fault("InsertSettlementAttempt"); err != nil {
		return err
	}
	if _, ok := tx.state.orders[a.OrderID]; !ok {
		return fmt.Errorf("%w: settlement_attempts.order_id %d", ErrForeignKeyViolation, a.OrderID)
	}
	if _, exists := tx.state.attempts[a.ID]; exists {
		return fmt.Errorf("%w: settlement_attempts.id %s", ErrDuplicateKey, a.ID)
	}
	tx.state.attempts[a.ID] = cloneAttempt(*a)
	tx.state.orderAttempts[a.OrderID] = append(tx.state.orderAttempts[a.OrderID], a.ID)
	return nil
}

func (tx *memoryTx) UpdateSettlementAttempt(_ context.Context, a *order.SettlementAttempt) error {
	if err := tx.fault("UpdateSettlementAttempt"); err != nil {
		return err
	}
	if _, ok := tx.state.attempts[a.ID]; !ok {
		return fmt.Errorf("%w: settlement attempt %s", ErrNotFound, a.ID)
	}
	tx.state.attempts[a.ID] = cloneAttempt(*a)
	return nil
}

func (tx *memoryTx) ListSettlementAttempts(_ context.Context, orderID int64) ([]order.SettlementAttempt, error) {
	ids := tx.state.orderAttempts[orderID]
	attempts := make([]order.SettlementAttempt, 0, len(ids))
	for _, id := range ids {
		attempts = append(attempts, cloneAttempt(tx.state.attempts[id]))
	}
	return attempts, nil
}

func (tx *memoryTx) LatestSettlementAttempt(_ context.Context, orderID int64) (*order.SettlementAttempt, error) {
	ids := tx.state.orderAttempts[orderID]
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no settlement attempt for order %d", ErrNotFound, orderID)
	}
	a := cloneAttempt(tx.state.attempts[ids[len(ids)-1]])
	return &a, nil
}
