package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/example/ec-checkout/internal/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChargeCall records a call to Charge
type ChargeCall struct {
	Card   payment.Card
	Amount decimal.Decimal
}

// MockGateway is a mock implementation of payment.Gateway. By default it
// approves every charge with a fresh transaction id.
type MockGateway struct {
	mu sync.Mutex

	ChargeCalls []ChargeCall

	// Configurable behavior
	ChargeErr      error
	ChargeFunc     func(ctx context.Context, card payment.Card, amount decimal.Decimal) (*payment.Result, error)
	TransactionIDs []string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) Charge(ctx context.Context, card payment.Card, amount decimal.Decimal) (*payment.Result, error) {
	m.mu.Lock()
	m.ChargeCalls = append(m.ChargeCalls, ChargeCall{Card: card, Amount: amount})
	fn := m.ChargeFunc
	chargeErr := m.ChargeErr
	var id string
	if len(m.TransactionIDs) > 0 {
		id = m.TransactionIDs[0]
		m.TransactionIDs = m.TransactionIDs[1:]
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, card, amount)
	}
	if chargeErr != nil {
		return nil, chargeErr
	}
	if id == "" {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return &payment.Result{TransactionID: id, Success: true, AmountCharged: amount}, nil
}

// Calls returns the number of recorded charges.
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ChargeCalls)
}

// Reset clears all recorded calls and configured behavior
func (m *MockGateway) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ChargeCalls = nil
	m.ChargeErr = nil
	m.ChargeFunc = nil
	m.TransactionIDs = nil
}

// BlockUntilDone returns a ChargeFunc that waits for the caller's deadline,
// as a gateway that never answers would.
func BlockUntilDone() func(ctx context.Context, card payment.Card, amount decimal.Decimal) (*payment.Result, error) {
	return func(ctx context.Context, _ payment.Card, _ decimal.Decimal) (*payment.Result, error) {
		<-ctx.Done()
		return nil, payment.ErrGatewayTimeout
	}
}
