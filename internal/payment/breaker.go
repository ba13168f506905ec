package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-checkout/internal/infrastructure/circuitbreaker"
	"github.com/shopspring/decimal"
)

// BreakerGateway guards a Gateway with a circuit breaker. Declines are
// business outcomes and do not count as failures.
type BreakerGateway struct {
	next    Gateway
	breaker *circuitbreaker.CircuitBreaker
}

func NewBreakerGateway(next Gateway, breaker *circuitbreaker.CircuitBreaker) *BreakerGateway {
	return &BreakerGateway{next: next, breaker: breaker}
}

func (g *BreakerGateway) Charge(ctx context.Context, card Card, amount decimal.Decimal) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotSent, err)
	}

	var (
		result    *Result
		chargeErr error
	)
	err := g.breaker.Execute(ctx, func() error {
		result, chargeErr = g.next.Charge(ctx, card, amount)
		if chargeErr != nil && !errors.Is(chargeErr, ErrCardDeclined) {
			return chargeErr
		}
		return nil
	})
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return nil, fmt.Errorf("%w: %w", ErrNotSent, err)
	case err != nil:
		return nil, err
	}
	return result, chargeErr
}

// State reports the breaker's current state.
func (g *BreakerGateway) State() circuitbreaker.State {
	return g.breaker.GetState()
}
