package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DeclinedTestCard is refused by SimulatedGateway.
const DeclinedTestCard = "4000000000000002"

// SimulatedGateway approves every card except DeclinedTestCard. It is used
// when no gateway URL is configured.
type SimulatedGateway struct {
	latency time.Duration
	logger  *zap.Logger
}

func NewSimulatedGateway(latency time.Duration, logger *zap.Logger) *SimulatedGateway {
	return &SimulatedGateway{latency: latency, logger: logger.Named("simulated_gateway")}
}

func (g *SimulatedGateway) Charge(ctx context.Context, card Card, amount decimal.Decimal) (*Result, error) {
	if g.latency > 0 {
		select {
		case <-time.After(g.latency):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrGatewayTimeout, ctx.Err())
		}
	}

	if card.Number == DeclinedTestCard {
		g.logger.Info("charge declined", zap.String("amount", amount.StringFixed(2)))
		return nil, &DeclineError{Code: "card-declined", Name: "The credit card was declined"}
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	g.logger.Info("charge approved", zap.String("transaction_id", id), zap.String("amount", amount.StringFixed(2)))
	return &Result{TransactionID: id, Success: true, AmountCharged: amount}, nil
}
