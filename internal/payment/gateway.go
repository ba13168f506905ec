// Package payment charges credit cards through an external gateway.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrCardDeclined means the gateway refused the card; nothing was charged.
	ErrCardDeclined = errors.New("card declined")
	// ErrGatewayTimeout means the call ran out of time after it may have
	// reached the gateway, so the charge may or may not have happened.
	ErrGatewayTimeout = errors.New("payment gateway timed out")
	// ErrGatewayUnavailable means the gateway answered with an error or could not be reached.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrNotSent means the charge was never handed to the gateway.
	ErrNotSent = errors.New("charge not sent")
	// ErrInvalidResponse means the gateway's answer could not be understood.
	ErrInvalidResponse = errors.New("invalid payment gateway response")
)

type Card struct {
	Name            string
	Number          string
	ExpirationYear  int
	CVV             string
	ExpirationMonth int
}

// Result is the gateway's record of a charge. TransactionID is issued by the gateway.
type Result struct {
	TransactionID string
	Success       bool
	AmountCharged decimal.Decimal
}

// Gateway charges amount to card. Implementations must return promptly once ctx is done.
type Gateway interface {
	Charge(ctx context.Context, card Card, amount decimal.Decimal) (*Result, error)
}

// DeclineError carries the gateway's reason for refusing a card.
type DeclineError struct {
	Code string
	Name string
}

func (e *DeclineError) Error() string {
	if e.Code == "" && e.Name == "" {
		return ErrCardDeclined.Error()
	}
	return fmt.Sprintf("%s: %s (%s)", ErrCardDeclined, e.Name, e.Code)
}

func (e *DeclineError) Unwrap() error {
	return ErrCardDeclined
}
