package order

import "fmt"

type Status string

const (
	StatusCreated                 Status = "created"
	StatusShippingSet             Status = "shipping_set"
	StatusCardOnFile              Status = "card_on_file"
	StatusSettlementPending       Status = "settlement_pending"
	StatusSettled                 Status = "settled"
	StatusSettlementFailed        Status = "settlement_failed"
	StatusSettlementIndeterminate Status = "settlement_indeterminate"
)

// validTransitions defines allowed state transitions.
// An indeterminate order may still receive the late result of its own attempt.
var validTransitions = map[Status][]Status{
	StatusCreated:                 {StatusShippingSet, StatusCardOnFile},
	StatusShippingSet:             {StatusCardOnFile},
	StatusCardOnFile:              {StatusCardOnFile, StatusSettlementPending},
	StatusSettlementPending:       {StatusSettled, StatusSettlementFailed, StatusSettlementIndeterminate},
	StatusSettled:                 {}, // terminal state
	StatusSettlementFailed:        {StatusCardOnFile},
	StatusSettlementIndeterminate: {StatusCardOnFile, StatusSettled, StatusSettlementFailed},
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionTo moves the order to target or reports why it cannot.
func (o *Order) TransitionTo(target Status) error {
	if !o.CanTransitionTo(target) {
		return o.transitionError(target)
	}
	o.Status = target
	return nil
}

// ShippingSubmitted advances a new order once shipping details are on file.
// Orders further along keep their status.
func (o *Order) ShippingSubmitted() {
	if o.Status == StatusCreated {
		o.Status = StatusShippingSet
	}
}

// IsSettled reports whether a transaction has been recorded for the order.
func (o *Order) IsSettled() bool {
	return o.Status == StatusSettled || o.TransactionID != nil
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusSettled:
		return ErrOrderAlreadySettled
	case o.Status == StatusSettlementPending:
		return ErrSettlementInProgress
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}
