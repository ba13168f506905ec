// Package settlement charges an order's card and records the outcome.
//
// A settlement runs in three phases. Phase 1 stores the card. A marker
// transaction then opens a SettlementAttempt and moves the order to
// settlement_pending. Phase 2 calls the gateway outside any transaction and
// phase 3 records its result. An attempt left open by a crash is closed as
// indeterminate by ReconcileStale.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/infrastructure/telemetry"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/query"
	"github.com/example/ec-checkout/internal/readmodel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/example/ec-checkout/internal/settlement"

const (
	DefaultGatewayTimeout = 10 * time.Second
	DefaultStaleAfter     = 2 * time.Minute
)

type Config struct {
	GatewayTimeout time.Duration
	StaleAfter     time.Duration
}

// Saga settles orders against a payment gateway.
type Saga struct {
	store     store.Store
	query     *query.Handler
	gateway   payment.Gateway
	publisher kafka.Publisher
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	logger    *zap.Logger

	gatewayTimeout time.Duration
	staleAfter     time.Duration
	now            func() time.Time
	newID          func() string
}

func NewSaga(
	st store.Store,
	q *query.Handler,
	gateway payment.Gateway,
	publisher kafka.Publisher,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
	cfg Config,
) *Saga {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = DefaultGatewayTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &Saga{
		store:          st,
		query:          q,
		gateway:        gateway,
		publisher:      publisher,
		metrics:        metrics,
		tracer:         otel.Tracer(tracerName),
		logger:         logger.Named("settlement"),
		gatewayTimeout: cfg.GatewayTimeout,
		staleAfter:     cfg.StaleAfter,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// outcome is the classified result of a gateway call.
type outcome struct {
	status order.AttemptStatus
	result *payment.Result
	err    error
}

func (o outcome) reason() string {
	if o.err != nil {
		return o.err.Error()
	}
	return ""
}

// Settle stores card on the order and charges the amount due. The caller
// must hold the order's settlement lock.
func (s *Saga) Settle(ctx context.Context, orderID int64, card order.CreditCard) (*readmodel.OrderReadModel, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.Settle", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	// 1. Phase 1: card on file
	if err := s.storeCard(ctx, orderID, card); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if err := kafka.PublishEvent(ctx, s.publisher, orderKey(orderID), order.AggregateType, order.EventCreditCardSubmitted, order.CreditCardSubmitted{
		OrderID:     orderID,
		LastDigits:  card.LastDigits(),
		SubmittedAt: s.now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event_type", order.EventCreditCardSubmitted), zap.Int64("order_id", orderID), zap.Error(err))
	}

	// 2. Marker: open the attempt before anything leaves the process
	attempt, email, err := s.openAttempt(ctx, orderID)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("settlement.attempt_id", attempt.ID), attribute.String("settlement.amount", attempt.Amount.StringFixed(2)))

	// 3. Phase 2: charge, never inside a transaction
	out := s.charge(ctx, card, attempt.Amount)

	// 4. Phase 3: record the result even if the caller has gone away
	recordCtx := context.WithoutCancel(ctx)
	view, out, err := s.recordOutcome(recordCtx, attempt, out)
	if err != nil {
		s.logger.Error("failed to record settlement outcome",
			zap.Int64("order_id", orderID),
			zap.String("attempt_id", attempt.ID),
			zap.String("outcome", string(out.status)),
			zap.String("transaction_id", transactionID(out.result)),
			zap.String("amount", attempt.Amount.StringFixed(2)),
			zap.Error(err),
		)
		recordSpanError(span, err)
		return nil, fmt.Errorf("%w: recording outcome: %w", order.ErrSettlementIndeterminate, err)
	}

	s.metrics.RecordSettlement(string(out.status))
	s.publishOutcome(recordCtx, attempt, email, out)
	span.SetAttributes(attribute.String("settlement.outcome", string(out.status)))

	switch out.status {
	case order.AttemptSucceeded:
		s.logger.Info("order settled",
			zap.Int64("order_id", orderID),
			zap.String("attempt_id", attempt.ID),
			zap.String("transaction_id", out.result.TransactionID),
		)
		return view, nil
	case order.AttemptIndeterminate:
		err = fmt.Errorf("%w: %w", order.ErrSettlementIndeterminate, out.err)
	default:
		err = fmt.Errorf("%w: %w", order.ErrSettlementFailed, out.err)
	}
	s.logger.Warn("settlement did not succeed",
		zap.Int64("order_id", orderID),
		zap.String("attempt_id", attempt.ID),
		zap.String("outcome", string(out.status)),
		zap.Error(out.err),
	)
	recordSpanError(span, err)
	return nil, err
}

func (s *Saga) storeCard(ctx context.Context, orderID int64, card order.CreditCard) error {
	ctx, span := s.tracer.Start(ctx, "settlement.phase1")
	defer span.End()

	return s.store.WithTx(ctx, func(tx store.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsSettled() {
			return order.ErrOrderAlreadySettled
		}
		if err := o.TransitionTo(order.StatusCardOnFile); err != nil {
			return err
		}

		cc := card
		if o.CreditCardID != nil {
			cc.ID = *o.CreditCardID
			err = tx.UpdateCreditCard(ctx, &cc)
		} else {
			err = tx.InsertCreditCard(ctx, &cc)
			o.CreditCardID = &cc.ID
		}
		if err != nil {
			if errors.Is(err, store.ErrCheckViolation) {
				return fmt.Errorf("%w: credit card: %w", order.ErrValidation, err)
			}
			return fmt.Errorf("failed to store credit card: %w", err)
		}

		return tx.UpdateOrder(ctx, o)
	})
}

func (s *Saga) openAttempt(ctx context.Context, orderID int64) (*order.SettlementAttempt, *string, error) {
	var (
		attempt *order.SettlementAttempt
		email   *string
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		view, err := s.query.Resolve(ctx, tx, orderID)
		if err != nil {
			return err
		}
		amount, err := view.AmountDue()
		if err != nil {
			return err
		}
		if err := o.TransitionTo(order.StatusSettlementPending); err != nil {
			return err
		}

		attempt = order.NewSettlementAttempt(s.newID(), orderID, amount, telemetry.TraceID(ctx), s.now().UTC())
		if err := tx.InsertSettlementAttempt(ctx, attempt); err != nil {
			return fmt.Errorf("failed to open settlement attempt: %w", err)
		}
		email = o.Email
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, nil, err
	}
	return attempt, email, nil
}

func (s *Saga) charge(ctx context.Context, card order.CreditCard, amount decimal.Decimal) outcome {
	ctx, span := s.tracer.Start(ctx, "settlement.phase2")
	defer span.End()

	chargeCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.gateway.Charge(chargeCtx, payment.Card{
		Name:            card.Name,
		Number:          card.Number,
		ExpirationYear:  card.ExpirationYear,
		CVV:             card.CVV,
		ExpirationMonth: card.ExpirationMonth,
	}, amount)
	out := classify(result, err)
	s.metrics.ObserveGatewayCall(string(out.status), time.Since(start))
	span.SetAttributes(attribute.String("payment.outcome", string(out.status)))
	if out.err != nil {
		span.RecordError(out.err)
	}
	return out
}

// classify decides what a gateway answer means for the order. Anything that
// may have reached the gateway without a definite answer is indeterminate.
func classify(result *payment.Result, err error) outcome {
	switch {
	case err == nil && result == nil:
		return outcome{status: order.AttemptIndeterminate, err: payment.ErrInvalidResponse}
	case err == nil && !result.Success:
		return outcome{status: order.AttemptDeclined, result: result, err: payment.ErrCardDeclined}
	case err == nil:
		return outcome{status: order.AttemptSucceeded, result: result}
	case errors.Is(err, payment.ErrNotSent):
		return outcome{status: order.AttemptFailed, err: err}
	case errors.Is(err, payment.ErrCardDeclined):
		return outcome{status: order.AttemptDeclined, err: err}
	case errors.Is(err, payment.ErrGatewayTimeout),
		errors.Is(err, payment.ErrInvalidResponse),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return outcome{status: order.AttemptIndeterminate, err: err}
	default:
		return outcome{status: order.AttemptFailed, err: err}
	}
}

func (s *Saga) recordOutcome(ctx context.Context, attempt *order.SettlementAttempt, out outcome) (*readmodel.OrderReadModel, outcome, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.phase3")
	defer span.End()

	var view *readmodel.OrderReadModel
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		o, err := lockOrder(ctx, tx, attempt.OrderID)
		if err != nil {
			return err
		}
		now := s.now().UTC()

		if out.status == order.AttemptSucceeded {
			t := &order.Transaction{
				ID:            out.result.TransactionID,
				Success:       true,
				AmountCharged: out.result.AmountCharged,
			}
			// A prior row with this id is checked up front: a failed insert
			// aborts a PostgreSQL transaction.
			_, err := tx.GetTransaction(ctx, t.ID)
			switch {
			case err == nil:
				out = outcome{
					status: order.AttemptFailed,
					result: out.result,
					err:    fmt.Errorf("%w: %s", order.ErrDuplicateTransaction, t.ID),
				}
			case !errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("failed to look up transaction: %w", err)
			default:
				if err := tx.InsertTransaction(ctx, t); err != nil {
					return fmt.Errorf("failed to insert transaction: %w", err)
				}
				o.TransactionID = &t.ID
				o.Paid = true
			}
		}

		attempt.Finish(out.status, transactionID(out.result), out.reason(), now)
		if err := tx.UpdateSettlementAttempt(ctx, attempt); err != nil {
			return fmt.Errorf("failed to close settlement attempt: %w", err)
		}
		if err := moveTo(o, out.status.OrderStatus()); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		view, err = s.query.Resolve(ctx, tx, attempt.OrderID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, out, err
	}
	return view, out, nil
}

func (s *Saga) publishOutcome(ctx context.Context, attempt *order.SettlementAttempt, email *string, out outcome) {
	now := s.now().UTC()
	var (
		eventType string
		data      any
	)
	switch out.status {
	case order.AttemptSucceeded:
		eventType = order.EventSettlementSucceeded
		ev := order.SettlementSucceeded{
			OrderID:       attempt.OrderID,
			AttemptID:     attempt.ID,
			TransactionID: out.result.TransactionID,
			Amount:        out.result.AmountCharged,
			SettledAt:     now,
		}
		if email != nil {
			ev.Email = *email
		}
		data = ev
	case order.AttemptIndeterminate:
		eventType = order.EventSettlementIndeterminate
		data = order.SettlementFailed{OrderID: attempt.OrderID, AttemptID: attempt.ID, Outcome: out.status, Reason: out.reason(), FailedAt: now}
	default:
		eventType = order.EventSettlementFailed
		data = order.SettlementFailed{OrderID: attempt.OrderID, AttemptID: attempt.ID, Outcome: out.status, Reason: out.reason(), FailedAt: now}
	}

	if err := kafka.PublishEvent(ctx, s.publisher, orderKey(attempt.OrderID), order.AggregateType, eventType, data); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event_type", eventType), zap.Int64("order_id", attempt.OrderID), zap.Error(err))
	}
}

// ReconcileStale closes an order's latest attempt as indeterminate when it
// has stayed open longer than the stale window.
func (s *Saga) ReconcileStale(ctx context.Context, orderID int64) error {
	var reconciled *order.SettlementAttempt
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		a, err := tx.LatestSettlementAttempt(ctx, orderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		now := s.now().UTC()
		if !a.IsStale(now, s.staleAfter) {
			return nil
		}

		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		a.Finish(order.AttemptIndeterminate, "", fmt.Sprintf("no outcome recorded within %s", s.staleAfter), now)
		if err := tx.UpdateSettlementAttempt(ctx, a); err != nil {
			return err
		}
		if o.Status == order.StatusSettlementPending {
			if err := o.TransitionTo(order.StatusSettlementIndeterminate); err != nil {
				return err
			}
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return err
			}
		}
		reconciled = a
		return nil
	})
	if err != nil {
		return err
	}
	if reconciled != nil {
		s.metrics.RecordSettlement(string(order.AttemptIndeterminate))
		s.logger.Warn("stale settlement attempt marked indeterminate",
			zap.Int64("order_id", orderID),
			zap.String("attempt_id", reconciled.ID),
			zap.Time("started_at", reconciled.StartedAt),
		)
	}
	return nil
}

func lockOrder(ctx context.Context, tx store.Tx, orderID int64) (*order.Order, error) {
	o, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", order.ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return o, nil
}

// moveTo transitions o unless it is already at target, which happens when
// a late result arrives for an attempt already reconciled as indeterminate.
func moveTo(o *order.Order, target order.Status) error {
	if o.Status == target {
		return nil
	}
	return o.TransitionTo(target)
}

func transactionID(r *payment.Result) string {
	if r == nil {
		return ""
	}
	return r.TransactionID
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("%d", orderID)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
