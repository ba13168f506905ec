package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/email"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Sender delivers settlement receipts
type Sender interface {
	SendSettlementReceipt(to string, r email.Receipt) error
}

// Handler processes events for sending notifications
type Handler struct {
	sender  Sender
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// NewHandler creates a new notification handler
func NewHandler(sender Sender, metrics *telemetry.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		sender:  sender,
		metrics: metrics,
		logger:  logger.Named("notifier"),
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event kafka.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	// Only settled orders get a receipt
	if event.EventType == order.EventSettlementSucceeded {
		return h.handleSettlementSucceeded(event)
	}
	return nil
}

func (h *Handler) handleSettlementSucceeded(event kafka.Event) error {
	var e order.SettlementSucceeded
	if err := event.Decode(&e); err != nil {
		return fmt.Errorf("unmarshal %s: %w", event.EventType, err)
	}

	err := h.sender.SendSettlementReceipt(e.Email, email.Receipt{
		OrderID:       e.OrderID,
		TransactionID: e.TransactionID,
		Amount:        e.Amount,
		SettledAt:     e.SettledAt,
	})
	if errors.Is(err, email.ErrNoRecipient) {
		h.logger.Warn("settled order has no email address", zap.Int64("order_id", e.OrderID))
		return nil
	}
	h.metrics.RecordNotification(event.EventType, err)
	if err != nil {
		return fmt.Errorf("receipt for order %d: %w", e.OrderID, err)
	}

	h.logger.Info("settlement receipt sent",
		zap.Int64("order_id", e.OrderID),
		zap.String("transaction_id", e.TransactionID),
	)
	return nil
}
