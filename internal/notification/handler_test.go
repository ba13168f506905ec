package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/email"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type receiptCall struct {
	To      string
	Receipt email.Receipt
}

type mockSender struct {
	calls []receiptCall
	err   error
}

func (m *mockSender) SendSettlementReceipt(to string, r email.Receipt) error {
	m.calls = append(m.calls, receiptCall{To: to, Receipt: r})
	if to == "" {
		return email.ErrNoRecipient
	}
	return m.err
}

func newTestHandler(sender Sender) (*Handler, *prometheus.Registry, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	reg := prometheus.NewRegistry()
	return NewHandler(sender, telemetry.NewMetrics(reg), zap.New(core)), reg, logs
}

func encodeEvent(t *testing.T, eventType string, data any) []byte {
	t.Helper()
	event, err := kafka.NewEvent("order-7", order.AggregateType, eventType, data)
	require.NoError(t, err)
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return raw
}

func succeeded(emailAddr string) order.SettlementSucceeded {
	return order.SettlementSucceeded{
		OrderID:       7,
		AttemptID:     "attempt-1",
		TransactionID: "TXN-1",
		Amount:        decimal.RequireFromString("39.50"),
		Email:         emailAddr,
		SettledAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sentCount(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "notifications_sent_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// ============================================
// HandleEvent Tests
// ============================================

func TestHandleEvent_SendsReceipt(t *testing.T) {
	sender := &mockSender{}
	h, reg, logs := newTestHandler(sender)

	err := h.HandleEvent(context.Background(), []byte("order-7"), encodeEvent(t, order.EventSettlementSucceeded, succeeded("buyer@example.com")))

	require.NoError(t, err)
	require.Len(t, sender.calls, 1)
	assert.Equal(t, "buyer@example.com", sender.calls[0].To)
	assert.Equal(t, int64(7), sender.calls[0].Receipt.OrderID)
	assert.Equal(t, "TXN-1", sender.calls[0].Receipt.TransactionID)
	assert.True(t, decimal.RequireFromString("39.5").Equal(sender.calls[0].Receipt.Amount))
	assert.Equal(t, float64(1), sentCount(t, reg, "sent"))
	assert.Equal(t, 1, logs.FilterMessage("settlement receipt sent").Len())
}

func TestHandleEvent_IgnoresOtherEvents(t *testing.T) {
	sender := &mockSender{}
	h, _, _ := newTestHandler(sender)

	err := h.HandleEvent(context.Background(), nil, encodeEvent(t, order.EventSettlementFailed, order.SettlementFailed{OrderID: 7}))

	require.NoError(t, err)
	assert.Empty(t, sender.calls)
}

func TestHandleEvent_NoEmail(t *testing.T) {
	sender := &mockSender{}
	h, reg, logs := newTestHandler(sender)

	err := h.HandleEvent(context.Background(), nil, encodeEvent(t, order.EventSettlementSucceeded, succeeded("")))

	require.NoError(t, err)
	assert.Equal(t, float64(0), sentCount(t, reg, "sent"))
	assert.Equal(t, float64(0), sentCount(t, reg, "failed"))
	assert.Equal(t, 1, logs.FilterMessage("settled order has no email address").Len())
}

func TestHandleEvent_SendFailure(t *testing.T) {
	sendErr := errors.New("smtp down")
	sender := &mockSender{err: sendErr}
	h, reg, _ := newTestHandler(sender)

	err := h.HandleEvent(context.Background(), nil, encodeEvent(t, order.EventSettlementSucceeded, succeeded("buyer@example.com")))

	assert.ErrorIs(t, err, sendErr)
	assert.Equal(t, float64(1), sentCount(t, reg, "failed"))
}

func TestHandleEvent_MalformedMessage(t *testing.T) {
	h, _, _ := newTestHandler(&mockSender{})

	err := h.HandleEvent(context.Background(), nil, []byte("{not json"))

	assert.Error(t, err)
}
