package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope written to the topic. Data holds the JSON payload
// named by EventType.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewEvent wraps data in an envelope with a fresh id.
func NewEvent(aggregateID, aggregateType, eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          raw,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Publisher sends an event keyed by its aggregate.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// NopPublisher drops every event. It stands in for Kafka when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// PublishEvent builds the envelope and publishes it keyed by aggregateID.
func PublishEvent(ctx context.Context, p Publisher, aggregateID, aggregateType, eventType string, data any) error {
	event, err := NewEvent(aggregateID, aggregateType, eventType, data)
	if err != nil {
		return err
	}
	return p.Publish(ctx, aggregateID, event)
}
