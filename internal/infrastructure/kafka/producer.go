package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerConfig selects the topic and delivery guarantees of a Producer.
type ProducerConfig struct {
	Brokers []string
	Topic   string
	// RequiredAcks is "all", "one" or "none"; empty means "all".
	RequiredAcks    string
	AutoCreateTopic bool
	BatchTimeout    time.Duration
}

// Producer publishes event envelopes to a single topic.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	writer, err := newWriter(cfg)
	if err != nil {
		return nil, err
	}
	return &Producer{writer: writer}, nil
}

func newWriter(cfg ProducerConfig) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer: no brokers")
	}
	acks, err := parseRequiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           acks,
		AllowAutoTopicCreation: cfg.AutoCreateTopic,
	}, nil
}

func parseRequiredAcks(s string) (kafka.RequiredAcks, error) {
	switch s {
	case "", "all":
		return kafka.RequireAll, nil
	case "one":
		return kafka.RequireOne, nil
	case "none":
		return kafka.RequireNone, nil
	}
	return 0, fmt.Errorf("kafka producer: unknown required acks %q", s)
}

// Publish writes event as JSON keyed by key, so all events of one order
// land on the same partition in publish order.
func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		return fmt.Errorf("publish to %s: %w", p.writer.Topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
