package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-checkout/internal/infrastructure/kafka"
)

// PublishCall records a call to Publish
type PublishCall struct {
	Key   string
	Event any
}

// MockPublisher is a mock implementation of kafka.Publisher
type MockPublisher struct {
	mu sync.Mutex

	PublishCalls []PublishCall
	PublishErr   error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, key string, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublishCalls = append(m.PublishCalls, PublishCall{Key: key, Event: event})
	return m.PublishErr
}

// EventTypes returns the event types of every published kafka.Event, in order.
func (m *MockPublisher) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var types []string
	for _, call := range m.PublishCalls {
		if e, ok := call.Event.(kafka.Event); ok {
			types = append(types, e.EventType)
		}
	}
	return types
}

// Events returns every published kafka.Event of the given type.
func (m *MockPublisher) Events(eventType string) []kafka.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []kafka.Event
	for _, call := range m.PublishCalls {
		if e, ok := call.Event.(kafka.Event); ok && e.EventType == eventType {
			events = append(events, e)
		}
	}
	return events
}

// Reset clears all recorded calls
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublishCalls = nil
	m.PublishErr = nil
}
