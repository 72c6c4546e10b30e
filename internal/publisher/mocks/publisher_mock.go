package mocks

import (
	"context"
	"sync"

	"github.com/example/ticketing/internal/events"
)

// MockPublisher records published payloads instead of sending them
type MockPublisher[T events.Payload] struct {
	mu sync.Mutex

	PublishCalls []T
	PublishErr   error
}

func NewMockPublisher[T events.Payload]() *MockPublisher[T] {
	return &MockPublisher[T]{}
}

// Publish validates like the real publisher, then records the payload
func (m *MockPublisher[T]) Publish(_ context.Context, payload T) error {
	if err := payload.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.PublishCalls = append(m.PublishCalls, payload)
	return nil
}

// Published returns a copy of the recorded payloads
func (m *MockPublisher[T]) Published() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]T(nil), m.PublishCalls...)
}
