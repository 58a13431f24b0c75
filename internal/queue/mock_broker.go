package queue

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBroker is a testify mock of Broker.
type MockBroker struct {
	mock.Mock
}

// Publish records the call.
func (m *MockBroker) Publish(ctx context.Context, topic string, data []byte) error {
	args := m.Called(ctx, topic, data)
	return args.Error(0)
}

// Subscribe records the call.
func (m *MockBroker) Subscribe(ctx context.Context, topic string, handler Handler) error {
	args := m.Called(ctx, topic, handler)
	return args.Error(0)
}

// Close records the call.
func (m *MockBroker) Close() error {
	args := m.Called()
	return args.Error(0)
}
