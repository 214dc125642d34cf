package mocks

import (
	"context"
	"sync"
)

// MockMessageBroker is a mock implementation of message_broaker.MessageBroker for testing.
// Published messages are kept in order.
type MockMessageBroker struct {
	PublishFunc func(ctx context.Context, routingKey string, message []byte) error
	ConsumeFunc func(ctx context.Context, queue string) (<-chan []byte, error)
	CloseFunc   func() error

	mu       sync.Mutex
	messages [][]byte
}

func (m *MockMessageBroker) Publish(ctx context.Context, routingKey string, message []byte) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, routingKey, message); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.messages = append(m.messages, message)
	m.mu.Unlock()
	return nil
}

func (m *MockMessageBroker) Consume(ctx context.Context, queue string) (<-chan []byte, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, queue)
	}
	msgs := m.Messages()
	ch := make(chan []byte, len(msgs))
	for _, msg := range msgs {
		ch <- msg
	}
	close(ch)
	return ch, nil
}

func (m *MockMessageBroker) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *MockMessageBroker) Messages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.messages...)
}
