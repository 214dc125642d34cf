package message_broaker

import "context"

type MessageBroker interface {
	Publish(ctx context.Context, routingKey string, message []byte) error
	Consume(ctx context.Context, queue string) (<-chan []byte, error)
	Close() error
}
