package message_broaker

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQ struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queueName   string
	exchange    string
	routingKey  string
	contentType string

	mu sync.Mutex // serializes publishes on the shared channel
}

// NewRabbitMQ dials url and declares a durable direct exchange with queue
// bound to it under routingKey.
func NewRabbitMQ(url, exchange, queue, routingKey, contentType string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "rabbitmq dial")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "rabbitmq channel")
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}

	if queue != "" {
		if _, err := ch.QueueDeclare(
			queue,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			ch.Close()
			conn.Close()
			return nil, errors.Wrapf(err, "declare queue %s", queue)
		}

		if err := ch.QueueBind(
			queue,
			routingKey,
			exchange,
			false,
			nil,
		); err != nil {
			ch.Close()
			conn.Close()
			return nil, errors.Wrapf(err, "bind queue %s", queue)
		}
	}

	if contentType == "" {
		contentType = "application/json"
	}
	return &RabbitMQ{
		conn:        conn,
		channel:     ch,
		queueName:   queue,
		exchange:    exchange,
		routingKey:  routingKey,
		contentType: contentType,
	}, nil
}

// Publish sends message to the broker's exchange. An empty routingKey uses
// the one the broker was declared with.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, message []byte) error {
	if routingKey == "" {
		routingKey = r.routingKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel.PublishWithContext(
		ctx,
		r.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  r.contentType,
			DeliveryMode: amqp.Persistent,
			Body:         message,
		},
	)
}

func (r *RabbitMQ) Consume(ctx context.Context, queue string) (<-chan []byte, error) {
	if queue == "" {
		queue = r.queueName
	}
	msgs, err := r.channel.Consume(
		queue,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "consume %s", queue)
	}

	out := make(chan []byte, 1000)

	go func() {
		defer close(out)

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Body:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
