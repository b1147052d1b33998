package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the RabbitMQ queue checkout notifications are published to.
const DefaultQueue = "seat.checkout"

// AMQPPublisher publishes checkout notifications to a durable RabbitMQ
// queue. A connection is dialed per message.
type AMQPPublisher struct {
	url   string
	queue string
}

// NewAMQPPublisher creates a publisher. An empty queue selects DefaultQueue.
func NewAMQPPublisher(url, queue string) *AMQPPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPPublisher{url: url, queue: queue}
}

// NotifyCheckout publishes c as a persistent JSON message.
func (p *AMQPPublisher) NotifyCheckout(ctx context.Context, c Checkout) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal checkout: %w", err)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: dialer(ctx)})
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Idempotent; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare %s: %w", p.queue, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         c.EventType,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	return nil
}

// dialer bounds the TCP connect by the context deadline.
func dialer(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		timeout := 3 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		return amqp.DefaultDial(timeout)(network, addr)
	}
}
