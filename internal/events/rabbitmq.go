// Package events bridges accepted auction commands onto a RabbitMQ exchange,
// in addition to the direct per-subscriber push. Consumers that want a broker
// feed bind a queue to the auction.events exchange.
package events

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is the topic exchange all auction events are published to. The
// routing key is the event name.
const Exchange = "auction.events"

// RabbitMQPublisher publishes event payloads to the auction events exchange.
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQPublisher opens a channel and declares the exchange.
func NewRabbitMQPublisher(conn *amqp.Connection) (*RabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		Exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitMQPublisher{
		conn:    conn,
		channel: ch,
	}, nil
}

// Close closes the channel.
func (p *RabbitMQPublisher) Close() error {
	return p.channel.Close()
}

// Publish publishes a message to the broker.
func (p *RabbitMQPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return p.channel.PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// BrokerNotifier adapts the publisher to the dispatcher's Notifier contract.
// Publish failures are logged and discarded; they never fail the originating
// command.
type BrokerNotifier struct {
	publisher *RabbitMQPublisher
	logger    *slog.Logger
}

// NewBrokerNotifier wraps a publisher.
func NewBrokerNotifier(publisher *RabbitMQPublisher, logger *slog.Logger) *BrokerNotifier {
	return &BrokerNotifier{publisher: publisher, logger: logger}
}

// Notify publishes the event payload with the event name as routing key.
func (n *BrokerNotifier) Notify(ctx context.Context, event string, payload []byte) {
	if err := n.publisher.Publish(ctx, Exchange, event, payload); err != nil {
		n.logger.Warn("broker publish failed", "event", event, "error", err)
	}
}
