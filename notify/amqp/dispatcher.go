// Package amqp publishes statement-ready messages to RabbitMQ so that
// downstream workers can render and deliver statements out of process.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/xraph/dues/plugin"
)

// publishTimeout bounds a single publish.
const publishTimeout = 5 * time.Second

// Compile-time interface check.
var _ plugin.StatementDispatcher = (*Dispatcher)(nil)

// Publisher is the part of *amqp091.Channel the dispatcher uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Dispatcher publishes one StatementReadyMessage per generated statement.
type Dispatcher struct {
	pub        Publisher
	exchange   string
	routingKey string
	logger     *slog.Logger

	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// New creates a Dispatcher on an existing channel.
func New(pub Publisher, exchange, routingKey string) *Dispatcher {
	return &Dispatcher{
		pub:        pub,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     slog.Default(),
	}
}

// Dial connects to url, declares a durable direct exchange and queue, and
// binds them with the queue name as routing key.
func Dial(url, exchange, queue string) (*Dispatcher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	d := New(ch, exchange, queue)
	d.conn, d.channel = conn, ch

	if err := setup(ch, exchange, queue); err != nil {
		d.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return d, nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// WithLogger sets the logger for the dispatcher.
func (d *Dispatcher) WithLogger(l *slog.Logger) *Dispatcher {
	d.logger = l
	return d
}

// Name implements plugin.Plugin.
func (d *Dispatcher) Name() string { return "amqp-dispatcher" }

// Dispatch implements plugin.StatementDispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, del plugin.Delivery) error {
	body, err := NewStatementReadyMessage(del).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = d.pub.PublishWithContext(ctx, d.exchange, d.routingKey, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    del.Statement.ID.String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish statement %s: %w", del.Statement.Number, err)
	}

	d.logger.DebugContext(ctx, "published statement ready message",
		"statement", del.Statement.Number,
		"exchange", d.exchange,
		"routing_key", d.routingKey,
	)
	return nil
}

// Close releases the channel and connection opened by Dial.
func (d *Dispatcher) Close() error {
	if d.channel != nil {
		d.channel.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// OnShutdown implements plugin.OnShutdown.
func (d *Dispatcher) OnShutdown(_ context.Context) error {
	return d.Close()
}
