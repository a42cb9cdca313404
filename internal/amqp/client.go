// Package amqp publishes and consumes dataset change notifications over
// RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"finscope/internal/log"
)

var ErrChannelClosed = errors.New("message channel closed")

// channel is the subset of *amqp091.Channel the client uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

type Client struct {
	conn         *amqp091.Connection
	channel      channel
	exchangeName string
	queueName    string
	logger       *log.Logger
}

// NewClient dials url and declares a fanout exchange with a durable queue
// bound to it, so every consumer queue sees every notification.
func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client, err := newClient(ch, exchangeName, queueName, logger)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	client.conn = conn
	return client, nil
}

func newClient(ch channel, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	c := &Client{
		channel:      ch,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}
	if err := c.setup(); err != nil {
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return c, nil
}

func (c *Client) setup() error {
	if err := c.channel.ExchangeDeclare(c.exchangeName, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if c.queueName == "" {
		return nil
	}
	if _, err := c.channel.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := c.channel.QueueBind(c.queueName, RoutingKey, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishDatasetChanged announces that source changed.
func (c *Client) PublishDatasetChanged(ctx context.Context, source, reason string) error {
	body, err := NewDatasetChangedMessage(source, reason).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(ctx, c.exchangeName, RoutingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.InfoContext(ctx, "Published dataset changed message",
		log.FieldOperation, log.OpPublish,
		"source", source,
		"exchange", c.exchangeName)
	return nil
}

// ConsumeDatasetChanged delivers notifications to handler until ctx is done.
// Malformed messages are dropped; handler failures are requeued.
func (c *Client) ConsumeDatasetChanged(ctx context.Context, handler func(context.Context, *DatasetChangedMessage) error) error {
	if c.queueName == "" {
		return errors.New("no queue configured for consuming")
	}
	msgs, err := c.channel.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming dataset changed messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return ErrChannelClosed
			}
			c.handle(ctx, delivery, handler)
		}
	}
}

func (c *Client) handle(ctx context.Context, delivery amqp091.Delivery, handler func(context.Context, *DatasetChangedMessage) error) {
	msg, err := DatasetChangedMessageFromJSON(delivery.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err)
		delivery.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle message", log.FieldError, err, "source", msg.Source)
		delivery.Nack(false, true)
		return
	}

	delivery.Ack(false)
	c.logger.DebugContext(ctx, "Processed dataset changed message", log.FieldOperation, log.OpConsume, "source", msg.Source)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
