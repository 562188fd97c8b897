// Package events fans cache invalidations out to every running instance over
// a RabbitMQ fanout exchange.
//
// Each instance publishes the keys and prefixes it dropped locally and
// consumes the invalidations of its peers through an exclusive, auto-deleted
// queue bound to the exchange. Messages carry the publisher's instance ID so
// an instance ignores its own echoes.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	amqp "github.com/streadway/amqp"
)

// RoutingKeyInvalidation is the message type of an Invalidation.
const RoutingKeyInvalidation = "product.invalidated"

// ErrDeliveriesClosed is returned by Consume when the broker closes the
// delivery channel, e.g. after a connection loss.
var ErrDeliveriesClosed = errors.New("events: delivery channel closed")

// Invalidation lists cache keys and key prefixes to drop.
type Invalidation struct {
	Origin   string    `json:"origin"`
	Keys     []string  `json:"keys,omitempty"`
	Prefixes []string  `json:"prefixes,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

// Empty reports whether the invalidation carries nothing to drop.
func (i Invalidation) Empty() bool { return len(i.Keys) == 0 && len(i.Prefixes) == 0 }

// Publisher announces local invalidations to peer instances.
type Publisher interface {
	Publish(ctx context.Context, inv Invalidation) error
}

// NopPublisher drops every message. Used when AMQP is not configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Invalidation) error { return nil }

// Config holds RabbitMQ connection details.
type Config struct {
	URL      string
	Exchange string
}

// channel is the subset of *amqp.Channel used by Client.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn       *amqp.Connection
	channel    channel
	exchange   string
	queue      string
	instanceID string
}

// NewClient connects to RabbitMQ, declares the fanout exchange and an
// exclusive queue bound to it.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Exchange == "" {
		return nil, errors.New("events: exchange name required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"fanout",     // kind
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare invalidation queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", cfg.Exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind invalidation queue: %w", err)
	}

	log.Info().Str("exchange", cfg.Exchange).Str("queue", q.Name).Msg("rabbitmq invalidation channel ready")

	return &Client{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		queue:      q.Name,
		instanceID: uuid.NewString(),
	}, nil
}

// InstanceID identifies this process in published messages.
func (c *Client) InstanceID() string { return c.instanceID }

// Publish implements Publisher. Origin and SentAt are filled in when empty.
func (c *Client) Publish(_ context.Context, inv Invalidation) error {
	if inv.Empty() {
		return nil
	}
	if inv.Origin == "" {
		inv.Origin = c.instanceID
	}
	if inv.SentAt.IsZero() {
		inv.SentAt = time.Now().UTC()
	}
	body, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	return c.channel.Publish(
		c.exchange,
		RoutingKeyInvalidation,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Timestamp:    inv.SentAt,
			Type:         RoutingKeyInvalidation,
			Body:         body,
		},
	)
}

// Consume delivers peer invalidations to handle until ctx is done or the
// broker closes the channel, in which case it returns ErrDeliveriesClosed.
// Messages from this instance are skipped.
func (c *Client) Consume(ctx context.Context, handle func(context.Context, Invalidation) error) error {
	deliveries, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	return c.dispatch(ctx, deliveries, handle)
}

// acker is the subset of amqp.Delivery used by dispatch.
type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Client) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery, handle func(context.Context, Invalidation) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.process(ctx, d.Body, d, handle)
		}
	}
}

func (c *Client) process(ctx context.Context, body []byte, ack acker, handle func(context.Context, Invalidation) error) {
	var inv Invalidation
	if err := json.Unmarshal(body, &inv); err != nil {
		log.Warn().Err(err).Msg("dropping malformed invalidation")
		_ = ack.Nack(false, false)
		return
	}
	if inv.Origin == c.instanceID {
		_ = ack.Ack(false)
		return
	}
	if err := handle(ctx, inv); err != nil {
		log.Warn().Err(err).Str("origin", inv.Origin).Msg("invalidation handler failed")
		_ = ack.Nack(false, false)
		return
	}
	_ = ack.Ack(false)
}

// Close closes the RabbitMQ channel and connection.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
