// Package notify announces generation outcomes on a RabbitMQ topic exchange.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"memorylane/internal/domain"
)

// DefaultExchange is the topic exchange outcomes are published to.
const DefaultExchange = "memorylane.events"

// Envelope is the message body published for every outcome.
type Envelope struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    domain.DeliveryOutcome `json:"payload"`
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements domain.OutcomePublisher over AMQP 0-9-1.
type Publisher struct {
	conn     *amqp.Connection
	open     func() (publishChannel, error)
	exchange string
	logger   *slog.Logger
}

// Config configures a Publisher.
type Config struct {
	URL      string
	Exchange string
	Logger   *slog.Logger
}

// New dials the broker and declares the exchange.
func New(cfg Config) (*Publisher, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	p := &Publisher{conn: conn, exchange: cfg.Exchange, logger: cfg.Logger}
	p.open = func() (publishChannel, error) { return conn.Channel() }
	cfg.Logger.Info("outcome notifier connected", "exchange", cfg.Exchange)
	return p, nil
}

// RoutingKey returns the routing key for an outcome status.
func RoutingKey(status domain.OutcomeStatus) string {
	return "generation." + string(status)
}

// PublishOutcome publishes o as a persistent JSON message.
func (p *Publisher) PublishOutcome(ctx context.Context, o domain.DeliveryOutcome) error {
	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	msg, err := buildPublishing(o, time.Now())
	if err != nil {
		return err
	}
	key := RoutingKey(o.Status)
	if err := ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	p.logger.Debug("outcome published", "key", key, "job", o.JobID)
	return nil
}

func buildPublishing(o domain.DeliveryOutcome, now time.Time) (amqp.Publishing, error) {
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       RoutingKey(o.Status),
		OccurredAt: now.UTC(),
		Payload:    o,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode outcome: %w", err)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.ID,
		CorrelationId: o.JobID,
		Timestamp:     now,
		Type:          env.Type,
		Body:          body,
	}, nil
}

// Close closes the broker connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
