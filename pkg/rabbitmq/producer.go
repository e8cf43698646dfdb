package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"churn-metrics/pkg/apperrors"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
	Close()
}

// EventProducer publishes JSON events to a RabbitMQ topic exchange.
type EventProducer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// EventProducerFallback logs events instead of publishing them. It is used
// when no broker is configured or the broker is unreachable.
type EventProducerFallback struct {
	Logger *slog.Logger
}

func (p *EventProducerFallback) Publish(_ context.Context, exchange, routingKey string, body any) error {
	p.Logger.Info("outreach event not published, no broker", "exchange", exchange, "routing_key", routingKey, "body", body)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInvalidInput, "parse AMQP URL")
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", apperrors.New(apperrors.CodeInvalidInput, "AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials the broker and opens a channel.
func NewEventProducer(amqpURL string, logger *slog.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "dial broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "open channel")
	}
	return &EventProducer{conn: conn, channel: ch, logger: logger}, nil
}

// NewPublisher returns a broker-backed publisher, or the logging fallback when
// amqpURL is empty or the broker cannot be reached.
func NewPublisher(amqpURL string, logger *slog.Logger) Publisher {
	if amqpURL == "" {
		return &EventProducerFallback{Logger: logger}
	}
	p, err := NewEventProducer(amqpURL, logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable, outreach events will be logged only", "error", err)
		return &EventProducerFallback{Logger: logger}
	}
	return p
}

func (p *EventProducer) declare(exchange string) error {
	return p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

// Publish declares the exchange and sends body as JSON. A failed channel is
// reopened once before giving up.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "marshal event")
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	}

	err = p.declare(exchange)
	if err == nil {
		err = p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	}
	if err == nil {
		return nil
	}

	p.logger.Warn("publish failed, reopening channel", "exchange", exchange, "error", err)
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return apperrors.Wrap(errors.Join(err, chErr), apperrors.CodeUnavailable, "reopen channel")
	}
	p.channel = ch
	if err := p.declare(exchange); err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "declare exchange")
	}
	if err := p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "publish")
	}
	return nil
}

// Close releases the channel and connection.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
