package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/mylife/pkg/observability"
)

// DefaultExchange is the topic exchange for entitlement notifications.
const DefaultExchange = "mylife.entitlements"

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// RabbitMQPublisher publishes persistent JSON messages to a topic exchange.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewRabbitMQPublisher dials url and declares exchange.
func NewRabbitMQPublisher(url, exchange string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("RabbitMQ publisher connected", "exchange", exchange)

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Publish sends payload with routingKey. The request's correlation ID, when
// present, travels as the AMQP correlation ID.
func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return ErrPublisherClosed
	}
	logger := p.log()

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: observability.CorrelationIDFromContext(ctx),
		Timestamp:     time.Now().UTC(),
		Body:          payload,
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		logger.ErrorContext(ctx, "failed to publish message",
			"routing_key", routingKey,
			"error", err,
		)
		return err
	}

	logger.DebugContext(ctx, "message published",
		"routing_key", routingKey,
		"message_id", msg.MessageId,
		"size", len(payload),
	)
	return nil
}

// Close closes the channel and connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := p.log()
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			logger.Warn("error closing channel", "error", err)
		}
		p.channel = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		if err != nil {
			return err
		}
	}

	logger.Info("RabbitMQ publisher closed")
	return nil
}

func (p *RabbitMQPublisher) log() *slog.Logger {
	if p.logger == nil {
		return slog.Default()
	}
	return p.logger
}
