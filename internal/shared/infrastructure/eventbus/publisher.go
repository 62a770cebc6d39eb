// Package eventbus publishes entitlement change notifications.
package eventbus

import (
	"context"
	"log/slog"
)

// Publisher sends a message with a routing key to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// NoopPublisher drops messages. It is used when no broker is configured.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that only logs at debug level.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.logger.DebugContext(ctx, "noop publish",
		"routing_key", routingKey,
		"size", len(payload),
	)
	return nil
}

func (p *NoopPublisher) Close() error {
	return nil
}
