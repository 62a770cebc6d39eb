package eventbus

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopPublisher(t *testing.T) {
	p := NewNoopPublisher(nil)

	assert.NoError(t, p.Publish(context.Background(), "entitlement.issued", []byte(`{}`)))
	assert.NoError(t, p.Close())
}

func TestRabbitMQPublisher_PublishAfterClose(t *testing.T) {
	p := &RabbitMQPublisher{exchange: DefaultExchange, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	assert.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), "entitlement.issued", nil), ErrPublisherClosed)
}

func TestRabbitMQPublisher_CloseWithoutLogger(t *testing.T) {
	p := &RabbitMQPublisher{exchange: DefaultExchange}

	assert.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), "entitlement.issued", nil), ErrPublisherClosed)
}
