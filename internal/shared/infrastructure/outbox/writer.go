package outbox

import (
	"context"
	"time"
)

// Writer records notifications in the outbox instead of sending them. It
// satisfies the publisher interface of the entitlement service.
type Writer struct {
	repo Repository
	now  func() time.Time
}

// NewWriter creates a Writer. A nil now uses time.Now.
func NewWriter(repo Repository, now func() time.Time) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{repo: repo, now: now}
}

// Publish stores the message for the processor to relay.
func (w *Writer) Publish(ctx context.Context, routingKey string, payload []byte) error {
	return w.repo.Save(ctx, NewMessage(routingKey, payload, w.now()))
}
