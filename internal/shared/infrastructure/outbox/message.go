// Package outbox stores entitlement notifications next to the state change
// that produced them and relays them to the broker in the background.
package outbox

import "time"

// Message is a stored notification waiting to be published.
type Message struct {
	ID             int64
	RoutingKey     string
	Payload        []byte
	CreatedAt      time.Time
	PublishedAt    *time.Time
	NextRetryAt    *time.Time
	RetryCount     int
	LastError      string
	DeadLetteredAt *time.Time
}

// NewMessage creates an unpublished message.
func NewMessage(routingKey string, payload []byte, createdAt time.Time) *Message {
	return &Message{
		RoutingKey: routingKey,
		Payload:    payload,
		CreatedAt:  createdAt.UTC(),
	}
}

// IsPublished returns true if the message has been published.
func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}

// CanRetry returns true if the message can be retried.
func (m *Message) CanRetry(maxRetries int) bool {
	return m.RetryCount < maxRetries
}
