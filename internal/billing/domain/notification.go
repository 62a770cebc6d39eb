package domain

import "time"

// Routing keys for entitlement notifications.
const (
	RoutingEntitlementIssued  = "entitlement.issued"
	RoutingEntitlementRevoked = "entitlement.revoked"
)

// Notification is published after an entitlement change commits.
type Notification struct {
	EventID    string    `json:"eventId,omitempty"`
	Signature  string    `json:"signature"`
	Mode       Mode      `json:"mode,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
