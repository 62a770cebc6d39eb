package domain

import (
	"context"
	"time"
)

// StoredEntitlement is the cached signed entitlement.
type StoredEntitlement struct {
	Token       string
	Entitlement Entitlement
	UpdatedAt   time.Time
}

// Revocation is an audit record of a revoke call.
type Revocation struct {
	Signature     string    `json:"signature"`
	Reason        string    `json:"reason"`
	SourceEventID string    `json:"sourceEventId,omitempty"`
	ClearedActive bool      `json:"clearedActive"`
	RevokedAt     time.Time `json:"revokedAt"`
}

// EntitlementStore persists the singleton entitlement, the revocation audit
// trail, and processed-event markers. Implementations join a transaction
// carried by ctx.
type EntitlementStore interface {
	// GetCurrent returns the cached entitlement or nil.
	GetCurrent(ctx context.Context) (*StoredEntitlement, error)
	// Save overwrites the cached entitlement.
	Save(ctx context.Context, token string, e Entitlement) error
	// Revoke records r and clears the cache only when r.Signature matches the
	// cached signature. It reports whether the cache was cleared.
	Revoke(ctx context.Context, r Revocation) (bool, error)
	// ListRevocations returns the newest revocations first.
	ListRevocations(ctx context.Context, limit int) ([]Revocation, error)
	// IsEventProcessed reports whether eventID has been applied.
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkEventProcessed atomically claims eventID. It returns false when the
	// event was already claimed.
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)
}

// EventMarkerKey is the preference key that records a processed event.
func EventMarkerKey(eventID string) string {
	return "billing_event:" + eventID
}

// EntitlementCache is a read-through copy of the current entitlement.
// Implementations may be lossy; the store stays authoritative.
//
// Every Invalidate advances the version. Set stores the entry only while the
// version still equals the one the caller read before loading from the store,
// so a fill that raced with a write is dropped.
type EntitlementCache interface {
	Get(ctx context.Context) (*StoredEntitlement, bool, error)
	Version(ctx context.Context) (int64, error)
	Set(ctx context.Context, stored StoredEntitlement, version int64) error
	Invalidate(ctx context.Context) error
}
