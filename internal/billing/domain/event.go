package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// EventType is a billing provider event kind.
type EventType string

const (
	EventPurchaseCreated      EventType = "purchase.created"
	EventPurchaseRenewed      EventType = "purchase.renewed"
	EventPurchaseRefunded     EventType = "purchase.refunded"
	EventPurchaseDisputed     EventType = "purchase.disputed"
	EventSubscriptionCanceled EventType = "subscription.canceled"
	EventSubscriptionExpired  EventType = "subscription.expired"
)

// Known reports whether t is a supported event type.
func (t EventType) Known() bool {
	return t.IsGrant() || t.IsLoss()
}

// IsGrant reports whether t adds access.
func (t EventType) IsGrant() bool {
	return t == EventPurchaseCreated || t == EventPurchaseRenewed
}

// IsLoss reports whether t removes access.
func (t EventType) IsLoss() bool {
	switch t {
	case EventPurchaseRefunded, EventPurchaseDisputed, EventSubscriptionCanceled, EventSubscriptionExpired:
		return true
	}
	return false
}

// IsChargeback reports whether t reverses money already paid.
func (t EventType) IsChargeback() bool {
	return t == EventPurchaseRefunded || t == EventPurchaseDisputed
}

// RevocationReason is the audit reason recorded when t revokes an entitlement.
func (t EventType) RevocationReason() string {
	return "billing:" + string(t)
}

// BillingEvent is a validated inbound webhook event. EventID is unique per
// provider delivery and gates every side effect.
type BillingEvent struct {
	EventID          string     `json:"eventId"`
	EventType        EventType  `json:"eventType"`
	SKU              string     `json:"sku"`
	CustomerEmail    string     `json:"customerEmail,omitempty"`
	GitHubUsername   string     `json:"githubUsername,omitempty"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	OccurredAt       *time.Time `json:"occurredAt,omitempty"`
}

type rawEvent struct {
	EventID          *string `json:"eventId"`
	EventType        *string `json:"eventType"`
	SKU              *string `json:"sku"`
	CustomerEmail    *string `json:"customerEmail"`
	GitHubUsername   *string `json:"githubUsername"`
	CurrentPeriodEnd *string `json:"currentPeriodEnd"`
	OccurredAt       *string `json:"occurredAt"`
}

// ParseBillingEvent decodes and structurally validates a webhook body. It
// never panics; every problem is a *ValidationError matching
// ErrInvalidBillingEvent. SKU membership is checked against the catalog by
// the caller.
func ParseBillingEvent(body []byte) (BillingEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return BillingEvent{}, eventError("body", "payload must be a JSON object")
	}
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return BillingEvent{}, eventError(typeErr.Field, "%s must be a string", typeErr.Field)
		}
		return BillingEvent{}, eventError("body", "payload could not be decoded")
	}

	required := []struct {
		name  string
		value *string
	}{
		{"eventId", raw.EventID},
		{"eventType", raw.EventType},
		{"sku", raw.SKU},
	}
	for _, r := range required {
		if r.value == nil || strings.TrimSpace(*r.value) == "" {
			return BillingEvent{}, eventError(r.name, "missing required field: %s", r.name)
		}
	}

	event := BillingEvent{
		EventID:        strings.TrimSpace(*raw.EventID),
		EventType:      EventType(strings.TrimSpace(*raw.EventType)),
		SKU:            strings.TrimSpace(*raw.SKU),
		CustomerEmail:  trimmed(raw.CustomerEmail),
		GitHubUsername: strings.TrimPrefix(trimmed(raw.GitHubUsername), "@"),
	}
	if !event.EventType.Known() {
		return BillingEvent{}, eventError("eventType", "unsupported eventType: %s", event.EventType)
	}

	var err error
	if event.CurrentPeriodEnd, err = parseOptionalTime("currentPeriodEnd", raw.CurrentPeriodEnd); err != nil {
		return BillingEvent{}, err
	}
	if event.OccurredAt, err = parseOptionalTime("occurredAt", raw.OccurredAt); err != nil {
		return BillingEvent{}, err
	}
	return event, nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func parseOptionalTime(field string, s *string) (*time.Time, error) {
	v := trimmed(s)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, eventError(field, "%s must be an RFC 3339 timestamp", field)
	}
	t = t.UTC()
	return &t, nil
}
