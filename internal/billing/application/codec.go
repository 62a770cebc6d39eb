// Package application derives, signs and reconciles entitlements.
package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mylife/internal/billing/domain"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/crypto"
)

// Codec turns billing events into entitlements and entitlements into tokens.
type Codec struct {
	appID   string
	secret  []byte
	catalog domain.Catalog
	now     func() time.Time
}

// NewCodec creates a Codec. An empty secret leaves Sign and VerifyToken
// failing with ErrMissingSigningSecret.
func NewCodec(appID, secret string, catalog domain.Catalog, now func() time.Time) *Codec {
	if catalog == nil {
		catalog = domain.DefaultCatalog()
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{appID: appID, secret: []byte(secret), catalog: catalog, now: now}
}

// Configured reports whether a signing secret is set.
func (c *Codec) Configured() bool {
	return len(c.secret) > 0
}

// AppID is stamped on every derived entitlement.
func (c *Codec) AppID() string {
	return c.appID
}

// Catalog returns the SKU table.
func (c *Codec) Catalog() domain.Catalog {
	return c.catalog
}

// Now returns the codec clock in UTC at second precision.
func (c *Codec) Now() time.Time {
	return c.now().UTC().Truncate(time.Second)
}

// ParseWebhookPayload validates a webhook body and checks the SKU against
// the catalog.
func (c *Codec) ParseWebhookPayload(body []byte) (domain.BillingEvent, error) {
	event, err := domain.ParseBillingEvent(body)
	if err != nil {
		return domain.BillingEvent{}, err
	}
	if _, ok := c.catalog.Lookup(event.SKU); !ok {
		return domain.BillingEvent{}, domain.NewEventError("sku", "unsupported sku: "+event.SKU)
	}
	return event, nil
}

// Derive computes the next unsigned entitlement from event and the current
// entitlement (nil when none is cached).
func (c *Codec) Derive(event domain.BillingEvent, current *domain.Entitlement) (domain.Entitlement, error) {
	template, ok := c.catalog.Lookup(event.SKU)
	if !ok {
		return domain.Entitlement{}, domain.NewEventError("sku", "unsupported sku: "+event.SKU)
	}
	issuedAt := c.Now()

	next := domain.Entitlement{AppID: c.appID, Mode: domain.ModeLocalOnly}
	if current != nil {
		next = current.Canonical()
		if next.AppID == "" {
			next.AppID = c.appID
		}
		// A hosted period that ended before this event has lapsed.
		if next.ExpiresAt != nil && !next.ExpiresAt.After(issuedAt) {
			next.HostedActive = false
			next.ExpiresAt = nil
		}
	}

	switch {
	case event.EventType.IsGrant():
		if err := applyGrant(&next, template, event, issuedAt); err != nil {
			return domain.Entitlement{}, err
		}
	case event.EventType.IsLoss():
		applyLoss(&next, template)
	default:
		return domain.Entitlement{}, domain.NewEventError("eventType", "unsupported eventType: "+string(event.EventType))
	}

	next.Mode = backedMode(next)
	next.Features = next.DerivedFeatures()
	next.IssuedAt = issuedAt
	next.Signature = ""
	return next, nil
}

func applyGrant(e *domain.Entitlement, t domain.SKUDefaults, event domain.BillingEvent, issuedAt time.Time) error {
	e.HostedActive = e.HostedActive || t.HostedActive
	e.SelfHostLicense = e.SelfHostLicense || t.SelfHostLicense
	if t.ModeDefault != domain.ModeUnchanged && t.ModeDefault != "" {
		e.Mode = domain.Mode(t.ModeDefault)
	}
	if t.UpdatePackYear != nil && (e.UpdatePackYear == nil || *t.UpdatePackYear > *e.UpdatePackYear) {
		year := *t.UpdatePackYear
		e.UpdatePackYear = &year
	}
	if t.HostedActive && event.CurrentPeriodEnd != nil {
		end := event.CurrentPeriodEnd.UTC().Truncate(time.Second)
		if !end.After(issuedAt) {
			return domain.NewEventError("currentPeriodEnd", "currentPeriodEnd must be in the future")
		}
		e.ExpiresAt = &end
	}
	return nil
}

func applyLoss(e *domain.Entitlement, t domain.SKUDefaults) {
	if t.HostedActive {
		e.HostedActive = false
		e.ExpiresAt = nil
	}
	if t.SelfHostLicense {
		e.SelfHostLicense = false
	}
	if t.UpdatePackYear != nil && e.UpdatePackYear != nil && *e.UpdatePackYear == *t.UpdatePackYear {
		e.UpdatePackYear = nil
	}
}

// backedMode keeps a mode only while the flag behind it is active.
func backedMode(e domain.Entitlement) domain.Mode {
	switch e.Mode {
	case domain.ModeHosted:
		if e.HostedActive {
			return domain.ModeHosted
		}
		if e.SelfHostLicense {
			return domain.ModeSelfHost
		}
	case domain.ModeSelfHost:
		if e.SelfHostLicense {
			return domain.ModeSelfHost
		}
		if e.HostedActive {
			return domain.ModeHosted
		}
	default:
		if e.Mode.Valid() {
			return e.Mode
		}
	}
	return domain.ModeLocalOnly
}

// Sign validates e and returns its token and the signed entitlement. The
// signature depends only on the canonical fields, so equal content signs equal.
func (c *Codec) Sign(e domain.Entitlement) (string, domain.Entitlement, error) {
	if !c.Configured() {
		return "", domain.Entitlement{}, domain.ErrMissingSigningSecret
	}
	canonical := e.Canonical()
	if canonical.AppID == "" {
		canonical.AppID = c.appID
	}
	if err := canonical.Validate(); err != nil {
		return "", domain.Entitlement{}, err
	}

	payload, err := json.Marshal(canonical)
	if err != nil {
		return "", domain.Entitlement{}, fmt.Errorf("encode entitlement: %w", err)
	}
	token, signature := crypto.Sign(c.secret, payload)
	canonical.Signature = signature
	return token, canonical, nil
}

// VerifyToken checks token and returns the entitlement it carries.
func (c *Codec) VerifyToken(token string) (domain.Entitlement, error) {
	if !c.Configured() {
		return domain.Entitlement{}, domain.ErrMissingSigningSecret
	}
	payload, signature, err := crypto.Open(c.secret, token)
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}

	var e domain.Entitlement
	if err := json.Unmarshal(payload, &e); err != nil {
		return domain.Entitlement{}, fmt.Errorf("%w: payload is not an entitlement", domain.ErrInvalidToken)
	}
	if err := e.Validate(); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return domain.Entitlement{}, fmt.Errorf("%w: %s", domain.ErrInvalidToken, ve.Message)
		}
		return domain.Entitlement{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}
	e.Signature = signature
	return e, nil
}
