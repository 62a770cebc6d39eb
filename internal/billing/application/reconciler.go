package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	accessDomain "github.com/felixgeelhaar/mylife/internal/access/domain"
	"github.com/felixgeelhaar/mylife/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/mylife/internal/shared/application"
	"github.com/felixgeelhaar/mylife/pkg/observability"
)

// AccessDispatcher runs a provisioning job and reports its outcome without
// failing. The access sweeper satisfies it.
type AccessDispatcher interface {
	Dispatch(ctx context.Context, eventID string, payload accessDomain.Payload) accessDomain.Outcome
}

// WebhookResult is the reply to a billing webhook.
type WebhookResult struct {
	OK               bool                  `json:"ok"`
	Idempotent       bool                  `json:"idempotent"`
	EventID          string                `json:"eventId"`
	Entitlements     *domain.Entitlement   `json:"entitlements,omitempty"`
	Provisioning     *accessDomain.Outcome `json:"provisioning,omitempty"`
	AccessRevocation *accessDomain.Outcome `json:"accessRevocation,omitempty"`
}

// errEventClaimed aborts the unit of work when another delivery won the claim.
var errEventClaimed = errors.New("billing event already claimed")

// Reconciler applies billing events to the entitlement exactly once per event ID.
type Reconciler struct {
	entitlements *EntitlementService
	access       AccessDispatcher
}

// NewReconciler creates a Reconciler. A nil access dispatcher omits the
// provisioning hooks from results.
func NewReconciler(entitlements *EntitlementService, access AccessDispatcher) *Reconciler {
	return &Reconciler{entitlements: entitlements, access: access}
}

// applied is what the unit of work committed.
type applied struct {
	token     string
	signed    domain.Entitlement
	revoked   *domain.Revocation
	cleared   bool
	templated domain.SKUDefaults
}

// HandleWebhook parses body and reconciles it. Authentication is the
// caller's job. Validation errors match ErrInvalidBillingEvent or
// ErrInvalidEntitlement; any other error is a configuration or persistence
// failure, and in that case the event is not marked processed.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte) (*WebhookResult, error) {
	s := r.entitlements
	start := time.Now()
	outcome := "rejected"
	defer func() {
		s.metrics.Counter(observability.MetricWebhookEvents, 1, observability.T("outcome", outcome))
		s.metrics.Timing(observability.MetricWebhookLatency, time.Since(start))
	}()

	if !s.codec.Configured() {
		return nil, domain.ErrMissingSigningSecret
	}
	event, err := s.codec.ParseWebhookPayload(body)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("event_id", event.EventID, "event_type", event.EventType, "sku", event.SKU)

	processed, err := s.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		outcome = "failed"
		logger.ErrorContext(ctx, "failed to read event marker", "error", err)
		return nil, fmt.Errorf("check event marker: %w", err)
	}
	if processed {
		outcome = "idempotent"
		return &WebhookResult{OK: true, Idempotent: true, EventID: event.EventID}, nil
	}

	res, err := r.apply(ctx, event)
	if errors.Is(err, errEventClaimed) {
		outcome = "idempotent"
		return &WebhookResult{OK: true, Idempotent: true, EventID: event.EventID}, nil
	}
	if err != nil {
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			outcome = "failed"
			logger.ErrorContext(ctx, "billing event not applied", "error", err)
		}
		return nil, err
	}
	outcome = "applied"

	s.invalidate(ctx)
	if res.revoked != nil {
		s.afterRevoke(ctx, res.revoked.Signature, res.revoked.Reason, event.EventID, res.cleared)
	}
	logger.InfoContext(ctx, "billing event applied",
		"mode", res.signed.Mode,
		"signature", observability.Redact(res.signed.Signature),
	)

	result := &WebhookResult{OK: true, EventID: event.EventID, Entitlements: &res.signed}
	r.runHooks(ctx, event, res.templated, result)
	return result, nil
}

// apply claims the event marker, revokes when required, derives, signs,
// saves and records notifications, all in one unit of work.
func (r *Reconciler) apply(ctx context.Context, event domain.BillingEvent) (*applied, error) {
	s := r.entitlements
	template, _ := s.codec.Catalog().Lookup(event.SKU)
	res := &applied{templated: template}

	err := sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		claimed, err := s.store.MarkEventProcessed(txCtx, event.EventID)
		if err != nil {
			return fmt.Errorf("claim event marker: %w", err)
		}
		if !claimed {
			return errEventClaimed
		}

		stored, err := s.store.GetCurrent(txCtx)
		if err != nil {
			return fmt.Errorf("load entitlement: %w", err)
		}
		var current *domain.Entitlement
		if stored != nil {
			current = &stored.Entitlement
		}

		if event.EventType.IsChargeback() && template.SelfHostLicense && stored != nil {
			rev := domain.Revocation{
				Signature:     stored.Entitlement.Signature,
				Reason:        event.EventType.RevocationReason(),
				SourceEventID: event.EventID,
				RevokedAt:     s.codec.Now(),
			}
			if res.cleared, err = s.store.Revoke(txCtx, rev); err != nil {
				return fmt.Errorf("revoke entitlement: %w", err)
			}
			res.revoked = &rev
			if res.cleared {
				if err := s.notifyRevoked(txCtx, rev); err != nil {
					return err
				}
			}
		}

		next, err := s.codec.Derive(event, current)
		if err != nil {
			return err
		}
		if res.token, res.signed, err = s.codec.Sign(next); err != nil {
			return err
		}
		if err := s.store.Save(txCtx, res.token, res.signed); err != nil {
			return fmt.Errorf("save entitlement: %w", err)
		}
		return s.notify(txCtx, domain.RoutingEntitlementIssued, domain.Notification{
			EventID:    event.EventID,
			Signature:  res.signed.Signature,
			Mode:       res.signed.Mode,
			OccurredAt: res.signed.IssuedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// runHooks dispatches provisioning for self-host grants and access removal
// for self-host chargebacks. Outcomes never fail the webhook.
func (r *Reconciler) runHooks(ctx context.Context, event domain.BillingEvent, template domain.SKUDefaults, result *WebhookResult) {
	if r.access == nil || !template.SelfHostLicense {
		return
	}

	var action accessDomain.Action
	switch {
	case event.EventType.IsGrant():
		action = accessDomain.ActionGrant
	case event.EventType.IsChargeback():
		action = accessDomain.ActionRevoke
	default:
		return
	}

	var outcome accessDomain.Outcome
	if event.GitHubUsername == "" {
		outcome = accessDomain.Outcome{
			Status:  accessDomain.OutcomeSkipped,
			EventID: event.EventID,
			Action:  action,
			Reason:  "no githubUsername on event",
		}
	} else {
		outcome = r.access.Dispatch(ctx, event.EventID, accessDomain.Payload{
			Action:         action,
			GitHubUsername: event.GitHubUsername,
			SKU:            event.SKU,
			EventType:      string(event.EventType),
			CustomerEmail:  event.CustomerEmail,
		})
	}

	if action == accessDomain.ActionGrant {
		result.Provisioning = &outcome
	} else {
		result.AccessRevocation = &outcome
	}
}
