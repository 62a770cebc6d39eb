package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/mcp-go"

	billingApp "github.com/felixgeelhaar/mylife/internal/billing/application"
	billingDomain "github.com/felixgeelhaar/mylife/internal/billing/domain"
)

type revocationsInput struct {
	Limit int `json:"limit,omitempty"`
}

type webhookInput struct {
	EventJSON string `json:"event_json" jsonschema:"required"`
}

type currentOutput struct {
	Present bool               `json:"present"`
	Synced  *billingApp.Synced `json:"synced,omitempty"`
}

func registerEntitlementTools(srv *mcp.Server, h *handlers) {
	srv.Tool("entitlements.current").
		Description("Show the verified current entitlement").
		Handler(h.entitlementsCurrent)

	srv.Tool("entitlements.revocations").
		Description("List recent entitlement revocations").
		Handler(h.entitlementsRevocations)

	srv.Tool("billing.webhook").
		Description("Reconcile a billing webhook payload").
		Handler(h.billingWebhook)
}

func (h *handlers) entitlementsCurrent(ctx context.Context, _ struct{}) (currentOutput, error) {
	if h.app.Entitlements == nil {
		return currentOutput{}, errors.New("entitlements require database connection")
	}
	synced, err := h.app.Entitlements.Current(ctx)
	if errors.Is(err, billingDomain.ErrNoEntitlement) {
		return currentOutput{}, nil
	}
	if err != nil {
		return currentOutput{}, err
	}
	return currentOutput{Present: true, Synced: synced}, nil
}

func (h *handlers) entitlementsRevocations(ctx context.Context, input revocationsInput) ([]billingDomain.Revocation, error) {
	if h.app.Entitlements == nil {
		return nil, errors.New("entitlements require database connection")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	return h.app.Entitlements.Revocations(ctx, limit)
}

func (h *handlers) billingWebhook(ctx context.Context, input webhookInput) (*billingApp.WebhookResult, error) {
	if h.app.Reconciler == nil {
		return nil, errors.New("billing webhooks require database connection")
	}
	if input.EventJSON == "" {
		return nil, errors.New("event_json is required")
	}
	return h.app.Reconciler.HandleWebhook(ctx, []byte(input.EventJSON))
}
