package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/mcp-go"
)

type verifyInput struct {
	Token  string `json:"token" jsonschema:"required"`
	Origin string `json:"origin,omitempty"`
}

type verifyOutput struct {
	OK       bool       `json:"ok"`
	UserID   string     `json:"user_id,omitempty"`
	IssuedAt *time.Time `json:"issued_at,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

func registerIdentityTools(srv *mcp.Server, h *handlers) {
	srv.Tool("identity.verify").
		Description("Verify an actor identity token for an origin").
		Handler(h.identityVerify)
}

func (h *handlers) identityVerify(_ context.Context, input verifyInput) (verifyOutput, error) {
	if h.app.Identity == nil {
		return verifyOutput{}, errors.New("identity service is not configured")
	}
	v := h.app.Identity.Verify(input.Token, input.Origin)
	if !v.OK {
		return verifyOutput{Reason: string(v.Reason)}, nil
	}
	issuedAt := v.IssuedAt
	return verifyOutput{OK: true, UserID: v.UserID, IssuedAt: &issuedAt}, nil
}
