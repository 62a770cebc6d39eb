package api

import (
	"errors"
	"net/http"

	billingApp "github.com/felixgeelhaar/mylife/internal/billing/application"
	billingDomain "github.com/felixgeelhaar/mylife/internal/billing/domain"
	identityDomain "github.com/felixgeelhaar/mylife/internal/identity/domain"
)

type revokeRequest struct {
	Signature string `json:"signature"`
	Reason    string `json:"reason,omitempty"`
}

type revokeResponse struct {
	OK        bool   `json:"ok"`
	Signature string `json:"signature"`
	Cleared   bool   `json:"cleared"`
}

// handleIssue handles POST /entitlements/issue
func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, HeaderIssuerKey, s.keys.Issuer, false) {
		return
	}
	var req billingApp.IssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	issued, err := s.services.Entitlements.Issue(r.Context(), req)
	if err != nil {
		s.writeEntitlementError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issued)
}

// handleSync handles GET /entitlements/sync
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, HeaderSyncKey, s.keys.Sync, false) {
		return
	}
	s.writeCurrent(w, r)
}

// handleProxy handles GET /entitlements/proxy. The caller proves who it is
// with an actor identity token instead of the sync key.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	v := s.services.Identity.Verify(r.Header.Get(HeaderActorIdentity), requestOrigin(r))
	if !v.OK {
		if v.Reason == identityDomain.ReasonMissingSecret {
			writeError(w, http.StatusInternalServerError, "Actor identity secret is not configured")
			return
		}
		writeError(w, http.StatusUnauthorized, "Actor identity rejected: "+string(v.Reason))
		return
	}
	s.writeCurrent(w, r)
}

func (s *Server) writeCurrent(w http.ResponseWriter, r *http.Request) {
	synced, err := s.services.Entitlements.Current(r.Context())
	if err != nil {
		s.writeEntitlementError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, synced)
}

// handleRevoke handles POST /entitlements/revoke
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, HeaderRevokeKey, s.keys.Revoke, true) {
		return
	}
	var req revokeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.services.Entitlements.Revoke(r.Context(), req.Signature, req.Reason)
	if err != nil {
		s.writeEntitlementError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revokeResponse{OK: true, Signature: res.Signature, Cleared: res.Cleared})
}

// writeEntitlementError maps billing errors onto status codes. Anything
// unrecognised is a server-side failure and its detail is only logged.
func (s *Server) writeEntitlementError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *billingDomain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Message)
	case errors.Is(err, billingDomain.ErrMissingSignature):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, billingDomain.ErrNoEntitlement):
		writeError(w, http.StatusNotFound, "No entitlement is cached")
	case errors.Is(err, billingDomain.ErrMissingSigningSecret):
		writeError(w, http.StatusInternalServerError, "Entitlement signing secret is not configured")
	default:
		s.logger.ErrorContext(r.Context(), "entitlement request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Entitlement request failed")
	}
}
