package api

import (
	"errors"
	"net/http"
	"time"

	identityDomain "github.com/felixgeelhaar/mylife/internal/identity/domain"
)

type actorIssueRequest struct {
	UserID string `json:"userId"`
}

type actorIssueResponse struct {
	OK         bool      `json:"ok"`
	UserID     string    `json:"userId"`
	ActorToken string    `json:"actorToken"`
	IssuedAt   time.Time `json:"issuedAt"`
}

// handleActorIssue handles POST /identity/actor/issue. It sits behind the
// host application's own session handling and checks no key.
func (s *Server) handleActorIssue(w http.ResponseWriter, r *http.Request) {
	var req actorIssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	issued, err := s.services.Identity.Issue(req.UserID, requestOrigin(r))
	switch {
	case errors.Is(err, identityDomain.ErrMissingUserID):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, identityDomain.ErrMissingSecret):
		writeError(w, http.StatusInternalServerError, "Actor identity secret is not configured")
		return
	case err != nil:
		s.logger.ErrorContext(r.Context(), "actor token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Actor token could not be issued")
		return
	}

	writeJSON(w, http.StatusOK, actorIssueResponse{
		OK:         true,
		UserID:     issued.UserID,
		ActorToken: issued.Token,
		IssuedAt:   issued.IssuedAt,
	})
}
