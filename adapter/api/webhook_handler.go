package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
)

type sweepResponse struct {
	OK        bool `json:"ok"`
	Processed int  `json:"processed"`
	Completed int  `json:"completed"`
	Pending   int  `json:"pending"`
	Alerts    int  `json:"alerts"`
}

// handleBillingWebhook handles POST /webhooks/billing
func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, HeaderWebhookKey, s.keys.Webhook, true) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "Request body is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Request body could not be read")
		return
	}

	res, err := s.services.Webhooks.HandleWebhook(r.Context(), body)
	if err != nil {
		s.writeEntitlementError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAccessRetry handles POST /access/github/retry?limit=N
func (s *Server) handleAccessRetry(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, HeaderJobKey, s.keys.Job, false) {
		return
	}

	limit := parseIntParam(r, "limit", 0)
	res, err := s.services.Access.ProcessDue(r.Context(), s.now(), limit)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "access sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Access sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{
		OK:        true,
		Processed: res.Processed,
		Completed: res.Completed,
		Pending:   res.Pending,
		Alerts:    res.Alerts,
	})
}

// parseIntParam parses an integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}
