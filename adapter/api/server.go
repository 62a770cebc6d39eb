// Package api serves the entitlement, billing webhook, access retry and actor
// identity endpoints over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	accessApp "github.com/felixgeelhaar/mylife/internal/access/application"
	billingApp "github.com/felixgeelhaar/mylife/internal/billing/application"
	identityDomain "github.com/felixgeelhaar/mylife/internal/identity/domain"
	"github.com/felixgeelhaar/mylife/pkg/observability"
)

// Header names.
const (
	HeaderIssuerKey     = "X-Entitlement-Issuer-Key"
	HeaderSyncKey       = "X-Entitlement-Sync-Key"
	HeaderRevokeKey     = "X-Entitlement-Revoke-Key"
	HeaderWebhookKey    = "X-Billing-Webhook-Key"
	HeaderJobKey        = "X-Access-Job-Key"
	HeaderActorIdentity = "X-Actor-Identity"
	HeaderRequestID     = "X-Request-ID"
)

const maxBodyBytes = 1 << 20

// EntitlementService issues, reads and revokes the entitlement.
type EntitlementService interface {
	Issue(ctx context.Context, req billingApp.IssueRequest) (*billingApp.Issued, error)
	Current(ctx context.Context) (*billingApp.Synced, error)
	Revoke(ctx context.Context, signature, reason string) (*billingApp.RevokeResult, error)
}

// WebhookReconciler applies billing webhook bodies.
type WebhookReconciler interface {
	HandleWebhook(ctx context.Context, body []byte) (*billingApp.WebhookResult, error)
}

// AccessSweeper processes due provisioning jobs.
type AccessSweeper interface {
	ProcessDue(ctx context.Context, now time.Time, limit int) (accessApp.SweepResult, error)
}

// ActorIdentity issues and verifies actor identity tokens.
type ActorIdentity interface {
	Issue(userID, origin string) (*identityDomain.IssuedToken, error)
	Verify(token, origin string) identityDomain.Verification
}

// Keys are the shared secrets checked per endpoint. Empty Issuer, Sync and
// Job keys leave those endpoints open; empty Revoke and Webhook keys make
// them answer with a configuration error.
type Keys struct {
	Issuer  string
	Sync    string
	Revoke  string
	Webhook string
	Job     string
}

// Services are the application services behind the endpoints.
type Services struct {
	Entitlements EntitlementService
	Webhooks     WebhookReconciler
	Access       AccessSweeper
	Identity     ActorIdentity
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Keys         Keys
	// Now is the sweep clock.
	Now func() time.Time
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		Now:          time.Now,
	}
}

// Server is the HTTP API server.
type Server struct {
	mux      *http.ServeMux
	server   *http.Server
	logger   *slog.Logger
	keys     Keys
	now      func() time.Time
	services Services
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, services Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		keys:     cfg.Keys,
		now:      cfg.Now,
		services: services,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /entitlements/issue", s.handleIssue)
	s.mux.HandleFunc("GET /entitlements/sync", s.handleSync)
	s.mux.HandleFunc("GET /entitlements/proxy", s.handleProxy)
	s.mux.HandleFunc("POST /entitlements/revoke", s.handleRevoke)

	s.mux.HandleFunc("POST /webhooks/billing", s.handleBillingWebhook)
	s.mux.HandleFunc("POST /access/github/retry", s.handleAccessRetry)
	s.mux.HandleFunc("POST /identity/actor/issue", s.handleActorIssue)
}

// Handler returns the routed handler with request IDs attached.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := observability.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting entitlement API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down entitlement API server")
	return s.server.Shutdown(ctx)
}

// authorize checks header against configured. An empty configured key is
// open unless required, in which case the endpoint is misconfigured.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, header, configured string, required bool) bool {
	if configured == "" {
		if !required {
			return true
		}
		s.logger.ErrorContext(r.Context(), "endpoint key is not configured", "header", header, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "Endpoint key is not configured")
		return false
	}
	presented := r.Header.Get(header)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) != 1 {
		writeError(w, http.StatusUnauthorized, "Invalid or missing "+strings.ToLower(header))
		return false
	}
	return true
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be a JSON object")
		return false
	}
	return true
}

// requestOrigin is the origin the actor secret resolver sees. The Host the
// request arrived on is the baseline; a present Origin header or peer
// address that is not loopback is returned in its place, so every signal
// must be loopback for the development fallback to apply.
func requestOrigin(r *http.Request) string {
	host := stripPort(r.Host)
	signals := []string{host}
	if origin := r.Header.Get("Origin"); origin != "" {
		signals = append(signals, origin)
	}
	if peer := stripPort(r.RemoteAddr); peer != "" {
		signals = append(signals, peer)
	}
	for _, signal := range signals {
		if !identityDomain.IsLoopbackOrigin(signal) {
			return signal
		}
	}
	return host
}

func stripPort(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		hostport = h
	}
	return strings.Trim(hostport, "[]")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
