// Package application issues and verifies actor identity tokens.
package application

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/mylife/internal/identity/domain"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/crypto"
)

// Service issues and verifies actor identity tokens.
type Service struct {
	resolver domain.SecretResolver
	now      func() time.Time
}

// NewService creates a Service. A nil clock uses time.Now.
func NewService(resolver domain.SecretResolver, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{resolver: resolver, now: now}
}

// wireClaims keeps issuedAt as a string so malformed timestamps surface as
// invalid_payload rather than a JSON error.
type wireClaims struct {
	UserID   string `json:"userId"`
	IssuedAt string `json:"issuedAt"`
}

// Issue signs a token for userID using the secret that resolves for origin.
func (s *Service) Issue(userID, origin string) (*domain.IssuedToken, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}
	secret := s.resolver.Resolve(origin)
	if !secret.Available() {
		return nil, domain.ErrMissingSecret
	}

	issuedAt := s.now().UTC().Truncate(time.Millisecond)
	payload, err := json.Marshal(wireClaims{UserID: userID, IssuedAt: issuedAt.Format(time.RFC3339Nano)})
	if err != nil {
		return nil, err
	}
	token, _ := crypto.Sign(secret.Key, payload)
	return &domain.IssuedToken{Token: token, UserID: userID, IssuedAt: issuedAt}, nil
}

// Verify checks token against the secret that resolves for origin.
func (s *Service) Verify(token, origin string) domain.Verification {
	secret := s.resolver.Resolve(origin)
	if !secret.Available() {
		return domain.Rejected(domain.ReasonMissingSecret)
	}

	payload, _, err := crypto.Open(secret.Key, strings.TrimSpace(token))
	switch {
	case errors.Is(err, crypto.ErrMalformedToken):
		return domain.Rejected(domain.ReasonInvalidFormat)
	case errors.Is(err, crypto.ErrSignatureMismatch):
		return domain.Rejected(domain.ReasonInvalidSignature)
	case err != nil:
		return domain.Rejected(domain.ReasonInvalidPayload)
	}

	claims, ok := parseClaims(payload)
	if !ok {
		return domain.Rejected(domain.ReasonInvalidPayload)
	}
	return domain.Verification{OK: true, UserID: claims.UserID, IssuedAt: claims.IssuedAt}
}

func parseClaims(payload []byte) (domain.Claims, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return domain.Claims{}, false
	}
	var wire wireClaims
	if err := json.Unmarshal(payload, &wire); err != nil {
		return domain.Claims{}, false
	}
	userID := strings.TrimSpace(wire.UserID)
	if userID == "" {
		return domain.Claims{}, false
	}
	issuedAt, err := time.Parse(time.RFC3339Nano, wire.IssuedAt)
	if err != nil {
		return domain.Claims{}, false
	}
	return domain.Claims{UserID: userID, IssuedAt: issuedAt.UTC()}, true
}
