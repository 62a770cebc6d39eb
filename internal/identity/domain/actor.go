// Package domain defines actor identity tokens: stateless HMAC proofs of a
// user ID that clients present to the server instead of shared secrets.
package domain

import (
	"errors"
	"time"
)

// ErrMissingSecret is returned by Issue when no signing secret resolves for
// the caller's origin.
var ErrMissingSecret = errors.New("actor identity secret is not configured")

// ErrMissingUserID is returned by Issue for a blank user ID.
var ErrMissingUserID = errors.New("userId is required")

// Reason explains a failed verification.
type Reason string

const (
	ReasonMissingSecret    Reason = "missing_secret"
	ReasonInvalidFormat    Reason = "invalid_format"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonInvalidPayload   Reason = "invalid_payload"
)

// Claims is the signed payload. There is no expiry; callers that need one
// apply their own staleness policy to IssuedAt.
type Claims struct {
	UserID   string    `json:"userId"`
	IssuedAt time.Time `json:"issuedAt"`
}

// IssuedToken is the result of a successful issue.
type IssuedToken struct {
	Token    string
	UserID   string
	IssuedAt time.Time
}

// Verification is the outcome of checking a token. It is a value, not an
// error: every failure maps to exactly one Reason.
type Verification struct {
	OK       bool
	UserID   string
	IssuedAt time.Time
	Reason   Reason
}

// Rejected builds a failed Verification.
func Rejected(reason Reason) Verification {
	return Verification{Reason: reason}
}
