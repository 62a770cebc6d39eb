// Package crypto holds the HMAC token envelope shared by actor identity and
// entitlement tokens.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// TokenVersion prefixes every token.
const TokenVersion = "v1"

var (
	// ErrMalformedToken means the token is not three dot-separated segments
	// with the expected version prefix.
	ErrMalformedToken = errors.New("malformed token")

	// ErrSignatureMismatch means the signature segment does not match the payload.
	ErrSignatureMismatch = errors.New("token signature mismatch")

	// ErrUndecodablePayload means the payload segment is not valid base64url.
	ErrUndecodablePayload = errors.New("token payload is not base64url")
)

var encoding = base64.RawURLEncoding

// Sign encodes payload and returns the token `v1.<payload>.<signature>` and
// its signature segment. The signature is HMAC-SHA256 over the encoded
// payload segment, so identical payloads always yield identical signatures.
func Sign(secret, payload []byte) (token, signature string) {
	body := encoding.EncodeToString(payload)
	signature = mac(secret, body)
	return TokenVersion + "." + body + "." + signature, signature
}

// Open checks the envelope and signature of token and returns the decoded
// payload together with the signature segment.
func Open(secret []byte, token string) (payload []byte, signature string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != TokenVersion || parts[1] == "" {
		return nil, "", ErrMalformedToken
	}
	if !Equal(mac(secret, parts[1]), parts[2]) {
		return nil, "", ErrSignatureMismatch
	}
	payload, err = encoding.DecodeString(parts[1])
	if err != nil {
		return nil, "", ErrUndecodablePayload
	}
	return payload, parts[2], nil
}

// Equal compares two signature strings in constant time. A length mismatch
// returns early; it reveals the length only, never the content.
func Equal(expected, given string) bool {
	if len(expected) != len(given) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(given))
}

func mac(secret []byte, body string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(body))
	return encoding.EncodeToString(h.Sum(nil))
}
