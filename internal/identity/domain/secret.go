package domain

import (
	"net"
	"net/url"
	"strings"
)

// DevFallbackSecret signs actor tokens in non-production environments when
// no secret is configured and the request comes from a loopback origin.
const DevFallbackSecret = "mylife-dev-actor-identity-secret"

// SecretSource says where a resolved secret came from.
type SecretSource int

const (
	SecretUnconfigured SecretSource = iota
	SecretConfigured
	SecretDevLoopbackFallback
)

func (s SecretSource) String() string {
	switch s {
	case SecretConfigured:
		return "configured"
	case SecretDevLoopbackFallback:
		return "dev_loopback_fallback"
	default:
		return "unconfigured"
	}
}

// ResolvedSecret is the key to sign or verify with, if any.
type ResolvedSecret struct {
	Source SecretSource
	Key    []byte
}

// Available reports whether the secret can be used.
func (r ResolvedSecret) Available() bool {
	return r.Source != SecretUnconfigured && len(r.Key) > 0
}

// SecretResolver decides which actor identity secret applies to a request.
// The environment profile is fixed at construction; the origin is supplied
// per call.
type SecretResolver struct {
	configured string
	production bool
}

// NewSecretResolver creates a resolver. appEnv "production" disables the
// development fallback entirely.
func NewSecretResolver(configured, appEnv string) SecretResolver {
	return SecretResolver{
		configured: strings.TrimSpace(configured),
		production: appEnv == "production",
	}
}

// Resolve returns the configured secret, the development fallback for
// loopback origins outside production, or nothing.
func (r SecretResolver) Resolve(origin string) ResolvedSecret {
	if r.configured != "" {
		return ResolvedSecret{Source: SecretConfigured, Key: []byte(r.configured)}
	}
	if !r.production && IsLoopbackOrigin(origin) {
		return ResolvedSecret{Source: SecretDevLoopbackFallback, Key: []byte(DevFallbackSecret)}
	}
	return ResolvedSecret{Source: SecretUnconfigured}
}

// IsLoopbackOrigin reports whether origin names a loopback host. It accepts
// a full origin URL ("http://localhost:3000") or a bare host with optional port.
func IsLoopbackOrigin(origin string) bool {
	host := strings.TrimSpace(origin)
	if host == "" {
		return false
	}
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return false
		}
		host = u.Hostname()
	} else if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
