package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLoopbackOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"https://app.localhost", true},
		{"localhost", true},
		{"localhost:8080", true},
		{"127.0.0.1", true},
		{"127.0.0.53:80", true},
		{"http://[::1]:8080", true},
		{"[::1]:8080", true},
		{"https://mylife.example.com", false},
		{"10.0.0.5:8080", false},
		{"localhost.evil.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLoopbackOrigin(tt.origin))
		})
	}
}

func TestSecretResolver_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		appEnv     string
		origin     string
		want       SecretSource
	}{
		{"configured wins everywhere", "s", "production", "https://mylife.example.com", SecretConfigured},
		{"dev loopback fallback", "", "development", "http://localhost:5173", SecretDevLoopbackFallback},
		{"test loopback fallback", "", "test", "127.0.0.1:8080", SecretDevLoopbackFallback},
		{"dev remote origin refused", "", "development", "https://mylife.example.com", SecretUnconfigured},
		{"production loopback refused", "", "production", "http://localhost", SecretUnconfigured},
		{"blank configured secret ignored", "   ", "production", "", SecretUnconfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewSecretResolver(tt.configured, tt.appEnv).Resolve(tt.origin)
			assert.Equal(t, tt.want, got.Source)
			assert.Equal(t, tt.want != SecretUnconfigured, got.Available())
		})
	}
}

func TestSecretResolver_FallbackKey(t *testing.T) {
	got := NewSecretResolver("", "development").Resolve("localhost")
	assert.Equal(t, []byte(DevFallbackSecret), got.Key)
	assert.Equal(t, "dev_loopback_fallback", got.Source.String())
}
