package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

type fakeGitHub struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	message  string
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Auth:   r.Header.Get("Authorization"),
		Body:   string(body),
	})
	status, message := f.status, f.message
	f.mu.Unlock()

	w.WriteHeader(status)
	if message != "" {
		_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
	}
}

func (f *fakeGitHub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestProvisioner(t *testing.T, gh *fakeGitHub) *Provisioner {
	t.Helper()
	srv := httptest.NewServer(gh)
	t.Cleanup(srv.Close)

	p, err := NewProvisioner(Config{
		APIURL:           srv.URL,
		Repository:       "mylife/self-host",
		Permission:       "pull",
		FailureThreshold: 3,
		OpenTimeout:      time.Hour,
	}, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "ghs_test"}), nil)
	require.NoError(t, err)
	return p
}

func TestProvisioner_Grant(t *testing.T) {
	gh := &fakeGitHub{status: http.StatusCreated}
	p := newTestProvisioner(t, gh)

	require.NoError(t, p.Grant(context.Background(), "@octocat"))

	require.Len(t, gh.requests, 1)
	req := gh.requests[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/repos/mylife/self-host/collaborators/octocat", req.Path)
	assert.Equal(t, "Bearer ghs_test", req.Auth)
	assert.JSONEq(t, `{"permission":"pull"}`, req.Body)
}

func TestProvisioner_StatusHandling(t *testing.T) {
	tests := []struct {
		name    string
		revoke  bool
		status  int
		wantErr bool
	}{
		{"grant already collaborator", false, http.StatusNoContent, false},
		{"grant rejected", false, http.StatusUnprocessableEntity, true},
		{"revoke removed", true, http.StatusNoContent, false},
		{"revoke not a collaborator", true, http.StatusNotFound, false},
		{"revoke forbidden", true, http.StatusForbidden, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gh := &fakeGitHub{status: tt.status, message: "nope"}
			p := newTestProvisioner(t, gh)

			var err error
			if tt.revoke {
				err = p.Revoke(context.Background(), "octocat")
			} else {
				err = p.Grant(context.Background(), "octocat")
			}
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "nope", apiErr.Message)
		})
	}
}

func TestProvisioner_RejectsInvalidUsername(t *testing.T) {
	gh := &fakeGitHub{status: http.StatusCreated}
	p := newTestProvisioner(t, gh)

	for _, name := range []string{"", "-leading", "has space", "../../admin", strings.Repeat("a", 40)} {
		err := p.Grant(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidUsername, "username %q", name)
	}
	assert.Zero(t, gh.count())
}

func TestProvisioner_BreakerOpensOnServerErrors(t *testing.T) {
	gh := &fakeGitHub{status: http.StatusBadGateway}
	p := newTestProvisioner(t, gh)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := p.Grant(ctx, "octocat")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.True(t, apiErr.Temporary())
	}

	err := p.Grant(ctx, "octocat")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, gh.count(), "open breaker must not call GitHub")
}

func TestProvisioner_ClientErrorsKeepBreakerClosed(t *testing.T) {
	gh := &fakeGitHub{status: http.StatusUnprocessableEntity}
	p := newTestProvisioner(t, gh)

	for i := 0; i < 5; i++ {
		err := p.Grant(context.Background(), "octocat")
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, 5, gh.count())
}

func TestNewProvisioner_Validation(t *testing.T) {
	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"})

	_, err := NewProvisioner(Config{Repository: "no-slash"}, tokens, nil)
	assert.Error(t, err)

	_, err = NewProvisioner(Config{Repository: "a/b/c"}, tokens, nil)
	assert.Error(t, err)

	_, err = NewProvisioner(Config{Repository: "a/b"}, nil, nil)
	assert.Error(t, err)
}

func writeTestKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	path := filepath.Join(t.TempDir(), "app.pem")
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))
	return key, path
}

func TestAppTokenSource(t *testing.T) {
	key, keyPath := writeTestKey(t)
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	var gotIssuer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/app/installations/42/access_tokens", r.URL.Path)
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		gotIssuer, _ = token.Claims.GetIssuer()

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "ghs_installation", "expires_at": expires})
	}))
	defer srv.Close()

	src, err := LoadAppTokenSource(srv.URL, "1234", "42", keyPath, srv.Client())
	require.NoError(t, err)

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "ghs_installation", tok.AccessToken)
	assert.True(t, expires.Equal(tok.Expiry))
	assert.Equal(t, "1234", gotIssuer)
}

func TestAppTokenSource_Failure(t *testing.T) {
	_, keyPath := writeTestKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"A JSON web token could not be decoded"}`))
	}))
	defer srv.Close()

	src, err := LoadAppTokenSource(srv.URL, "1234", "42", keyPath, srv.Client())
	require.NoError(t, err)

	_, err = src.Token()
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestNewAppTokenSource_BadKey(t *testing.T) {
	_, err := NewAppTokenSource("", "1", "2", []byte("not a key"), nil)
	assert.Error(t, err)
}
