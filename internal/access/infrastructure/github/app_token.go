package github

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/security"
)

const maxKeyFileSize = 16 << 10

// AppTokenSource exchanges a GitHub App JWT for installation access tokens.
// Wrap it in oauth2.ReuseTokenSource; NewProvisioner does.
type AppTokenSource struct {
	apiURL         string
	appID          string
	installationID string
	key            *rsa.PrivateKey
	client         *http.Client
	now            func() time.Time
}

// NewAppTokenSource parses a PEM encoded RSA key.
func NewAppTokenSource(apiURL, appID, installationID string, pemKey []byte, client *http.Client) (*AppTokenSource, error) {
	if appID == "" || installationID == "" {
		return nil, fmt.Errorf("github app id and installation id are required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("parse github app key: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	return &AppTokenSource{
		apiURL:         strings.TrimRight(apiURL, "/"),
		appID:          appID,
		installationID: installationID,
		key:            key,
		client:         client,
		now:            time.Now,
	}, nil
}

// LoadAppTokenSource reads the key from keyPath.
func LoadAppTokenSource(apiURL, appID, installationID, keyPath string, client *http.Client) (*AppTokenSource, error) {
	pemKey, err := security.ReadPrivateFile(keyPath, maxKeyFileSize)
	if err != nil {
		return nil, fmt.Errorf("read github app key: %w", err)
	}
	return NewAppTokenSource(apiURL, appID, installationID, pemKey, client)
}

// Token implements oauth2.TokenSource.
func (s *AppTokenSource) Token() (*oauth2.Token, error) {
	appJWT, err := s.appJWT()
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/app/installations/%s/access_tokens", s.apiURL, url.PathEscape(s.installationID))
	req, err := http.NewRequest(http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request installation token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("request installation token: %w", decodeAPIError(resp))
	}

	var body struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode installation token: %w", err)
	}
	if body.Token == "" {
		return nil, fmt.Errorf("installation token response carried no token")
	}
	return &oauth2.Token{AccessToken: body.Token, TokenType: "token", Expiry: body.ExpiresAt}, nil
}

// appJWT is valid for nine minutes and backdated one minute for clock drift.
func (s *AppTokenSource) appJWT() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign github app jwt: %w", err)
	}
	return signed, nil
}
