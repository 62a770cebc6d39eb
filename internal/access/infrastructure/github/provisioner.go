// Package github provisions self-host repository access through the GitHub
// REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
)

var (
	// ErrInvalidUsername means the username cannot be a GitHub login.
	ErrInvalidUsername = errors.New("invalid github username")

	// ErrCircuitOpen means recent calls failed and GitHub is not being called.
	ErrCircuitOpen = errors.New("github circuit open")
)

var loginPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,37}[A-Za-z0-9])?$`)

// APIError is a non-success GitHub response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("github api: status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying can help.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config configures the provisioner.
type Config struct {
	APIURL     string
	Repository string // owner/repo
	Permission string
	Timeout    time.Duration

	// FailureThreshold consecutive temporary failures open the breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Provisioner adds and removes repository collaborators.
type Provisioner struct {
	apiURL     string
	owner      string
	repo       string
	permission string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker[struct{}]
	logger     *slog.Logger
}

// NewProvisioner creates a Provisioner that authenticates with tokens.
func NewProvisioner(cfg Config, tokens oauth2.TokenSource, logger *slog.Logger) (*Provisioner, error) {
	owner, repo, ok := strings.Cut(cfg.Repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("repository must be owner/repo, got %q", cfg.Repository)
	}
	if tokens == nil {
		return nil, errors.New("github token source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.github.com"
	}
	if cfg.Permission == "" {
		cfg.Permission = "pull"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}

	p := &Provisioner{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		owner:      owner,
		repo:       repo,
		permission: cfg.Permission,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, tokens),
				Base:   http.DefaultTransport,
			},
		},
		logger: logger,
	}
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "github",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Client errors say nothing about GitHub's health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return err == nil || errors.Is(err, ErrInvalidUsername)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return p, nil
}

// Grant adds username as a collaborator. GitHub answers 201 with an
// invitation or 204 when the user already has access.
func (p *Provisioner) Grant(ctx context.Context, username string) error {
	body, err := json.Marshal(map[string]string{"permission": p.permission})
	if err != nil {
		return err
	}
	return p.call(ctx, http.MethodPut, username, body, http.StatusCreated, http.StatusNoContent)
}

// Revoke removes username. A user without access is not an error.
func (p *Provisioner) Revoke(ctx context.Context, username string) error {
	return p.call(ctx, http.MethodDelete, username, nil, http.StatusNoContent, http.StatusNotFound)
}

func (p *Provisioner) call(ctx context.Context, method, username string, body []byte, ok ...int) error {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if !loginPattern.MatchString(username) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}

	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.do(ctx, method, username, body, ok)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func (p *Provisioner) do(ctx context.Context, method, username string, body []byte, ok []int) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/collaborators/%s",
		p.apiURL, url.PathEscape(p.owner), url.PathEscape(p.repo), url.PathEscape(username))

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("github %s collaborator: %w", strings.ToLower(method), err)
	}
	defer resp.Body.Close()

	for _, code := range ok {
		if resp.StatusCode == code {
			_, _ = io.Copy(io.Discard, resp.Body)
			p.logger.DebugContext(ctx, "github collaborator call succeeded",
				"method", method,
				"username", username,
				"status", resp.StatusCode,
			)
			return nil
		}
	}
	return decodeAPIError(resp)
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &payload)
	return &APIError{StatusCode: resp.StatusCode, Message: payload.Message}
}
