package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is loaded once per process
// and passed to constructors; nothing else reads the environment.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string
	HTTPAddr  string

	// Database. An empty DatabaseURL selects local SQLite at SQLitePath.
	DatabaseURL      string
	SQLitePath       string
	DatabaseMaxConns int

	// Redis caches the current entitlement when set.
	RedisURL            string
	EntitlementCacheTTL time.Duration

	// RabbitMQ receives entitlement change notifications when set.
	RabbitMQURL    string
	EventsExchange string

	// Entitlement signing
	EntitlementAppID         string
	EntitlementSigningSecret string
	SKUCatalogPath           string

	// Actor identity
	ActorIdentitySecret string

	// Shared endpoint keys. Empty issuer/sync/job keys leave those endpoints open.
	IssuerKey  string
	SyncKey    string
	RevokeKey  string
	WebhookKey string
	JobKey     string

	// Access job retry policy
	AccessMaxAttempts      int
	AccessBaseDelay        time.Duration
	AccessMaxDelay         time.Duration
	AccessSweepDefaultSize int
	AccessSweepMaxSize     int

	// GitHub provisioning. Either a token or the three GitHubApp* values.
	GitHubAPIURL            string
	GitHubToken             string
	GitHubAppID             string
	GitHubAppInstallationID string
	GitHubAppPrivateKeyPath string
	GitHubSelfHostRepo      string
	GitHubPermission        string
	GitHubTimeout           time.Duration

	// Worker
	WorkerSweepInterval time.Duration
	WorkerHealthAddr    string

	// Notification outbox relay
	OutboxPollInterval    time.Duration
	OutboxBatchSize       int
	OutboxMaxRetries      int
	OutboxRetention       time.Duration
	OutboxCleanupInterval time.Duration

	// MCP operator server
	MCPAddr      string
	MCPAuthToken string
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		SQLitePath:       getEnv("SQLITE_PATH", ""),
		DatabaseMaxConns: getIntEnv("DATABASE_MAX_CONNS", 10),

		RedisURL:            getEnv("REDIS_URL", ""),
		EntitlementCacheTTL: getDurationEnv("ENTITLEMENT_CACHE_TTL", time.Minute),

		RabbitMQURL:    getEnv("RABBITMQ_URL", ""),
		EventsExchange: getEnv("ENTITLEMENT_EVENTS_EXCHANGE", "mylife.entitlements"),

		EntitlementAppID:         getEnv("ENTITLEMENT_APP_ID", "mylife"),
		EntitlementSigningSecret: getEnv("ENTITLEMENT_SIGNING_SECRET", ""),
		SKUCatalogPath:           getEnv("SKU_CATALOG_PATH", ""),

		ActorIdentitySecret: getEnv("ACTOR_IDENTITY_SECRET", ""),

		IssuerKey:  getEnv("ENTITLEMENT_ISSUER_KEY", ""),
		SyncKey:    getEnv("ENTITLEMENT_SYNC_KEY", ""),
		RevokeKey:  getEnv("ENTITLEMENT_REVOKE_KEY", ""),
		WebhookKey: getEnv("BILLING_WEBHOOK_KEY", ""),
		JobKey:     getEnv("ACCESS_JOB_KEY", ""),

		AccessMaxAttempts:      getIntEnv("ACCESS_RETRY_MAX_ATTEMPTS", 6),
		AccessBaseDelay:        getDurationEnv("ACCESS_RETRY_BASE_DELAY", 5*time.Minute),
		AccessMaxDelay:         getDurationEnv("ACCESS_RETRY_MAX_DELAY", 24*time.Hour),
		AccessSweepDefaultSize: getIntEnv("ACCESS_SWEEP_DEFAULT_LIMIT", 10),
		AccessSweepMaxSize:     getIntEnv("ACCESS_SWEEP_MAX_LIMIT", 100),

		GitHubAPIURL:            strings.TrimRight(getEnv("GITHUB_API_URL", "https://api.github.com"), "/"),
		GitHubToken:             getEnv("GITHUB_TOKEN", ""),
		GitHubAppID:             getEnv("GITHUB_APP_ID", ""),
		GitHubAppInstallationID: getEnv("GITHUB_APP_INSTALLATION_ID", ""),
		GitHubAppPrivateKeyPath: getEnv("GITHUB_APP_PRIVATE_KEY_PATH", ""),
		GitHubSelfHostRepo:      getEnv("GITHUB_SELF_HOST_REPO", ""),
		GitHubPermission:        getEnv("GITHUB_PERMISSION", "pull"),
		GitHubTimeout:           getDurationEnv("GITHUB_TIMEOUT", 15*time.Second),

		WorkerSweepInterval: getDurationEnv("WORKER_SWEEP_INTERVAL", time.Minute),
		WorkerHealthAddr:    getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),

		OutboxPollInterval:    getDurationEnv("OUTBOX_POLL_INTERVAL", time.Second),
		OutboxBatchSize:       getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:      getIntEnv("OUTBOX_MAX_RETRIES", 10),
		OutboxRetention:       getDurationEnv("OUTBOX_RETENTION", 7*24*time.Hour),
		OutboxCleanupInterval: getDurationEnv("OUTBOX_CLEANUP_INTERVAL", time.Hour),

		MCPAddr:      getEnv("MCP_ADDR", "127.0.0.1:8082"),
		MCPAuthToken: getEnv("MCP_AUTH_TOKEN", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural settings. Missing secrets are not an error here:
// the endpoints that need them answer with a configuration error instead.
func (c *Config) Validate() error {
	var errs []error
	if c.AccessMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("ACCESS_RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.AccessMaxAttempts))
	}
	if c.AccessBaseDelay <= 0 {
		errs = append(errs, errors.New("ACCESS_RETRY_BASE_DELAY must be positive"))
	}
	if c.AccessMaxDelay < c.AccessBaseDelay {
		errs = append(errs, errors.New("ACCESS_RETRY_MAX_DELAY must not be below ACCESS_RETRY_BASE_DELAY"))
	}
	if c.AccessSweepDefaultSize < 1 || c.AccessSweepDefaultSize > c.AccessSweepMaxSize {
		errs = append(errs, fmt.Errorf("ACCESS_SWEEP_DEFAULT_LIMIT must be within 1..%d", c.AccessSweepMaxSize))
	}
	if c.GitHubSelfHostRepo != "" && !strings.Contains(c.GitHubSelfHostRepo, "/") {
		errs = append(errs, fmt.Errorf("GITHUB_SELF_HOST_REPO must be owner/repo, got %q", c.GitHubSelfHostRepo))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GitHubConfigured reports whether provisioning has a repository and credentials.
func (c *Config) GitHubConfigured() bool {
	if c.GitHubSelfHostRepo == "" {
		return false
	}
	return c.GitHubToken != "" || (c.GitHubAppID != "" && c.GitHubAppInstallationID != "" && c.GitHubAppPrivateKeyPath != "")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
