// Package app builds every component from one injected config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	accessApp "github.com/felixgeelhaar/mylife/internal/access/application"
	"github.com/felixgeelhaar/mylife/internal/access/infrastructure/github"
	accessPersistence "github.com/felixgeelhaar/mylife/internal/access/infrastructure/persistence"
	billingApp "github.com/felixgeelhaar/mylife/internal/billing/application"
	billingDomain "github.com/felixgeelhaar/mylife/internal/billing/domain"
	"github.com/felixgeelhaar/mylife/internal/billing/infrastructure/cache"
	"github.com/felixgeelhaar/mylife/internal/billing/infrastructure/catalog"
	billingPersistence "github.com/felixgeelhaar/mylife/internal/billing/infrastructure/persistence"
	identityApp "github.com/felixgeelhaar/mylife/internal/identity/application"
	identityDomain "github.com/felixgeelhaar/mylife/internal/identity/domain"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/preferences"
	"github.com/felixgeelhaar/mylife/pkg/config"
	"github.com/felixgeelhaar/mylife/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.InMemoryMetrics
	Now     func() time.Time

	// Database
	DBConn            database.Connection
	UnitOfWork        *database.UnitOfWork
	MigrationsApplied int

	// Redis
	RedisClient *redis.Client

	// Publishers
	EventPublisher  eventbus.Publisher
	Outbox          *outbox.SQLRepository
	OutboxProcessor *outbox.Processor

	// Stores
	Preferences      *preferences.Store
	EntitlementStore *billingPersistence.EntitlementStore
	JobRepo          *accessPersistence.JobRepository

	// Billing
	Catalog      billingDomain.Catalog
	Codec        *billingApp.Codec
	Entitlements *billingApp.EntitlementService
	Reconciler   *billingApp.Reconciler

	// Access
	Provisioner *github.Provisioner
	Queue       *accessApp.Queue
	Sweeper     *accessApp.Sweeper

	// Identity
	Identity *identityApp.Service
}

// NewContainer connects to storage, applies migrations and wires every service.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewInMemoryMetrics(),
		Now:     time.Now,
	}

	conn, err := database.NewConnection(ctx, database.Config{
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
		MaxConns:   cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DBConn = conn
	logger.Info("connected to database", "driver", conn.Driver().String())

	applied, err := migrations.Run(ctx, conn, cfg.DatabaseURL)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	c.MigrationsApplied = applied
	if applied > 0 {
		logger.Info("database migrations applied", "count", applied)
	}

	if err := c.initBilling(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initAccess(); err != nil {
		c.Close()
		return nil, err
	}

	c.Reconciler = billingApp.NewReconciler(c.Entitlements, c.Sweeper)
	c.Identity = identityApp.NewService(
		identityDomain.NewSecretResolver(cfg.ActorIdentitySecret, cfg.AppEnv),
		c.Clock,
	)
	return c, nil
}

// Clock defers to c.Now so tests can swap it after construction.
func (c *Container) Clock() time.Time {
	return c.Now()
}

func (c *Container) initBilling(ctx context.Context) error {
	cfg, logger := c.Config, c.Logger

	c.UnitOfWork = database.NewUnitOfWork(c.DBConn)
	c.Preferences = preferences.NewStore(c.DBConn)
	c.EntitlementStore = billingPersistence.NewEntitlementStore(c.DBConn, c.Preferences)

	skus, err := catalog.Load(cfg.SKUCatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load SKU catalog: %w", err)
	}
	c.Catalog = skus
	c.Codec = billingApp.NewCodec(cfg.EntitlementAppID, cfg.EntitlementSigningSecret, skus, c.Clock)
	if !c.Codec.Configured() {
		logger.Warn("ENTITLEMENT_SIGNING_SECRET is not set; entitlement endpoints will answer with a configuration error")
	}

	// Redis is optional in development.
	var entitlementCache billingDomain.EntitlementCache
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			if !cfg.IsDevelopment() {
				return fmt.Errorf("failed to connect to Redis: %w", err)
			}
			logger.Warn("Redis not available, reading entitlements from the database", "error", err)
		} else {
			c.RedisClient = client
			entitlementCache = cache.NewRedisEntitlementCache(client, cfg.EntitlementCacheTTL)
			logger.Info("connected to Redis")
		}
	}

	c.EventPublisher = eventbus.NewNoopPublisher(logger)
	if cfg.RabbitMQURL != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.EventsExchange, logger)
		if err != nil {
			if !cfg.IsDevelopment() {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
		} else {
			c.EventPublisher = publisher
		}
	}

	// Notifications are written to the outbox; the worker relays them.
	c.Outbox = outbox.NewSQLRepository(c.DBConn)
	c.OutboxProcessor = outbox.NewProcessor(c.Outbox, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxRetries:   cfg.OutboxMaxRetries,
		Now:          c.Clock,
	}, logger)

	c.Entitlements = billingApp.NewEntitlementService(
		c.EntitlementStore,
		c.UnitOfWork,
		c.Codec,
		entitlementCache,
		outbox.NewWriter(c.Outbox, c.Clock),
		c.Metrics,
		logger,
	)
	return nil
}

func (c *Container) initAccess() error {
	cfg, logger := c.Config, c.Logger

	c.JobRepo = accessPersistence.NewJobRepository(c.DBConn)
	c.Queue = accessApp.NewQueue(c.JobRepo, c.UnitOfWork, accessApp.QueueConfig{
		Policy: accessApp.RetryPolicy{
			MaxAttempts: cfg.AccessMaxAttempts,
			BaseDelay:   cfg.AccessBaseDelay,
			MaxDelay:    cfg.AccessMaxDelay,
		},
		DefaultLimit: cfg.AccessSweepDefaultSize,
		MaxLimit:     cfg.AccessSweepMaxSize,
		Now:          c.Clock,
	}, logger)

	var provisioner accessApp.Provisioner
	if cfg.GitHubConfigured() {
		p, err := newGitHubProvisioner(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to configure GitHub provisioning: %w", err)
		}
		c.Provisioner = p
		provisioner = p
		logger.Info("GitHub provisioning enabled", "repository", cfg.GitHubSelfHostRepo)
	} else {
		logger.Info("GitHub provisioning not configured; access hooks will be skipped")
	}
	c.Sweeper = accessApp.NewSweeper(c.Queue, provisioner, c.Metrics, logger)
	return nil
}

func newGitHubProvisioner(cfg *config.Config, logger *slog.Logger) (*github.Provisioner, error) {
	var tokens oauth2.TokenSource
	if cfg.GitHubToken != "" {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken, TokenType: "token"})
	} else {
		src, err := github.LoadAppTokenSource(
			cfg.GitHubAPIURL,
			cfg.GitHubAppID,
			cfg.GitHubAppInstallationID,
			cfg.GitHubAppPrivateKeyPath,
			&http.Client{Timeout: cfg.GitHubTimeout},
		)
		if err != nil {
			return nil, err
		}
		tokens = src
	}
	return github.NewProvisioner(github.Config{
		APIURL:     cfg.GitHubAPIURL,
		Repository: cfg.GitHubSelfHostRepo,
		Permission: cfg.GitHubPermission,
		Timeout:    cfg.GitHubTimeout,
	}, tokens, logger)
}

// Close releases external connections.
func (c *Container) Close() {
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}

	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing database connection", "error", err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DBConn.Driver().String())
		}
	}
}
