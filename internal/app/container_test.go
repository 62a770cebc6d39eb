package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accessDomain "github.com/felixgeelhaar/mylife/internal/access/domain"
	billingDomain "github.com/felixgeelhaar/mylife/internal/billing/domain"
	"github.com/felixgeelhaar/mylife/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:                   "test",
		SQLitePath:               filepath.Join(t.TempDir(), "mylife.db"),
		EntitlementAppID:         "mylife",
		EntitlementSigningSecret: "signing-secret",
		ActorIdentitySecret:      "actor-secret",
		EntitlementCacheTTL:      time.Minute,
		AccessMaxAttempts:        6,
		AccessBaseDelay:          5 * time.Minute,
		AccessMaxDelay:           24 * time.Hour,
		AccessSweepDefaultSize:   10,
		AccessSweepMaxSize:       100,
		GitHubPermission:         "pull",
		GitHubTimeout:            5 * time.Second,
	}
}

func newTestContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewContainer(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewContainer_LocalMode(t *testing.T) {
	c := newTestContainer(t, testConfig(t))

	assert.NotNil(t, c.DBConn)
	assert.Positive(t, c.MigrationsApplied)
	assert.Nil(t, c.RedisClient)
	assert.Nil(t, c.Provisioner)
	assert.False(t, c.Sweeper.Enabled())
	assert.True(t, c.Codec.Configured())
	assert.Len(t, c.Catalog, 4)
}

func TestNewContainer_MigrationsAreIdempotent(t *testing.T) {
	cfg := testConfig(t)

	first := newTestContainer(t, cfg)
	first.Close()

	second := newTestContainer(t, cfg)
	assert.Zero(t, second.MigrationsApplied)
}

func TestNewContainer_BadCatalogPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.SKUCatalogPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewContainer(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "SKU catalog")
}

func TestContainer_WebhookToSync(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, testConfig(t))

	body := []byte(`{"eventId":"e1","eventType":"purchase.created","sku":"mylife_hosted_monthly_v1"}`)
	res, err := c.Reconciler.HandleWebhook(ctx, body)
	require.NoError(t, err)
	assert.False(t, res.Idempotent)
	require.NotNil(t, res.Entitlements)
	assert.Equal(t, billingDomain.ModeHosted, res.Entitlements.Mode)

	replay, err := c.Reconciler.HandleWebhook(ctx, body)
	require.NoError(t, err)
	assert.True(t, replay.Idempotent)

	synced, err := c.Entitlements.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Entitlements.Signature, synced.Entitlements.Signature)
	assert.True(t, synced.Entitlements.HasFeature(billingDomain.FeatureHostedSync))

	revoked, err := c.Entitlements.Revoke(ctx, synced.Entitlements.Signature, "")
	require.NoError(t, err)
	assert.True(t, revoked.Cleared)

	_, err = c.Entitlements.Current(ctx)
	assert.ErrorIs(t, err, billingDomain.ErrNoEntitlement)
}

func TestContainer_NotificationsGoThroughOutbox(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, testConfig(t))

	_, err := c.Reconciler.HandleWebhook(ctx, []byte(`{"eventId":"e1","eventType":"purchase.created","sku":"mylife_hosted_monthly_v1"}`))
	require.NoError(t, err)

	pending, err := c.Outbox.GetUnpublished(ctx, c.Clock(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, billingDomain.RoutingEntitlementIssued, pending[0].RoutingKey)

	require.NoError(t, c.OutboxProcessor.ProcessOnce(ctx))
	assert.Equal(t, uint64(1), c.OutboxProcessor.GetStats().PublishedCount)

	pending, err = c.Outbox.GetUnpublished(ctx, c.Clock(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestContainer_ActorIdentity(t *testing.T) {
	c := newTestContainer(t, testConfig(t))
	c.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	issued, err := c.Identity.Issue("user-1", "app.example.com")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), issued.IssuedAt)

	v := c.Identity.Verify(issued.Token, "app.example.com")
	assert.True(t, v.OK)
	assert.Equal(t, "user-1", v.UserID)
}

type fakeGitHub struct {
	mu       sync.Mutex
	requests []string
	status   int
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path+" "+r.Header.Get("Authorization"))
	w.WriteHeader(f.status)
}

func TestContainer_SelfHostPurchaseProvisionsAccess(t *testing.T) {
	ctx := context.Background()
	gh := &fakeGitHub{status: http.StatusCreated}
	srv := httptest.NewServer(gh)
	t.Cleanup(srv.Close)

	cfg := testConfig(t)
	cfg.GitHubAPIURL = srv.URL
	cfg.GitHubToken = "ghp_test"
	cfg.GitHubSelfHostRepo = "mylife/server"
	c := newTestContainer(t, cfg)
	require.True(t, c.Sweeper.Enabled())

	res, err := c.Reconciler.HandleWebhook(ctx, []byte(`{
		"eventId": "e-self-1",
		"eventType": "purchase.created",
		"sku": "mylife_self_host_lifetime_v1",
		"githubUsername": "@octocat"
	}`))
	require.NoError(t, err)
	require.NotNil(t, res.Provisioning)
	assert.Equal(t, string(accessDomain.StatusCompleted), res.Provisioning.Status)
	assert.True(t, res.Entitlements.SelfHostLicense)

	gh.mu.Lock()
	assert.Equal(t, []string{"PUT /repos/mylife/server/collaborators/octocat token ghp_test"}, gh.requests)
	gh.mu.Unlock()

	job, err := c.Queue.Get(ctx, "e-self-1")
	require.NoError(t, err)
	assert.Equal(t, accessDomain.StatusCompleted, job.Status)
}

func TestContainer_FailedProvisioningIsRetriedBySweep(t *testing.T) {
	ctx := context.Background()
	gh := &fakeGitHub{status: http.StatusBadGateway}
	srv := httptest.NewServer(gh)
	t.Cleanup(srv.Close)

	cfg := testConfig(t)
	cfg.GitHubAPIURL = srv.URL
	cfg.GitHubToken = "ghp_test"
	cfg.GitHubSelfHostRepo = "mylife/server"
	c := newTestContainer(t, cfg)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.Now = func() time.Time { return start }

	res, err := c.Reconciler.HandleWebhook(ctx, []byte(`{"eventId":"e2","eventType":"purchase.created","sku":"mylife_self_host_lifetime_v1","githubUsername":"octocat"}`))
	require.NoError(t, err)
	assert.True(t, res.OK)
	require.NotNil(t, res.Provisioning)
	assert.Equal(t, string(accessDomain.StatusRetrying), res.Provisioning.Status)

	// Not due yet.
	sweep, err := c.Sweeper.ProcessDue(ctx, start, 0)
	require.NoError(t, err)
	assert.Zero(t, sweep.Processed)

	gh.mu.Lock()
	gh.status = http.StatusNoContent
	gh.mu.Unlock()
	later := start.Add(5 * time.Minute)
	c.Now = func() time.Time { return later }

	sweep, err = c.Sweeper.ProcessDue(ctx, later, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Processed)
	assert.Equal(t, 1, sweep.Completed)
}
