package mcp

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/mylife/adapter/cli"
	"github.com/felixgeelhaar/mylife/adapter/cli/clitest"
	accessDomain "github.com/felixgeelhaar/mylife/internal/access/domain"
	"github.com/felixgeelhaar/mylife/internal/identity/domain"
)

func newTestHandlers(t *testing.T, maxAttempts int) *handlers {
	t.Helper()
	cfg := clitest.Config(t)
	if maxAttempts > 0 {
		cfg.AccessMaxAttempts = maxAttempts
	}
	clitest.NewContainer(t, cfg)
	return &handlers{app: cli.GetApp()}
}

func TestRegisterCLITools_ListTools(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "test",
		Version: "1.0.0",
		Capabilities: mcp.Capabilities{
			Tools: true,
		},
	})

	app := &cli.App{}
	require.NoError(t, RegisterCLITools(srv, ToolDependencies{App: app}))

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)

	names := map[any]bool{}
	for _, tool := range tools {
		names[tool["name"]] = true
	}
	for _, want := range []string{
		"entitlements.current",
		"entitlements.revocations",
		"billing.webhook",
		"access.jobs",
		"access.requeue",
		"access.sweep",
		"identity.verify",
	} {
		assert.True(t, names[want], "%s should be registered", want)
	}
}

func TestRegister_RequiresApp(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{Name: "test", Version: "1.0.0"})

	assert.Error(t, RegisterCLITools(nil, ToolDependencies{App: &cli.App{}}))
	assert.Error(t, RegisterCLITools(srv, ToolDependencies{}))
	assert.Error(t, RegisterResources(srv, ToolDependencies{}))
	assert.Error(t, RegisterPrompts(nil))
}

func TestHandlers_WithoutServices(t *testing.T) {
	h := &handlers{app: &cli.App{}}
	ctx := context.Background()

	_, err := h.entitlementsCurrent(ctx, struct{}{})
	assert.ErrorContains(t, err, "database connection")
	_, err = h.accessJobs(ctx, jobsInput{})
	assert.ErrorContains(t, err, "database connection")
	_, err = h.accessSweep(ctx, sweepInput{})
	assert.ErrorContains(t, err, "database connection")
	_, err = h.identityVerify(ctx, verifyInput{Token: "v1.a.b"})
	assert.ErrorContains(t, err, "not configured")
}

func TestEntitlementTools_WebhookThenCurrent(t *testing.T) {
	h := newTestHandlers(t, 0)
	ctx := context.Background()

	before, err := h.entitlementsCurrent(ctx, struct{}{})
	require.NoError(t, err)
	assert.False(t, before.Present)

	res, err := h.billingWebhook(ctx, webhookInput{
		EventJSON: `{"eventId":"e1","eventType":"purchase.created","sku":"mylife_hosted_monthly_v1"}`,
	})
	require.NoError(t, err)
	assert.True(t, res.OK)

	after, err := h.entitlementsCurrent(ctx, struct{}{})
	require.NoError(t, err)
	require.True(t, after.Present)
	assert.True(t, after.Synced.Entitlements.HostedActive)

	_, err = h.billingWebhook(ctx, webhookInput{})
	assert.ErrorContains(t, err, "event_json is required")
}

func TestEntitlementTools_Revocations(t *testing.T) {
	h := newTestHandlers(t, 0)
	ctx := context.Background()

	_, err := h.app.Entitlements.Revoke(ctx, "sig-1", "chargeback")
	require.NoError(t, err)

	revs, err := h.entitlementsRevocations(ctx, revocationsInput{})
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, "sig-1", revs[0].Signature)
}

func TestAccessTools(t *testing.T) {
	h := newTestHandlers(t, 1)
	ctx := context.Background()
	c := h.app

	payload := accessDomain.Payload{Action: accessDomain.ActionGrant, GitHubUsername: "octocat", SKU: "mylife_self_host_lifetime_v1"}
	_, err := c.Queue.ScheduleRetry(ctx, "e-alert", "github: 502 bad gateway", payload)
	require.NoError(t, err)

	counts, err := h.accessJobs(ctx, jobsInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Counts["alert"])
	assert.Equal(t, 0, counts.Counts["pending"])

	alerts, err := h.accessJobs(ctx, jobsInput{Status: "alert"})
	require.NoError(t, err)
	require.Len(t, alerts.Jobs, 1)
	assert.Equal(t, "e-alert", alerts.Jobs[0].EventID)
	assert.Equal(t, "github: 502 bad gateway", alerts.Jobs[0].LastError)

	_, err = h.accessJobs(ctx, jobsInput{Status: "stuck"})
	assert.ErrorContains(t, err, "unknown status")

	job, err := h.accessRequeue(ctx, requeueInput{EventID: "e-alert"})
	require.NoError(t, err)
	assert.Equal(t, "pending", job.Status)
	assert.Zero(t, job.Attempts)

	_, err = h.accessRequeue(ctx, requeueInput{EventID: "e-alert"})
	assert.ErrorIs(t, err, accessDomain.ErrJobNotInAlert)

	// No provisioner configured: the sweep is a no-op.
	res, err := h.accessSweep(ctx, sweepInput{})
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
}

func TestIdentityVerifyTool(t *testing.T) {
	h := newTestHandlers(t, 0)

	issued, err := h.app.Identity.Issue("user-1", "app.example.com")
	require.NoError(t, err)

	ok, err := h.identityVerify(context.Background(), verifyInput{Token: issued.Token, Origin: "app.example.com"})
	require.NoError(t, err)
	assert.True(t, ok.OK)
	assert.Equal(t, "user-1", ok.UserID)

	bad, err := h.identityVerify(context.Background(), verifyInput{Token: "garbage"})
	require.NoError(t, err)
	assert.False(t, bad.OK)
	assert.Equal(t, string(domain.ReasonInvalidFormat), bad.Reason)
}
