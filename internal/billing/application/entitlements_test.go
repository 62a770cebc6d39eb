package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/mylife/internal/billing/domain"
)

func TestEntitlementService_IssueThenCurrent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	issued, err := h.service.Issue(ctx, IssueRequest{
		Mode:            domain.ModeSelfHost,
		SelfHostLicense: true,
		Features:        []string{"beta_labs"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"beta_labs", "self_host_server"}, issued.Entitlements.Features)
	assert.NotEmpty(t, issued.Entitlements.Signature)

	synced, err := h.service.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, issued.Token, synced.Token)
	assert.Equal(t, issued.Entitlements.Signature, synced.Entitlements.Signature)
	assert.Equal(t, fixedNow, synced.SyncedAt)

	assert.Equal(t, []string{domain.RoutingEntitlementIssued}, h.publisher.keys())
	assert.True(t, h.publisher.allInTx(), "notifications are recorded inside the entitlement transaction")
	assert.Equal(t, 1, h.cache.invalidates)
	assert.Equal(t, 1, h.cache.sets, "the first read fills the cache")

	_, err = h.service.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.cache.sets, "the second read is served from the cache")
}

func TestEntitlementService_IssueValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.Issue(context.Background(), IssueRequest{Mode: "cloud"})
	assert.ErrorIs(t, err, domain.ErrInvalidEntitlement)
	assert.Nil(t, h.current(t))
}

func TestEntitlementService_MissingSecret(t *testing.T) {
	h := newHarness(t, withSecret(""))

	_, err := h.service.Issue(context.Background(), IssueRequest{Mode: domain.ModeLocalOnly})
	assert.ErrorIs(t, err, domain.ErrMissingSigningSecret)

	_, err = h.service.Current(context.Background())
	assert.ErrorIs(t, err, domain.ErrMissingSigningSecret)
}

func TestEntitlementService_CurrentWithoutEntitlement(t *testing.T) {
	_, err := newHarness(t).service.Current(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoEntitlement)
}

func TestEntitlementService_RevokeIsSignatureScoped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first, err := h.service.Issue(ctx, IssueRequest{Mode: domain.ModeLocalOnly})
	require.NoError(t, err)
	second, err := h.service.Issue(ctx, IssueRequest{Mode: domain.ModeHosted, HostedActive: true})
	require.NoError(t, err)
	require.NotEqual(t, first.Entitlements.Signature, second.Entitlements.Signature)

	res, err := h.service.Revoke(ctx, first.Entitlements.Signature, "")
	require.NoError(t, err)
	assert.False(t, res.Cleared)
	assert.Equal(t, second.Entitlements.Signature, h.current(t).Entitlement.Signature)

	res, err = h.service.Revoke(ctx, second.Entitlements.Signature, "support request")
	require.NoError(t, err)
	assert.True(t, res.Cleared)
	assert.Nil(t, h.current(t))

	_, err = h.service.Current(ctx)
	assert.ErrorIs(t, err, domain.ErrNoEntitlement)

	revocations, err := h.service.Revocations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, revocations, 2)
	assert.Equal(t, "support request", revocations[0].Reason)
	assert.Equal(t, DefaultRevokeReason, revocations[1].Reason)

	assert.Equal(t, []string{
		domain.RoutingEntitlementIssued,
		domain.RoutingEntitlementIssued,
		domain.RoutingEntitlementRevoked,
	}, h.publisher.keys())
	assert.True(t, h.publisher.allInTx(), "notifications are recorded inside the entitlement transaction")
}

func TestEntitlementService_RevokeRequiresSignature(t *testing.T) {
	_, err := newHarness(t).service.Revoke(context.Background(), "  ", "manual")
	assert.ErrorIs(t, err, domain.ErrMissingSignature)
}

// interleavingStore runs a callback once, right after the next GetCurrent.
type interleavingStore struct {
	domain.EntitlementStore
	mu       sync.Mutex
	afterGet func()
}

func (s *interleavingStore) GetCurrent(ctx context.Context) (*domain.StoredEntitlement, error) {
	stored, err := s.EntitlementStore.GetCurrent(ctx)
	s.mu.Lock()
	fn := s.afterGet
	s.afterGet = nil
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return stored, err
}

func TestEntitlementService_RevokeDuringCacheFill(t *testing.T) {
	ctx := context.Background()
	var store *interleavingStore
	h := newHarness(t, withStore(func(inner domain.EntitlementStore) domain.EntitlementStore {
		store = &interleavingStore{EntitlementStore: inner}
		return store
	}))

	issued, err := h.service.Issue(ctx, IssueRequest{Mode: domain.ModeSelfHost, SelfHostLicense: true})
	require.NoError(t, err)

	store.afterGet = func() {
		res, err := h.service.Revoke(ctx, issued.Entitlements.Signature, "chargeback")
		require.NoError(t, err)
		require.True(t, res.Cleared)
	}

	// This read loaded the row before the revoke committed.
	_, err = h.service.Current(ctx)
	require.NoError(t, err)

	_, err = h.service.Current(ctx)
	assert.ErrorIs(t, err, domain.ErrNoEntitlement, "the pre-revoke read must not be cached")
	assert.Zero(t, h.cache.sets)
}

func TestEntitlementService_NotificationFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	issued, err := h.service.Issue(ctx, IssueRequest{Mode: domain.ModeSelfHost, SelfHostLicense: true})
	require.NoError(t, err)

	h.publisher.err = errors.New("outbox unavailable")

	_, err = h.service.Issue(ctx, IssueRequest{Mode: domain.ModeLocalOnly})
	require.ErrorContains(t, err, "outbox unavailable")
	assert.Equal(t, issued.Entitlements.Signature, h.current(t).Entitlement.Signature)

	_, err = h.service.Revoke(ctx, issued.Entitlements.Signature, "support request")
	require.ErrorContains(t, err, "outbox unavailable")
	require.NotNil(t, h.current(t), "the revoke rolls back with its notification")

	revocations, err := h.service.Revocations(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, revocations)
}
