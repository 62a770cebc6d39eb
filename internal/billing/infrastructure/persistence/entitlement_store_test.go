package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/mylife/internal/billing/domain"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/dbtest"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/preferences"
)

func newTestStore(t *testing.T) (*EntitlementStore, database.Connection) {
	t.Helper()
	conn := dbtest.Open(t)
	return NewEntitlementStore(conn, preferences.NewStore(conn)), conn
}

func sampleEntitlement(signature string) domain.Entitlement {
	return domain.Entitlement{
		AppID:        "mylife",
		Mode:         domain.ModeHosted,
		HostedActive: true,
		Features:     []string{domain.FeatureCloudBackup, domain.FeatureHostedSync},
		IssuedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Signature:    signature,
	}
}

func TestEntitlementStore_SaveOverwritesSingleton(t *testing.T) {
	ctx := context.Background()
	store, conn := newTestStore(t)

	current, err := store.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)

	require.NoError(t, store.Save(ctx, "v1.a.S1", sampleEntitlement("S1")))
	require.NoError(t, store.Save(ctx, "v1.b.S2", sampleEntitlement("S2")))

	current, err = store.GetCurrent(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "v1.b.S2", current.Token)
	assert.Equal(t, "S2", current.Entitlement.Signature)
	assert.Equal(t, domain.ModeHosted, current.Entitlement.Mode)

	var rows int
	require.NoError(t, conn.QueryRow(ctx, `SELECT COUNT(*) FROM entitlement_cache`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestEntitlementStore_SaveRequiresSignature(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.Save(context.Background(), "v1.a.b", sampleEntitlement(""))
	assert.ErrorIs(t, err, domain.ErrMissingSignature)
}

func TestEntitlementStore_RevokeIsSignatureScoped(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.Save(ctx, "v1.b.S2", sampleEntitlement("S2")))

	cleared, err := store.Revoke(ctx, domain.Revocation{Signature: "S1", Reason: "manual"})
	require.NoError(t, err)
	assert.False(t, cleared, "stale signature must not clear the active entitlement")

	current, err := store.GetCurrent(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "S2", current.Entitlement.Signature)

	cleared, err = store.Revoke(ctx, domain.Revocation{Signature: "S2", Reason: "billing:purchase.refunded", SourceEventID: "e9"})
	require.NoError(t, err)
	assert.True(t, cleared)

	current, err = store.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)

	revocations, err := store.ListRevocations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, revocations, 2)
	assert.Equal(t, "S2", revocations[0].Signature)
	assert.Equal(t, "billing:purchase.refunded", revocations[0].Reason)
	assert.Equal(t, "e9", revocations[0].SourceEventID)
	assert.True(t, revocations[0].ClearedActive)
	assert.Equal(t, "S1", revocations[1].Signature)
	assert.False(t, revocations[1].ClearedActive)
}

func TestEntitlementStore_EventMarkers(t *testing.T) {
	ctx := context.Background()
	store, conn := newTestStore(t)

	processed, err := store.IsEventProcessed(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, processed)

	claimed, err := store.MarkEventProcessed(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.MarkEventProcessed(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, claimed)

	processed, err = store.IsEventProcessed(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, processed)

	var key string
	require.NoError(t, conn.QueryRow(ctx, `SELECT key FROM preferences`).Scan(&key))
	assert.Equal(t, "billing_event:e1", key)
}

func TestEntitlementStore_MarkerRolledBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	store, conn := newTestStore(t)
	uow := database.NewUnitOfWork(conn)

	txCtx, err := uow.Begin(ctx)
	require.NoError(t, err)
	claimed, err := store.MarkEventProcessed(txCtx, "e1")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.Save(txCtx, "v1.a.S1", sampleEntitlement("S1")))
	require.NoError(t, uow.Rollback(txCtx))

	processed, err := store.IsEventProcessed(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, processed)
	current, err := store.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}
