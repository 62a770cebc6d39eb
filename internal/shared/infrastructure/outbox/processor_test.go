package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/dbtest"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/outbox"
)

type recordingPublisher struct {
	mu        sync.Mutex
	fail      error
	published []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.published = append(p.published, routingKey+" "+string(payload))
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) setFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T, cfg outbox.ProcessorConfig) (*outbox.SQLRepository, *outbox.Writer, *recordingPublisher, *outbox.Processor, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	repo := outbox.NewSQLRepository(dbtest.Open(t))
	pub := &recordingPublisher{}
	cfg.Now = clock.Now
	return repo, outbox.NewWriter(repo, clock.Now), pub, outbox.NewProcessor(repo, pub, cfg, nil), clock
}

func TestProcessor_PublishesInOrder(t *testing.T) {
	ctx := context.Background()
	repo, w, pub, p, _ := setup(t, outbox.ProcessorConfig{})

	require.NoError(t, w.Publish(ctx, "entitlement.issued", []byte(`{"signature":"a"}`)))
	require.NoError(t, w.Publish(ctx, "entitlement.revoked", []byte(`{"signature":"a"}`)))

	require.NoError(t, p.ProcessOnce(ctx))

	assert.Equal(t, []string{
		`entitlement.issued {"signature":"a"}`,
		`entitlement.revoked {"signature":"a"}`,
	}, pub.published)
	assert.Equal(t, uint64(2), p.GetStats().PublishedCount)

	left, err := repo.GetUnpublished(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestProcessor_RetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	repo, w, pub, p, clock := setup(t, outbox.ProcessorConfig{RetryBackoffBase: time.Second, RetryBackoffMax: time.Minute})
	pub.setFailure(errors.New("broker down"))

	require.NoError(t, w.Publish(ctx, "entitlement.issued", []byte(`{}`)))
	require.NoError(t, p.ProcessOnce(ctx))

	stats := p.GetStats()
	assert.Equal(t, uint64(1), stats.FailedCount)
	assert.Equal(t, "broker down", stats.LastError)

	// Not due before the backoff elapses.
	due, err := repo.GetUnpublished(ctx, clock.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	clock.Advance(time.Second)
	due, err = repo.GetUnpublished(ctx, clock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].RetryCount)
	assert.Equal(t, "broker down", due[0].LastError)

	pub.setFailure(nil)
	require.NoError(t, p.ProcessOnce(ctx))
	assert.Len(t, pub.published, 1)
}

func TestProcessor_DeadLettersAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	repo, w, pub, p, clock := setup(t, outbox.ProcessorConfig{MaxRetries: 2, RetryBackoffBase: time.Second})
	pub.setFailure(errors.New("broker down"))

	require.NoError(t, w.Publish(ctx, "entitlement.issued", []byte(`{}`)))
	require.NoError(t, p.ProcessOnce(ctx))
	clock.Advance(time.Minute)
	require.NoError(t, p.ProcessOnce(ctx))

	assert.Equal(t, uint64(1), p.GetStats().DeadCount)

	clock.Advance(time.Hour)
	due, err := repo.GetUnpublished(ctx, clock.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSQLRepository_DeleteOld(t *testing.T) {
	ctx := context.Background()
	repo, w, _, p, clock := setup(t, outbox.ProcessorConfig{})

	require.NoError(t, w.Publish(ctx, "entitlement.issued", []byte(`{}`)))
	require.NoError(t, p.ProcessOnce(ctx))
	require.NoError(t, w.Publish(ctx, "entitlement.revoked", []byte(`{}`)))

	deleted, err := repo.DeleteOld(ctx, clock.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	due, err := repo.GetUnpublished(ctx, clock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "entitlement.revoked", due[0].RoutingKey)
}

func TestProcessor_StartStop(t *testing.T) {
	ctx := context.Background()
	repo, w, pub, _, clock := setup(t, outbox.ProcessorConfig{})
	p := outbox.NewProcessor(repo, pub, outbox.ProcessorConfig{PollInterval: 5 * time.Millisecond, Now: clock.Now}, nil)

	require.NoError(t, w.Publish(ctx, "entitlement.issued", []byte(`{}`)))
	p.Start(ctx)
	assert.True(t, p.IsRunning())

	assert.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.published) == 1
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.False(t, p.IsRunning())
}

func TestMessage_CanRetry(t *testing.T) {
	msg := outbox.NewMessage("k", nil, time.Now())
	assert.False(t, msg.IsPublished())
	assert.True(t, msg.CanRetry(1))
	msg.RetryCount = 1
	assert.False(t, msg.CanRetry(1))
}
