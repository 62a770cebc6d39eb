package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	accessDomain "github.com/felixgeelhaar/mylife/internal/access/domain"
	"github.com/felixgeelhaar/mylife/internal/billing/domain"
	"github.com/felixgeelhaar/mylife/internal/billing/infrastructure/persistence"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/dbtest"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/preferences"
	"github.com/felixgeelhaar/mylife/pkg/observability"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	calls  []accessDomain.Payload
	status string
}

func (d *fakeDispatcher) Dispatch(_ context.Context, eventID string, payload accessDomain.Payload) accessDomain.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, payload)
	status := d.status
	if status == "" {
		status = string(accessDomain.StatusCompleted)
	}
	return accessDomain.Outcome{Status: status, EventID: eventID, Action: payload.Action}
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type published struct {
	RoutingKey   string
	Notification domain.Notification
	InTx         bool
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	var n domain.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return err
	}
	_, inTx := database.TxInfoFromContext(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{RoutingKey: routingKey, Notification: n, InTx: inTx})
	return nil
}

func (p *fakePublisher) allInTx() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.messages {
		if !m.InTx {
			return false
		}
	}
	return true
}

func (p *fakePublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var keys []string
	for _, m := range p.messages {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}

type fakeCache struct {
	mu          sync.Mutex
	entry       *domain.StoredEntitlement
	version     int64
	sets        int
	invalidates int
}

func (c *fakeCache) Get(context.Context) (*domain.StoredEntitlement, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return nil, false, nil
	}
	cp := *c.entry
	return &cp, true, nil
}

func (c *fakeCache) Version(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version, nil
}

func (c *fakeCache) Set(_ context.Context, stored domain.StoredEntitlement, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version != c.version {
		return nil
	}
	c.entry = &stored
	c.sets++
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
	c.version++
	c.invalidates++
	return nil
}

type harness struct {
	store      domain.EntitlementStore
	service    *EntitlementService
	reconciler *Reconciler
	access     *fakeDispatcher
	publisher  *fakePublisher
	cache      *fakeCache
	metrics    *observability.InMemoryMetrics
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	secret    string
	wrapStore func(domain.EntitlementStore) domain.EntitlementStore
}

func withSecret(secret string) harnessOption {
	return func(c *harnessConfig) { c.secret = secret }
}

func withStore(wrap func(domain.EntitlementStore) domain.EntitlementStore) harnessOption {
	return func(c *harnessConfig) { c.wrapStore = wrap }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{secret: "test-signing-secret"}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn := dbtest.Open(t)
	var store domain.EntitlementStore = persistence.NewEntitlementStore(conn, preferences.NewStore(conn))
	if cfg.wrapStore != nil {
		store = cfg.wrapStore(store)
	}

	h := &harness{
		store:     store,
		access:    &fakeDispatcher{},
		publisher: &fakePublisher{},
		cache:     &fakeCache{},
		metrics:   observability.NewInMemoryMetrics(),
	}
	codec := NewCodec("mylife", cfg.secret, nil, func() time.Time { return fixedNow })
	h.service = NewEntitlementService(store, database.NewUnitOfWork(conn), codec, h.cache, h.publisher, h.metrics, nil)
	h.reconciler = NewReconciler(h.service, h.access)
	return h
}

func (h *harness) current(t *testing.T) *domain.StoredEntitlement {
	t.Helper()
	stored, err := h.store.GetCurrent(context.Background())
	require.NoError(t, err)
	return stored
}
