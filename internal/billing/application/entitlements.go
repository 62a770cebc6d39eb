package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/mylife/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/mylife/internal/shared/application"
	"github.com/felixgeelhaar/mylife/pkg/observability"
)

// DefaultRevokeReason is recorded when a revoke request names no reason.
const DefaultRevokeReason = "manual"

// Publisher emits change notifications. eventbus.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
}

// IssueRequest is an explicit entitlement grant. Features are added to the
// ones implied by the flags.
type IssueRequest struct {
	Mode            domain.Mode `json:"mode"`
	HostedActive    bool        `json:"hostedActive"`
	SelfHostLicense bool        `json:"selfHostLicense"`
	UpdatePackYear  *int        `json:"updatePackYear,omitempty"`
	Features        []string    `json:"features,omitempty"`
	ExpiresAt       *time.Time  `json:"expiresAt,omitempty"`
}

// Issued is a freshly signed entitlement.
type Issued struct {
	Token        string             `json:"token"`
	Entitlements domain.Entitlement `json:"entitlements"`
}

// Synced is the verified current entitlement.
type Synced struct {
	Token        string             `json:"token"`
	Entitlements domain.Entitlement `json:"entitlements"`
	SyncedAt     time.Time          `json:"syncedAt"`
}

// RevokeResult reports a revoke call.
type RevokeResult struct {
	Signature string `json:"signature"`
	Cleared   bool   `json:"cleared"`
}

// EntitlementService issues, reads and revokes the installation entitlement.
type EntitlementService struct {
	store     domain.EntitlementStore
	uow       sharedApplication.UnitOfWork
	codec     *Codec
	cache     domain.EntitlementCache
	publisher Publisher
	metrics   observability.Metrics
	logger    *slog.Logger
}

// NewEntitlementService creates an EntitlementService. cache, publisher and
// metrics may be nil.
func NewEntitlementService(
	store domain.EntitlementStore,
	uow sharedApplication.UnitOfWork,
	codec *Codec,
	cache domain.EntitlementCache,
	publisher Publisher,
	metrics observability.Metrics,
	logger *slog.Logger,
) *EntitlementService {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EntitlementService{
		store:     store,
		uow:       uow,
		codec:     codec,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Codec returns the codec the service signs with.
func (s *EntitlementService) Codec() *Codec {
	return s.codec
}

// Issue signs and stores an explicit entitlement.
func (s *EntitlementService) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	if !s.codec.Configured() {
		return nil, domain.ErrMissingSigningSecret
	}

	e := domain.Entitlement{
		AppID:           s.codec.AppID(),
		Mode:            req.Mode,
		HostedActive:    req.HostedActive,
		SelfHostLicense: req.SelfHostLicense,
		UpdatePackYear:  req.UpdatePackYear,
		IssuedAt:        s.codec.Now(),
		ExpiresAt:       req.ExpiresAt,
	}
	e.Features = append(e.DerivedFeatures(), req.Features...)

	token, signed, err := s.codec.Sign(e)
	if err != nil {
		return nil, err
	}
	err = sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		if err := s.store.Save(txCtx, token, signed); err != nil {
			return fmt.Errorf("save entitlement: %w", err)
		}
		return s.notify(txCtx, domain.RoutingEntitlementIssued, domain.Notification{
			Signature:  signed.Signature,
			Mode:       signed.Mode,
			OccurredAt: signed.IssuedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "entitlement issued",
		"mode", signed.Mode,
		"signature", observability.Redact(signed.Signature),
	)
	return &Issued{Token: token, Entitlements: signed}, nil
}

// Current returns the cached entitlement after verifying its token. It
// returns ErrNoEntitlement when nothing is cached.
func (s *EntitlementService) Current(ctx context.Context) (*Synced, error) {
	if !s.codec.Configured() {
		return nil, domain.ErrMissingSigningSecret
	}

	stored, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.codec.VerifyToken(stored.Token)
	if err != nil {
		s.logger.ErrorContext(ctx, "stored entitlement failed verification", "error", err)
		return nil, err
	}
	return &Synced{Token: stored.Token, Entitlements: e, SyncedAt: s.codec.Now()}, nil
}

// load reads through the cache. The cache version is taken before the store
// read, so a fill racing with an invalidation is discarded.
func (s *EntitlementService) load(ctx context.Context) (*domain.StoredEntitlement, error) {
	fill := false
	var version int64
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "entitlement cache read failed", "error", err)
		case ok:
			return cached, nil
		default:
			if version, err = s.cache.Version(ctx); err != nil {
				s.logger.WarnContext(ctx, "entitlement cache version read failed", "error", err)
			} else {
				fill = true
			}
		}
	}

	stored, err := s.store.GetCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("load entitlement: %w", err)
	}
	if stored == nil {
		return nil, domain.ErrNoEntitlement
	}
	if fill {
		if err := s.cache.Set(ctx, *stored, version); err != nil {
			s.logger.WarnContext(ctx, "entitlement cache write failed", "error", err)
		}
	}
	return stored, nil
}

// Revoke records a revocation of signature. The cached entitlement is cleared
// only when its signature matches.
func (s *EntitlementService) Revoke(ctx context.Context, signature, reason string) (*RevokeResult, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, domain.ErrMissingSignature
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRevokeReason
	}

	var cleared bool
	err := sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		rev := domain.Revocation{
			Signature: signature,
			Reason:    reason,
			RevokedAt: s.codec.Now(),
		}
		var err error
		if cleared, err = s.store.Revoke(txCtx, rev); err != nil {
			return err
		}
		if !cleared {
			return nil
		}
		return s.notifyRevoked(txCtx, rev)
	})
	if err != nil {
		return nil, fmt.Errorf("revoke entitlement: %w", err)
	}
	s.afterRevoke(ctx, signature, reason, "", cleared)
	return &RevokeResult{Signature: signature, Cleared: cleared}, nil
}

func (s *EntitlementService) afterRevoke(ctx context.Context, signature, reason, eventID string, cleared bool) {
	s.metrics.Counter(observability.MetricRevocations, 1, observability.T("cleared", fmt.Sprint(cleared)))
	s.logger.InfoContext(ctx, "entitlement revocation recorded",
		"signature", observability.Redact(signature),
		"reason", reason,
		"event_id", eventID,
		"cleared", cleared,
	)
	if cleared {
		s.invalidate(ctx)
	}
}

// Revocations returns the newest revocation records.
func (s *EntitlementService) Revocations(ctx context.Context, limit int) ([]domain.Revocation, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.store.ListRevocations(ctx, limit)
}

func (s *EntitlementService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "entitlement cache invalidation failed", "error", err)
	}
}

// notify records a change notification. Called with a transactional ctx, the
// outbox row commits or rolls back with the entitlement change.
func (s *EntitlementService) notify(ctx context.Context, routingKey string, n domain.Notification) error {
	if s.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.publisher.Publish(ctx, routingKey, payload); err != nil {
		return fmt.Errorf("record notification %s: %w", routingKey, err)
	}
	return nil
}

func (s *EntitlementService) notifyRevoked(ctx context.Context, rev domain.Revocation) error {
	return s.notify(ctx, domain.RoutingEntitlementRevoked, domain.Notification{
		EventID:    rev.SourceEventID,
		Signature:  rev.Signature,
		Reason:     rev.Reason,
		OccurredAt: rev.RevokedAt,
	})
}
