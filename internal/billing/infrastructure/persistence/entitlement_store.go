// Package persistence stores the signed entitlement, its revocation ledger
// and processed-event markers.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/felixgeelhaar/mylife/internal/billing/domain"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/preferences"
)

// EntitlementStore implements domain.EntitlementStore on either driver.
type EntitlementStore struct {
	conn  database.Connection
	prefs *preferences.Store
	now   func() time.Time
}

// NewEntitlementStore creates an EntitlementStore. Event markers live in the
// shared preference store.
func NewEntitlementStore(conn database.Connection, prefs *preferences.Store) *EntitlementStore {
	return &EntitlementStore{conn: conn, prefs: prefs, now: time.Now}
}

func (s *EntitlementStore) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, s.conn)
}

// GetCurrent returns the singleton row or nil.
func (s *EntitlementStore) GetCurrent(ctx context.Context) (*domain.StoredEntitlement, error) {
	var (
		token, payload string
		updatedAt      int64
	)
	err := s.exec(ctx).QueryRow(ctx,
		`SELECT token, payload, updated_at FROM entitlement_cache WHERE id = 1`,
	).Scan(&token, &payload, &updatedAt)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entitlement: %w", err)
	}

	var e domain.Entitlement
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, fmt.Errorf("decode entitlement: %w", err)
	}
	return &domain.StoredEntitlement{
		Token:       token,
		Entitlement: e,
		UpdatedAt:   time.UnixMilli(updatedAt).UTC(),
	}, nil
}

// Save overwrites the singleton row.
func (s *EntitlementStore) Save(ctx context.Context, token string, e domain.Entitlement) error {
	if e.Signature == "" {
		return domain.ErrMissingSignature
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entitlement: %w", err)
	}
	_, err = s.exec(ctx).Exec(ctx, `
		INSERT INTO entitlement_cache (id, token, signature, payload, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			token = excluded.token,
			signature = excluded.signature,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		token, e.Signature, string(payload), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save entitlement: %w", err)
	}
	return nil
}

// Revoke deletes the singleton row only if its signature matches, then
// appends r to the ledger. Run it inside a unit of work.
func (s *EntitlementStore) Revoke(ctx context.Context, r domain.Revocation) (bool, error) {
	if r.Signature == "" {
		return false, domain.ErrMissingSignature
	}
	res, err := s.exec(ctx).Exec(ctx,
		`DELETE FROM entitlement_cache WHERE id = 1 AND signature = ?`, r.Signature)
	if err != nil {
		return false, fmt.Errorf("clear entitlement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("clear entitlement: %w", err)
	}
	cleared := n == 1

	revokedAt := r.RevokedAt
	if revokedAt.IsZero() {
		revokedAt = s.now()
	}
	_, err = s.exec(ctx).Exec(ctx, `
		INSERT INTO entitlement_revocations (signature, reason, source_event_id, cleared_active, revoked_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.Signature, r.Reason, r.SourceEventID, boolToInt(cleared), revokedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("record revocation: %w", err)
	}
	return cleared, nil
}

// ListRevocations returns the newest records first.
func (s *EntitlementStore) ListRevocations(ctx context.Context, limit int) ([]domain.Revocation, error) {
	rows, err := s.exec(ctx).Query(ctx, `
		SELECT signature, reason, source_event_id, cleared_active, revoked_at
		FROM entitlement_revocations
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list revocations: %w", err)
	}
	defer rows.Close()

	var out []domain.Revocation
	for rows.Next() {
		var (
			r         domain.Revocation
			cleared   int64
			revokedAt int64
		)
		if err := rows.Scan(&r.Signature, &r.Reason, &r.SourceEventID, &cleared, &revokedAt); err != nil {
			return nil, fmt.Errorf("scan revocation: %w", err)
		}
		r.ClearedActive = cleared == 1
		r.RevokedAt = time.UnixMilli(revokedAt).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list revocations: %w", err)
	}
	return out, nil
}

// IsEventProcessed reports whether the event marker exists.
func (s *EntitlementStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	_, ok, err := s.prefs.Get(ctx, domain.EventMarkerKey(eventID))
	return ok, err
}

// MarkEventProcessed claims the event marker with a unique insert.
func (s *EntitlementStore) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return s.prefs.SetIfAbsent(ctx, domain.EventMarkerKey(eventID), strconv.FormatInt(s.now().UnixMilli(), 10))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
