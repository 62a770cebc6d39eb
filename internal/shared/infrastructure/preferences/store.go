// Package preferences is a generic key-value preference store.
package preferences

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database"
)

// Store persists string preferences in the preferences table. All methods join
// a transaction carried by ctx.
type Store struct {
	conn database.Connection
	now  func() time.Time
}

// NewStore creates a Store.
func NewStore(conn database.Connection) *Store {
	return &Store{conn: conn, now: time.Now}
}

// Get returns the value for key and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := database.ExecutorFromContext(ctx, s.conn).
		QueryRow(ctx, `SELECT value FROM preferences WHERE key = ?`, key).
		Scan(&value)
	if database.IsNoRows(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := database.ExecutorFromContext(ctx, s.conn).Exec(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// SetIfAbsent inserts key only when it does not exist yet and reports whether
// this call created it. The primary key makes the claim atomic: of two
// concurrent callers exactly one sees true.
func (s *Store) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	res, err := database.ExecutorFromContext(ctx, s.conn).Exec(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO NOTHING`,
		key, value, s.now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("claim preference %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim preference %s: %w", key, err)
	}
	return n == 1, nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := database.ExecutorFromContext(ctx, s.conn).Exec(ctx, `DELETE FROM preferences WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	return nil
}
