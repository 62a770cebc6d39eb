package database

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
)

// IsNoRows reports whether err means a single-row query matched nothing,
// for either backend.
func IsNoRows(err error) bool {
	return err != nil && (errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows))
}
