package database

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Row abstracts pgx.Row and *sql.Row.
type Row interface {
	Scan(dest ...any) error
}

// Rows abstracts pgx.Rows and *sql.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Result is the outcome of an Exec call.
type Result interface {
	RowsAffected() (int64, error)
}

// Executor runs queries. Repositories write every query with `?`
// placeholders; drivers that need another style rebind them.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Transaction is an Executor that can be committed or rolled back.
type Transaction interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Connection is a pooled handle that can start transactions.
type Connection interface {
	Executor
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
	Ping(ctx context.Context) error
	Driver() Driver
}

// Rebind rewrites `?` placeholders to PostgreSQL's `$n` form.
// Queries must not contain literal question marks.
func Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WrapSQLRows adapts *sql.Rows to Rows.
func WrapSQLRows(r *sql.Rows) Rows {
	return sqlRows{r}
}

type sqlRows struct {
	*sql.Rows
}
