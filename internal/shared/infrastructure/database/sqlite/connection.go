package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database"
)

func init() {
	database.Register(database.DriverSQLite, NewConnection)
}

// pragmas applied to every connection:
// WAL journal, enforced foreign keys, 5s busy wait, NORMAL sync.
const pragmas = "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type executor struct {
	q querier
}

func (e executor) Exec(ctx context.Context, query string, args ...any) (database.Result, error) {
	return e.q.ExecContext(ctx, query, args...)
}

func (e executor) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return e.q.QueryRowContext(ctx, query, args...)
}

func (e executor) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	r, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return database.WrapSQLRows(r), nil
}

// Connection is a database.Connection over a single-writer SQLite handle.
type Connection struct {
	executor
	db *sql.DB
}

// NewConnection opens (and creates if needed) the SQLite database at cfg.SQLitePath.
func NewConnection(ctx context.Context, cfg database.Config) (database.Connection, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = database.DefaultSQLitePath()
	}
	if err := database.EnsureDirectory(path); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+pragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// One connection serialises writers; transactions therefore block other callers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return &Connection{executor: executor{db}, db: db}, nil
}

// DB exposes the underlying handle for migrations.
func (c *Connection) DB() *sql.DB { return c.db }

func (c *Connection) Driver() database.Driver { return database.DriverSQLite }

func (c *Connection) Close() error { return c.db.Close() }

func (c *Connection) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Connection) BeginTx(ctx context.Context) (database.Transaction, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Transaction{executor: executor{tx}, tx: tx}, nil
}

// Transaction wraps *sql.Tx.
type Transaction struct {
	executor
	tx *sql.Tx
}

func (t *Transaction) Commit(context.Context) error   { return t.tx.Commit() }
func (t *Transaction) Rollback(context.Context) error { return t.tx.Rollback() }
