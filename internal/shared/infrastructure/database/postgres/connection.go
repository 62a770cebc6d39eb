package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database"
)

func init() {
	database.Register(database.DriverPostgres, NewConnection)
}

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// executor rebinds `?` placeholders before delegating to pgx.
type executor struct {
	q querier
}

func (e executor) Exec(ctx context.Context, query string, args ...any) (database.Result, error) {
	tag, err := e.q.Exec(ctx, database.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return result{tag}, nil
}

func (e executor) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return e.q.QueryRow(ctx, database.Rebind(query), args...)
}

func (e executor) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	r, err := e.q.Query(ctx, database.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return rows{r}, nil
}

// Connection is a pgxpool-backed database.Connection.
type Connection struct {
	executor
	pool *pgxpool.Pool
}

// NewConnection opens a PostgreSQL pool.
func NewConnection(ctx context.Context, cfg database.Config) (database.Connection, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required for PostgreSQL")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns) //nolint:gosec // bounded by config validation
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Connection{executor: executor{pool}, pool: pool}, nil
}

func (c *Connection) Driver() database.Driver { return database.DriverPostgres }

func (c *Connection) Close() error {
	c.pool.Close()
	return nil
}

func (c *Connection) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *Connection) BeginTx(ctx context.Context) (database.Transaction, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Transaction{executor: executor{tx}, tx: tx}, nil
}

// Transaction wraps pgx.Tx.
type Transaction struct {
	executor
	tx pgx.Tx
}

func (t *Transaction) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *Transaction) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

type result struct {
	tag pgconn.CommandTag
}

func (r result) RowsAffected() (int64, error) {
	return r.tag.RowsAffected(), nil
}

type rows struct {
	pgx.Rows
}

func (r rows) Close() error {
	r.Rows.Close()
	return nil
}
