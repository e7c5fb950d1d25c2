// Package database provides the PostgreSQL connection pool and migration utilities.
package database

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql (migrations)
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Client wraps the pgx connection pool shared by stores.
type Client struct {
	pool *pgxpool.Pool
	dsn  string
}

// Pool returns the underlying connection pool for stores and direct queries.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// DSN returns the connection string, e.g. for a dedicated LISTEN connection.
func (c *Client) DSN() string {
	return c.dsn
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

// NewClientFromPool wraps an existing pool (useful for testing).
func NewClientFromPool(pool *pgxpool.Pool, dsn string) *Client {
	return &Client{pool: pool, dsn: dsn}
}

// NewClient connects, registers the vector type on every pooled connection,
// and applies pending migrations.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, cfg.URL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{pool: pool, dsn: cfg.URL}, nil
}

// Migrate applies pending migrations over a short-lived database/sql handle.
// Exposed separately so tests can migrate containers they manage themselves.
func Migrate(ctx context.Context, url string) error {
	db, err := stdsql.Open("pgx", url)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping for migrations: %w", err)
	}

	return runMigrations(db)
}
