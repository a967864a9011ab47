// Package postgres implements the relational store ports on pgx. One
// *Stores value owns the pool and exposes the individual port
// implementations as fields.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// db is the subset of pgxpool.Pool the stores use. Narrowing the dependency
// lets tests substitute a scripted connection.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Stores bundles the port implementations sharing one pool.
type Stores struct {
	pool *pgxpool.Pool

	Tenants       *TenantStore
	Sessions      *SessionStore
	Messages      *MessageStore
	Documents     *DocumentStore
	BillingEvents *BillingStore
}

// Options configures the Postgres driver.
type Options struct {
	// DSN is the connection string.
	DSN string
	// MaxConns caps the pool size. Defaults to 30.
	MaxConns int32
}

// New connects to Postgres and returns the bundled stores.
func New(ctx context.Context, opts Options) (*Stores, error) {
	if opts.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	} else {
		cfg.MaxConns = 30
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	s := &Stores{pool: pool}
	s.Tenants = &TenantStore{pool: pool}
	s.Sessions = &SessionStore{pool: pool}
	s.Messages = &MessageStore{pool: pool}
	s.Documents = &DocumentStore{pool: pool}
	s.BillingEvents = &BillingStore{pool: pool}
	return s, nil
}

// Migrate applies the idempotent schema.
func (s *Stores) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Stores) Close() { s.pool.Close() }
