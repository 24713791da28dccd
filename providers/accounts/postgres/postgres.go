// Package postgres provides a PostgreSQL-backed accounts.UsageStore.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agnivade/aprilvoice/providers/accounts"
)

// Store keeps account usage in a PostgreSQL table.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ accounts.UsageStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "aprilvoice_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a Store on top of an existing pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "aprilvoice_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to dsn, ensures the schema and returns the Store.
func Dial(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("aprilvoice/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("aprilvoice/postgres: ping: %w", err)
	}
	s := New(pool, opts...)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) table() string { return s.tablePrefix + "account_usage" }

// EnsureSchema creates the usage table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			provider TEXT NOT NULL,
			account TEXT NOT NULL,
			used DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_reset TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (provider, account)
		)
	`, s.table())
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("aprilvoice/postgres: ensure schema: %w", err)
	}
	return nil
}

// Load returns the stored usage for the account.
func (s *Store) Load(ctx context.Context, provider, account string) (accounts.Usage, bool, error) {
	var (
		used      float64
		lastReset time.Time
	)
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT used, last_reset FROM %s WHERE provider = $1 AND account = $2`, s.table()),
		provider, account,
	).Scan(&used, &lastReset)
	if errors.Is(err, pgx.ErrNoRows) {
		return accounts.Usage{}, false, nil
	}
	if err != nil {
		return accounts.Usage{}, false, fmt.Errorf("aprilvoice/postgres: load: %w", err)
	}
	return accounts.Usage{Used: used, LastReset: lastReset.UTC()}, true, nil
}

// Save upserts the usage for the account.
func (s *Store) Save(ctx context.Context, provider, account string, u accounts.Usage) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (provider, account, used, last_reset) VALUES ($1, $2, $3, $4)
			ON CONFLICT (provider, account) DO UPDATE SET used = EXCLUDED.used, last_reset = EXCLUDED.last_reset`,
			s.table()),
		provider, account, u.Used, u.LastReset.UTC(),
	)
	if err != nil {
		return fmt.Errorf("aprilvoice/postgres: save: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
