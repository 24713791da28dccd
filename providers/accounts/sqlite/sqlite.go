// Package sqlite provides a SQLite-backed accounts.UsageStore.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agnivade/aprilvoice/providers/accounts"
)

// Store keeps account usage in a single SQLite table.
type Store struct {
	db *sql.DB
}

var _ accounts.UsageStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("aprilvoice/sqlite: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("aprilvoice/sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("aprilvoice/sqlite: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS account_usage (
    provider TEXT NOT NULL,
    account TEXT NOT NULL,
    used REAL NOT NULL DEFAULT 0,
    last_reset TIMESTAMP NOT NULL,
    PRIMARY KEY (provider, account)
);`)
	if err != nil {
		return fmt.Errorf("aprilvoice/sqlite: init schema: %w", err)
	}
	return nil
}

// Load returns the stored usage for the account.
func (s *Store) Load(ctx context.Context, provider, account string) (accounts.Usage, bool, error) {
	var (
		used      float64
		lastReset time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT used, last_reset FROM account_usage WHERE provider = ? AND account = ?`,
		provider, account,
	).Scan(&used, &lastReset)
	if errors.Is(err, sql.ErrNoRows) {
		return accounts.Usage{}, false, nil
	}
	if err != nil {
		return accounts.Usage{}, false, fmt.Errorf("aprilvoice/sqlite: load: %w", err)
	}
	return accounts.Usage{Used: used, LastReset: lastReset}, true, nil
}

// Save upserts the usage for the account.
func (s *Store) Save(ctx context.Context, provider, account string, u accounts.Usage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO account_usage(provider, account, used, last_reset)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(provider, account) DO UPDATE SET used=excluded.used, last_reset=excluded.last_reset`,
		provider, account, u.Used, u.LastReset.UTC())
	if err != nil {
		return fmt.Errorf("aprilvoice/sqlite: save: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
