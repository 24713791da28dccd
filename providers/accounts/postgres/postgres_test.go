//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agnivade/aprilvoice/providers/accounts"
	usagepg "github.com/agnivade/aprilvoice/providers/accounts/postgres"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "postgres://localhost:5432/aprilvoice_test?sslmode=disable"
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("pgxpool: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("postgres not available: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func newTestStore(t *testing.T, pool *pgxpool.Pool) *usagepg.Store {
	t.Helper()
	prefix := fmt.Sprintf("test_%s_", strings.ToLower(t.Name()))
	s := usagepg.New(pool, usagepg.WithTablePrefix(prefix))

	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	t.Cleanup(func() {
		pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %saccount_usage", prefix))
	})
	return s
}

func TestLoadSave(t *testing.T) {
	pool := newTestPool(t)
	s := newTestStore(t, pool)
	ctx := context.Background()

	_, ok, err := s.Load(ctx, "deepgram", "a")
	require.NoError(t, err)
	assert.False(t, ok)

	reset := time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, "deepgram", "a", accounts.Usage{Used: 1.5, LastReset: reset}))
	require.NoError(t, s.Save(ctx, "deepgram", "a", accounts.Usage{Used: 2.5, LastReset: reset}))

	u, ok, err := s.Load(ctx, "deepgram", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.5, u.Used)
	assert.True(t, reset.Equal(u.LastReset))
}
