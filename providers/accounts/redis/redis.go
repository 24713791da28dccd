// Package redis provides a Redis-backed accounts.UsageStore.
//
// Each account is stored as a hash with "used" and "last_reset" fields, which
// lets several server instances share quota bookkeeping.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/agnivade/aprilvoice/providers/accounts"
)

// Store is a Redis-backed UsageStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	closer    func() error
}

var _ accounts.UsageStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the key prefix (default "aprilvoice:usage:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// New creates a Store on top of a connected client.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "aprilvoice:usage:",
	}
	if c, ok := client.(interface{ Close() error }); ok {
		s.closer = c.Close
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial parses a redis:// URL and returns a Store using a fresh client.
func Dial(ctx context.Context, url string, opts ...Option) (*Store, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("aprilvoice/redis: parse url: %w", err)
	}
	client := goredis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("aprilvoice/redis: ping: %w", err)
	}
	return New(client, opts...), nil
}

func (s *Store) key(provider, account string) string {
	return s.keyPrefix + provider + ":" + account
}

// Load returns the stored usage for the account.
func (s *Store) Load(ctx context.Context, provider, account string) (accounts.Usage, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.key(provider, account)).Result()
	if err != nil {
		return accounts.Usage{}, false, fmt.Errorf("aprilvoice/redis: load: %w", err)
	}
	if len(vals) == 0 {
		return accounts.Usage{}, false, nil
	}

	used, err := strconv.ParseFloat(vals["used"], 64)
	if err != nil {
		return accounts.Usage{}, false, fmt.Errorf("aprilvoice/redis: parse used: %w", err)
	}
	resetUnix, err := strconv.ParseInt(vals["last_reset"], 10, 64)
	if err != nil {
		return accounts.Usage{}, false, fmt.Errorf("aprilvoice/redis: parse last_reset: %w", err)
	}
	return accounts.Usage{Used: used, LastReset: time.Unix(resetUnix, 0).UTC()}, true, nil
}

// Save overwrites the stored usage for the account.
func (s *Store) Save(ctx context.Context, provider, account string, u accounts.Usage) error {
	err := s.client.HSet(ctx, s.key(provider, account),
		"used", strconv.FormatFloat(u.Used, 'f', -1, 64),
		"last_reset", strconv.FormatInt(u.LastReset.Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("aprilvoice/redis: save: %w", err)
	}
	return nil
}

// Close closes the client if the store owns one that can be closed.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
