package accounts

import (
	"context"
	"sync"
	"time"
)

const persistTimeout = 3 * time.Second

// Usage is the persisted quota state of one account.
type Usage struct {
	Used      float64
	LastReset time.Time
}

// UsageStore persists account usage across restarts. Implementations live in
// the sqlite, redis and postgres subpackages.
type UsageStore interface {
	// Load returns the stored usage for the account. The boolean is false
	// when nothing has been stored yet.
	Load(ctx context.Context, provider, account string) (Usage, bool, error)
	// Save overwrites the stored usage for the account.
	Save(ctx context.Context, provider, account string, u Usage) error
	Close() error
}

// MemoryStore is a UsageStore backed by a map. It is mostly useful in tests.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Usage
	saves int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Usage)}
}

func (m *MemoryStore) Load(_ context.Context, provider, account string) (Usage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.items[provider+"/"+account]
	return u, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, provider, account string, u Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[provider+"/"+account] = u
	m.saves++
	return nil
}

// Saves returns the number of successful Save calls.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *MemoryStore) Close() error { return nil }
