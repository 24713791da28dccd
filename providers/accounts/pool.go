// Package accounts keeps the credentialed accounts of one recognition provider
// and meters how many minutes of audio each of them has consumed this month.
package accounts

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoAccount is returned when a full pass over the pool finds no account
// that is enabled and still under its monthly limit.
var ErrNoAccount = errors.New("accounts: no account available")

// Account is one set of credentials plus its quota bookkeeping.
type Account struct {
	Name string
	// Secret is the API key, or the path to a credentials file for providers
	// that authenticate with one.
	Secret  string
	Region  string
	Project string

	// Used is the number of audio minutes billed since LastReset.
	Used float64
	// MonthlyLimit caps Used. Zero means unlimited.
	MonthlyLimit float64
	LastReset    time.Time
	Enabled      bool

	version uint64
}

// Usable reports whether the account may serve another request.
func (a *Account) Usable() bool {
	if !a.Enabled {
		return false
	}
	return a.MonthlyLimit == 0 || a.Used < a.MonthlyLimit
}

// AccountStatus is the observable part of an Account.
type AccountStatus struct {
	Name    string  `json:"name"`
	Used    float64 `json:"used"`
	Limit   float64 `json:"limit"`
	Enabled bool    `json:"enabled"`
}

// Status is a point-in-time snapshot of a Pool.
type Status struct {
	TotalAccounts int             `json:"total_accounts"`
	CurrentIndex  int             `json:"current_index"`
	Accounts      []AccountStatus `json:"accounts"`
}

// Pool is an ordered set of accounts with a rotation cursor. Insertion order
// is rotation order. All methods are safe for concurrent use; the lock is
// only held for bookkeeping, never across a recognition call.
type Pool struct {
	provider string
	log      logrus.FieldLogger
	now      func() time.Time
	store    UsageStore

	mu       sync.Mutex
	accounts []*Account
	cursor   int

	persistMu sync.Mutex
	persisted map[string]uint64
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock overrides the wall clock used for monthly resets.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithUsageStore persists usage changes to s.
func WithUsageStore(s UsageStore) Option {
	return func(p *Pool) { p.store = s }
}

// WithLogger sets the logger used for quota events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pool) { p.log = l }
}

// NewPool creates an empty pool for the named provider.
func NewPool(provider string, opts ...Option) *Pool {
	p := &Pool{
		provider:  provider,
		now:       time.Now,
		persisted: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		p.log = l
	}
	p.log = p.log.WithField("provider", provider)
	return p
}

// Provider returns the name of the provider owning the pool.
func (p *Pool) Provider() string {
	return p.provider
}

// Add appends an account. A zero LastReset is set to the current time.
func (p *Pool) Add(acc Account) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if acc.LastReset.IsZero() {
		acc.LastReset = p.now()
	}
	p.accounts = append(p.accounts, &acc)
}

// Len returns the number of accounts in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.accounts)
}

// Current returns a copy of the first usable account starting at the cursor,
// moving the cursor past exhausted or disabled accounts. At most one full
// cycle is inspected.
func (p *Pool) Current() (Account, error) {
	p.mu.Lock()
	if len(p.accounts) == 0 {
		p.mu.Unlock()
		return Account{}, ErrNoAccount
	}

	var (
		dirty []Account
		found *Account
	)
	for range p.accounts {
		acc := p.accounts[p.cursor]
		if p.maybeReset(acc) {
			dirty = append(dirty, *acc)
		}
		if acc.Usable() {
			found = acc
			break
		}
		p.cursor = (p.cursor + 1) % len(p.accounts)
	}

	var result Account
	if found != nil {
		result = *found
	}
	p.mu.Unlock()

	p.persist(dirty...)

	if found == nil {
		p.log.Warn("All accounts exhausted")
		return Account{}, ErrNoAccount
	}
	return result, nil
}

// Rotate unconditionally moves the cursor to the next account.
func (p *Pool) Rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.accounts) == 0 {
		return
	}
	p.cursor = (p.cursor + 1) % len(p.accounts)
	p.log.WithField("account", p.accounts[p.cursor].Name).Debug("Rotated account")
}

// RecordUsage bills minutes to the account currently at the cursor. Callers
// must record before any rotation caused by the same request.
func (p *Pool) RecordUsage(minutes float64) {
	p.mu.Lock()
	if len(p.accounts) == 0 {
		p.mu.Unlock()
		return
	}
	acc := p.accounts[p.cursor]
	acc.Used += minutes
	acc.version++
	snapshot := *acc
	p.mu.Unlock()

	p.persist(snapshot)
}

// Status returns a snapshot of every account.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		TotalAccounts: len(p.accounts),
		CurrentIndex:  p.cursor,
		Accounts:      make([]AccountStatus, 0, len(p.accounts)),
	}
	for _, acc := range p.accounts {
		st.Accounts = append(st.Accounts, AccountStatus{
			Name:    acc.Name,
			Used:    acc.Used,
			Limit:   acc.MonthlyLimit,
			Enabled: acc.Enabled,
		})
	}
	return st
}

// Restore loads persisted usage for every account from the usage store.
// Accounts without a stored record keep their in-memory values.
func (p *Pool) Restore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}

	p.mu.Lock()
	names := make([]string, len(p.accounts))
	for i, acc := range p.accounts {
		names[i] = acc.Name
	}
	p.mu.Unlock()

	for _, name := range names {
		u, ok, err := p.store.Load(ctx, p.provider, name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		p.mu.Lock()
		for _, acc := range p.accounts {
			if acc.Name == name {
				acc.Used = u.Used
				acc.LastReset = u.LastReset
			}
		}
		p.mu.Unlock()
	}
	return nil
}

// maybeReset zeroes usage when the calendar month has moved on since the
// last reset. Must be called with p.mu held.
func (p *Pool) maybeReset(acc *Account) bool {
	now := p.now()
	ny, nm, _ := now.Date()
	ly, lm, _ := acc.LastReset.Date()
	if ny == ly && nm == lm {
		return false
	}
	acc.Used = 0
	acc.LastReset = now
	acc.version++
	p.log.WithField("account", acc.Name).Info("Monthly usage reset")
	return true
}

// persist writes usage snapshots to the store, skipping any snapshot older
// than one already written.
func (p *Pool) persist(snapshots ...Account) {
	if p.store == nil || len(snapshots) == 0 {
		return
	}

	p.persistMu.Lock()
	defer p.persistMu.Unlock()

	for _, s := range snapshots {
		if s.version <= p.persisted[s.Name] {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := p.store.Save(ctx, p.provider, s.Name, Usage{Used: s.Used, LastReset: s.LastReset})
		cancel()
		if err != nil {
			p.log.WithError(err).WithField("account", s.Name).Warn("Failed to persist account usage")
			continue
		}
		p.persisted[s.Name] = s.version
	}
}
