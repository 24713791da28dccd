package aprilvoice

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/agnivade/aprilvoice/providers"
	"github.com/agnivade/aprilvoice/providers/accounts"
)

const routerName = "router"

// ErrNoProviders is returned when the router has nothing to route to.
var ErrNoProviders = errors.New("no providers configured")

type routedProvider struct {
	name     string
	priority int
	provider providers.Provider
}

// ProviderRouter fails over between providers in priority order. The cursor
// is sticky: once a provider answers, later calls start from it instead of
// going back to the head of the list.
//
// ProviderRouter itself implements providers.Provider so it can stand in for a
// single provider anywhere.
type ProviderRouter struct {
	log     logrus.FieldLogger
	metrics *Metrics

	mu      sync.Mutex
	entries []routedProvider
	cursor  int
}

var _ providers.Provider = (*ProviderRouter)(nil)

// NewProviderRouter creates an empty router.
func NewProviderRouter(log logrus.FieldLogger) *ProviderRouter {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &ProviderRouter{log: log.WithField("component", routerName)}
}

// AddProvider registers p under name. Lower priority values are tried first;
// equal priorities keep insertion order.
func (r *ProviderRouter) AddProvider(name string, p providers.Provider, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, routedProvider{name: name, priority: priority, provider: p})
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].priority < r.entries[j].priority
	})
}

// SetMetrics enables recognition metrics.
func (r *ProviderRouter) SetMetrics(m *Metrics) {
	r.metrics = m
}

// Providers returns the provider names in routing order.
func (r *ProviderRouter) Providers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of registered providers.
func (r *ProviderRouter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Name returns the name of the provider.
func (r *ProviderRouter) Name() string {
	return routerName
}

func (r *ProviderRouter) snapshot() []routedProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]routedProvider(nil), r.entries...)
}

// Initialize initializes every provider. A provider that fails stays in
// rotation; its first Recognize will come back empty and trigger failover.
func (r *ProviderRouter) Initialize(ctx context.Context) error {
	entries := r.snapshot()
	if len(entries) == 0 {
		return ErrNoProviders
	}

	for _, e := range entries {
		if err := e.provider.Initialize(ctx); err != nil {
			r.log.WithError(err).WithField("provider", e.name).Warn("Failed to initialize provider")
			continue
		}
		r.log.WithField("provider", e.name).Info("Initialized provider")
	}
	return nil
}

// current returns the provider at the cursor.
func (r *ProviderRouter) current() (routedProvider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) == 0 {
		return routedProvider{}, false
	}
	return r.entries[r.cursor], true
}

// advance moves the cursor past name, unless another call already did.
func (r *ProviderRouter) advance(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) == 0 {
		return
	}
	if r.entries[r.cursor].name != name {
		return
	}
	r.cursor = (r.cursor + 1) % len(r.entries)
}

// Recognize tries providers starting at the cursor, visiting each at most
// once. The first non-empty transcript wins.
func (r *ProviderRouter) Recognize(ctx context.Context, data []byte) providers.TranscriptionResult {
	n := r.Len()
	for i := 0; i < n; i++ {
		e, ok := r.current()
		if !ok {
			break
		}

		r.log.WithField("provider", e.name).Debug("Using provider")
		res := e.provider.Recognize(ctx, data)
		r.metrics.recordRecognition(ctx, e.name, res.Text != "")
		if res.Text != "" {
			if res.ProviderName == "" {
				res.ProviderName = e.name
			}
			return res
		}
		r.advance(e.name)
	}
	return providers.Empty(routerName)
}

// Reset resets every provider.
func (r *ProviderRouter) Reset() {
	for _, e := range r.snapshot() {
		e.provider.Reset()
	}
}

// CurrentProvider returns the name of the provider at the cursor, or "" when
// the router is empty.
func (r *ProviderRouter) CurrentProvider() string {
	e, ok := r.current()
	if !ok {
		return ""
	}
	return e.name
}

// Status returns the account pool status of every provider that has one.
func (r *ProviderRouter) Status() map[string]accounts.Status {
	out := make(map[string]accounts.Status)
	for _, e := range r.snapshot() {
		owner, ok := e.provider.(providers.PoolOwner)
		if !ok || owner.AccountPool() == nil {
			continue
		}
		out[e.name] = owner.AccountPool().Status()
	}
	return out
}

// Close closes every provider holding resources.
func (r *ProviderRouter) Close() error {
	var errs []error
	for _, e := range r.snapshot() {
		if c, ok := e.provider.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
