package aprilvoice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agnivade/aprilvoice/providers"
	"github.com/agnivade/aprilvoice/providers/accounts"
	"github.com/agnivade/aprilvoice/providers/mocks"
)

func text(s, provider string) providers.TranscriptionResult {
	return providers.TranscriptionResult{Text: s, IsFinal: true, Confidence: 0.9, ProviderName: provider}
}

// pooled is a provider that also exposes an account pool.
type pooled struct {
	*mocks.MockProvider
	pool *accounts.Pool
}

func (p pooled) AccountPool() *accounts.Pool { return p.pool }

func TestProviderRouter_StickyCursor(t *testing.T) {
	a := mocks.NewMockProvider(t)
	b := mocks.NewMockProvider(t)

	a.EXPECT().Recognize(mock.Anything, mock.Anything).Return(providers.Empty("a")).Once()
	b.EXPECT().Recognize(mock.Anything, mock.Anything).Return(text("hello", "b")).Twice()

	r := NewProviderRouter(nil)
	r.AddProvider("a", a, 0)
	r.AddProvider("b", b, 1)

	res := r.Recognize(context.Background(), []byte("chunk"))
	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, "b", res.ProviderName)
	assert.Equal(t, "b", r.CurrentProvider())

	// a would now answer, but the router keeps using b.
	a.EXPECT().Recognize(mock.Anything, mock.Anything).Return(text("hi", "a")).Maybe()
	res = r.Recognize(context.Background(), []byte("chunk"))
	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, "b", r.CurrentProvider())
}

func TestProviderRouter_AllEmpty(t *testing.T) {
	r := NewProviderRouter(nil)
	for _, name := range []string{"a", "b", "c"} {
		p := mocks.NewMockProvider(t)
		p.EXPECT().Recognize(mock.Anything, mock.Anything).Return(providers.Empty(name)).Once()
		r.AddProvider(name, p, 0)
	}

	res := r.Recognize(context.Background(), []byte("chunk"))
	assert.Equal(t, providers.TranscriptionResult{IsFinal: true, ProviderName: "router"}, res)
	assert.Zero(t, res.Confidence)
	// One full cycle brings the cursor back to where it started.
	assert.Equal(t, "a", r.CurrentProvider())
}

func TestProviderRouter_NonFinalEmptyAdvances(t *testing.T) {
	a := mocks.NewMockProvider(t)
	b := mocks.NewMockProvider(t)
	a.EXPECT().Recognize(mock.Anything, mock.Anything).
		Return(providers.TranscriptionResult{ProviderName: "a"}).Once()
	b.EXPECT().Recognize(mock.Anything, mock.Anything).Return(text("ok", "b")).Once()

	r := NewProviderRouter(nil)
	r.AddProvider("a", a, 0)
	r.AddProvider("b", b, 1)

	assert.Equal(t, "ok", r.Recognize(context.Background(), nil).Text)
}

func TestProviderRouter_PriorityOrder(t *testing.T) {
	r := NewProviderRouter(nil)
	r.AddProvider("openai", mocks.NewMockProvider(t), 3)
	r.AddProvider("gemini", mocks.NewMockProvider(t), 0)
	r.AddProvider("azure", mocks.NewMockProvider(t), 1)
	r.AddProvider("google", mocks.NewMockProvider(t), 1)

	assert.Equal(t, []string{"gemini", "azure", "google", "openai"}, r.Providers())
	assert.Equal(t, "gemini", r.CurrentProvider())
	assert.Equal(t, 4, r.Len())
}

func TestProviderRouter_Initialize(t *testing.T) {
	r := NewProviderRouter(nil)
	require.ErrorIs(t, r.Initialize(context.Background()), ErrNoProviders)

	a := mocks.NewMockProvider(t)
	b := mocks.NewMockProvider(t)
	a.EXPECT().Initialize(mock.Anything).Return(providers.ErrConfiguration).Once()
	b.EXPECT().Initialize(mock.Anything).Return(nil).Once()
	r.AddProvider("a", a, 0)
	r.AddProvider("b", b, 1)

	require.NoError(t, r.Initialize(context.Background()))
	assert.Equal(t, []string{"a", "b"}, r.Providers())
}

func TestProviderRouter_EmptyRouter(t *testing.T) {
	r := NewProviderRouter(nil)
	assert.Equal(t, providers.Empty("router"), r.Recognize(context.Background(), nil))
	assert.Equal(t, "", r.CurrentProvider())
	assert.NotPanics(t, r.Reset)
}

func TestProviderRouter_Reset(t *testing.T) {
	a := mocks.NewMockProvider(t)
	b := mocks.NewMockProvider(t)
	a.EXPECT().Reset().Return().Twice()
	b.EXPECT().Reset().Return().Twice()

	r := NewProviderRouter(nil)
	r.AddProvider("a", a, 0)
	r.AddProvider("b", b, 1)
	r.Reset()
	r.Reset()
}

func TestProviderRouter_Status(t *testing.T) {
	pool := accounts.NewPool("azure")
	pool.Add(accounts.Account{Name: "key1", Enabled: true, MonthlyLimit: 300})

	r := NewProviderRouter(nil)
	r.AddProvider("azure", pooled{MockProvider: mocks.NewMockProvider(t), pool: pool}, 1)
	r.AddProvider("local", mocks.NewMockProvider(t), 2)

	st := r.Status()
	require.Len(t, st, 1)
	assert.Equal(t, 1, st["azure"].TotalAccounts)
	assert.Equal(t, "key1", st["azure"].Accounts[0].Name)
	assert.NotContains(t, st, "local")
}

func TestProviderRouter_ConcurrentFailover(t *testing.T) {
	a := mocks.NewMockProvider(t)
	b := mocks.NewMockProvider(t)
	a.EXPECT().Recognize(mock.Anything, mock.Anything).Return(providers.Empty("a")).Maybe()
	b.EXPECT().Recognize(mock.Anything, mock.Anything).Return(text("x", "b")).Maybe()

	r := NewProviderRouter(nil)
	r.AddProvider("a", a, 0)
	r.AddProvider("b", b, 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "x", r.Recognize(context.Background(), nil).Text)
		}()
	}
	wg.Wait()
	// Concurrent failures on a advance past it only once.
	assert.Equal(t, "b", r.CurrentProvider())
}

type closingProvider struct {
	*mocks.MockProvider
	err error
}

func (c closingProvider) Close() error { return c.err }

func TestProviderRouter_Close(t *testing.T) {
	boom := errors.New("boom")
	r := NewProviderRouter(nil)
	r.AddProvider("a", closingProvider{MockProvider: mocks.NewMockProvider(t), err: boom}, 0)
	r.AddProvider("b", mocks.NewMockProvider(t), 1)

	assert.ErrorIs(t, r.Close(), boom)
}
