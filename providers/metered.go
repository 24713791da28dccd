package providers

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/agnivade/aprilvoice/audio"
	"github.com/agnivade/aprilvoice/providers/accounts"
)

// Engine performs a single vendor call on normalized pcm using the given
// account's credentials.
type Engine interface {
	Transcribe(ctx context.Context, acc accounts.Account, pcm []byte) (text string, confidence float32, err error)
}

// EngineInitializer is optionally implemented by engines that need to probe
// their runtime dependencies once before the first call.
type EngineInitializer interface {
	Init(ctx context.Context) error
}

// Metered is the common Provider implementation of every cloud vendor: it
// normalizes audio, picks an account from the pool, calls the engine, bills
// the pool and rotates it when the call fails.
type Metered struct {
	name       string
	pool       *accounts.Pool
	engine     Engine
	normalizer *audio.Normalizer
	log        logrus.FieldLogger

	mu          sync.Mutex
	initialized bool
}

// NewMetered creates a Metered provider. A nil normalizer uses ffmpeg.
func NewMetered(name string, pool *accounts.Pool, engine Engine, normalizer *audio.Normalizer, log logrus.FieldLogger) *Metered {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	log = log.WithField("provider", name)
	if normalizer == nil {
		normalizer = audio.NewNormalizer(nil, log)
	}
	return &Metered{
		name:       name,
		pool:       pool,
		engine:     engine,
		normalizer: normalizer,
		log:        log,
	}
}

// Name returns the name of the provider.
func (m *Metered) Name() string {
	return m.name
}

// AccountPool returns the pool the provider bills against.
func (m *Metered) AccountPool() *accounts.Pool {
	return m.pool
}

// Initialize checks that the pool has a usable account and runs the engine's
// own initialization, if any.
func (m *Metered) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}
	if _, err := m.pool.Current(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfiguration, m.name, err)
	}
	if ei, ok := m.engine.(EngineInitializer); ok {
		if err := ei.Init(ctx); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInitialization, m.name, err)
		}
	}
	m.initialized = true
	m.log.WithField("accounts", m.pool.Len()).Info("Provider initialized")
	return nil
}

func (m *Metered) isInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Recognize implements Provider.
func (m *Metered) Recognize(ctx context.Context, data []byte) TranscriptionResult {
	if !m.isInitialized() {
		if err := m.Initialize(ctx); err != nil {
			m.log.WithError(err).Error("Lazy initialization failed")
			return Empty(m.name)
		}
	}

	pcm := m.normalizer.Normalize(ctx, data)
	if audio.TooShort(pcm) {
		return TranscriptionResult{ProviderName: m.name}
	}

	acc, err := m.pool.Current()
	if err != nil {
		m.log.WithError(err).Error("No available accounts")
		return Empty(m.name)
	}
	log := m.log.WithField("account", acc.Name)

	text, confidence, err := m.engine.Transcribe(ctx, acc, pcm)
	if err != nil {
		log.WithError(err).Error("Transcription error")
		m.pool.Rotate()
		return Empty(m.name)
	}
	m.pool.RecordUsage(audio.Minutes(pcm))

	if text == "" {
		log.Debug("No speech recognized")
		return Empty(m.name)
	}
	log.WithField("text", text).Info("Transcription")
	return TranscriptionResult{
		Text:         text,
		IsFinal:      true,
		Confidence:   confidence,
		ProviderName: m.name,
	}
}

// Reset implements Provider. Cloud calls are stateless between chunks.
func (m *Metered) Reset() {
	m.log.Debug("Reset")
}
