// Package mock is a development provider that answers every buffer with the
// next phrase from a fixed list. The server falls back to it when no real
// engine can be initialized.
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agnivade/aprilvoice/providers"
)

const providerName = "mock"

// Phrases are the canned responses, returned in order.
var Phrases = []string{
	"你好",
	"今天天氣很好",
	"謝謝你的幫助",
	"我正在測試語音辨識",
	"這是一個測試",
	"語音轉文字功能正常運作",
}

// Provider implements providers.Provider without any engine.
type Provider struct {
	log   logrus.FieldLogger
	delay time.Duration

	mu          sync.Mutex
	index       int
	initialized bool
}

var _ providers.Provider = (*Provider)(nil)

// NewProvider creates a mock provider that pauses for delay before each
// answer to imitate inference latency.
func NewProvider(delay time.Duration, log logrus.FieldLogger) *Provider {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Provider{
		log:   log.WithField("provider", providerName),
		delay: delay,
	}
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return providerName
}

// Initialize never fails.
func (p *Provider) Initialize(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		p.initialized = true
		p.log.Info("Mock ASR initialized")
	}
	return nil
}

// Recognize returns the next phrase regardless of the audio.
func (p *Provider) Recognize(ctx context.Context, _ []byte) providers.TranscriptionResult {
	_ = p.Initialize(ctx)

	if p.delay > 0 {
		t := time.NewTimer(p.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return providers.Empty(providerName)
		}
	}

	p.mu.Lock()
	text := Phrases[p.index%len(Phrases)]
	p.index++
	p.mu.Unlock()

	return providers.TranscriptionResult{
		Text:         text,
		IsFinal:      true,
		Confidence:   0.95,
		ProviderName: providerName,
	}
}

// Reset implements providers.Provider. The phrase cursor is kept.
func (p *Provider) Reset() {
	p.log.Debug("Reset")
}
