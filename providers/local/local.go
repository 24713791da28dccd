// Package local runs speech recognition on this machine, either through an
// external command or, when built with -tags whisper, through whisper.cpp.
package local

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/agnivade/aprilvoice/audio"
	"github.com/agnivade/aprilvoice/providers"
)

const (
	providerName      = "local"
	defaultConfidence = 0.9
)

// DefaultHallucinations are phrases local models tend to produce on silence
// or noise, mostly subtitle and video-channel boilerplate from their training
// data.
var DefaultHallucinations = []string{
	"請不吝點贊",
	"訂閱轉發",
	"打賞支持",
	"明鏡與點點欄目",
	"字幕由",
	"字幕提供",
	"字幕志願者",
	"謝謝觀看",
	"感謝觀看",
	"歡迎訂閱",
	"amara.org",
	"thank you for watching",
	"please subscribe",
}

// Result is what an engine reports for one buffer.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Engine transcribes normalized pcm. Engines are not required to be safe for
// concurrent use; the provider serializes calls.
type Engine interface {
	Transcribe(ctx context.Context, pcm []byte) (Result, error)
	Close() error
}

// Config configures the local provider.
type Config struct {
	// Command is an external recognizer invoked per buffer. It receives
	// --audio <wav> plus --model and --language when set, and must print
	// {"text": "...", "confidence": 0.0} on stdout.
	Command string
	// ModelPath is passed to Command, or loaded directly by the whisper engine
	// when Command is empty.
	ModelPath string
	Language  string
	// Hallucinations overrides DefaultHallucinations.
	Hallucinations []string
	Normalizer     *audio.Normalizer
}

// Provider implements providers.Provider for on-device engines. It has no
// account pool and is never billed.
type Provider struct {
	cfg            Config
	log            logrus.FieldLogger
	normalizer     *audio.Normalizer
	hallucinations []string

	mu     sync.Mutex
	engine Engine
}

var _ providers.Provider = (*Provider)(nil)

// NewProvider creates a local provider. The engine is created on Initialize.
func NewProvider(cfg Config, log logrus.FieldLogger) *Provider {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	log = log.WithField("provider", providerName)

	normalizer := cfg.Normalizer
	if normalizer == nil {
		normalizer = audio.NewNormalizer(nil, log)
	}
	list := cfg.Hallucinations
	if list == nil {
		list = DefaultHallucinations
	}
	lowered := make([]string, 0, len(list))
	for _, h := range list {
		lowered = append(lowered, strings.ToLower(h))
	}

	return &Provider{
		cfg:            cfg,
		log:            log,
		normalizer:     normalizer,
		hallucinations: lowered,
	}
}

// NewProviderWithEngine creates an already initialized provider around engine.
func NewProviderWithEngine(engine Engine, cfg Config, log logrus.FieldLogger) *Provider {
	p := NewProvider(cfg, log)
	p.engine = engine
	return p
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return providerName
}

// Initialize creates the engine. Missing commands or model files are reported
// as providers.ErrInitialization.
func (p *Provider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.engine != nil {
		return nil
	}

	var (
		engine Engine
		err    error
	)
	switch {
	case p.cfg.Command != "":
		engine, err = NewExecEngine(p.cfg)
	case p.cfg.ModelPath != "":
		engine, err = newWhisperEngine(p.cfg)
	default:
		err = fmt.Errorf("neither a command nor a model path is configured")
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", providers.ErrInitialization, providerName, err)
	}

	p.engine = engine
	p.log.WithFields(logrus.Fields{
		"command": p.cfg.Command,
		"model":   p.cfg.ModelPath,
	}).Info("Local engine initialized")
	return nil
}

// Recognize implements providers.Provider.
func (p *Provider) Recognize(ctx context.Context, data []byte) providers.TranscriptionResult {
	if err := p.Initialize(ctx); err != nil {
		p.log.WithError(err).Error("Lazy initialization failed")
		return providers.Empty(providerName)
	}

	pcm := p.normalizer.Normalize(ctx, data)
	if audio.TooShort(pcm) {
		return providers.TranscriptionResult{ProviderName: providerName}
	}

	p.mu.Lock()
	res, err := p.engine.Transcribe(ctx, pcm)
	p.mu.Unlock()
	if err != nil {
		p.log.WithError(err).Error("Transcription error")
		return providers.Empty(providerName)
	}

	text := strings.TrimSpace(res.Text)
	if p.isHallucination(text) {
		p.log.WithField("text", text).Info("Filtered hallucination")
		return providers.Empty(providerName)
	}
	if text == "" {
		return providers.Empty(providerName)
	}

	confidence := float32(res.Confidence)
	if confidence <= 0 || confidence > 1 {
		confidence = defaultConfidence
	}
	return providers.TranscriptionResult{
		Text:         text,
		IsFinal:      true,
		Confidence:   confidence,
		ProviderName: providerName,
	}
}

func (p *Provider) isHallucination(text string) bool {
	lower := strings.ToLower(text)
	for _, h := range p.hallucinations {
		if h != "" && strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// Reset implements providers.Provider. Engines keep no state between buffers.
func (p *Provider) Reset() {
	p.log.Debug("Reset")
}

// Close releases the engine.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.engine == nil {
		return nil
	}
	err := p.engine.Close()
	p.engine = nil
	return err
}
