// Package deepgram transcribes audio with Deepgram's pre-recorded API.
package deepgram

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/sirupsen/logrus"

	"github.com/agnivade/aprilvoice/audio"
	"github.com/agnivade/aprilvoice/providers"
	"github.com/agnivade/aprilvoice/providers/accounts"
)

const (
	providerName = "deepgram"
	// DefaultMonthlyLimit is unlimited; Deepgram bills by credit.
	DefaultMonthlyLimit = 0
	DefaultModel        = "nova-2"
	DefaultLanguage     = "zh-TW"
)

var initOnce sync.Once

// streamTranscriber is a local interface that wraps the method we need
// from the pre-recorded client to enable easier testing
type streamTranscriber interface {
	FromStream(ctx context.Context, src io.Reader, options *interfaces.PreRecordedTranscriptionOptions) (*api.PreRecordedResponse, error)
}

// Config holds Deepgram specific settings.
type Config struct {
	Model    string
	Language string
}

// Provider implements providers.Provider for Deepgram.
type Provider struct {
	*providers.Metered
	cfg Config

	mu      sync.Mutex
	clients map[string]streamTranscriber
	// newClient is replaced in tests.
	newClient func(apiKey string) streamTranscriber
}

var _ providers.Provider = (*Provider)(nil)

// NewProvider creates a Deepgram provider billing against pool.
func NewProvider(pool *accounts.Pool, cfg Config, normalizer *audio.Normalizer, log logrus.FieldLogger) *Provider {
	initOnce.Do(client.InitWithDefault)

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	p := &Provider{
		cfg:       cfg,
		clients:   make(map[string]streamTranscriber),
		newClient: newRESTClient,
	}
	p.Metered = providers.NewMetered(providerName, pool, p, normalizer, log)
	return p
}

func newRESTClient(apiKey string) streamTranscriber {
	c := client.NewREST(apiKey, &interfaces.ClientOptions{})
	return prerecorded.New(c)
}

func (p *Provider) client(acc accounts.Account) streamTranscriber {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.clients[acc.Name]
	if !ok {
		c = p.newClient(acc.Secret)
		p.clients[acc.Name] = c
	}
	return c
}

// Transcribe implements providers.Engine.
func (p *Provider) Transcribe(ctx context.Context, acc accounts.Account, pcm []byte) (string, float32, error) {
	wav, err := audio.EncodeWAV(pcm)
	if err != nil {
		return "", 0, err
	}

	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       p.cfg.Model,
		Language:    p.cfg.Language,
		Punctuate:   true,
		SmartFormat: true,
	}
	res, err := p.client(acc).FromStream(ctx, bytes.NewReader(wav), options)
	if err != nil {
		return "", 0, err
	}

	text, confidence := bestAlternative(res)
	return text, confidence, nil
}

func bestAlternative(res *api.PreRecordedResponse) (string, float32) {
	if res == nil || res.Results == nil || len(res.Results.Channels) == 0 {
		return "", 0
	}
	alts := res.Results.Channels[0].Alternatives
	if len(alts) == 0 {
		return "", 0
	}
	text := strings.TrimSpace(alts[0].Transcript)
	if text == "" {
		return "", 0
	}
	return text, float32(alts[0].Confidence)
}
