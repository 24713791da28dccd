// Package google transcribes audio with Google Cloud Speech-to-Text.
package google

import (
	"context"
	"fmt"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"

	"github.com/agnivade/aprilvoice/audio"
	"github.com/agnivade/aprilvoice/providers"
	"github.com/agnivade/aprilvoice/providers/accounts"
)

const (
	providerName = "google"
	// DefaultMonthlyLimit is the free tier allowance in minutes.
	DefaultMonthlyLimit = 60
	DefaultLanguage     = "zh-TW"
)

// recognizeClient is the part of speech.Client the provider uses.
type recognizeClient interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	Close() error
}

type speechClient struct {
	c *speech.Client
}

func (s speechClient) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return s.c.Recognize(ctx, req)
}

func (s speechClient) Close() error {
	return s.c.Close()
}

// Config holds Google specific settings.
type Config struct {
	Language string
	// Model selects a recognition model such as "latest_short". Empty uses
	// the API default.
	Model string
}

// Provider implements providers.Provider for Google Cloud Speech.
type Provider struct {
	*providers.Metered
	cfg Config

	mu      sync.Mutex
	clients map[string]recognizeClient
	// newClient is replaced in tests.
	newClient func(ctx context.Context, acc accounts.Account) (recognizeClient, error)
}

var _ providers.Provider = (*Provider)(nil)

// NewProvider creates a Google provider billing against pool. Each account's
// Secret is a service account credentials file path or its JSON content.
func NewProvider(pool *accounts.Pool, cfg Config, normalizer *audio.Normalizer, log logrus.FieldLogger) *Provider {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	p := &Provider{
		cfg:       cfg,
		clients:   make(map[string]recognizeClient),
		newClient: newSpeechClient,
	}
	p.Metered = providers.NewMetered(providerName, pool, p, normalizer, log)
	return p
}

func newSpeechClient(ctx context.Context, acc accounts.Account) (recognizeClient, error) {
	var opt option.ClientOption
	if strings.HasPrefix(strings.TrimSpace(acc.Secret), "{") {
		opt = option.WithCredentialsJSON([]byte(acc.Secret))
	} else {
		opt = option.WithCredentialsFile(acc.Secret)
	}
	c, err := speech.NewClient(ctx, opt)
	if err != nil {
		return nil, err
	}
	return speechClient{c: c}, nil
}

func (p *Provider) client(ctx context.Context, acc accounts.Account) (recognizeClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[acc.Name]; ok {
		return c, nil
	}
	c, err := p.newClient(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	p.clients[acc.Name] = c
	return c, nil
}

// Transcribe implements providers.Engine.
func (p *Provider) Transcribe(ctx context.Context, acc accounts.Account, pcm []byte) (string, float32, error) {
	c, err := p.client(ctx, acc)
	if err != nil {
		return "", 0, err
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: audio.SampleRate,
			LanguageCode:    p.cfg.Language,
			Model:           p.cfg.Model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	}

	resp, err := c.Recognize(ctx, req)
	if err != nil {
		return "", 0, fmt.Errorf("google: %s: %w", status.Code(err), err)
	}

	var (
		b          strings.Builder
		confidence float32
		found      bool
	)
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		if !found {
			confidence = alt.Confidence
			found = true
		}
		b.WriteString(alt.Transcript)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", 0, nil
	}
	return text, confidence, nil
}

// Close releases every cached client.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for name, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, name)
	}
	return firstErr
}
