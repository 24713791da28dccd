// Package azure transcribes audio with the Azure Speech short-audio REST API.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agnivade/aprilvoice/audio"
	"github.com/agnivade/aprilvoice/providers"
	"github.com/agnivade/aprilvoice/providers/accounts"
)

const (
	providerName = "azure"
	// DefaultMonthlyLimit is the free tier allowance in minutes (5 hours).
	DefaultMonthlyLimit = 300
	DefaultLanguage     = "zh-TW"
	confidence          = 0.9

	endpointTemplate = "https://%s.stt.speech.microsoft.com"
	recognitionPath  = "/speech/recognition/conversation/cognitiveservices/v1"
)

// Config holds Azure specific settings.
type Config struct {
	Language string
	// Endpoint overrides the regional endpoint. Used by tests.
	Endpoint string
	Client   *http.Client
}

// Provider implements providers.Provider for Azure Speech.
type Provider struct {
	*providers.Metered
	cfg Config
}

var _ providers.Provider = (*Provider)(nil)

// NewProvider creates an Azure provider billing against pool.
func NewProvider(pool *accounts.Pool, cfg Config, normalizer *audio.Normalizer, log logrus.FieldLogger) *Provider {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	p := &Provider{cfg: cfg}
	p.Metered = providers.NewMetered(providerName, pool, p, normalizer, log)
	return p
}

type recognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
}

func (p *Provider) endpoint(acc accounts.Account) string {
	base := p.cfg.Endpoint
	if base == "" {
		base = fmt.Sprintf(endpointTemplate, acc.Region)
	}
	q := url.Values{}
	q.Set("language", p.cfg.Language)
	q.Set("format", "simple")
	return base + recognitionPath + "?" + q.Encode()
}

// Transcribe implements providers.Engine.
func (p *Provider) Transcribe(ctx context.Context, acc accounts.Account, pcm []byte) (string, float32, error) {
	wav, err := audio.EncodeWAV(pcm)
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(acc), bytes.NewReader(wav))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", acc.Secret)
	req.Header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	req.Header.Set("Accept", "application/json")

	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("azure: unexpected status %d: %s", resp.StatusCode, body)
	}

	var out recognitionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", 0, fmt.Errorf("azure: decode response: %w", err)
	}
	if out.RecognitionStatus != "Success" {
		// NoMatch, InitialSilenceTimeout and friends: billed, but nothing heard.
		return "", 0, nil
	}
	return out.DisplayText, confidence, nil
}
