// Package openai transcribes audio with the OpenAI Whisper transcription API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agnivade/aprilvoice/audio"
	"github.com/agnivade/aprilvoice/providers"
	"github.com/agnivade/aprilvoice/providers/accounts"
)

const (
	providerName = "openai"
	// DefaultMonthlyLimit is unlimited; the API is pay as you go.
	DefaultMonthlyLimit = 0
	DefaultModel        = "whisper-1"
	DefaultLanguage     = "zh"
	DefaultBaseURL      = "https://api.openai.com"
	confidence          = 0.95
)

// Config holds OpenAI specific settings.
type Config struct {
	Model    string
	Language string
	BaseURL  string
	Client   *http.Client
}

// Provider implements providers.Provider for OpenAI Whisper.
type Provider struct {
	*providers.Metered
	cfg Config
}

var _ providers.Provider = (*Provider)(nil)

// NewProvider creates an OpenAI provider billing against pool.
func NewProvider(pool *accounts.Pool, cfg Config, normalizer *audio.Normalizer, log logrus.FieldLogger) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 60 * time.Second}
	}
	p := &Provider{cfg: cfg}
	p.Metered = providers.NewMetered(providerName, pool, p, normalizer, log)
	return p
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func multipartBody(model, language string, wav []byte) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", model); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("language", language); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return nil, "", err
	}
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

// Transcribe implements providers.Engine.
func (p *Provider) Transcribe(ctx context.Context, acc accounts.Account, pcm []byte) (string, float32, error) {
	wav, err := audio.EncodeWAV(pcm)
	if err != nil {
		return "", 0, err
	}
	body, contentType, err := multipartBody(p.cfg.Model, p.cfg.Language, wav)
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/audio/transcriptions", body)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", "Bearer "+acc.Secret)
	req.Header.Set("Content-Type", contentType)

	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
			return "", 0, fmt.Errorf("openai: %d %s: %s", resp.StatusCode, e.Error.Type, e.Error.Message)
		}
		return "", 0, fmt.Errorf("openai: unexpected status %d", resp.StatusCode)
	}

	var out transcriptionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", 0, fmt.Errorf("openai: decode response: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", 0, nil
	}
	return text, confidence, nil
}
