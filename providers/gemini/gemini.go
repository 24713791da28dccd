// Package gemini transcribes audio by prompting a Google Gemini model with
// an inline WAV blob.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/agnivade/aprilvoice/audio"
	"github.com/agnivade/aprilvoice/providers"
	"github.com/agnivade/aprilvoice/providers/accounts"
)

const (
	providerName = "gemini"
	// DefaultModel is an audio-capable Gemini model.
	DefaultModel = "gemini-2.0-flash"
	// DefaultMonthlyLimit is unlimited; Gemini bills by token, not minute.
	DefaultMonthlyLimit = 0
	confidence          = 0.9
)

const prompt = "你是專業的語音轉文字系統。請將這段音訊精確轉錄成繁體中文。" +
	"規則：1.只輸出轉錄文字 2.使用台灣繁體中文 3.不要加標點符號 4.不要解釋 5.聽不清就回覆空白"

// blankAnswers are replies the model gives when it hears nothing.
var blankAnswers = map[string]struct{}{
	"":     {},
	"空白":   {},
	"無":    {},
	"（無）":  {},
	"(無)":  {},
	"聽不清楚": {},
	"沒有語音": {},
}

// contentGenerator is a local interface that wraps the method we need
// from genai.GenerativeModel to enable easier testing
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Config holds Gemini specific settings.
type Config struct {
	Model string
}

// Provider implements providers.Provider for Gemini.
type Provider struct {
	*providers.Metered
	model string

	mu         sync.Mutex
	generators map[string]contentGenerator
	// newGenerator is replaced in tests.
	newGenerator func(ctx context.Context, apiKey, model string) (contentGenerator, error)
}

var _ providers.Provider = (*Provider)(nil)

// NewProvider creates a Gemini provider billing against pool.
func NewProvider(pool *accounts.Pool, cfg Config, normalizer *audio.Normalizer, log logrus.FieldLogger) *Provider {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	p := &Provider{
		model:        model,
		generators:   make(map[string]contentGenerator),
		newGenerator: newGenaiGenerator,
	}
	p.Metered = providers.NewMetered(providerName, pool, p, normalizer, log)
	return p
}

func newGenaiGenerator(ctx context.Context, apiKey, model string) (contentGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	m := client.GenerativeModel(model)
	m.SetTemperature(0)
	return m, nil
}

func (p *Provider) generator(ctx context.Context, acc accounts.Account) (contentGenerator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.generators[acc.Name]; ok {
		return g, nil
	}
	g, err := p.newGenerator(ctx, acc.Secret, p.model)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	p.generators[acc.Name] = g
	return g, nil
}

// Transcribe implements providers.Engine.
func (p *Provider) Transcribe(ctx context.Context, acc accounts.Account, pcm []byte) (string, float32, error) {
	g, err := p.generator(ctx, acc)
	if err != nil {
		return "", 0, err
	}

	wav, err := audio.EncodeWAV(pcm)
	if err != nil {
		return "", 0, err
	}

	resp, err := g.GenerateContent(ctx,
		genai.Text(prompt),
		genai.Blob{MIMEType: "audio/wav", Data: wav},
	)
	if err != nil {
		return "", 0, err
	}

	text := strings.TrimSpace(responseText(resp))
	if _, blank := blankAnswers[text]; blank {
		return "", 0, nil
	}
	return text, confidence, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
