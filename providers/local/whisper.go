//go:build whisper

package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/agnivade/aprilvoice/audio"
)

type whisperEngine struct {
	model    whisper.Model
	language string
}

func newWhisperEngine(cfg Config) (Engine, error) {
	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}
	return &whisperEngine{model: model, language: strings.TrimSpace(cfg.Language)}, nil
}

func (e *whisperEngine) Transcribe(ctx context.Context, pcm []byte) (Result, error) {
	wctx, err := e.model.NewContext()
	if err != nil {
		return Result{}, err
	}
	if e.language != "" {
		if err := wctx.SetLanguage(e.language); err != nil {
			return Result{}, fmt.Errorf("set language %q: %w", e.language, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := wctx.Process(audio.Int16ToFloat32(pcm), nil, nil, nil); err != nil {
		return Result{}, err
	}

	var b strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			break
		}
		b.WriteString(seg.Text)
	}
	return Result{Text: b.String(), Confidence: defaultConfidence}, nil
}

func (e *whisperEngine) Close() error {
	return e.model.Close()
}
