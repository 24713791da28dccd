package providers

import (
	"context"
	"errors"

	"github.com/agnivade/aprilvoice/providers/accounts"
)

var (
	// ErrInitialization is returned when a runtime dependency of a provider
	// (engine binary, model file, SDK client) is unavailable.
	ErrInitialization = errors.New("provider initialization failed")

	// ErrConfiguration is returned when a provider has no usable account.
	ErrConfiguration = errors.New("provider has no usable configuration")
)

// Provider turns one buffer of client audio into a transcript.
// Local engines and cloud services implement this interface, and so does the
// router that fails over between them.
type Provider interface {
	// Name returns the name of the provider.
	Name() string

	// Initialize prepares the provider. It is idempotent; Recognize calls it
	// lazily when needed.
	Initialize(ctx context.Context) error

	// Recognize transcribes audio. It never fails: any engine or network
	// error is logged and reported as a final transcript with empty text.
	Recognize(ctx context.Context, audio []byte) TranscriptionResult

	// Reset clears per-stream state. It does no I/O and is safe to call
	// repeatedly.
	Reset()
}

// PoolOwner is implemented by providers that bill against an account pool.
type PoolOwner interface {
	AccountPool() *accounts.Pool
}

// TranscriptionResult represents a transcription result with metadata.
type TranscriptionResult struct {
	// Text is the transcribed text. Empty means no usable result.
	Text string

	// IsFinal indicates whether this is a final result or interim
	IsFinal bool

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float32

	// ProviderName is the provider that produced the result.
	ProviderName string
}

// Empty returns a final transcript without text.
func Empty(provider string) TranscriptionResult {
	return TranscriptionResult{IsFinal: true, ProviderName: provider}
}
