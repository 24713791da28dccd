package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agnivade/aprilvoice/providers"
)

func TestProvider_Cycles(t *testing.T) {
	p := NewProvider(0, nil)
	require.NoError(t, p.Initialize(context.Background()))

	for i := 0; i < len(Phrases)+2; i++ {
		res := p.Recognize(context.Background(), nil)
		assert.Equal(t, providers.TranscriptionResult{
			Text:         Phrases[i%len(Phrases)],
			IsFinal:      true,
			Confidence:   0.95,
			ProviderName: "mock",
		}, res)
	}
}

func TestProvider_ResetKeepsCursor(t *testing.T) {
	p := NewProvider(0, nil)
	p.Recognize(context.Background(), nil)
	p.Reset()
	p.Reset()
	assert.Equal(t, Phrases[1], p.Recognize(context.Background(), nil).Text)
}

func TestProvider_DelayHonorsContext(t *testing.T) {
	p := NewProvider(time.Hour, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := p.Recognize(ctx, nil)
	assert.Equal(t, providers.Empty("mock"), res)
}
