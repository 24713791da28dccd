package google

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/agnivade/aprilvoice/audio"
	"github.com/agnivade/aprilvoice/providers"
	"github.com/agnivade/aprilvoice/providers/accounts"
)

type passthrough struct{}

func (passthrough) Transcode(_ context.Context, data []byte) ([]byte, error) {
	return data, nil
}

func newTestProvider(t *testing.T, clients map[string]recognizeClient) (*Provider, *accounts.Pool) {
	t.Helper()
	pool := accounts.NewPool(providerName)
	pool.Add(accounts.Account{Name: "proj-a", Secret: "/etc/a.json", Enabled: true, MonthlyLimit: DefaultMonthlyLimit})
	pool.Add(accounts.Account{Name: "proj-b", Secret: "/etc/b.json", Enabled: true, MonthlyLimit: DefaultMonthlyLimit})

	p := NewProvider(pool, Config{}, audio.NewNormalizer(passthrough{}, nil), nil)
	p.newClient = func(_ context.Context, acc accounts.Account) (recognizeClient, error) {
		c, ok := clients[acc.Name]
		if !ok {
			return nil, errors.New("no credentials")
		}
		return c, nil
	}
	return p, pool
}

func TestProvider_Recognize(t *testing.T) {
	tests := []struct {
		name           string
		setupMock      func(*mockrecognizeClient)
		expectedResult providers.TranscriptionResult
		expectedIndex  int
	}{
		{
			name: "single result",
			setupMock: func(m *mockrecognizeClient) {
				m.EXPECT().Recognize(mock.Anything, mock.AnythingOfType("*speechpb.RecognizeRequest")).
					Return(&speechpb.RecognizeResponse{
						Results: []*speechpb.SpeechRecognitionResult{
							{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "你好", Confidence: 0.87}}},
						},
					}, nil)
			},
			expectedResult: providers.TranscriptionResult{
				Text: "你好", IsFinal: true, Confidence: 0.87, ProviderName: "google",
			},
		},
		{
			name: "multiple results are joined",
			setupMock: func(m *mockrecognizeClient) {
				m.EXPECT().Recognize(mock.Anything, mock.Anything).
					Return(&speechpb.RecognizeResponse{
						Results: []*speechpb.SpeechRecognitionResult{
							{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "今天", Confidence: 0.8}}},
							{},
							{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "天氣很好", Confidence: 0.6}}},
						},
					}, nil)
			},
			expectedResult: providers.TranscriptionResult{
				Text: "今天天氣很好", IsFinal: true, Confidence: 0.8, ProviderName: "google",
			},
		},
		{
			name: "no results",
			setupMock: func(m *mockrecognizeClient) {
				m.EXPECT().Recognize(mock.Anything, mock.Anything).Return(&speechpb.RecognizeResponse{}, nil)
			},
			expectedResult: providers.Empty("google"),
		},
		{
			name: "grpc error rotates",
			setupMock: func(m *mockrecognizeClient) {
				m.EXPECT().Recognize(mock.Anything, mock.Anything).
					Return(nil, status.Error(codes.ResourceExhausted, "quota"))
			},
			expectedResult: providers.Empty("google"),
			expectedIndex:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockrecognizeClient(t)
			tt.setupMock(m)
			p, pool := newTestProvider(t, map[string]recognizeClient{"proj-a": m})

			res := p.Recognize(context.Background(), make([]byte, 32000))
			assert.Equal(t, tt.expectedResult, res)
			assert.Equal(t, tt.expectedIndex, pool.Status().CurrentIndex)
		})
	}
}

func TestProvider_RequestConfig(t *testing.T) {
	m := newMockrecognizeClient(t)
	pcm := make([]byte, 6400)
	m.EXPECT().Recognize(mock.Anything, mock.Anything).
		Run(func(_ context.Context, req *speechpb.RecognizeRequest) {
			assert.Equal(t, speechpb.RecognitionConfig_LINEAR16, req.Config.Encoding)
			assert.EqualValues(t, 16000, req.Config.SampleRateHertz)
			assert.Equal(t, "zh-TW", req.Config.LanguageCode)
			assert.Equal(t, pcm, req.Audio.GetContent())
		}).
		Return(&speechpb.RecognizeResponse{}, nil)

	p, _ := newTestProvider(t, map[string]recognizeClient{"proj-a": m})
	p.Recognize(context.Background(), pcm)
}

func TestProvider_ClientsCachedAndClosed(t *testing.T) {
	m := newMockrecognizeClient(t)
	m.EXPECT().Recognize(mock.Anything, mock.Anything).Return(&speechpb.RecognizeResponse{}, nil).Twice()
	m.EXPECT().Close().Return(nil).Once()

	calls := 0
	p, _ := newTestProvider(t, nil)
	p.newClient = func(context.Context, accounts.Account) (recognizeClient, error) {
		calls++
		return m, nil
	}

	p.Recognize(context.Background(), make([]byte, 3200))
	p.Recognize(context.Background(), make([]byte, 3200))
	assert.Equal(t, 1, calls)
	require.NoError(t, p.Close())
}

func TestProvider_MissingCredentialsRotates(t *testing.T) {
	p, pool := newTestProvider(t, map[string]recognizeClient{})
	assert.Equal(t, providers.Empty("google"), p.Recognize(context.Background(), make([]byte, 3200)))
	assert.Equal(t, 1, pool.Status().CurrentIndex)
}
