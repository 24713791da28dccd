package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os/exec"
	"testing"

	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmOf(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestDurations(t *testing.T) {
	tests := []struct {
		name     string
		pcm      []byte
		samples  int
		tooShort bool
		seconds  float64
	}{
		{name: "empty", pcm: nil, samples: 0, tooShort: true, seconds: 0},
		{name: "just below", pcm: make([]byte, 3198), samples: 1599, tooShort: true, seconds: 3198.0 / 32000},
		{name: "threshold", pcm: make([]byte, 3200), samples: 1600, tooShort: false, seconds: 0.1},
		{name: "one minute", pcm: make([]byte, 32000*60), samples: 16000 * 60, tooShort: false, seconds: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.samples, Samples(tt.pcm))
			assert.Equal(t, tt.tooShort, TooShort(tt.pcm))
			assert.InDelta(t, tt.seconds, Seconds(tt.pcm), 1e-9)
			assert.InDelta(t, tt.seconds/60, Minutes(tt.pcm), 1e-9)
		})
	}
}

func TestInt16ToFloat32(t *testing.T) {
	got := Int16ToFloat32(pcmOf(0, 16384, -32768))
	assert.Equal(t, []float32{0, 0.5, -1}, got)
}

func TestEncodeWAV(t *testing.T) {
	pcm := pcmOf(1, -1, 300, -300, 32767)
	data, err := EncodeWAV(pcm)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))

	dec := wav.NewDecoder(bytes.NewReader(data))
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 16000, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, []int{1, -1, 300, -300, 32767}, buf.Data)
}

func TestEncodeWAV_Unaligned(t *testing.T) {
	_, err := EncodeWAV([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestWriteSeekBuffer(t *testing.T) {
	var b WriteSeekBuffer
	_, _ = b.Write([]byte("hello world"))
	_, err := b.Seek(0, 0)
	require.NoError(t, err)
	_, _ = b.Write([]byte("J"))
	_, err = b.Seek(-5, 2)
	require.NoError(t, err)
	_, _ = b.Write([]byte("W"))
	assert.Equal(t, "Jello World", string(b.Bytes()))

	_, err = b.Seek(-100, 1)
	assert.Error(t, err)
}

type fakeTranscoder struct {
	out []byte
	err error
}

func (f fakeTranscoder) Transcode(context.Context, []byte) ([]byte, error) {
	return f.out, f.err
}

func TestNormalizer(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	n := NewNormalizer(fakeTranscoder{out: []byte{9, 9}}, logger)
	assert.Equal(t, []byte{9, 9}, n.Normalize(context.Background(), []byte{1, 2, 3}))

	hook.Reset()
	n = NewNormalizer(fakeTranscoder{err: errors.New("boom")}, logger)
	assert.Equal(t, []byte{1, 2, 3}, n.Normalize(context.Background(), []byte{1, 2, 3}))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestFFmpeg_MissingBinary(t *testing.T) {
	f := &FFmpeg{Path: "/nonexistent/ffmpeg"}
	_, err := f.Transcode(context.Background(), []byte("not audio"))
	assert.ErrorIs(t, err, ErrTranscode)
}

func TestFFmpeg_WAVRoundTrip(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	pcm := make([]byte, 3200*5)
	for i := 0; i < len(pcm)/2; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16((i%200)*100-10000)))
	}
	data, err := EncodeWAV(pcm)
	require.NoError(t, err)

	out, err := (&FFmpeg{}).Transcode(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, len(pcm), len(out))
}

func TestFFmpeg_Garbage(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	_, err := (&FFmpeg{}).Transcode(context.Background(), []byte("definitely not audio"))
	assert.ErrorIs(t, err, ErrTranscode)
}
