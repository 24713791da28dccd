// Package audio normalizes client audio into the 16 kHz mono signed 16-bit
// PCM every recognition engine consumes, and provides the small helpers
// (sample counts, billing minutes, WAV wrapping) built on that format.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// SampleRate is the normalized sample rate in Hz.
	SampleRate = 16000
	// BytesPerSample for s16le mono.
	BytesPerSample = 2
	// MinSamples is the shortest buffer worth sending to an engine (0.1 s).
	MinSamples = 1600
)

// Samples returns the number of 16-bit samples in pcm.
func Samples(pcm []byte) int {
	return len(pcm) / BytesPerSample
}

// TooShort reports whether pcm holds less than MinSamples samples.
func TooShort(pcm []byte) bool {
	return Samples(pcm) < MinSamples
}

// Seconds returns the duration of normalized pcm.
func Seconds(pcm []byte) float64 {
	return float64(len(pcm)) / float64(SampleRate*BytesPerSample)
}

// Minutes returns the duration of normalized pcm in minutes, the unit
// account quotas are billed in.
func Minutes(pcm []byte) float64 {
	return Seconds(pcm) / 60
}

// Int16ToFloat32 converts s16le pcm into samples in [-1, 1).
func Int16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, Samples(pcm))
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// WriteWAV wraps s16le mono pcm at SampleRate into a WAV container.
func WriteWAV(w io.WriteSeeker, pcm []byte) error {
	if len(pcm)%BytesPerSample != 0 {
		return errors.New("pcm payload not aligned")
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: SampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, Samples(pcm)),
	}
	for i := range buffer.Data {
		buffer.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	enc := wav.NewEncoder(w, SampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// EncodeWAV is WriteWAV into memory.
func EncodeWAV(pcm []byte) ([]byte, error) {
	var buf WriteSeekBuffer
	if err := WriteWAV(&buf, pcm); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSeekBuffer is an in-memory io.WriteSeeker, which the WAV encoder needs
// to patch the header sizes once all samples are written.
type WriteSeekBuffer struct {
	buf []byte
	pos int
}

func (b *WriteSeekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *WriteSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	b.pos = int(abs)
	return abs, nil
}

// Bytes returns the written contents.
func (b *WriteSeekBuffer) Bytes() []byte {
	return b.buf
}
