package main

import (
	"encoding/binary"

	"github.com/gordonklaus/portaudio"

	"github.com/agnivade/aprilvoice/audio"
)

const framesPerBuffer = 1024

// MicrophoneReader captures 16 kHz mono s16le PCM from the default input
// device. The caller must call Close.
type MicrophoneReader struct {
	stream *portaudio.Stream
	buffer []int16
	// pending holds bytes of the last frame not yet handed to Read.
	pending []byte
}

// NewMicrophoneReader initializes PortAudio and starts recording.
func NewMicrophoneReader() (*MicrophoneReader, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	buffer := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(audio.SampleRate), len(buffer), buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, err
	}

	return &MicrophoneReader{
		stream: stream,
		buffer: buffer,
	}, nil
}

// Read implements io.Reader. A frame larger than p is returned over several
// calls.
func (m *MicrophoneReader) Read(p []byte) (int, error) {
	if len(m.pending) == 0 {
		if err := m.stream.Read(); err != nil {
			return 0, err
		}
		m.pending = int16SliceToByteSlice(m.buffer)
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

// Close stops the stream and terminates PortAudio.
func (m *MicrophoneReader) Close() error {
	var err error
	if m.stream != nil {
		if stopErr := m.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := m.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	portaudio.Terminate()
	return err
}

func int16SliceToByteSlice(in []int16) []byte {
	out := make([]byte, len(in)*audio.BytesPerSample)
	for i, v := range in {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}
