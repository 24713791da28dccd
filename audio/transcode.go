package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrTranscode is returned when the external transcoder fails.
var ErrTranscode = errors.New("audio: transcode failed")

// DefaultTimeout bounds a single ffmpeg run.
const DefaultTimeout = 10 * time.Second

// Transcoder converts container audio (webm, ogg, wav...) to normalized pcm.
type Transcoder interface {
	Transcode(ctx context.Context, data []byte) ([]byte, error)
}

// FFmpeg shells out to ffmpeg. The input goes through a temp file because
// ffmpeg cannot probe webm reliably from a pipe.
type FFmpeg struct {
	// Path of the ffmpeg binary. Defaults to "ffmpeg" on $PATH.
	Path    string
	Timeout time.Duration
}

var _ Transcoder = (*FFmpeg)(nil)

func (f *FFmpeg) Transcode(ctx context.Context, data []byte) ([]byte, error) {
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	file, err := os.CreateTemp("", "aprilvoice_*.webm")
	if err != nil {
		return nil, fmt.Errorf("%w: temp file: %v", ErrTranscode, err)
	}
	defer os.Remove(file.Name())

	if _, err := file.Write(data); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: write temp file: %v", ErrTranscode, err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("%w: close temp file: %v", ErrTranscode, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", file.Name(),
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ar", "16000", "-ac", "1",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrTranscode, err, msg)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrTranscode)
	}
	return stdout.Bytes(), nil
}

// Normalizer applies a Transcoder and falls back to the original bytes when
// it fails, so raw pcm clients keep working without ffmpeg.
type Normalizer struct {
	t   Transcoder
	log logrus.FieldLogger
}

// NewNormalizer returns a Normalizer. A nil transcoder means ffmpeg.
func NewNormalizer(t Transcoder, log logrus.FieldLogger) *Normalizer {
	if t == nil {
		t = &FFmpeg{}
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Normalizer{t: t, log: log}
}

// Normalize returns pcm for data. It never fails.
func (n *Normalizer) Normalize(ctx context.Context, data []byte) []byte {
	pcm, err := n.t.Transcode(ctx, data)
	if err != nil {
		n.log.WithError(err).Warn("Audio decode failed, using raw bytes")
		return data
	}
	n.log.WithFields(logrus.Fields{
		"in":  len(data),
		"out": len(pcm),
	}).Debug("Audio decoded")
	return pcm
}
