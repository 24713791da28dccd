// Command client streams microphone audio to an AprilVoice server and prints
// the transcripts it sends back.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agnivade/aprilvoice"
	"github.com/agnivade/aprilvoice/audio"
)

const (
	dedupWindow    = 5
	dedupThreshold = 0.85
)

var (
	serverURL    string
	outputPath   string
	chunkSeconds float64
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:          "client",
	Short:        "Stream microphone audio to an AprilVoice server",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "url", "ws://localhost:8000/ws/transcribe", "WebSocket server URL")
	rootCmd.Flags().StringVar(&outputPath, "output", "", "Output file path for transcriptions (optional)")
	rootCmd.Flags().Float64Var(&chunkSeconds, "chunk-seconds", 2, "Seconds of audio per chunk")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	mic, err := NewMicrophoneReader()
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	defer mic.Close()

	conn, _, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", serverURL, err)
	}

	client := &Client{
		conn:       conn,
		audio:      mic,
		chunkBytes: int(chunkSeconds * audio.SampleRate * audio.BytesPerSample),
		out:        cmd.OutOrStdout(),
		recent:     NewRecentTranscripts(dedupWindow, dedupThreshold),
		log:        log,
	}

	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		client.file = bufio.NewWriter(f)
		defer client.file.Flush()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(cmd.ErrOrStderr(), "Recording... Press Ctrl+C to stop.")
	client.Start()

	select {
	case <-ctx.Done():
	case <-client.Done():
	}

	client.Close()
	fmt.Fprintln(cmd.ErrOrStderr(), "\nDone.")
	return nil
}

// Client sends fixed-size WAV chunks read from audio and prints every
// transcript it receives.
type Client struct {
	conn       *websocket.Conn
	audio      io.Reader
	chunkBytes int
	out        io.Writer
	file       *bufio.Writer
	recent     *RecentTranscripts
	log        logrus.FieldLogger

	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

// Start launches the reader and writer goroutines.
func (c *Client) Start() {
	c.done = make(chan struct{})
	c.wg.Add(2)
	go c.reader()
	go c.writer()
}

// Done is closed once either side of the connection stops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) reader() {
	defer c.wg.Done()
	defer c.finish()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("WebSocket read error")
			}
			return
		}

		var resp aprilvoice.WebSocketResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			c.log.WithError(err).Warn("Failed to unmarshal response")
			continue
		}
		c.handle(resp)
	}
}

func (c *Client) handle(resp aprilvoice.WebSocketResponse) {
	switch resp.Type {
	case "transcript":
		if resp.Text == "" || c.recent.Seen(resp.Text) {
			return
		}
		line := fmt.Sprintf("[%s] %s\n", time.Now().Format("15:04:05"), resp.Text)
		fmt.Fprint(c.out, line)
		if c.file != nil {
			if _, err := c.file.WriteString(line); err != nil {
				c.log.WithError(err).Warn("Failed to write to output file")
			} else {
				c.file.Flush()
			}
		}
	case "error":
		c.log.WithField("message", resp.Message).Warn("Server error")
	default:
		c.log.WithField("type", resp.Type).Debug("Ignoring message")
	}
}

func (c *Client) writer() {
	defer c.wg.Done()
	defer c.finish()

	chunk := make([]byte, c.chunkBytes)
	for {
		if _, err := io.ReadFull(c.audio, chunk); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				c.log.WithError(err).Warn("Audio read error")
			}
			return
		}
		if err := c.sendChunk(chunk); err != nil {
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, websocket.ErrCloseSent) {
				c.log.WithError(err).Warn("WebSocket write error")
			}
			return
		}
	}
}

func (c *Client) sendChunk(pcm []byte) error {
	wav, err := audio.EncodeWAV(pcm)
	if err != nil {
		return err
	}
	return c.conn.WriteJSON(aprilvoice.WebSocketRequest{
		Type: "audio",
		Data: base64.StdEncoding.EncodeToString(wav),
	})
}

// Close sends a close frame, closes the connection and waits for both
// goroutines.
func (c *Client) Close() {
	c.log.Debug("Closing client")
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
	c.wg.Wait()
}
