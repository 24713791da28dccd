package main

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agnivade/aprilvoice"
	"github.com/agnivade/aprilvoice/providers/mock"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func createTestClient(t *testing.T, url string, pcm []byte, chunkBytes int) (*Client, *syncBuffer) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	out := &syncBuffer{}
	return &Client{
		conn:       conn,
		audio:      bytes.NewReader(pcm),
		chunkBytes: chunkBytes,
		out:        out,
		recent:     NewRecentTranscripts(dedupWindow, dedupThreshold),
		log:        log,
	}, out
}

func TestClient_AgainstMockServer(t *testing.T) {
	srv := aprilvoice.New(mock.NewProvider(0, nil))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/transcribe"
	// Two full chunks; the trailing partial one is not sent.
	client, out := createTestClient(t, url, make([]byte, 2*4000+10), 4000)
	client.Start()

	assert.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, mock.Phrases[0]) && strings.Contains(s, mock.Phrases[1])
	}, 2*time.Second, 10*time.Millisecond)

	client.Close()
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))
}

func TestClient_SendsBase64WAV(t *testing.T) {
	received := make(chan aprilvoice.WebSocketRequest, 4)
	ts := httptest.NewServer(echoHandler(t, func(conn *websocket.Conn) {
		for {
			var req aprilvoice.WebSocketRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			received <- req
		}
	}))
	defer ts.Close()

	client, _ := createTestClient(t, "ws"+strings.TrimPrefix(ts.URL, "http"), make([]byte, 3200), 3200)
	client.Start()
	defer client.Close()

	select {
	case req := <-received:
		assert.Equal(t, "audio", req.Type)
		wav, err := base64.StdEncoding.DecodeString(req.Data)
		require.NoError(t, err)
		assert.Equal(t, "RIFF", string(wav[:4]))
		assert.Equal(t, "WAVE", string(wav[8:12]))
		assert.Greater(t, len(wav), 3200)
	case <-time.After(2 * time.Second):
		t.Fatal("no audio message received")
	}
}

func TestClient_Handle(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	defer f.Close()

	log, hook := test.NewNullLogger()
	out := &syncBuffer{}
	client := &Client{
		out:    out,
		file:   bufio.NewWriter(f),
		recent: NewRecentTranscripts(dedupWindow, dedupThreshold),
		log:    log,
	}

	client.handle(aprilvoice.WebSocketResponse{Type: "heartbeat"})
	client.handle(aprilvoice.WebSocketResponse{Type: "pong"})
	client.handle(aprilvoice.WebSocketResponse{Type: "transcript", Text: "你好"})
	client.handle(aprilvoice.WebSocketResponse{Type: "transcript", Text: "你好"})
	client.handle(aprilvoice.WebSocketResponse{Type: "transcript", Text: ""})
	client.handle(aprilvoice.WebSocketResponse{Type: "error", Message: "Invalid JSON"})

	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "] 你好")

	saved, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, out.String(), string(saved))

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "Invalid JSON", hook.LastEntry().Data["message"])
}

func TestClient_DoneWhenServerCloses(t *testing.T) {
	ts := httptest.NewServer(echoHandler(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer ts.Close()

	// An endless silent source keeps the writer busy.
	client, _ := createTestClient(t, "ws"+strings.TrimPrefix(ts.URL, "http"), nil, 3200)
	client.audio = zeroReader{}
	client.Start()

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the close")
	}
	client.Close()
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	time.Sleep(time.Millisecond)
	return len(p), nil
}

func echoHandler(t *testing.T, fn func(*websocket.Conn)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		fn(conn)
	})
}
