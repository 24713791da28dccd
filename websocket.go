package aprilvoice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/agnivade/aprilvoice/events"
	"github.com/agnivade/aprilvoice/providers"
)

// Inbound message types.
const (
	msgAudio = "audio"
	msgReset = "reset"
	msgPing  = "ping"
)

// Outbound message types.
const (
	msgTranscript = "transcript"
	msgStatus     = "status"
	msgHeartbeat  = "heartbeat"
	msgPong       = "pong"
	msgError      = "error"
)

// minChunkBytes is the size at or below which an audio chunk is dropped.
const minChunkBytes = 1000

// WebSocketRequest is a message sent by the client.
type WebSocketRequest struct {
	Type string `json:"type"`
	// Data is base64 encoded audio for audio messages.
	Data string `json:"data,omitempty"`
}

// WebSocketResponse is a message sent to the client.
type WebSocketResponse struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	IsFinal *bool  `json:"is_final,omitempty"`
	Message string `json:"message,omitempty"`
}

type sessionState int32

const (
	stateConnecting sessionState = iota
	stateActive
	stateDraining
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateActive:
		return "active"
	case stateDraining:
		return "draining"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// WebConn is one streaming session. Audio chunks are recognized on their own
// goroutines; results reach the client only while the session is live.
type WebConn struct {
	id   string
	conn *websocket.Conn
	srv  *Server
	log  logrus.FieldLogger

	state atomic.Int32
	// live gates every send from a recognition task.
	live atomic.Bool

	writeMu sync.Mutex
	done    chan struct{}
	// wg tracks the reader goroutine.
	wg sync.WaitGroup
	// tasks tracks in-flight recognitions. They are never cancelled.
	tasks     sync.WaitGroup
	closeOnce sync.Once
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	wc := s.newWebConn(conn, r.RemoteAddr)
	s.addConn(wc)
	defer s.removeConn(wc)

	wc.Start()
}

func (s *Server) newWebConn(conn *websocket.Conn, remote string) *WebConn {
	id := uuid.NewString()
	wc := &WebConn{
		id:   id,
		conn: conn,
		srv:  s,
		log:  s.log.WithFields(logrus.Fields{"session": id, "remote": remote}),
		done: make(chan struct{}),
	}
	wc.state.Store(int32(stateConnecting))
	return wc
}

// ID returns the session id.
func (wc *WebConn) ID() string {
	return wc.id
}

func (wc *WebConn) getState() sessionState {
	return sessionState(wc.state.Load())
}

// Start runs the session until the client goes away. It returns after
// cleanup; in-flight recognitions may still be running.
func (wc *WebConn) Start() {
	defer wc.Stop()

	// Counted before the state change; undone if Stop got here first.
	wc.live.Store(true)
	wc.srv.metrics.sessionOpened(context.Background())
	if !wc.state.CompareAndSwap(int32(stateConnecting), int32(stateActive)) {
		wc.live.Store(false)
		wc.srv.metrics.sessionClosed(context.Background())
		return
	}

	wc.srv.provider.Reset()
	wc.log.WithField("sessions", wc.srv.connCount()).Info("Client connected")

	msgs := make(chan []byte)
	errc := make(chan error, 1)

	wc.wg.Add(1)
	go func() {
		defer wc.wg.Done()
		wc.reader(msgs, errc)
	}()

	idle := time.NewTimer(wc.srv.heartbeat)
	for {
		select {
		case msg := <-msgs:
			idle.Reset(wc.srv.heartbeat)
			wc.handleMessage(msg)
		case err := <-errc:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				wc.log.WithError(err).Info("WebSocket read error")
			} else {
				wc.log.Debug("Client disconnected")
			}
			return
		case <-idle.C:
			if err := wc.send(WebSocketResponse{Type: msgHeartbeat}); err != nil {
				wc.log.WithError(err).Info("Heartbeat failed, closing session")
				return
			}
			idle.Reset(wc.srv.heartbeat)
		}
	}
}

// Stop closes the session. Safe to call more than once and from any
// goroutine.
func (wc *WebConn) Stop() {
	wc.closeOnce.Do(func() {
		prev := sessionState(wc.state.Swap(int32(stateDraining)))
		wc.live.Store(false)
		if wc.done != nil {
			close(wc.done)
		}

		if wc.conn != nil {
			wc.writeMu.Lock()
			wc.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			wc.writeMu.Unlock()
			wc.conn.Close()
		}
		wc.wg.Wait()

		if wc.srv != nil {
			wc.srv.provider.Reset()
			if prev == stateActive {
				wc.srv.metrics.sessionClosed(context.Background())
			}
		}
		wc.state.Store(int32(stateClosed))
		if wc.log != nil {
			wc.log.Info("Client disconnected")
		}
	})
}

func (wc *WebConn) reader(msgs chan<- []byte, errc chan<- error) {
	for {
		_, message, err := wc.conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		select {
		case msgs <- message:
		case <-wc.done:
			return
		}
	}
}

func (wc *WebConn) handleMessage(message []byte) {
	var req WebSocketRequest
	if err := json.Unmarshal(message, &req); err != nil {
		wc.sendError("Invalid JSON")
		return
	}

	switch req.Type {
	case msgAudio:
		wc.handleAudio(req.Data)
	case msgReset:
		wc.srv.provider.Reset()
		wc.sendOrLog(WebSocketResponse{Type: msgStatus, Message: "Reset"})
	case msgPing:
		wc.sendOrLog(WebSocketResponse{Type: msgPong})
	default:
		wc.sendError("Unknown message type")
	}
}

func (wc *WebConn) handleAudio(data string) {
	if data == "" {
		return
	}
	chunk, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		wc.log.WithError(err).Warn("Failed to decode audio")
		wc.srv.metrics.chunkDropped(context.Background(), dropBadPayload)
		wc.sendError("Invalid audio data")
		return
	}
	if len(chunk) <= minChunkBytes {
		wc.srv.metrics.chunkDropped(context.Background(), dropTooSmall)
		return
	}

	wc.srv.metrics.chunkDispatched(context.Background())
	wc.tasks.Add(1)
	go func() {
		defer wc.tasks.Done()
		wc.recognize(chunk)
	}()
}

// recognize runs one chunk through the provider. It is detached from the
// connection: a disconnect does not cancel it, the result is just dropped.
func (wc *WebConn) recognize(chunk []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), wc.srv.taskTimeout)
	defer cancel()

	if err := wc.srv.workers.Acquire(ctx, 1); err != nil {
		wc.log.WithError(err).Warn("No recognition worker available")
		return
	}
	start := time.Now()
	res := wc.srv.provider.Recognize(ctx, chunk)
	wc.srv.workers.Release(1)
	wc.srv.metrics.recognitionTook(ctx, time.Since(start))

	log := wc.log.WithFields(logrus.Fields{"bytes": len(chunk), "provider": res.ProviderName})
	if res.Text == "" {
		log.Debug("No transcript")
		return
	}
	if !wc.live.Load() {
		log.Debug("Session closed, dropping transcript")
		return
	}

	final := res.IsFinal
	if err := wc.send(WebSocketResponse{Type: msgTranscript, Text: res.Text, IsFinal: &final}); err != nil {
		log.WithError(err).Warn("Failed to send transcript")
		return
	}
	log.WithField("text", res.Text).Info("Sent transcript")
	wc.publish(ctx, res)
}

func (wc *WebConn) publish(ctx context.Context, res providers.TranscriptionResult) {
	if wc.srv.publisher == nil {
		return
	}
	err := wc.srv.publisher.Publish(ctx, events.Transcript{
		SessionID:  wc.id,
		Text:       res.Text,
		IsFinal:    res.IsFinal,
		Confidence: res.Confidence,
		Provider:   res.ProviderName,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		wc.log.WithError(err).Warn("Failed to publish transcript")
	}
}

func (wc *WebConn) sendError(message string) {
	wc.sendOrLog(WebSocketResponse{Type: msgError, Message: message})
}

func (wc *WebConn) sendOrLog(resp WebSocketResponse) {
	if err := wc.send(resp); err != nil {
		wc.log.WithError(err).WithField("type", resp.Type).Warn("WebSocket write error")
	}
}

// send writes one message. gorilla/websocket allows a single concurrent
// writer, so every write goes through writeMu.
func (wc *WebConn) send(resp WebSocketResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()
	if !wc.live.Load() {
		return websocket.ErrCloseSent
	}
	wc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return wc.conn.WriteMessage(websocket.TextMessage, data)
}
