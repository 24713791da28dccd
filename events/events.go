// Package events publishes transcripts to NATS so other services can follow
// a session without holding its WebSocket.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// SubjectPrefix is prepended to the session id to form the subject.
const SubjectPrefix = "aprilvoice.transcript."

// Transcript is the published payload.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	IsFinal    bool      `json:"is_final"`
	Confidence float32   `json:"confidence"`
	Provider   string    `json:"provider"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher delivers transcripts. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, t Transcript) error
	Close() error
}

// Subject returns the subject transcripts of a session are published on.
func Subject(sessionID string) string {
	return SubjectPrefix + sessionID
}

// NATS publishes transcripts over a core NATS connection.
type NATS struct {
	conn *nats.Conn
	log  logrus.FieldLogger
}

var _ Publisher = (*NATS)(nil)

// Connect dials url and returns a publisher on it.
func Connect(url string, log logrus.FieldLogger) (*NATS, error) {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	conn, err := nats.Connect(url,
		nats.Name("aprilvoice"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.WithField("url", url).Info("Connected to NATS")
	return &NATS{conn: conn, log: log}, nil
}

// Publish implements Publisher.
func (n *NATS) Publish(_ context.Context, t Transcript) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return n.conn.Publish(Subject(t.SessionID), data)
}

// Healthy reports whether the connection is up.
func (n *NATS) Healthy() bool {
	return n != nil && n.conn != nil && n.conn.Status() == nats.CONNECTED
}

// Close drains pending publishes and closes the connection.
func (n *NATS) Close() error {
	if n == nil {
		return nil
	}
	err := n.conn.Drain()
	n.conn.Close()
	return err
}
