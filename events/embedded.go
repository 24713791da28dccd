package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// Embedded is an in-process NATS server for single-binary deployments.
type Embedded struct {
	ns *server.Server
}

// StartEmbedded starts a NATS server on host:port. Port -1 picks a random
// free port.
func StartEmbedded(host string, port int) (*Embedded, error) {
	ns, err := server.NewServer(&server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded nats server failed to start within 5 seconds")
	}
	return &Embedded{ns: ns}, nil
}

// URL returns the client URL of the server.
func (e *Embedded) URL() string {
	return e.ns.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (e *Embedded) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
