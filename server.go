// Package aprilvoice serves streaming speech recognition over WebSocket,
// failing over between recognition providers.
package aprilvoice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/agnivade/aprilvoice/events"
	"github.com/agnivade/aprilvoice/logging"
	"github.com/agnivade/aprilvoice/providers"
)

const (
	serviceName = "AprilVoice API"
	// Version is reported by the root endpoint.
	Version = "1.0.0"

	DefaultAddr        = "0.0.0.0:8000"
	DefaultWorkers     = 2
	DefaultHeartbeat   = 30 * time.Second
	DefaultTaskTimeout = 60 * time.Second

	writeTimeout = 10 * time.Second
)

// Modes reported by /cloud/status.
const (
	ModeCloud = "cloud"
	ModeLocal = "local"
	ModeMock  = "mock"
)

type Server struct {
	srv      *http.Server
	log      logrus.FieldLogger
	provider providers.Provider
	router   *ProviderRouter
	mode     string

	workers        *semaphore.Weighted
	metrics        *Metrics
	metricsHandler http.Handler
	publisher      events.Publisher
	heartbeat      time.Duration
	taskTimeout    time.Duration

	connMu sync.Mutex
	conns  map[*WebConn]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.srv.Addr = addr }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) { s.log = log }
}

// WithWorkers caps concurrent recognition calls across all sessions.
func WithWorkers(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.workers = semaphore.NewWeighted(n)
		}
	}
}

// WithMetrics records session metrics on m and serves handler at /metrics.
func WithMetrics(m *Metrics, handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsHandler = handler
	}
}

// WithPublisher publishes every transcript sent to a client.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// WithHeartbeat sets the idle interval after which a heartbeat is sent.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// WithTaskTimeout bounds a single recognition.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Server) { s.taskTimeout = d }
}

// WithMode sets the mode reported for a provider that is not a router.
func WithMode(mode string) Option {
	return func(s *Server) { s.mode = mode }
}

// New creates a server that recognizes audio with provider. When provider
// is a *ProviderRouter the server runs in cloud mode.
func New(provider providers.Provider, opts ...Option) *Server {
	server := &Server{
		srv: &http.Server{
			Addr:              DefaultAddr,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log:         logging.Discard(),
		provider:    provider,
		mode:        ModeLocal,
		workers:     semaphore.NewWeighted(DefaultWorkers),
		heartbeat:   DefaultHeartbeat,
		taskTimeout: DefaultTaskTimeout,
		conns:       make(map[*WebConn]struct{}),
	}
	if r, ok := provider.(*ProviderRouter); ok {
		server.router = r
		server.mode = ModeCloud
	}
	for _, opt := range opts {
		opt(server)
	}
	if server.router != nil {
		server.router.SetMetrics(server.metrics)
	}
	server.srv.Handler = server.Handler()
	return server
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.log, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(allowAnyOrigin)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/cloud/status", s.handleCloudStatus)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}
	r.Get("/ws/transcribe", s.handleWebSocket)
	return r
}

func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	ASRReady bool   `json:"asr_ready"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, HealthResponse{
		Status:   "healthy",
		Service:  serviceName,
		ASRReady: s.provider != nil,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"name":    serviceName,
		"version": Version,
		"endpoints": map[string]string{
			"health":       "/health",
			"websocket":    "/ws/transcribe",
			"cloud_status": "/cloud/status",
		},
	})
}

// CloudStatus is returned by /cloud/status.
type CloudStatus struct {
	Mode            string `json:"mode"`
	Providers       any    `json:"providers,omitempty"`
	CurrentProvider string `json:"current_provider,omitempty"`
	Message         string `json:"message,omitempty"`
}

func (s *Server) handleCloudStatus(w http.ResponseWriter, _ *http.Request) {
	if s.router != nil {
		writeJSON(w, CloudStatus{
			Mode:            ModeCloud,
			Providers:       s.router.Status(),
			CurrentProvider: s.router.CurrentProvider(),
		})
		return
	}

	msg := "Using local ASR"
	if s.mode == ModeMock {
		msg = "Using mock ASR"
	}
	writeJSON(w, CloudStatus{Mode: s.mode, Message: msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) Start() error {
	s.log.WithField("addr", s.srv.Addr).Info("Starting server")
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	s.log.Info("Shutting down server...")

	s.stopAllConns()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}

func (s *Server) addConn(wc *WebConn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conns[wc] = struct{}{}
}

func (s *Server) removeConn(wc *WebConn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.conns, wc)
}

func (s *Server) connCount() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.conns)
}

// stopAllConns closes every registered session. Sessions remove themselves
// from the registry as their handlers return.
func (s *Server) stopAllConns() {
	s.connMu.Lock()
	conns := make([]*WebConn, 0, len(s.conns))
	for wc := range s.conns {
		conns = append(conns, wc)
	}
	s.connMu.Unlock()

	for _, wc := range conns {
		wc.Stop()
	}
}
