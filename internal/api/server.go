// Package api serves the JSON endpoints, the status WebSocket and the
// embedded dashboard page.
package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/doridoridoriand/ipwatch/internal/log"
	"github.com/doridoridoriand/ipwatch/internal/monitor"
)

const (
	defaultPushInterval = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
	maxBodyBytes        = 1 << 16
)

//go:embed static/index.html
var indexHTML []byte

// Service is the monitor surface the API needs.
type Service interface {
	Status() monitor.StatusView
	Targets() map[string]string
	Add(address, name, credential string) error
	Remove(address, credential string) error
}

// Server handles HTTP requests for the dashboard and API.
type Server struct {
	addr         string
	service      Service
	metrics      http.Handler
	pushInterval time.Duration
	logger       *log.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewServer returns a Server listening on addr once started. metrics may be
// nil, in which case /metrics is not routed.
func NewServer(addr string, service Service, metrics http.Handler, pushInterval time.Duration, logger *log.Logger) *Server {
	if pushInterval <= 0 {
		pushInterval = defaultPushInterval
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Server{
		addr:         addr,
		service:      service,
		metrics:      metrics,
		pushInterval: pushInterval,
		logger:       logger,
	}
}

// Handler returns the routed handler wrapped in request-ID middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /list-ips", s.handleListIPs)
	mux.HandleFunc("POST /add-ip", s.handleAddIP)
	mux.HandleFunc("POST /remove-ip", s.handleRemoveIP)
	mux.HandleFunc("GET /ws/status", s.handleStatusWS)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return withRequestID(s.logger, mux)
}

// Start binds the listener and serves in the background. Cancelling ctx shuts
// the server down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.LogError("api", err, map[string]interface{}{"action": "serve"})
		}
	}()

	go func() {
		<-ctx.Done()
		if err := s.Shutdown(); err != nil {
			s.logger.LogError("api", err, map[string]interface{}{"action": "shutdown"})
		}
	}()

	s.logger.Info("http server listening", map[string]interface{}{"addr": ln.Addr().String()})
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
