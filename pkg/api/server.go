// Package api provides the HTTP surface for the Numify scraper service.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/numify/pkg/auth"
	"github.com/odvcencio/numify/pkg/logging"
	"github.com/odvcencio/numify/pkg/scraper"
	"github.com/odvcencio/numify/pkg/session"
	"github.com/odvcencio/numify/pkg/stream"
)

// Store is the durable backing the API needs: worker writes plus the
// approval checks consumed by start.
type Store interface {
	scraper.Store
	UserExists(ctx context.Context, uid string) (bool, error)
	IsApproved(ctx context.Context, uid string) (bool, error)
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Address to listen on (default: 127.0.0.1:8080)
	Address string

	Registry *session.Registry
	Verifier *auth.Verifier
	Provider scraper.Provider
	Store    Store

	// Events receives structured log events; nil discards them.
	Events *logging.Logger

	// PollInterval is the worker scrape cadence.
	PollInterval time.Duration

	// StreamInterval is the SSE cursor poll cadence.
	StreamInterval time.Duration
}

// Server is the Numify API server.
type Server struct {
	cfg        ServerConfig
	registry   *session.Registry
	verifier   *auth.Verifier
	provider   scraper.Provider
	store      Store
	dispatcher *stream.Dispatcher
	events     *logging.Logger
	logger     *log.Logger
	httpServer *http.Server

	// baseCtx parents every worker; canceling it on shutdown stops all
	// sessions cooperatively.
	baseCtx context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// NewServer creates the API server and its router.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:8080"
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		registry:   cfg.Registry,
		verifier:   cfg.Verifier,
		provider:   cfg.Provider,
		store:      cfg.Store,
		dispatcher: stream.NewDispatcher(cfg.Registry, cfg.StreamInterval),
		events:     cfg.Events,
		logger:     log.New(os.Stderr, "[numify-api] ", log.LstdFlags),
		baseCtx:    baseCtx,
		cancel:     cancel,
	}

	r := chi.NewRouter()
	r.Use(s.corsMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/", s.handleRoot)
	r.Post("/start", s.handleStart)
	r.Post("/stop", s.handleStop)
	r.Get("/status", s.handleStatus)
	r.Get("/stream", s.handleStream)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	s.httpServer = &http.Server{
		Addr:        cfg.Address,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /stream connections are long-lived.
		IdleTimeout: 60 * time.Second,
		// Deriving requests from baseCtx lets Shutdown end open streams.
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the API server and blocks until it exits.
func (s *Server) Start() error {
	s.logger.Printf("listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests, cancels every worker, and waits for
// workers to observe the stop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	refreshSessionGauge(s.registry)
	return err
}

// Helpers
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
