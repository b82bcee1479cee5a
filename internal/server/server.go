package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/me/tickloop/internal/logging"
	"github.com/me/tickloop/internal/monitor"
	"github.com/me/tickloop/internal/sim"
	"github.com/me/tickloop/internal/store"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server is the tickd REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	host      *sim.Host
	store     store.Store      // optional; enables /runs
	monitor   *monitor.Monitor // optional; enables /ws
	upgrader  websocket.Upgrader
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore sets the run journal served under /api/v1/runs.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithMonitor sets the monitor whose samples are streamed on /api/v1/ws.
func WithMonitor(m *monitor.Monitor) Option {
	return func(s *Server) {
		s.monitor = m
	}
}

// New creates a new Server with all routes registered.
func New(host *sim.Host, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logging.OrDiscard(logger).With("component", "server"),
		startTime: time.Now(),
		host:      host,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Post("/stop", s.handleStop)

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.handleListEntities)
			r.Post("/", s.handleSpawnEntity)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEntity)
				r.Delete("/", s.handleDespawnEntity)
			})
		})

		if s.store != nil {
			r.Route("/runs", func(r chi.Router) {
				r.Get("/", s.handleListRuns)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRun)
					r.Get("/samples", s.handleListSamples)
				})
			})
		}

		if s.monitor != nil {
			r.Get("/ws", s.handleWebSocket)
		}
	})
}
