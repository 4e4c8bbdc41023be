// Package httpapi is the read-only monitor surface: health, Prometheus
// scrapes, the run archive API and the live progress stream.
package httpapi

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/quantpulse/stratrun/internal/persistence"
	"github.com/quantpulse/stratrun/internal/telemetry"
	"github.com/quantpulse/stratrun/internal/telemetry/stream"
)

// Config holds server configuration
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the local-only default configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Deps are the collaborators the server exposes. Repo and Health may be nil
// when no archive is configured; Hub may be nil when streaming is off.
type Deps struct {
	Repo    *persistence.Repository
	Health  persistence.RepositoryHealth
	Metrics *telemetry.Metrics
	Hub     *stream.Hub
}

// Server is the monitor HTTP server
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *Handlers
	deps     Deps
	config   Config
}

// NewServer creates the server and verifies the address is bindable
func NewServer(config Config, deps Deps) (*Server, error) {
	listener, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return nil, fmt.Errorf("address %s is busy or unavailable: %w", config.Addr, err)
	}
	listener.Close()

	if deps.Metrics == nil {
		deps.Metrics = telemetry.New()
	}

	s := &Server{
		router:   mux.NewRouter(),
		handlers: NewHandlers(deps.Repo, deps.Health),
		deps:     deps,
		config:   config,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods("GET")
	if s.deps.Hub != nil {
		s.router.HandleFunc("/ws", stream.ServeWS(s.deps.Hub)).Methods("GET")
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handlers.Health).Methods("GET")
	api.HandleFunc("/api/v1/runs", s.handlers.Runs).Methods("GET")
	api.HandleFunc("/api/v1/runs/latest", s.handlers.LatestRun).Methods("GET")
	api.HandleFunc("/api/v1/runs/best", s.handlers.BestRuns).Methods("GET")
	api.HandleFunc("/api/v1/runs/{id}", s.handlers.GetRun).Methods("GET")
	api.HandleFunc("/api/v1/runs/{id}/trades", s.handlers.RunTrades).Methods("GET")
	api.HandleFunc("/api/v1/stats", s.handlers.Stats).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), "request_id", requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID, _ := r.Context().Value("request_id").(string)

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("Request served")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware allows localhost origins only; the monitor is a local tool
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Router exposes the handler tree for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start blocks serving requests until Shutdown or a listener error
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("Monitor server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Monitor server shutting down")
	return s.server.Shutdown(ctx)
}

// Address returns the configured listen address
func (s *Server) Address() string {
	return s.config.Addr
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the logging wrapper
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
