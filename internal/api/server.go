// Package api implements the HTTP query surface and the websocket push
// channel. All state reads and mutations delegate to the orchestrator;
// this package only shapes requests and responses.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jouleworks/gridmind/internal/buildinfo"
	"github.com/jouleworks/gridmind/internal/orchestrator"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	orch    *orchestrator.Orchestrator
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates the API server. Call Start to begin serving. The
// http.Server is built here, not in Start, so Shutdown from another
// goroutine never races the field assignment.
func NewServer(address string, port int, orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		address: address,
		port:    port,
		orch:    orch,
		logger:  logger.With("component", "api"),
	}
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", address, port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: websocket connections are long-lived.
	}
	return s
}

// Handler assembles the full route tree with middleware. Exposed so
// tests can drive it through httptest without a listener.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/devices", s.handleDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}", s.handleDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/control", s.handleControl).Methods(http.MethodPost)
	api.HandleFunc("/readings/latest", s.handleLatestReading).Methods(http.MethodGet)
	api.HandleFunc("/readings", s.handleReadings).Methods(http.MethodGet)
	api.HandleFunc("/forecast", s.handleForecast).Methods(http.MethodGet)
	api.HandleFunc("/recommendations", s.handleRecommendations).Methods(http.MethodGet)
	api.HandleFunc("/recommendations/{id}/apply", s.handleApply).Methods(http.MethodPost)
	api.HandleFunc("/analysis", s.handleAnalysis).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(&recoveryLogger{s.logger}))
	return recovery(cors(s.withLogging(r)))
}

// Start begins serving HTTP requests. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server. Safe to call whether or not
// Start has run.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// recoveryLogger adapts slog to gorilla's recovery handler.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l *recoveryLogger) Println(v ...any) {
	l.logger.Error("handler panic", "detail", fmt.Sprint(v...))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"service": "gridmind",
		"version": buildinfo.Version,
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}
