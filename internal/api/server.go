// Package api serves stored run metadata, failures and search results over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nishad/srafetch/internal/database"
	"github.com/nishad/srafetch/internal/metrics"
	"github.com/nishad/srafetch/internal/search"
)

// Server represents the HTTP API server
type Server struct {
	router  *mux.Router
	server  *http.Server
	db      *database.DB
	index   *search.Index
	metrics *metrics.Metrics
	logger  *slog.Logger
	limit   int
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	EnableCORS   bool
	DefaultLimit int
	Logger       *slog.Logger
}

// NewServer wires the routes. index and m may be nil, which disables search
// and /metrics respectively. The caller keeps ownership of db and index.
func NewServer(cfg Config, db *database.DB, index *search.Index, m *metrics.Metrics) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = 20
	}

	s := &Server{
		router:  mux.NewRouter(),
		db:      db,
		index:   index,
		metrics: m,
		logger:  logger,
		limit:   limit,
	}
	s.setupRoutes()

	if cfg.EnableCORS {
		s.router.Use(corsMiddleware)
	}
	s.router.Use(s.loggingMiddleware)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(jsonMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/runs/{accession}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/metadata", s.handleMetadataTSV).Methods("GET")
	api.HandleFunc("/failures", s.handleFailures).Methods("GET")
	api.HandleFunc("/search", s.handleSearch).Methods("GET")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	s.router.HandleFunc("/", s.handleRoot).Methods("GET")
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "uri", r.RequestURI, "elapsed", time.Since(start))
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encoding JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   true,
		"message": message,
		"status":  status,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":        "srafetch",
		"description": "Stored SRA run metadata, failures and search",
		"endpoints": map[string]string{
			"health":   "/api/v1/health",
			"stats":    "/api/v1/stats",
			"runs":     "/api/v1/runs",
			"metadata": "/api/v1/metadata",
			"failures": "/api/v1/failures",
			"search":   "/api/v1/search",
		},
	})
}
