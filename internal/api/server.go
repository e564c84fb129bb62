// Package api implements the HTTP surface: the advice API, the chat
// UI, and the operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agriguardian/agriguardian/internal/advice"
	"github.com/agriguardian/agriguardian/internal/buildinfo"
	"github.com/agriguardian/agriguardian/internal/metrics"
	"github.com/agriguardian/agriguardian/internal/sensors"
	"github.com/agriguardian/agriguardian/internal/session"
	"github.com/agriguardian/agriguardian/internal/web"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP server.
type Server struct {
	address  string
	port     int
	pipeline *advice.Pipeline
	sessions *session.Manager
	sensors  sensors.Provider
	metrics  *metrics.Collector
	logger   *slog.Logger
	server   *http.Server

	// SMSHandler, when set, is mounted at POST /sms/inbound so the
	// gateway webhook shares the listener. Set before Start.
	SMSHandler http.Handler
}

// NewServer wires the HTTP surface. sessions and metrics may be nil;
// a nil sessions manager gets a default with the pipeline's history
// limit.
func NewServer(address string, port int, pipeline *advice.Pipeline, provider sensors.Provider, sessions *session.Manager, mc *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if sessions == nil {
		sessions = session.NewManager(pipeline.Variant().Prompt.HistoryLimit)
	}
	return &Server{
		address:  address,
		port:     port,
		pipeline: pipeline,
		sessions: sessions,
		sensors:  provider,
		metrics:  mc,
		logger:   logger.With("component", "api"),
	}
}

// routes builds the full route table.
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/ask", s.handleAsk).Methods(http.MethodPost)
	r.HandleFunc("/api/sensor-data", s.handleSensorData).Methods(http.MethodGet)
	r.HandleFunc("/api/setup", s.handleSetup).Methods(http.MethodPost)
	r.HandleFunc("/api/reset", s.handleReset).Methods(http.MethodPost)

	r.HandleFunc("/api/version", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if s.SMSHandler != nil {
		r.Handle("/sms/inbound", s.SMSHandler).Methods(http.MethodPost)
	}

	// Chat UI takes everything else.
	r.PathPrefix("/").Handler(web.Handler())

	return s.withLogging(r)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // covers the slowest model deadline
	}

	go s.sweepSessions(ctx)

	s.logger.Info("starting HTTP server", "address", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
		s.metrics.HTTPRequest(r.URL.Path, r.Method, strconv.Itoa(rec.status))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// sweepSessions evicts idle browser sessions once an hour.
func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Sweep(); n > 0 {
				s.logger.Debug("swept idle sessions", "count", n)
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}
