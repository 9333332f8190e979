// Package control implements the local HTTP API for driving captures:
// scan the current page, capture one video, capture everything, cancel.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mvanhorn/capscribe/internal/buildinfo"
	"github.com/mvanhorn/capscribe/internal/protocol"
)

// Backend is the application surface the API exposes.
type Backend interface {
	// Scan finds the videos on the active course page.
	Scan(ctx context.Context) (protocol.ScanResponse, error)
	// Process captures one video by scan id, blocking until done.
	Process(ctx context.Context, videoID string) protocol.CaptureResult
	// ProcessAll captures every found video in the background.
	ProcessAll(ctx context.Context) error
	// Cancel stops the in-flight capture.
	Cancel()
	// Reload hard-reloads the course tab. Explicit user action only;
	// the automatic retry remedy reloads just the player frame.
	Reload(ctx context.Context) error
	// Status reports current activity for polling clients.
	Status() Status
}

// Status is the poll-friendly view of what the agent is doing.
type Status struct {
	Busy       bool                    `json:"busy"`
	Video      string                  `json:"video,omitempty"`
	Progress   *protocol.ProgressEvent `json:"progress,omitempty"`
	VideoCount int                     `json:"video_count"`
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the control API server.
type Server struct {
	address string
	port    int
	backend Backend
	logger  *slog.Logger
	server  *http.Server

	mu      sync.Mutex
	started time.Time
}

// NewServer creates a new control server.
func NewServer(address string, port int, backend Backend, logger *slog.Logger) *Server {
	return &Server{
		address: address,
		port:    port,
		backend: backend,
		logger:  logger,
	}
}

// Handler builds the route table. Split out from Start for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("POST /api/process", s.handleProcess)
	mux.HandleFunc("POST /api/process-all", s.handleProcessAll)
	mux.HandleFunc("POST /api/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/reload", s.handleReload)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.started = time.Now()
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.address, s.port),
		Handler: s.Handler(),
		// Process blocks for a whole capture, so the write timeout has
		// to outlast the capture safety timeout plus retries.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
	s.mu.Unlock()

	s.logger.Info("starting control server", "address", s.address, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "CapScribe",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	resp, err := s.backend.Scan(r.Context())
	if err != nil {
		s.logger.Error("scan failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, "scan failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

type processRequest struct {
	Video string `json:"video"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Video == "" {
		s.errorResponse(w, http.StatusBadRequest, "video is required")
		return
	}

	result := s.backend.Process(r.Context(), req.Video)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result, s.logger)
}

func (s *Server) handleProcessAll(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.ProcessAll(r.Context()); err != nil {
		s.logger.Error("process-all failed to start", "error", err)
		s.errorResponse(w, http.StatusConflict, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "started"}, s.logger)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.backend.Cancel()

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "cancelled"}, s.logger)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Reload(r.Context()); err != nil {
		s.logger.Error("tab reload failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, "reload failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "reloaded"}, s.logger)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.backend.Status(), s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
