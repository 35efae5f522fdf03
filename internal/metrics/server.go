package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dyluth/spigot/internal/stream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status        string `json:"status"`
	RunID         string `json:"run_id,omitempty"`
	RunStatus     string `json:"run_status,omitempty"`
	DigitsWritten uint64 `json:"digits_written"`
	Reason        string `json:"reason,omitempty"`
}

// Server serves /metrics and /healthz for a Recorder.
type Server struct {
	recorder *Recorder
	logger   *slog.Logger
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server; call Start to listen.
func NewServer(recorder *Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{recorder: recorder, logger: logger.With("component", "metrics")}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.recorder.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.healthCheckHandler)
	return mux
}

// Start binds addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
	s.logger.Info("metrics_listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// healthCheckHandler returns 200 while the run is healthy and 503 once it
// has failed.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	last := s.recorder.Last()
	response := HealthResponse{
		Status:        "healthy",
		RunID:         last.RunID,
		RunStatus:     string(last.Status),
		DigitsWritten: last.DigitsWritten,
		Reason:        last.Reason,
	}

	code := http.StatusOK
	if last.Status == stream.StatusFailed {
		response.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
