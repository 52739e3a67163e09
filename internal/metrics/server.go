package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"docstore-backend/internal/shared/telemetry"
)

// Server exposes the collector as JSON on a dedicated listener, kept apart
// from the client-facing API port.
type Server struct {
	collector *Collector
	srv       *http.Server
}

// NewServer builds the metrics HTTP server for the given port.
func NewServer(collector *Collector, port string) *Server {
	mux := http.NewServeMux()
	s := &Server{collector: collector}
	mux.HandleFunc("/metrics", s.handleMetrics)

	s.srv = &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown; it blocks.
func (s *Server) Start() error {
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.collector.Get()); err != nil {
		telemetry.Error("metrics.encode.failed", map[string]any{"err": err.Error()})
	}
}
