// Package httpapi serves the collector's operational surface: Prometheus
// metrics and a liveness probe. It deliberately carries none of the flow
// browsing/query endpoints the teacher's API server exposed — those
// belong to whatever reads the Sink's output, not to the collector core.
package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the collector's small HTTP surface.
type Server struct {
	mux *http.ServeMux
}

// NewServer builds a Server exposing /metrics (via reg) and /healthz.
func NewServer(reg *prometheus.Registry) *Server {
	s := &Server{mux: http.NewServeMux()}
	s.mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ListenAndServe starts the HTTP server on addr. It blocks until the
// server stops or returns an error.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}
