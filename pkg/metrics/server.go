package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Server serves a registry on a port of its own, for deployments that
// scrape metrics separately from the recorder API.
type Server struct {
	http   *http.Server
	addr   string
	logger *slog.Logger
}

func NewServer(port int, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(g))
	return &Server{
		http: &http.Server{
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		addr:   fmt.Sprintf(":%d", port),
		logger: slog.Default().With("component", "metrics-server"),
	}
}

// Start binds the port before returning, so a taken port is reported to the
// caller instead of only being logged.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	s.logger.Info("metrics server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
		}
	}()
	return ln.Addr(), nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
