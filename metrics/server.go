package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/canopy-network/smt/lib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents a server that exposes Prometheus metrics
type Server struct {
	server *http.Server
	addr   string
	log    lib.LoggerI
}

// NewServer() creates a metrics server for the registry of m, nil if disabled
func NewServer(m *Metrics, config lib.MetricsConfig, log lib.LoggerI) *Server {
	if !config.MetricsEnabled || m == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	return &Server{
		server: &http.Server{Addr: config.PrometheusAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		addr:   config.PrometheusAddress,
		log:    log,
	}
}

// Start() serves the metrics in the background
func (s *Server) Start() {
	if s == nil {
		return
	}
	go func() {
		s.log.Infof("Starting metrics server at %s", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("Metrics server failed with err: %s", err.Error())
		}
	}()
}

// Stop() gracefully stops the metrics server
func (s *Server) Stop() error {
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Addr() returns the address the metrics server is listening on
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}
