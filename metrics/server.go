package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig configures the optional metrics HTTP server.
type ServerConfig struct {
	// Addr is the listen address, for example ":9090" or "localhost:9090".
	Addr string

	// Gatherer supplies the metric families to expose. Defaults to the
	// process-wide prometheus.DefaultGatherer, which is where this package's
	// collectors register.
	Gatherer prometheus.Gatherer
}

// Server exposes /metrics plus a /healthz probe over HTTP. Use it only when
// the embedding application does not already serve metrics.
type Server struct {
	server  *http.Server
	errChan chan error
}

// NewServer builds the server. It does not listen until Start is called.
func NewServer(config ServerConfig) *Server {
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		server: &http.Server{
			Addr:    config.Addr,
			Handler: mux,
		},
		errChan: make(chan error, 1),
	}
}

// Start begins serving in a goroutine and returns immediately. Startup
// failures surface through Err.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.errChan <- err
		}
	}()
}

// Err returns any error recorded since Start, or nil. Non-blocking.
func (s *Server) Err() error {
	select {
	case err := <-s.errChan:
		return err
	default:
		return nil
	}
}

// Shutdown stops the server, waiting for in-flight requests up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
