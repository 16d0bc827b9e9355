// Package server provides the gridpower HTTP API.
//
// The server accepts newline-separated readings as streaming text/plain
// uploads and answers range queries as JSON. Request handling is delegated
// to the storage service; the server owns routing, middleware and the
// listener lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/xtxerr/gridpower/internal/logging"
	"github.com/xtxerr/gridpower/internal/storage"
	"github.com/xtxerr/gridpower/internal/storage/config"
	"github.com/xtxerr/gridpower/internal/storage/ingestion"
	"github.com/xtxerr/gridpower/internal/storage/query"
	"github.com/xtxerr/gridpower/internal/storage/types"
)

var log = logging.Component("server")

// =============================================================================
// Backend
// =============================================================================

// Backend is the storage the server delegates to. *storage.Service
// implements it.
type Backend interface {
	Ingest(ctx context.Context, r io.Reader, source string) (ingestion.SessionStats, error)
	Query(ctx context.Context, w query.Window) (query.Result, error)
	Daily(ctx context.Context, w query.Window) ([]types.DaySummary, error)
	Export(ctx context.Context, w query.Window, out io.Writer) (int64, error)
	Rejections(n int) []types.Rejection
	SessionRejections(session string, limit int) []types.Rejection
	Stats() storage.ServiceStats
	IsRunning() bool
}

// =============================================================================
// Server
// =============================================================================

// Server is the gridpower HTTP server.
type Server struct {
	cfg     config.ServerConfig
	backend Backend
	metrics http.Handler

	// AccessLog receives the combined access log. Defaults to stdout.
	AccessLog io.Writer

	router  *mux.Router
	handler http.Handler
}

// New creates a new server. metrics serves GET /metrics; nil disables the
// route.
func New(cfg config.ServerConfig, backend Backend, metrics http.Handler) *Server {
	s := &Server{
		cfg:       cfg,
		backend:   backend,
		metrics:   metrics,
		AccessLog: os.Stdout,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/data", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/data", s.handleQuery).Methods(http.MethodGet)
	r.HandleFunc("/data/daily", s.handleDaily).Methods(http.MethodGet)
	r.HandleFunc("/data/export", s.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/rejects", s.handleRejects).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	if s.handler != nil {
		return s.handler
	}

	var h http.Handler = s.router

	h = cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{headerRequestID, headerSessionID},
	}).Handler(h)

	h = securityHeaders(h)
	h = requestID(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(true),
	)(h)

	if s.cfg.AccessLog && s.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(s.AccessLog, h)
	}

	s.handler = h
	return h
}

// Run listens on the configured address and serves until ctx is canceled.
// In-flight requests are given DrainTimeout to finish.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down", "drain_timeout", s.cfg.DrainTimeout)

	// ctx is already done; draining gets its own deadline
	drainCtx := context.Background()
	if s.cfg.DrainTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(drainCtx, s.cfg.DrainTimeout)
		defer cancel()
	}

	if err := srv.Shutdown(drainCtx); err != nil {
		srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}

// recoveryLogger routes panics caught by the recovery handler to slog.
type recoveryLogger struct{}

func (recoveryLogger) Println(args ...interface{}) {
	log.Error("panic in handler", "error", fmt.Sprint(args...))
}
