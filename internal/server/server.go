package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/karmalens/karmalens/internal/config"
	apperrors "github.com/karmalens/karmalens/internal/errors"
	"github.com/karmalens/karmalens/internal/observability"
	"github.com/karmalens/karmalens/internal/server/handlers"
	servermw "github.com/karmalens/karmalens/internal/server/middleware"
)

const (
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
}

// New creates a new HTTP server instance. When api is nil only the health,
// version and metrics endpoints are mounted.
func New(cfg config.ServerConfig, api *handlers.API) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// RequestID → Metrics → Recovery
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		cfg:    cfg,
	}

	s.registerRoutes(api)

	return s
}

// Start listens on the configured address and blocks until the server stops.
// http.ErrServerClosed is returned as nil.
func (s *Server) Start() error {
	addr := s.Addr()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  durationOr(s.cfg.ReadTimeout, defaultReadTimeout),
		WriteTimeout: durationOr(s.cfg.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:  durationOr(s.cfg.IdleTimeout, defaultIdleTimeout),
	}

	if logger := observability.Logger(); logger != nil {
		logger.Info("Starting HTTP server",
			zap.String("host", s.cfg.Host),
			zap.Int("port", s.cfg.Port),
			zap.String("addr", addr))
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server. A context without a
// deadline gets the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, durationOr(s.cfg.ShutdownTimeout, defaultShutdownTimeout))
		defer cancel()
	}
	if logger := observability.Logger(); logger != nil {
		logger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.cfg.Port
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

// HandleError writes err as the JSON error envelope for r.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
