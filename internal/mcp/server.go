package mcp

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/config"
)

// shutdownTimeout bounds graceful shutdown after the serve context ends.
const shutdownTimeout = 30 * time.Second

// Server exposes the tool operations over HTTP and a websocket channel.
type Server struct {
	cfg      config.MCPConfig
	logger   *zap.Logger
	handlers *Handlers
	limiter  *clientLimiter

	// base is the serve context; websocket commands derive from it.
	base atomic.Pointer[context.Context]
}

// NewServer wires the handlers over tools.
func NewServer(cfg config.MCPConfig, tools Tools, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mcp")
	return &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: NewHandlers(logger, tools, cfg.RequestTimeout),
		limiter:  newClientLimiter(cfg.RateLimit, cfg.RateBurst),
	}
}

func (s *Server) baseContext() context.Context {
	if p := s.base.Load(); p != nil {
		return *p
	}
	return context.Background()
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// The websocket route stays outside the request timeout and logger.
	r.Get("/ws/v1/interact", s.handleInteract())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		s.handlers.RegisterRoutes(r)
	})
	return r
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.base.Store(&ctx)

	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		defer close(idleConnsClosed)
		<-ctx.Done()
		s.logger.Info("Shutting down MCP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}()

	s.logger.Info("MCP Server starting", zap.String("address", s.cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server ListenAndServe error", zap.Error(err))
		return err
	}

	<-idleConnsClosed
	s.logger.Info("MCP Server stopped.")
	return nil
}

// corsMiddleware provides basic CORS support for browser based clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
