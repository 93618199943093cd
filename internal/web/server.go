// Package web serves the track widget HTTP API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

const (
	// DefaultAddr is the default server address.
	DefaultAddr = "127.0.0.1:3000"

	// WidgetPath is the route of the track widget endpoint.
	WidgetPath = "/api/spotify/track-widget"

	shutdownTimeout = 10 * time.Second

	// A widget request makes at most this many upstream calls:
	// token refresh, currently playing and recently played.
	widgetUpstreamCalls = 3
	writeTimeoutMargin  = 5 * time.Second
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr         string
	APIAccessKey string
	// RateLimit is requests per second allowed on the widget route; zero disables limiting.
	RateLimit float64
	RateBurst int
	// WriteTimeout bounds a whole response; zero means no limit.
	WriteTimeout time.Duration
}

// WriteTimeoutFor returns a write timeout long enough for a widget request
// whose upstream calls are each bounded by upstream. Zero stays zero.
func WriteTimeoutFor(upstream time.Duration) time.Duration {
	if upstream <= 0 {
		return 0
	}
	return widgetUpstreamCalls*upstream + writeTimeoutMargin
}

// Server is the HTTP server for the widget API.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   *log.Logger
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig, handlers *Handlers, logger *log.Logger) (*Server, error) {
	if cfg.APIAccessKey == "" {
		return nil, errors.New("API access key is required")
	}

	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	router := chi.NewRouter()

	s := &Server{
		router:   router,
		handlers: handlers,
		logger:   logger,
	}

	s.setupMiddleware()
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
	}

	return s, nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  s.logger.StandardLog(),
		NoColor: true,
	}))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes(cfg ServerConfig) {
	s.router.Get("/healthz", s.handlers.Health)

	s.router.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			burst := max(cfg.RateBurst, 1)
			r.Use(RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)))
		}
		r.Use(RequireAccessKey(cfg.APIAccessKey))
		r.Get(WidgetPath, s.handlers.TrackWidget)
	})
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", "http://"+ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
