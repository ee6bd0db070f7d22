package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Config struct {
	Addr          string
	TriggerSecret string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func NewRouter(handlers *SyncHandlers, secret string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", HandleHealth)

	r.Route("/api/sync", func(r chi.Router) {
		r.Use(AuthMiddleware(secret))

		r.Post("/agents", handlers.HandleSyncAgents)
		r.Post("/listings", handlers.HandleSyncListings)
		r.Post("/all", handlers.HandleSyncAll)
		r.Post("/reset", handlers.HandleReset)
	})

	return r
}

func NewServer(cfg Config, handlers *SyncHandlers, logger *slog.Logger) *Server {
	logger = logger.With("component", "http")
	if cfg.TriggerSecret == "" {
		logger.Warn("trigger secret is empty, sync endpoints will refuse every request")
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(handlers, cfg.TriggerSecret, logger),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Start blocks until the server stops. It returns nil after Stop.
func (s *Server) Start() error {
	s.logger.Info("starting http server", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.httpServer.Shutdown(ctx)
}
