// Package api exposes the read models and the small set of mutations the
// editorial frontend needs over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"newsdesk/internal/cache"
	"newsdesk/internal/config"
	"newsdesk/internal/queue"
	"newsdesk/internal/search"
	"newsdesk/internal/storage"
	"newsdesk/internal/translate"
)

// Server serves the JSON API.
type Server struct {
	store      *storage.Store
	queue      *queue.Queue
	index      *search.Index
	cache      *cache.Cache
	translator *translate.Service
	logger     *slog.Logger

	trackedJobs []string
	httpServer  *http.Server
}

// New wires the API server. index, cache and translator may be nil.
func New(cfg config.Config, store *storage.Store, q *queue.Queue,
	index *search.Index, c *cache.Cache, translator *translate.Service,
	logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:       store,
		queue:       q,
		index:       index,
		cache:       c,
		translator:  translator,
		logger:      logger,
		trackedJobs: cfg.Monitoring.TrackedJobs,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.handleHealthz)
		r.Get("/review-queue", s.handleReviewQueue)
		r.Get("/articles/{slug}", s.handleArticle)
		r.Get("/trends", s.handleTrends)
		r.Get("/monitoring", s.handleMonitoring)
		r.Get("/translation-health", s.handleTranslationHealth)
		r.Get("/queues", s.handleQueues)
		r.Post("/revalidate/{slug}", s.handleRevalidate)
		r.Post("/push-subscriptions", s.handleSubscribe)
		r.Delete("/push-subscriptions", s.handleUnsubscribe)
	})

	s.httpServer = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
