// Package gateway exposes the HTTP surface: the synchronous and
// asynchronous batch endpoints, the status probe, health and metrics.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/lwoyr/AdsTrendsAPI/internal/config"
	"github.com/lwoyr/AdsTrendsAPI/pkg/coordinator"
	"github.com/lwoyr/AdsTrendsAPI/pkg/metrics"
)

// Server hosts the HTTP listener around the coordinator service.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	service    *coordinator.Service
	logger     *zap.Logger
	metrics    *metrics.Metrics

	// baseCtx parents the background worker so it survives the request
	// that spawned it.
	baseCtx context.Context
}

// New builds the server and its route tree.
func New(cfg config.ServerConfig, service *coordinator.Service, logger *zap.Logger, m *metrics.Metrics) *Server {
	s := &Server{
		service: service,
		logger:  logger.Named("access"),
		metrics: m,
		baseCtx: context.Background(),
	}

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(s.accessLog)
	router.Use(s.recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost", "http://127.0.0.1"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	router.Post("/batch_search_volume", s.handleBatchSearchVolume)
	router.Post("/async/batch_search_volume", s.handleAsyncSubmit)
	router.Get("/async/status", s.handleAsyncStatus)
	router.Get("/healthz", s.handleHealthz)
	if m != nil {
		router.Method(http.MethodGet, "/metrics", m.Handler())
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router exposes the route tree for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
