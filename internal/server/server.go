// Package server implements the videoup HTTP server.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/videoup/videoup/internal/config"
	"github.com/videoup/videoup/internal/handlers"
	"github.com/videoup/videoup/internal/storage"
	"github.com/videoup/videoup/internal/upload"
)

// readinessTimeout bounds the store round trip made by /readyz.
const readinessTimeout = 5 * time.Second

// Server is the videoup HTTP server.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	coord      *upload.Coordinator
	backend    storage.Backend
	memory     *storage.MemoryBackend
	multi      *handlers.MultipartHandler
	object     *handlers.ObjectHandler
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoints.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoints.
type HealthOutput struct {
	Body HealthBody
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMemoryBackend mounts b under storage.MemoryPathPrefix so that the
// URLs it presigns can be used against this server.
func WithMemoryBackend(b *storage.MemoryBackend) ServerOption {
	return func(s *Server) {
		s.memory = b
	}
}

// New creates a Server routing the videos API onto coord. backend is used
// for readiness checks only.
func New(cfg *config.Config, coord *upload.Coordinator, backend storage.Backend, opts ...ServerOption) *Server {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	humaConfig := huma.DefaultConfig("videoup upload API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:     cfg,
		router:  router,
		api:     api,
		coord:   coord,
		backend: backend,
		multi:   handlers.NewMultipartHandler(coord),
		object:  handlers.NewObjectHandler(coord, cfg.Upload.MaxDirectSize),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	return s
}

// Handler returns the root handler with the outer middleware applied.
// Middleware chain: metricsMiddleware -> commonHeaders -> router.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	handler = commonHeaders(handler)
	if s.cfg.Observability.Metrics {
		handler = metricsMiddleware(handler)
	}
	return handler
}

// ListenAndServe starts the HTTP server on the given address.
// The returned http.Server is stored so it can be shut down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router.
func (s *Server) registerRoutes() {
	if s.cfg.Observability.HealthCheck {
		huma.Register(s.api, huma.Operation{
			OperationID: "get-health",
			Method:      http.MethodGet,
			Path:        "/health",
			Summary:     "Health check",
			Description: "Reports that the process is up. Does not contact the object store.",
			Tags:        []string{"System"},
		}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
			return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
		})

		// Register HEAD /health separately (Huma only does one method per registration).
		s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
		})

		huma.Register(s.api, huma.Operation{
			OperationID: "get-readyz",
			Method:      http.MethodGet,
			Path:        "/readyz",
			Summary:     "Readiness check",
			Description: "Reports whether the upload bucket is reachable.",
			Tags:        []string{"System"},
		}, s.readyz)
	}

	if s.cfg.Observability.Metrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	s.multi.Register(s.api)
	s.object.Register(s.api)
	s.router.Post("/videos/upload", s.object.Upload)

	if s.memory != nil {
		s.router.Handle(storage.MemoryPathPrefix+"/*", http.StripPrefix(storage.MemoryPathPrefix, s.memory))
	}
}

func (s *Server) readyz(ctx context.Context, input *struct{}) (*HealthOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()
	if err := s.backend.HealthCheck(ctx, s.coord.Bucket()); err != nil {
		return nil, huma.Error503ServiceUnavailable("object store not ready")
	}
	return &HealthOutput{Body: HealthBody{Status: "ready"}}, nil
}
