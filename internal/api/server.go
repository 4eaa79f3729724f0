package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/app"
	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/crawler"
	"github.com/JakeFAU/static-mirror/internal/deployer"
	"github.com/JakeFAU/static-mirror/internal/logging"
	"github.com/JakeFAU/static-mirror/internal/metrics"
)

// Service is the set of operations the handlers drive. *app.App satisfies it.
type Service interface {
	StartGenerate(ctx context.Context) (archive.Archive, error)
	GenerateStep(ctx context.Context) (crawler.StepResult, error)
	StartDeploy(ctx context.Context) (int, error)
	DeployStep(ctx context.Context) (deployer.StepResult, error)
	TestDeploy(ctx context.Context) error
	ResetCache(ctx context.Context) error
	Status(ctx context.Context) (app.Status, error)
	Cleanup(retain int) (int, error)
	Reset(ctx context.Context) error
	Close()
}

// Factory builds a Service from configuration overrides submitted with a
// generate or deploy request.
type Factory func(ctx context.Context, overrides map[string]any) (Service, error)

// Server wires HTTP handlers to the current Service. Requests are handled
// one at a time since every run shares the same queues.
type Server struct {
	router  chi.Router
	mu      sync.Mutex
	service Service
	factory Factory
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service Service, factory Factory, apiKey string, logger *zap.Logger) *Server {
	s := &Server{
		service: service,
		factory: factory,
		logger:  logging.Component(logger, "api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if apiKey != "" {
			r.Use(apiKeyMiddleware(apiKey))
		}
		r.Post("/generate", s.startGenerate)
		r.Post("/generate/step", s.generateStep)
		r.Post("/deploy", s.startDeploy)
		r.Post("/deploy/step", s.deployStep)
		r.Post("/deploy/test", s.testDeploy)
		r.Get("/status", s.status)
		r.Post("/cleanup", s.cleanup)
		r.Post("/reset", s.reset)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the current Service.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.service != nil {
		s.service.Close()
		s.service = nil
	}
}

type startRequest struct {
	Overrides  map[string]any `json:"overrides"`
	ResetCache bool           `json:"reset_cache"`
}

type cleanupRequest struct {
	Retain *int `json:"retain"`
}

// errNoService is returned when a rebuild failed and left no Service.
var errNoService = errors.New("no configuration loaded")

func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// swap replaces the Service when overrides were submitted. Callers hold mu.
func (s *Server) swap(ctx context.Context, overrides map[string]any) error {
	if len(overrides) == 0 {
		if s.service == nil {
			return errNoService
		}
		return nil
	}
	if s.factory == nil {
		return errors.New("configuration overrides are not supported")
	}
	next, err := s.factory(ctx, overrides)
	if err != nil {
		return err
	}
	if s.service != nil {
		s.service.Close()
	}
	s.service = next
	s.logger.Info("configuration reloaded", zap.Int("overrides", len(overrides)))
	return nil
}

// withService runs fn against the current Service under the lock.
func (s *Server) withService(w http.ResponseWriter, fn func(Service) (any, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.service == nil {
		writeError(w, http.StatusServiceUnavailable, errNoService.Error())
		return
	}
	out, err := fn(s.service)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var statusErr *deployer.StatusError
	switch {
	case errors.Is(err, archive.ErrNoCurrentArchive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errNoService):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
