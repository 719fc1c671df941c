package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brokechef/fridgechef/internal/service"
)

// Route prefixes. They match the client's default base URLs so a client
// pointed at http://host/ talks to this server unchanged.
const (
	generatorPrefix = "/api/recipe-generator"
	uploadPrefix    = "/api/upload"
	crudPrefix      = "/api/v1/rest"
)

const defaultKeepalive = 15 * time.Second

type Server struct {
	service   *service.KitchenService
	mux       *http.ServeMux
	keepalive time.Duration
	logger    *slog.Logger
}

type Option func(*Server)

// WithKeepalive sets the interval between SSE keepalive comments.
func WithKeepalive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepalive = d
		}
	}
}

func NewServer(svc *service.KitchenService, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		service:   svc,
		mux:       http.NewServeMux(),
		keepalive: defaultKeepalive,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST "+generatorPrefix+"/generate", s.handleGenerate)
	s.mux.HandleFunc("GET "+generatorPrefix+"/events", s.handleEvents)
	s.mux.HandleFunc("GET "+generatorPrefix+"/generations", s.handleListGenerations)

	s.mux.HandleFunc("POST "+uploadPrefix+"/recipe", s.handleUploadImage)
	s.mux.HandleFunc("GET "+uploadPrefix+"/recipe/{key}", s.handleGetImage)

	s.mux.HandleFunc("POST "+crudPrefix+"/recipes", s.handleCreateRecipe)
	s.mux.HandleFunc("GET "+crudPrefix+"/recipes", s.handleListRecipes)
	s.mux.HandleFunc("GET "+crudPrefix+"/recipes/{id}", s.handleGetRecipe)
	s.mux.HandleFunc("DELETE "+crudPrefix+"/recipes/{id}", s.handleDeleteRecipe)
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully and
// waits for background generations to finish.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:        addr,
		Handler:     s,
		ReadTimeout: 60 * time.Second,
		// Event streams clear their own write deadline.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.service.Wait()
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("write json response failed", "error", err)
	}
}
