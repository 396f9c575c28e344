package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"github.com/JakeFAU/shotapi/internal/capture"
	"github.com/JakeFAU/shotapi/internal/config"
	"github.com/JakeFAU/shotapi/internal/metrics"
	"github.com/JakeFAU/shotapi/internal/pipeline"
	"github.com/JakeFAU/shotapi/internal/policy/ratelimit"
)

// Capturer produces captures for validated requests.
type Capturer interface {
	Capture(ctx context.Context, req capture.Request) (pipeline.Result, error)
}

// CacheClearer empties the capture cache.
type CacheClearer interface {
	Clear(ctx context.Context) error
}

// Readiness reports whether captures can currently be rendered.
type Readiness interface {
	Ready(ctx context.Context) error
}

// Options carries the optional collaborators and settings of a Server.
type Options struct {
	Auth    config.AuthConfig
	CORS    config.CORSConfig
	Limiter *ratelimit.Limiter
	IDs     capture.IDGenerator
	Version string
	Logger  *zap.Logger
}

// Server wires HTTP handlers to the capture pipeline.
type Server struct {
	router   chi.Router
	capturer Capturer
	cache    CacheClearer
	ready    Readiness
	auth     config.AuthConfig
	version  string
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(capturer Capturer, cache CacheClearer, ready Readiness, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		capturer: capturer,
		cache:    cache,
		ready:    ready,
		auth:     opts.Auth,
		version:  version,
		logger:   logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestIDMiddleware(opts.IDs))
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(securityHeaders().Handler)
	r.Use(corsMiddleware(opts.CORS))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/", s.info)
	r.Get("/health", s.health)
	r.Get("/healthz", s.health)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later.")
			}))
		}
		r.Get("/screenshot", s.screenshot)
		r.Post("/clear-cache", s.clearCache)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "ShotAPI",
		"version":     s.version,
		"description": "A simple API for capturing screenshots of web pages",
		"endpoints": []endpoint{
			{Method: http.MethodGet, Path: "/screenshot", Description: "Capture a screenshot"},
			{Method: http.MethodPost, Path: "/clear-cache", Description: "Clear the capture cache"},
			{Method: http.MethodGet, Path: "/health", Description: "Health check endpoint"},
		},
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ready(r.Context()); err != nil {
			s.logger.Warn("not ready", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "renderer unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) screenshot(w http.ResponseWriter, r *http.Request) {
	req, err := capture.NewRequest(queryParams(r.URL.Query()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.auth.Enabled && !keyMatches(apiKey(r), s.auth.APIKey) {
		s.logger.Warn("unauthorized request: invalid or missing API key")
		writeError(w, http.StatusUnauthorized, unauthorizedMessage)
		return
	}

	h := w.Header()
	h.Set("Cross-Origin-Resource-Policy", "cross-origin")
	h.Set("Cross-Origin-Embedder-Policy", "unsafe-none")
	h.Set("Cross-Origin-Opener-Policy", "unsafe-none")

	res, err := s.capturer.Capture(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	h.Set("Content-Type", res.Kind.ContentType())
	h.Set("Content-Length", strconv.Itoa(len(res.Payload)))
	h.Set("X-Cache", string(res.Status))
	if res.Key != "" {
		h.Set("X-Cache-Key", res.Key)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Payload); err != nil {
		s.logger.Debug("write capture failed", zap.Error(err))
	}
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	if s.auth.APIKey == "" {
		s.logger.Error("API key authentication required but not configured")
		writeError(w, http.StatusInternalServerError, "Server configuration error")
		return
	}
	if !keyMatches(apiKey(r), s.auth.APIKey) {
		s.logger.Warn("unauthorized request: invalid or missing API key")
		writeError(w, http.StatusUnauthorized, unauthorizedMessage)
		return
	}
	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Error("clear cache failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to clear cache")
		return
	}
	s.logger.Info("cache cleared")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cache cleared successfully"})
}

// queryParams flattens a query string into capture parameters. Repeated names keep their first value.
func queryParams(q url.Values) capture.Params {
	params := make(capture.Params, len(q))
	for name, values := range q {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}
	return params
}

func corsMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Cache", "X-Cache-Key", "X-Request-ID", "Retry-After"},
		MaxAge:         300,
	})
}

// securityHeaders sets the conservative response headers a public API should carry.
func securityHeaders() *secure.Secure {
	return secure.New(secure.Options{
		ContentTypeNosniff:            true,
		FrameDeny:                     true,
		ReferrerPolicy:                "no-referrer",
		XDNSPrefetchControl:           "off",
		XPermittedCrossDomainPolicies: "none",
		CrossOriginOpenerPolicy:       "same-origin",
		CrossOriginResourcePolicy:     "same-origin",
	})
}
