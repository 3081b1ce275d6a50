package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/observability"
	"github.com/vrcneta/topic-gateway/internal/origin"
)

// StreamPath is where the extension opens its session WebSocket
const StreamPath = "/streams/session"

// RouterConfig wires the HTTP surfaces together. Stream and Readiness may
// be nil; a nil Origins uses the default extension-only policy.
type RouterConfig struct {
	API            *Handler
	Stream         http.Handler
	Readiness      *observability.Readiness
	Origins        *origin.Policy
	MetricsEnabled bool
	Logger         zerolog.Logger
}

// NewRouter builds the service's HTTP router
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(cfg.Logger))
	origins := cfg.Origins
	if origins == nil {
		origins = origin.NewPolicy(nil)
	}
	r.Use(CORS(origins))

	r.Get("/health", observability.HealthCheckHandler())
	if cfg.Readiness != nil {
		r.Get("/ready", observability.ReadinessHandler(cfg.Readiness))
	}
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	if cfg.Stream != nil {
		r.Handle(StreamPath, cfg.Stream)
	}

	if cfg.API != nil {
		r.Route("/api", cfg.API.RegisterRoutes)
	}

	return r
}

// RequestLogger logs each request with zerolog
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = observability.WithComponent(logger, "http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			event := logger.Debug()
			if ww.Status() >= http.StatusInternalServerError {
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("HTTP request")
		})
	}
}

// CORS lets allowed browser origins call the API and rejects the rest.
// Requests without an Origin header pass through untouched.
func CORS(policy *origin.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestOrigin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			if !policy.Allowed(requestOrigin) {
				RespondError(w, apperr.Newf(apperr.PermissionDenied, "origin %q is not allowed", requestOrigin))
				return
			}

			if requestOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", requestOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
