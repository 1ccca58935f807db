package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quarryfs/quarry/internal/logger"
	"github.com/quarryfs/quarry/pkg/api/handlers"
	"github.com/quarryfs/quarry/pkg/service"
)

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /stats - Cache-wide counters
//   - GET /metrics - Prometheus metrics (when metrics are enabled)
//   - GET /objects - List indexed objects
//   - GET /objects/{key} - Index entry, or the object body with ?stream=1
//   - DELETE /objects/{key} - Drop an object from the cache
//   - POST /objects/invalidate/{key} - Drop cached bytes, keep the object
//
// metricsHandler may be nil, in which case /metrics is not registered.
func NewRouter(svc *service.Service, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	healthHandler := handlers.NewHealthHandler(svc)
	statsHandler := handlers.NewStatsHandler(svc)
	objectsHandler := handlers.NewObjectsHandler(svc)

	// Bounded requests get a hard timeout.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/health", func(r chi.Router) {
			r.Get("/", healthHandler.Liveness)
			r.Get("/ready", healthHandler.Readiness)
		})

		r.Get("/stats", statsHandler.Get)

		if metricsHandler != nil {
			r.Method(http.MethodGet, "/metrics", metricsHandler)
		}

		// Root redirect to health for convenience
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
		})
	})

	// Object routes run without the request timeout: a stream lasts as
	// long as the transfer does, and the server write timeout already
	// bounds it.
	r.Route("/objects", func(r chi.Router) {
		r.Get("/", objectsHandler.List)
		r.Post("/invalidate/*", objectsHandler.Invalidate)
		r.Get("/*", objectsHandler.Get)
		r.Delete("/*", objectsHandler.Remove)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyClientIP, r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyStatus, ww.Status(),
			logger.KeyBytes, ww.BytesWritten(),
			logger.KeyDurationMs, duration.Milliseconds(),
		)
	})
}
