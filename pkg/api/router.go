package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DIG-Network/dig-propagation-server/internal/logger"
	"github.com/DIG-Network/dig-propagation-server/pkg/api/handlers"
	apiMiddleware "github.com/DIG-Network/dig-propagation-server/pkg/api/middleware"
)

// RateLimits configures the per-key limiters on the public surface.
// Zero request counts disable the corresponding limiter.
type RateLimits struct {
	UploadStartRequests int
	UploadStartWindow   time.Duration
	FetchRequests       int
	FetchWindow         time.Duration
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery (http.ErrAbortHandler passes through and drops the
//     connection, which the fetch surface relies on)
//
// There is deliberately no whole-request timeout middleware: uploads and
// fetches stream for as long as the session TTL allows.
func NewRouter(svc *handlers.Services, limits RateLimits, version string) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	startLimiter := apiMiddleware.NewKeyedLimiter(limits.UploadStartRequests, limits.UploadStartWindow)
	fetchLimiter := apiMiddleware.NewKeyedLimiter(limits.FetchRequests, limits.FetchWindow)

	healthHandler := handlers.NewHealthHandler(svc, version)
	storeHandler := handlers.NewStoreHandler(svc)
	uploadHandler := handlers.NewUploadHandler(svc)
	fetchHandler := handlers.NewFetchHandler(svc)

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	// Upload pipeline
	r.Route("/upload/{storeId}", func(r chi.Router) {
		r.With(apiMiddleware.RateLimit(startLimiter, clientIP)).
			Post("/", uploadHandler.Start)
		r.Route("/{sessionId}", func(r chi.Router) {
			r.Head("/*", uploadHandler.Nonce)
			r.Put("/*", uploadHandler.Put)
		})
	})
	r.Post("/commit/{storeId}/{sessionId}", uploadHandler.Commit)
	r.Post("/abort/{storeId}/{sessionId}", uploadHandler.Abort)

	// Fetch surface
	r.Route("/fetch/{storeId}", func(r chi.Router) {
		r.Use(apiMiddleware.RateLimit(fetchLimiter, fetchKey))
		r.Head("/{roothash}/*", fetchHandler.Head)
		r.Get("/*", fetchHandler.Get)
	})

	// Store probe. Registered last so the literal prefixes above win.
	r.Head("/{storeId}", storeHandler.Head)

	return r
}

// clientIP keys a limiter by the requester's IP (RealIP middleware has
// already normalized RemoteAddr).
func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}

// fetchKey keys the fetch limiter by (ip, store, path).
func fetchKey(r *http.Request) string {
	return fmt.Sprintf("%s|%s|%s", clientIP(r), chi.URLParam(r, "storeId"), r.URL.Path)
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger is a custom middleware that logs requests using the
// internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//   - Healthcheck requests are logged at DEBUG level to reduce noise
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		// Log healthcheck requests at DEBUG to avoid polluting logs
		if isHealthPath(r.URL.Path) {
			logger.Debug("request completed", logArgs...)
		} else {
			logger.Info("request completed", logArgs...)
		}
	})
}
