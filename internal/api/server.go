package api

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/star/isstrack/internal/auth"
	"github.com/star/isstrack/internal/health"
	"github.com/star/isstrack/internal/httputil"
	"github.com/star/isstrack/internal/locations"
	"github.com/star/isstrack/internal/metrics"
	"github.com/star/isstrack/internal/stream"
	"github.com/star/isstrack/internal/tracker"
)

// Config holds server settings.
type Config struct {
	Addr       string
	Auth       auth.Config
	TrustProxy bool
	// Ready backs /readyz. Nil means always ready.
	Ready func() bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, logger *slog.Logger, trk *tracker.Tracker, cities *locations.Table, streams *stream.Handler, webFS fs.FS) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewHandler(cfg, logger, trk, cities, streams, webFS),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			// Pass searches over five days can take a few seconds; SSE
			// streams clear their own deadline.
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, logger *slog.Logger, trk *tracker.Tracker, cities *locations.Table, streams *stream.Handler, webFS fs.FS) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(cfg.Ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/position", positionHandler(logger, trk))
	mux.HandleFunc("GET /api/v1/cities", citiesHandler(cities))
	mux.HandleFunc("GET /api/v1/passes", passesHandler(logger, trk, cities))
	mux.HandleFunc("GET /api/v1/passes/summary", summaryHandler(logger, trk, cities))
	mux.HandleFunc("GET /api/v1/passes/{city}", passesHandler(logger, trk, cities))
	mux.HandleFunc("GET /api/v1/tle", tleHandler(logger, trk))
	mux.HandleFunc("POST /api/v1/tle/refresh", tleRefreshHandler(logger, trk))
	if streams != nil {
		mux.HandleFunc("GET /api/v1/stream/position", streams.HandlePosition)
	}
	if webFS != nil {
		mux.Handle("GET /", http.FileServerFS(webFS))
	}

	// Build middleware chain: metrics -> logging -> request ID -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = requestIDMiddleware(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type requestIDKey struct{}

// RequestID returns the ID assigned to the request, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDMiddleware keeps a caller-supplied X-Request-ID when it parses as
// a UUID and otherwise assigns a fresh v4 one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
				"request_id", sr.Header().Get("X-Request-ID"),
			)
		})
	}
}
