package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isstrack_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "isstrack_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	tleFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isstrack_tle_fetch_total",
			Help: "TLE catalog fetch attempts by result.",
		},
		[]string{"result"},
	)

	tleFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "isstrack_tle_fetch_duration_seconds",
			Help:    "TLE catalog fetch duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	tleCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isstrack_tle_cache_requests_total",
			Help: "TLE cache lookups by result (hit/miss).",
		},
		[]string{"result"},
	)

	tleEpochSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "isstrack_tle_epoch_timestamp_seconds",
			Help: "Epoch of the cached element set as a unix timestamp.",
		},
	)

	tleAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "isstrack_tle_cache_age_seconds",
			Help: "Seconds since the cached element set was fetched.",
		},
	)

	passCalcDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "isstrack_pass_calculation_duration_seconds",
			Help:    "Duration of a pass prediction over the search window.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	passesFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "isstrack_passes_found_total",
			Help: "Valid passes produced by pass predictions.",
		},
	)

	passTriplesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "isstrack_pass_triples_skipped_total",
			Help: "Event triples discarded because they were not rise/culminate/set.",
		},
	)

	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isstrack_stream_connections_total",
			Help: "Position stream connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "isstrack_streams_active",
			Help: "Currently open position streams.",
		},
	)

	streamMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "isstrack_stream_messages_total",
			Help: "Messages sent on position streams.",
		},
	)

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isstrack_stream_errors_total",
			Help: "Position stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		tleFetchTotal,
		tleFetchDuration,
		tleCacheTotal,
		tleEpochSeconds,
		tleAgeSeconds,
		passCalcDuration,
		passesFound,
		passTriplesSkipped,
		streamConnections,
		streamsActive,
		streamMessages,
		streamErrors,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTLEFetch records one catalog fetch attempt.
func RecordTLEFetch(result string, d time.Duration) {
	tleFetchTotal.WithLabelValues(result).Inc()
	tleFetchDuration.Observe(d.Seconds())
}

// IncTLECache counts a cache lookup ("hit" or "miss").
func IncTLECache(result string) {
	tleCacheTotal.WithLabelValues(result).Inc()
}

// SetTLEEpoch publishes the epoch of the cached element set.
func SetTLEEpoch(epoch time.Time) {
	tleEpochSeconds.Set(float64(epoch.Unix()))
}

// SetTLEAge publishes the age of the cached element set.
func SetTLEAge(seconds float64) {
	tleAgeSeconds.Set(seconds)
}

// RecordPassCalculation records one prediction's duration and outcome.
func RecordPassCalculation(d time.Duration, found, skipped int) {
	passCalcDuration.Observe(d.Seconds())
	passesFound.Add(float64(found))
	passTriplesSkipped.Add(float64(skipped))
}

func IncStreamConnections(event string) { streamConnections.WithLabelValues(event).Inc() }
func IncStreamsActive()                 { streamsActive.Inc() }
func DecStreamsActive()                 { streamsActive.Dec() }
func IncStreamMessages()                { streamMessages.Inc() }
func IncStreamErrors(reason string)     { streamErrors.WithLabelValues(reason).Inc() }

// knownRoutes are exact paths reported as their own label.
var knownRoutes = map[string]bool{
	"/":                       true,
	"/healthz":                true,
	"/readyz":                 true,
	"/metrics":                true,
	"/app.js":                 true,
	"/styles.css":             true,
	"/index.html":             true,
	"/api/v1/position":        true,
	"/api/v1/cities":          true,
	"/api/v1/passes":          true,
	"/api/v1/passes/summary":  true,
	"/api/v1/tle":             true,
	"/api/v1/tle/refresh":     true,
	"/api/v1/stream/position": true,
}

// normalizeRoute maps a request path to a bounded label set so that
// arbitrary paths cannot blow up metric cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if strings.HasPrefix(path, "/api/v1/passes/") {
		return "/api/v1/passes/{city}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through to the underlying writer so SSE keeps working.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
