// Package stream serves the live ISS position as Server-Sent Events on
// GET /api/v1/stream/position.
//
// Every connection starts with a retry hint and a metadata frame:
//
//	data: {"type":"metadata","name":"ISS (ZARYA)","norad_id":25544,"epoch":"...","tle_age_seconds":1800}
//
// followed by one position frame per interval:
//
//	data: {"type":"position","t":"...","latitude":12.3,"longitude":45.6,"altitude_km":418.2}
//
// Comment lines (":") keep idle proxies from closing the connection.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/star/isstrack/internal/httputil"
	"github.com/star/isstrack/internal/metrics"
	"github.com/star/isstrack/internal/tle"
	"github.com/star/isstrack/internal/tracker"
)

const (
	defaultInterval = 5
	minInterval     = 1
	maxInterval     = 60
)

// Source is what the stream reads from. *tracker.Tracker satisfies it.
type Source interface {
	Elements(ctx context.Context) (tle.ElementSet, error)
	Position(ctx context.Context) (tracker.Position, error)
}

// Config holds streaming limits.
type Config struct {
	MaxConcurrentPerIP int
	MaxTotal           int
	KeepaliveInterval  time.Duration
	TrustProxy         bool
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentPerIP <= 0 {
		c.MaxConcurrentPerIP = 10
	}
	if c.MaxTotal <= 0 {
		c.MaxTotal = 1000
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 30 * time.Second
	}
	return c
}

// Handler serves position streams.
type Handler struct {
	source  Source
	config  Config
	limiter *limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a streaming handler.
func NewHandler(source Source, cfg Config, logger *slog.Logger) *Handler {
	cfg = cfg.withDefaults()
	return &Handler{
		source:  source,
		config:  cfg,
		limiter: newLimiter(cfg.MaxConcurrentPerIP, cfg.MaxTotal),
		logger:  logger,
		now:     time.Now,
	}
}

// Active returns the number of open streams.
func (h *Handler) Active() int {
	return h.limiter.active()
}

// HandlePosition serves GET /api/v1/stream/position?interval=5.
func (h *Handler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	interval := defaultInterval
	if v := r.URL.Query().Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minInterval || n > maxInterval {
			httputil.WriteError(w, http.StatusBadRequest, "invalid interval parameter, must be 1-60")
			return
		}
		interval = n
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream limit exceeded",
			"component", "stream",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}
	defer h.limiter.release(ip)

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()

	// Resolve the element set before committing to a 200 so that a fetch
	// failure still reaches the client as a JSON error.
	set, err := h.source.Elements(ctx)
	if err != nil {
		metrics.IncStreamErrors("tle_fetch")
		h.logger.Warn("stream rejected, TLE unavailable", "component", "stream", "remote_ip", ip, "error", err)
		msg := "Error fetching TLE data: " + err.Error()
		var fe *tracker.FetchError
		if errors.As(err, &fe) {
			msg = fe.UserMessage()
		}
		httputil.WriteError(w, http.StatusBadGateway, msg)
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()
	start := time.Now()
	h.logger.Info("stream connected",
		"component", "stream",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"interval_seconds", interval,
	)

	ew := &eventWriter{
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
		logger:  h.logger,
	}

	defer func() {
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"component", "stream",
			"remote_ip", ip,
			"messages", ew.sent,
			"duration_seconds", int(time.Since(start).Seconds()),
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The server's WriteTimeout would otherwise end long-lived streams.
	if err := ew.rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "component", "stream", "error", err)
	}

	// Jittered 3-7s so clients do not reconnect in lockstep after a restart.
	if err := ew.retry(time.Duration(3000+rand.IntN(4000)) * time.Millisecond); err != nil {
		metrics.IncStreamErrors("send_error")
		return
	}

	if err := ew.send(newMetadata(set, h.now())); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "component", "stream", "remote_ip", ip, "error", err)
		return
	}

	if !h.sendPosition(ctx, ew, ip) {
		return
	}

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !h.sendPosition(ctx, ew, ip) {
				return
			}
			keepalive.Reset(h.config.KeepaliveInterval)

		case <-keepalive.C:
			if err := ew.keepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "component", "stream", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// sendPosition writes one position frame, or an error frame when the
// position cannot be computed. It reports false when the connection is gone.
func (h *Handler) sendPosition(ctx context.Context, ew *eventWriter, ip string) bool {
	pos, err := h.source.Position(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		metrics.IncStreamErrors("position_error")
		h.logger.Warn("stream position error", "component", "stream", "remote_ip", ip, "error", err)
		if err := ew.send(errorMessage{Type: "error", Error: err.Error()}); err != nil {
			return false
		}
		return true
	}
	if err := ew.send(newPosition(pos)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "component", "stream", "remote_ip", ip, "error", err)
		return false
	}
	return true
}
