package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/star/isstrack/internal/api"
	"github.com/star/isstrack/internal/auth"
	"github.com/star/isstrack/internal/locations"
	"github.com/star/isstrack/internal/metrics"
	"github.com/star/isstrack/internal/passes"
	"github.com/star/isstrack/internal/stream"
	"github.com/star/isstrack/internal/tle"
	"github.com/star/isstrack/internal/tracker"
	"github.com/star/isstrack/web"
)

func main() {
	// A missing .env is normal outside development.
	envErr := godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(os.Getenv("ISSTRACK_LOG_LEVEL")),
	}))
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("could not load .env file", "error", envErr)
	}

	addr := os.Getenv("ISSTRACK_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	cities, err := locations.Load(os.Getenv("ISSTRACK_CITIES_FILE"))
	if err != nil {
		logger.Error("invalid city table", "error", err)
		os.Exit(1)
	}
	logger.Info("city table loaded", "cities", len(cities.Names()), "default", cities.DefaultCity().Name)

	tleCfg := loadTLEConfig(logger)
	fetcher := tle.NewFetcher(tleCfg.SourceURL, tleCfg.Timeout, logger)
	tleCache := tle.NewCache(fetcher, tleCfg.TTL, logger)

	calc := passes.NewCalculator(loadPassConfig(logger), logger)
	trk := tracker.New(tleCache, nil, calc, logger)

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(trk, streamCfg, logger)

	srv := api.NewServer(api.Config{
		Addr:       addr,
		Auth:       authCfg,
		TrustProxy: streamCfg.TrustProxy,
		Ready: func() bool {
			_, ok := tleCache.Peek()
			return ok
		},
	}, logger, trk, cities, streamHandler, web.Content)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm the cache so the first page load does not wait on the catalog.
	go func() {
		if _, err := trk.Elements(ctx); err != nil {
			logger.Warn("initial TLE fetch failed, cached until TTL expiry or manual refresh", "error", err)
		}
	}()

	// Background goroutine to update the TLE age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := tleCache.AgeSeconds(); age >= 0 {
					metrics.SetTLEAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "tle_source", fetcher.SourceURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func parseLogLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv("ISSTRACK_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("ISSTRACK_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("ISSTRACK_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("ISSTRACK_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

type tleConfig struct {
	SourceURL string
	TTL       time.Duration
	Timeout   time.Duration
}

func loadTLEConfig(logger *slog.Logger) tleConfig {
	cfg := tleConfig{
		SourceURL: tle.DefaultSourceURL,
		TTL:       tle.DefaultTTL,
		Timeout:   tle.DefaultTimeout,
	}

	if v := os.Getenv("ISSTRACK_TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}

	if v := os.Getenv("ISSTRACK_TLE_TTL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ISSTRACK_TLE_TTL value, using default", "value", v, "default", 3600)
		} else {
			cfg.TTL = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ISSTRACK_TLE_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ISSTRACK_TLE_TIMEOUT value, using default", "value", v, "default", 10)
		} else {
			cfg.Timeout = time.Duration(n) * time.Second
		}
	}

	logger.Info("TLE config",
		"source_url", cfg.SourceURL,
		"ttl_seconds", cfg.TTL.Seconds(),
		"timeout_seconds", cfg.Timeout.Seconds(),
	)

	return cfg
}

func loadPassConfig(logger *slog.Logger) passes.Config {
	cfg := passes.DefaultConfig()

	if v := os.Getenv("ISSTRACK_PASS_WINDOW_HOURS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 30*24 {
			logger.Warn("invalid ISSTRACK_PASS_WINDOW_HOURS value, using default", "value", v, "default", 120)
		} else {
			cfg.Window = time.Duration(n) * time.Hour
		}
	}

	if v := os.Getenv("ISSTRACK_PASS_MIN_ELEVATION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f >= 90 {
			logger.Warn("invalid ISSTRACK_PASS_MIN_ELEVATION value, using default", "value", v, "default", 10)
		} else {
			cfg.MinAltitudeDeg = f
		}
	}

	logger.Info("pass config",
		"window_hours", cfg.Window.Hours(),
		"min_elevation_deg", cfg.MinAltitudeDeg,
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		MaxTotal:           1000,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("ISSTRACK_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ISSTRACK_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("ISSTRACK_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ISSTRACK_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ISSTRACK_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid ISSTRACK_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}
