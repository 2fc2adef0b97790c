package tle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/isstrack/internal/metrics"
)

// DefaultSourceURL is the CelesTrak query for the ISS element set.
const DefaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?NAME=ISS%20(ZARYA)&FORMAT=TLE"

// DefaultTimeout bounds a single catalog request.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 1 << 20

// Fetcher retrieves one element set from a remote catalog.
// Each call is a single attempt; there is no retry.
type Fetcher struct {
	sourceURL  string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewFetcher creates a Fetcher for sourceURL. An empty URL selects the ISS
// catalog query; a non-positive timeout selects 10 seconds.
func NewFetcher(sourceURL string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
		now:    time.Now,
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch performs an HTTP GET and returns the first three lines of the body.
// On any failure the returned ElementSet is the zero value.
func (f *Fetcher) Fetch(ctx context.Context) (ElementSet, error) {
	start := f.now()
	set, err := f.fetch(ctx)
	duration := f.now().Sub(start)

	if err != nil {
		metrics.RecordTLEFetch("error", duration)
		f.logger.Warn("TLE fetch failed",
			"component", "tle",
			"source_url", f.sourceURL,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return ElementSet{}, err
	}

	metrics.RecordTLEFetch("success", duration)
	f.logger.Info("TLE fetched",
		"component", "tle",
		"name", set.Name,
		"norad_id", set.NORADID,
		"epoch", set.Epoch.Format(time.RFC3339),
		"duration_ms", duration.Milliseconds(),
	)
	return set, nil
}

func (f *Fetcher) fetch(ctx context.Context) (ElementSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.sourceURL, nil)
	if err != nil {
		return ElementSet{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return ElementSet{}, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ElementSet{}, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, f.sourceURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return ElementSet{}, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return ElementSet{}, fmt.Errorf("response body exceeds %d byte limit", maxBodyBytes)
	}

	set, err := Parse(string(body))
	if err != nil {
		return ElementSet{}, fmt.Errorf("parsing TLE data: %w", err)
	}
	set.FetchedAt = f.now()
	return set, nil
}
