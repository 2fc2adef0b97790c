package passes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/isstrack/internal/metrics"
	"github.com/star/isstrack/internal/propagation"
)

const (
	// DefaultWindow is how far ahead passes are searched.
	DefaultWindow = 5 * 24 * time.Hour
	// DefaultMinAltitude is the visibility threshold in degrees above the horizon.
	DefaultMinAltitude = 10.0

	riseTimeLayout = "2006-01-02 15:04"
)

// ErrInvalidCoordinate is returned for observer coordinates outside
// [-90,90] x [-180,180].
var ErrInvalidCoordinate = errors.New("coordinate out of range")

// Pass is one rise/culminate/set triple with the values derived from it.
type Pass struct {
	Rise            time.Time `json:"rise"`
	Culminate       time.Time `json:"culminate"`
	Set             time.Time `json:"set"`
	MaxAltitudeDeg  float64   `json:"max_altitude_deg"`
	AzimuthDeg      float64   `json:"azimuth_deg"`
	DurationMinutes float64   `json:"duration_minutes"`
}

// Row is the display form of a Pass.
type Row struct {
	RiseTime    string `json:"rise_time_utc"`
	MaxAltitude string `json:"max_altitude"`
	Direction   string `json:"direction"`
	Duration    string `json:"duration_min"`
}

// Row formats the pass with one decimal place and a minute-resolution UTC
// rise time.
func (p Pass) Row() Row {
	return Row{
		RiseTime:    p.Rise.UTC().Format(riseTimeLayout),
		MaxAltitude: fmt.Sprintf("%.1f°", p.MaxAltitudeDeg),
		Direction:   fmt.Sprintf("%.1f°", p.AzimuthDeg),
		Duration:    fmt.Sprintf("%.1f", p.DurationMinutes),
	}
}

// Rows formats passes in order. The result is never nil.
func Rows(passes []Pass) []Row {
	rows := make([]Row, 0, len(passes))
	for _, p := range passes {
		rows = append(rows, p.Row())
	}
	return rows
}

// Config controls the search window and visibility threshold.
// MinAltitudeDeg is used as given, so 0 searches from the horizon.
type Config struct {
	Window         time.Duration
	MinAltitudeDeg float64
}

// DefaultConfig returns a five-day window and a 10° threshold.
func DefaultConfig() Config {
	return Config{Window: DefaultWindow, MinAltitudeDeg: DefaultMinAltitude}
}

// Calculator turns event searches into pass records. It holds no state
// between calls and is safe for concurrent use.
type Calculator struct {
	config Config
	logger *slog.Logger
}

// NewCalculator creates a Calculator. A non-positive Window selects
// DefaultWindow.
func NewCalculator(cfg Config, logger *slog.Logger) *Calculator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Calculator{config: cfg, logger: logger}
}

// Window returns the search window length.
func (c *Calculator) Window() time.Duration {
	return c.config.Window
}

// MinAltitude returns the visibility threshold in degrees.
func (c *Calculator) MinAltitude() float64 {
	return c.config.MinAltitudeDeg
}

// Calculate returns the passes over coord in [now, now+window), in
// chronological order. No passes is a valid, empty result.
func (c *Calculator) Calculate(ctx context.Context, sat propagation.Satellite, ts propagation.Timescale, coord propagation.GeoCoordinate) ([]Pass, error) {
	if !coord.Valid() {
		return nil, fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, coord.Latitude, coord.Longitude)
	}

	start := time.Now()
	t0 := ts.Now()
	t1 := t0.Add(c.config.Window)

	events, err := sat.FindEvents(ctx, coord, t0, t1, c.config.MinAltitudeDeg)
	if err != nil {
		return nil, fmt.Errorf("finding events: %w", err)
	}

	triples, skipped := GroupEvents(events)
	if skipped > 0 {
		c.logger.Debug("discarded incomplete event triples",
			"component", "passes",
			"skipped", skipped,
			"events", len(events),
		)
	}

	passes := make([]Pass, 0, len(triples))
	for _, tr := range triples {
		rise, culm, set := tr[0].Time, tr[1].Time, tr[2].Time
		tc, err := sat.Topocentric(coord, culm)
		if err != nil {
			return nil, fmt.Errorf("look angles at culmination %s: %w", culm.Format(time.RFC3339), err)
		}
		passes = append(passes, Pass{
			Rise:            rise,
			Culminate:       culm,
			Set:             set,
			MaxAltitudeDeg:  tc.AltitudeDeg,
			AzimuthDeg:      tc.AzimuthDeg,
			DurationMinutes: set.Sub(rise).Minutes(),
		})
	}

	duration := time.Since(start)
	metrics.RecordPassCalculation(duration, len(passes), skipped)
	c.logger.Debug("passes calculated",
		"component", "passes",
		"satellite", sat.Name(),
		"latitude", coord.Latitude,
		"longitude", coord.Longitude,
		"passes", len(passes),
		"duration_ms", duration.Milliseconds(),
	)
	return passes, nil
}

// GroupEvents walks events in consecutive, non-overlapping triples from the
// start and keeps those reading exactly rise, culminate, set. Any other
// triple and a trailing partial group are dropped; skipped counts both.
func GroupEvents(events []propagation.Event) ([][3]propagation.Event, int) {
	triples := make([][3]propagation.Event, 0, len(events)/3)
	skipped := 0

	i := 0
	for ; i+2 < len(events); i += 3 {
		if events[i].Kind != propagation.Rise ||
			events[i+1].Kind != propagation.Culminate ||
			events[i+2].Kind != propagation.Set {
			skipped++
			continue
		}
		triples = append(triples, [3]propagation.Event{events[i], events[i+1], events[i+2]})
	}
	if i < len(events) {
		skipped++
	}
	return triples, skipped
}
