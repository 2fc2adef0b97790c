// Package tracker runs the per-request pipeline: cached element set, then a
// satellite model built from it, then live position or pass predictions.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/isstrack/internal/locations"
	"github.com/star/isstrack/internal/passes"
	"github.com/star/isstrack/internal/propagation"
	"github.com/star/isstrack/internal/tle"
)

// ElementSource supplies the current element set. *tle.Cache satisfies it.
type ElementSource interface {
	Get(ctx context.Context) (tle.ElementSet, error)
	Invalidate()
}

// Position is the sub-satellite point at an instant.
type Position struct {
	Time       time.Time `json:"time"`
	Name       string    `json:"name"`
	NORADID    int       `json:"norad_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AltitudeKm float64   `json:"altitude_km"`
}

// FetchError marks a failure to obtain the element set. Nothing downstream
// runs when it is returned.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return "fetching TLE: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// UserMessage is the text shown to dashboard and API users.
func (e *FetchError) UserMessage() string {
	return "Error fetching TLE data: " + e.Err.Error()
}

// ModelError marks a failure to build the satellite model from a fetched set.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string { return "building satellite model: " + e.Err.Error() }
func (e *ModelError) Unwrap() error { return e.Err }

type model struct {
	set tle.ElementSet
	sat *propagation.SGP4Satellite
}

// Tracker is safe for concurrent use.
type Tracker struct {
	source     ElementSource
	timescale  propagation.Timescale
	calculator *passes.Calculator
	logger     *slog.Logger

	current atomic.Pointer[model]
	buildMu sync.Mutex
}

// New creates a Tracker. A nil timescale reads the system clock.
func New(source ElementSource, ts propagation.Timescale, calc *passes.Calculator, logger *slog.Logger) *Tracker {
	if ts == nil {
		ts = propagation.SystemTimescale{}
	}
	return &Tracker{
		source:     source,
		timescale:  ts,
		calculator: calc,
		logger:     logger,
	}
}

// Calculator returns the pass calculator in use.
func (t *Tracker) Calculator() *passes.Calculator {
	return t.calculator
}

// Elements returns the current element set, fetching when the cache is stale.
func (t *Tracker) Elements(ctx context.Context) (tle.ElementSet, error) {
	set, err := t.source.Get(ctx)
	if err != nil {
		return tle.ElementSet{}, &FetchError{Err: err}
	}
	return set, nil
}

// Refresh drops the cached element set and fetches a new one.
func (t *Tracker) Refresh(ctx context.Context) (tle.ElementSet, error) {
	t.source.Invalidate()
	return t.Elements(ctx)
}

// Satellite returns the satellite model for the current element set.
func (t *Tracker) Satellite(ctx context.Context) (*propagation.SGP4Satellite, error) {
	set, err := t.Elements(ctx)
	if err != nil {
		return nil, err
	}
	return t.modelFor(set)
}

// modelFor returns a cached model when it was built from the same element
// set, otherwise builds and publishes a new one.
func (t *Tracker) modelFor(set tle.ElementSet) (*propagation.SGP4Satellite, error) {
	if m := t.current.Load(); m != nil && m.set.Same(set) {
		return m.sat, nil
	}

	t.buildMu.Lock()
	defer t.buildMu.Unlock()

	if m := t.current.Load(); m != nil && m.set.Same(set) {
		return m.sat, nil
	}

	sat, err := propagation.NewSGP4Satellite(set, t.timescale)
	if err != nil {
		t.logger.Warn("satellite model construction failed",
			"component", "tracker",
			"name", set.Name,
			"error", err,
		)
		return nil, &ModelError{Err: err}
	}
	t.current.Store(&model{set: set, sat: sat})
	t.logger.Info("satellite model rebuilt",
		"component", "tracker",
		"name", sat.Name(),
		"norad_id", set.NORADID,
		"epoch", set.Epoch.Format(time.RFC3339),
	)
	return sat, nil
}

// Position returns the sub-satellite point now.
func (t *Tracker) Position(ctx context.Context) (Position, error) {
	sat, err := t.Satellite(ctx)
	if err != nil {
		return Position{}, err
	}
	now := t.timescale.Now()
	sp, err := sat.SubpointAt(now)
	if err != nil {
		return Position{}, fmt.Errorf("subpoint: %w", err)
	}
	return Position{
		Time:       now,
		Name:       sat.Name(),
		NORADID:    sat.Elements().NORADID,
		Latitude:   sp.LatitudeDeg,
		Longitude:  sp.LongitudeDeg,
		AltitudeKm: sp.AltitudeKm,
	}, nil
}

// Passes predicts visible passes over coord.
func (t *Tracker) Passes(ctx context.Context, coord propagation.GeoCoordinate) ([]passes.Pass, error) {
	sat, err := t.Satellite(ctx)
	if err != nil {
		return nil, err
	}
	return t.calculator.Calculate(ctx, sat, t.timescale, coord)
}

// Summary reports the next pass over each city.
func (t *Tracker) Summary(ctx context.Context, cities []locations.City) ([]passes.CitySummary, error) {
	sat, err := t.Satellite(ctx)
	if err != nil {
		return nil, err
	}
	return t.calculator.Summarize(ctx, sat, t.timescale, cities)
}
