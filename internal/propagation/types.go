package propagation

import (
	"context"
	"fmt"
	"time"
)

// EventKind classifies a horizon event. The numeric values are part of the
// contract: 0=rise, 1=culminate, 2=set.
type EventKind int

const (
	Rise      EventKind = 0
	Culminate EventKind = 1
	Set       EventKind = 2
)

func (k EventKind) String() string {
	switch k {
	case Rise:
		return "rise"
	case Culminate:
		return "culminate"
	case Set:
		return "set"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one horizon event returned by an event search.
type Event struct {
	Time time.Time
	Kind EventKind
}

// GeoCoordinate is an observer location in signed degrees.
type GeoCoordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Valid reports whether the coordinate lies within [-90,90] x [-180,180].
func (c GeoCoordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Subpoint is the ground point beneath the satellite and its height.
type Subpoint struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeKm   float64
}

// Topocentric is the satellite's direction as seen by an observer.
type Topocentric struct {
	AltitudeDeg float64
	AzimuthDeg  float64
	RangeKm     float64
}

// Satellite is the propagation collaborator: everything the tracker and the
// pass calculator need from an orbit model.
type Satellite interface {
	// Name returns the catalog name of the satellite.
	Name() string

	// SubpointAt returns the geodetic point beneath the satellite at t.
	SubpointAt(t time.Time) (Subpoint, error)

	// Topocentric returns altitude/azimuth relative to the observer at t.
	Topocentric(obs GeoCoordinate, t time.Time) (Topocentric, error)

	// FindEvents returns the rise, culminate and set events in [start, end)
	// for the given minimum altitude, ordered by time.
	FindEvents(ctx context.Context, obs GeoCoordinate, start, end time.Time, minAltitudeDeg float64) ([]Event, error)
}

// Timescale supplies the current instant to the orbit model.
type Timescale interface {
	Now() time.Time
}

// SystemTimescale reads the wall clock in UTC.
type SystemTimescale struct{}

// Now returns the current UTC time.
func (SystemTimescale) Now() time.Time { return time.Now().UTC() }

// FixedTimescale always returns the same instant. Used by tests and the CLI's
// -at flag.
type FixedTimescale time.Time

// Now returns the fixed instant.
func (f FixedTimescale) Now() time.Time { return time.Time(f).UTC() }
