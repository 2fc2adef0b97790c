package propagation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/isstrack/internal/tle"
	"github.com/star/isstrack/internal/transform"
)

// SGP4 is provided by github.com/joshuaferrara/go-satellite: pure Go, TEME
// output. Propagate takes the satellite by value, so library error codes
// are invisible after initialisation; failures are detected from the output
// instead (NaN/Inf or an implausible radius).

// SGP4Satellite is an immutable, propagatable satellite built from one
// element set. Safe for concurrent use.
type SGP4Satellite struct {
	sat       satellite.Satellite
	set       tle.ElementSet
	timescale Timescale
}

var _ Satellite = (*SGP4Satellite)(nil)

// NewSGP4Satellite initialises SGP4 from an element set. The lines are
// checked before reaching the library because go-satellite calls log.Fatal
// on malformed input.
func NewSGP4Satellite(set tle.ElementSet, ts Timescale) (*SGP4Satellite, error) {
	if !set.Complete() {
		return nil, tle.ErrIncomplete
	}
	if err := validateLines(set.Line1, set.Line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for %q: %w", strings.TrimSpace(set.Name), err)
	}
	if ts == nil {
		ts = SystemTimescale{}
	}

	sat := satellite.TLEToSat(strings.TrimSpace(set.Line1), strings.TrimSpace(set.Line2), satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for %q: code=%d %s", strings.TrimSpace(set.Name), sat.Error, sat.ErrorStr)
	}
	return &SGP4Satellite{sat: sat, set: set, timescale: ts}, nil
}

func validateLines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// Name returns the satellite's catalog name.
func (s *SGP4Satellite) Name() string {
	return strings.TrimSpace(s.set.Name)
}

// Elements returns the element set the satellite was built from.
func (s *SGP4Satellite) Elements() tle.ElementSet {
	return s.set
}

// Now returns the current instant of the satellite's time scale.
func (s *SGP4Satellite) Now() time.Time {
	return s.timescale.Now()
}

// ecef propagates to t and returns the Earth-fixed position in km.
// Resolution is one second; the library takes integer seconds.
func (s *SGP4Satellite) ecef(t time.Time) (transform.Vector, error) {
	t = t.UTC()
	pos, _ := satellite.Propagate(s.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	teme := transform.Vector{X: pos.X, Y: pos.Y, Z: pos.Z}
	if !teme.Finite() {
		return transform.Vector{}, fmt.Errorf("sgp4 propagation failed for %q: output is NaN/Inf", s.Name())
	}
	ecef := transform.TEMEToECEF(teme, t.Truncate(time.Second))
	if !transform.PlausibleOrbit(ecef) {
		return transform.Vector{}, fmt.Errorf("sgp4 propagation failed for %q: implausible radius %.1f km", s.Name(), ecef.Norm())
	}
	return ecef, nil
}

// SubpointAt returns the geodetic sub-satellite point at t.
func (s *SGP4Satellite) SubpointAt(t time.Time) (Subpoint, error) {
	ecef, err := s.ecef(t)
	if err != nil {
		return Subpoint{}, err
	}
	g := transform.ToGeodetic(ecef)
	return Subpoint{LatitudeDeg: g.LatDeg, LongitudeDeg: g.LonDeg, AltitudeKm: g.AltKm}, nil
}

// Topocentric returns the satellite's altitude and azimuth seen from obs at t.
func (s *SGP4Satellite) Topocentric(obs GeoCoordinate, t time.Time) (Topocentric, error) {
	return s.topocentric(newObserver(obs), t)
}

func (s *SGP4Satellite) topocentric(o transform.Observer, t time.Time) (Topocentric, error) {
	ecef, err := s.ecef(t)
	if err != nil {
		return Topocentric{}, err
	}
	la := o.Look(ecef)
	return Topocentric{AltitudeDeg: la.AltitudeDeg, AzimuthDeg: la.AzimuthDeg, RangeKm: la.RangeKm}, nil
}

// FindEvents searches [start, end) for threshold crossings and culminations.
func (s *SGP4Satellite) FindEvents(ctx context.Context, obs GeoCoordinate, start, end time.Time, minAltitudeDeg float64) ([]Event, error) {
	o := newObserver(obs)
	altitude := func(t time.Time) (float64, error) {
		tc, err := s.topocentric(o, t)
		if err != nil {
			return math.NaN(), err
		}
		return tc.AltitudeDeg, nil
	}
	return findEvents(ctx, altitude, start, end, minAltitudeDeg)
}

// newObserver places the observer on the ellipsoid surface.
func newObserver(c GeoCoordinate) transform.Observer {
	return transform.NewObserver(c.Latitude, c.Longitude, 0)
}
