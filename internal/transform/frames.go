// Package transform converts SGP4 output into observer-facing quantities:
// TEME to Earth-fixed coordinates, geodetic sub-satellite points, and
// topocentric altitude/azimuth.
//
// The TEME to ECEF rotation uses GMST only; polar motion and the equation of
// the equinoxes are ignored. The resulting error is tens of metres, far below
// what a pass table or map marker can show.
package transform

import (
	"math"
	"time"
)

// Vector is a Cartesian position in kilometres.
type Vector struct {
	X, Y, Z float64
}

// Norm returns the vector length.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Finite reports whether every component is a finite number.
func (v Vector) Finite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// TEMEToECEF rotates a TEME position into the Earth-fixed frame at time t.
func TEMEToECEF(teme Vector, t time.Time) Vector {
	return RotateByGMST(teme, GMST(t))
}

// RotateByGMST applies the R3(gmst) rotation.
func RotateByGMST(teme Vector, gmst float64) Vector {
	cosG, sinG := math.Cos(gmst), math.Sin(gmst)
	return Vector{
		X: teme.X*cosG + teme.Y*sinG,
		Y: -teme.X*sinG + teme.Y*cosG,
		Z: teme.Z,
	}
}

// PlausibleOrbit reports whether an Earth-fixed position lies between the
// Earth's surface region and high orbit (6200 km to 50000 km from the centre).
func PlausibleOrbit(ecef Vector) bool {
	if !ecef.Finite() {
		return false
	}
	r := ecef.Norm()
	return r >= 6200.0 && r <= 50000.0
}
