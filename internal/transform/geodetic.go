package transform

import "math"

// WGS-84 ellipsoid, kilometres.
const (
	wgs84A  = 6378.137
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// Geodetic is a point on or above the WGS-84 ellipsoid.
type Geodetic struct {
	LatDeg float64
	LonDeg float64 // [-180, 180]
	AltKm  float64
}

// Observer is a ground location with its Earth-fixed position precomputed,
// so that many look-angle evaluations reuse the same trigonometry.
type Observer struct {
	LatRad, LonRad, AltKm float64

	ecef           Vector
	sinLat, cosLat float64
	sinLon, cosLon float64
}

// NewObserver builds an Observer from latitude/longitude in degrees and
// altitude in km above the ellipsoid.
func NewObserver(latDeg, lonDeg, altKm float64) Observer {
	lat, lon := latDeg*deg2rad, lonDeg*deg2rad
	o := Observer{
		LatRad: lat,
		LonRad: lon,
		AltKm:  altKm,
		sinLat: math.Sin(lat),
		cosLat: math.Cos(lat),
		sinLon: math.Sin(lon),
		cosLon: math.Cos(lon),
	}

	// Prime vertical radius of curvature.
	n := wgs84A / math.Sqrt(1-wgs84E2*o.sinLat*o.sinLat)
	o.ecef = Vector{
		X: (n + altKm) * o.cosLat * o.cosLon,
		Y: (n + altKm) * o.cosLat * o.sinLon,
		Z: (n*(1-wgs84E2) + altKm) * o.sinLat,
	}
	return o
}

// ECEF returns the observer's Earth-fixed position.
func (o Observer) ECEF() Vector {
	return o.ecef
}

// ToGeodetic converts an Earth-fixed position to latitude, longitude and
// altitude by fixed-point iteration on the latitude.
func ToGeodetic(ecef Vector) Geodetic {
	lon := math.Atan2(ecef.Y, ecef.X)
	p := math.Hypot(ecef.X, ecef.Y)
	lat := math.Atan2(ecef.Z, p*(1-wgs84E2))

	var n float64
	for i := 0; i < 6; i++ {
		sinLat := math.Sin(lat)
		n = wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(ecef.Z+wgs84E2*n*sinLat, p)
	}

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n = wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		alt = math.Abs(ecef.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg: lat * rad2deg,
		LonDeg: lon * rad2deg,
		AltKm:  alt,
	}
}

// LookAngles is the direction from an observer to a target.
type LookAngles struct {
	AzimuthDeg  float64 // clockwise from north, [0, 360)
	AltitudeDeg float64 // above the horizon, [-90, 90]
	RangeKm     float64
}

// Look computes azimuth, altitude and range from the observer to a target
// given in Earth-fixed km, via the south-east-zenith frame (Vallado 4.4).
func (o Observer) Look(target Vector) LookAngles {
	rx := target.X - o.ecef.X
	ry := target.Y - o.ecef.Y
	rz := target.Z - o.ecef.Z

	south := o.sinLat*o.cosLon*rx + o.sinLat*o.sinLon*ry - o.cosLat*rz
	east := -o.sinLon*rx + o.cosLon*ry
	zenith := o.cosLat*o.cosLon*rx + o.cosLat*o.sinLon*ry + o.sinLat*rz

	rng := math.Sqrt(south*south + east*east + zenith*zenith)
	if rng == 0 {
		return LookAngles{AltitudeDeg: 90}
	}

	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:  az * rad2deg,
		AltitudeDeg: math.Asin(zenith/rng) * rad2deg,
		RangeKm:     rng,
	}
}
