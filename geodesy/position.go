package geodesy

import (
	"fmt"
	"math"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6_371_000.0

// Position is a geodetic position: longitude and latitude in radians,
// height in meters above the reference sphere.
type Position struct {
	Longitude float64
	Latitude  float64
	Height    float64
}

// P builds a Position from degrees and meters.
func P(lonDeg, latDeg, height float64) Position {
	return Position{Longitude: Radians(lonDeg), Latitude: Radians(latDeg), Height: height}
}

// String returns the position in degrees.
func (p Position) String() string {
	return fmt.Sprintf("Position(%.6f°, %.6f°, %.1fm)", Degrees(p.Longitude), Degrees(p.Latitude), p.Height)
}

// Approx reports whether two positions agree within tol radians and meters.
func (p Position) Approx(q Position, tol float64) bool {
	return math.Abs(WrapAngle(p.Longitude-q.Longitude)) <= tol &&
		math.Abs(p.Latitude-q.Latitude) <= tol &&
		math.Abs(p.Height-q.Height) <= tol
}

// Globe is a reference sphere. The zero value is unusable; use Earth or
// NewGlobe.
type Globe struct {
	Radius float64
}

// Earth is the globe every package-level helper uses.
var Earth = Globe{Radius: EarthRadius}

// NewGlobe returns a globe with the given radius in meters.
// A non-positive radius falls back to EarthRadius.
func NewGlobe(radius float64) Globe {
	if radius <= 0 {
		radius = EarthRadius
	}
	return Globe{Radius: radius}
}

// ToGeocentric converts a geodetic position to ECEF coordinates.
func (g Globe) ToGeocentric(pos Position) Vec3 {
	radius := g.Radius + pos.Height
	cosLat := math.Cos(pos.Latitude)
	return Vec3{
		X: math.Cos(pos.Longitude) * radius * cosLat,
		Y: math.Sin(pos.Longitude) * radius * cosLat,
		Z: math.Sin(pos.Latitude) * radius,
	}
}

// sinThreshold selects the latitude formula in ToGeodetic.
const sinThreshold = 1e-20

// ToGeodetic converts ECEF coordinates back to a geodetic position.
//
// Latitude is taken from y/sin(lon) unless the sine vanishes (or y is exactly
// zero, where atan2 lands on ±π and sin(π) is only rounding noise), in which
// case x/cos(lon) is used instead. At the geocenter longitude and latitude
// stay 0.
func (g Globe) ToGeodetic(p Vec3) Position {
	radius := p.Norm()
	out := Position{Height: radius - g.Radius}
	if radius > 0 {
		out.Longitude = math.Atan2(p.Y, p.X)
		sin := math.Sin(out.Longitude)
		if math.Abs(sin) > sinThreshold && p.Y != 0 {
			out.Latitude = math.Atan2(p.Z, p.Y/sin)
		} else {
			out.Latitude = math.Atan2(p.Z, p.X/math.Cos(out.Longitude))
		}
	}
	return out
}

// ToGeocentric converts pos with the Earth globe.
func ToGeocentric(pos Position) Vec3 { return Earth.ToGeocentric(pos) }

// ToGeodetic converts p with the Earth globe.
func ToGeodetic(p Vec3) Position { return Earth.ToGeodetic(p) }
