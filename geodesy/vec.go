package geodesy

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
)

// Vec3 is a Cartesian triple in meters.
// It is r3.Vector, so Dot, Cross, Mul, Add, Sub, Normalize and Distance are
// all available on it.
type Vec3 = r3.Vector

// V3 is a convenience function to create a Vec3.
func V3(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// TwoPi is a full turn in radians.
const TwoPi = 2 * math.Pi

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return (s1.Angle(deg) * s1.Degree).Radians()
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return s1.Angle(rad).Degrees()
}

// WrapAngle maps an angle into [-π, π).
// Whole turns are removed exactly, so WrapAngle(2π) is 0.
func WrapAngle(a float64) float64 {
	w := float64(s1.Angle(a).Normalized())
	if w >= math.Pi {
		w -= TwoPi
	}
	return w
}
