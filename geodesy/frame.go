package geodesy

import (
	"math"
	"sync"
)

// FlatFrame is the row-major form of a frame consumed by compute kernels:
// the three ECEF→NED rows (north, east, down) and the summit as
// longitude, latitude, height.
type FlatFrame struct {
	Rows   [3][3]float64
	Summit [3]float64
}

// Frame is a North-East-Down tangent frame anchored at a summit.
//
// A Frame is immutable once built. Replace it to move the summit.
type Frame struct {
	globe  Globe
	summit Position
	origin Vec3

	ecefToNED [3]Vec3
	nedToECEF [3]Vec3

	flatOnce sync.Once
	flat     FlatFrame
}

// NewFrame builds the local frame at summit on globe g.
func (g Globe) NewFrame(summit Position) *Frame {
	sinLon, cosLon := math.Sincos(summit.Longitude)
	sinLat, cosLat := math.Sincos(summit.Latitude)

	f := &Frame{
		globe:  g,
		summit: summit,
		origin: g.ToGeocentric(summit),
	}
	f.ecefToNED = [3]Vec3{
		{X: -cosLon * sinLat, Y: -sinLon * sinLat, Z: cosLat}, // north
		{X: -sinLon, Y: cosLon, Z: 0},                         // east
		{X: -cosLon * cosLat, Y: -sinLon * cosLat, Z: -sinLat}, // down
	}
	f.nedToECEF = [3]Vec3{
		{X: -cosLon * sinLat, Y: -sinLon, Z: -cosLon * cosLat},
		{X: -sinLon * sinLat, Y: cosLon, Z: -sinLon * cosLat},
		{X: cosLat, Y: 0, Z: -sinLat},
	}
	return f
}

// NewFrame builds a local frame on the Earth globe.
func NewFrame(summit Position) *Frame { return Earth.NewFrame(summit) }

// Summit returns the frame's reference position.
func (f *Frame) Summit() Position { return f.summit }

// Origin returns the summit in ECEF coordinates.
func (f *Frame) Origin() Vec3 { return f.origin }

// Globe returns the globe the frame was built on.
func (f *Frame) Globe() Globe { return f.globe }

// ToLocal converts a geodetic position to NED coordinates.
func (f *Frame) ToLocal(pos Position) Vec3 {
	rel := f.globe.ToGeocentric(pos).Sub(f.origin)
	return Vec3{
		X: f.ecefToNED[0].Dot(rel),
		Y: f.ecefToNED[1].Dot(rel),
		Z: f.ecefToNED[2].Dot(rel),
	}
}

// ToGeodetic converts NED coordinates to a geodetic position.
func (f *Frame) ToGeodetic(local Vec3) Position {
	rel := Vec3{
		X: f.nedToECEF[0].Dot(local),
		Y: f.nedToECEF[1].Dot(local),
		Z: f.nedToECEF[2].Dot(local),
	}
	return f.globe.ToGeodetic(rel.Add(f.origin))
}

// Clock returns the azimuth of pos seen from the summit, atan2(east, north).
func (f *Frame) Clock(pos Position) float64 {
	local := f.ToLocal(pos)
	return math.Atan2(local.Y, local.X)
}

// Direction returns the unit NED vector for a clock and an elevation.
// Positive elevations point down.
func Direction(clock, elevation float64) Vec3 {
	sinEl, cosEl := math.Sincos(elevation)
	sinClock, cosClock := math.Sincos(clock)
	return Vec3{X: cosEl * cosClock, Y: cosEl * sinClock, Z: sinEl}
}

// Project returns the geodetic position distance meters away from the
// summit along the (clock, elevation) direction.
func (f *Frame) Project(clock, elevation, distance float64) Position {
	return f.ToGeodetic(Direction(clock, elevation).Mul(distance))
}

// Flat returns the cached kernel representation of the frame.
func (f *Frame) Flat() FlatFrame {
	f.flatOnce.Do(func() {
		for i, row := range f.ecefToNED {
			f.flat.Rows[i] = [3]float64{row.X, row.Y, row.Z}
		}
		f.flat.Summit = [3]float64{f.summit.Longitude, f.summit.Latitude, f.summit.Height}
	})
	return f.flat
}
