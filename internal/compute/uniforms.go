package compute

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Projection is a display projection of geodetic positions.
type Projection uint32

const (
	ProjectionGlobe Projection = iota
	ProjectionEquirectangular
	ProjectionMercator
)

var projectionNames = [...]string{"globe", "equirectangular", "mercator"}

func (p Projection) String() string {
	if int(p) < len(projectionNames) {
		return projectionNames[p]
	}
	return fmt.Sprintf("Projection(%d)", uint32(p))
}

// Valid reports whether p names a known projection.
func (p Projection) Valid() bool { return int(p) < len(projectionNames) }

// ParseProjection returns the projection with the given name, ignoring case.
func ParseProjection(s string) (Projection, error) {
	for i, name := range projectionNames {
		if strings.EqualFold(s, name) {
			return Projection(i), nil
		}
	}
	return 0, fmt.Errorf("compute: unknown projection %q", s)
}

// UniformSize is the size of the packed uniform block in bytes.
const UniformSize = 48

// Uniforms are the run-wide parameters shared by every stage.
type Uniforms struct {
	// Columns and Rows are filled in by Graph.Run from the allocated shape.
	Columns, Rows int

	ProjectionInit Projection
	ProjectionEnd  Projection
	// Percent blends ProjectionInit (0) into ProjectionEnd (100).
	Percent float64

	ExtrudedHeight float64 // meters
	ThreeRadius    float64 // display radius of the globe
	EarthRadius    float64 // meters
	Lambda0        float64 // reference meridian, radians
	Reference      [3]float64
}

// Bytes packs u in the layout of the kernels' Params struct.
func (u Uniforms) Bytes() []byte {
	buf := make([]byte, UniformSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(u.Columns))
	le.PutUint32(buf[4:], uint32(u.Rows))
	le.PutUint32(buf[8:], uint32(u.ProjectionInit))
	le.PutUint32(buf[12:], uint32(u.ProjectionEnd))
	for i, f := range [...]float64{
		u.ExtrudedHeight, u.ThreeRadius, u.EarthRadius, u.Percent, u.Lambda0,
		u.Reference[0], u.Reference[1], u.Reference[2],
	} {
		le.PutUint32(buf[16+4*i:], math.Float32bits(float32(f)))
	}
	return buf
}
