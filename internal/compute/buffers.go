package compute

import (
	"fmt"
	"slices"

	"github.com/gogpu/cones/geodesy"
)

const (
	// CellStride is the number of floats per output cell (x, y, z, w).
	CellStride = 4
	// FrameStride is the number of floats per row of the frame buffer:
	// the three ECEF→NED rows followed by summit longitude, latitude, height.
	FrameStride = 12
)

// Buffers holds the host side of every stage input and output.
//
// Columns counts the angular columns plus the apex column; the points,
// raw normal and normal buffers have one more column for the cap center.
type Buffers struct {
	Columns, Rows int

	Clocks     []float32 // Columns
	Boundaries []float32 // Columns × Rows
	Elevations []float32 // Rows
	WithLimits []uint32  // Rows
	Frames     []float32 // Rows × FrameStride

	Positions  []float32 // Columns × Rows × CellStride
	Spheres    []float32 // Rows × CellStride
	Points     []float32 // (Columns+1) × Rows × CellStride
	RawNormals []float32 // (Columns+1) × Rows × CellStride
	Normals    []float32 // (Columns+1) × Rows × CellStride
}

// NewBuffers allocates zeroed buffers for the given shape.
func NewBuffers(columns, rows int) *Buffers {
	wide := (columns + 1) * rows * CellStride
	return &Buffers{
		Columns:    columns,
		Rows:       rows,
		Clocks:     make([]float32, columns),
		Boundaries: make([]float32, columns*rows),
		Elevations: make([]float32, rows),
		WithLimits: make([]uint32, rows),
		Frames:     make([]float32, rows*FrameStride),
		Positions:  make([]float32, columns*rows*CellStride),
		Spheres:    make([]float32, rows*CellStride),
		Points:     make([]float32, wide),
		RawNormals: make([]float32, wide),
		Normals:    make([]float32, wide),
	}
}

// Clone returns a deep copy of b.
func (b *Buffers) Clone() *Buffers {
	return &Buffers{
		Columns:    b.Columns,
		Rows:       b.Rows,
		Clocks:     slices.Clone(b.Clocks),
		Boundaries: slices.Clone(b.Boundaries),
		Elevations: slices.Clone(b.Elevations),
		WithLimits: slices.Clone(b.WithLimits),
		Frames:     slices.Clone(b.Frames),
		Positions:  slices.Clone(b.Positions),
		Spheres:    slices.Clone(b.Spheres),
		Points:     slices.Clone(b.Points),
		RawNormals: slices.Clone(b.RawNormals),
		Normals:    slices.Clone(b.Normals),
	}
}

// Validate checks every buffer length against the shape.
func (b *Buffers) Validate() error {
	wide := (b.Columns + 1) * b.Rows * CellStride
	for _, c := range []struct {
		name      string
		got, want int
	}{
		{"clocks", len(b.Clocks), b.Columns},
		{"boundaries", len(b.Boundaries), b.Columns * b.Rows},
		{"elevations", len(b.Elevations), b.Rows},
		{"with_limits", len(b.WithLimits), b.Rows},
		{"frames", len(b.Frames), b.Rows * FrameStride},
		{"positions", len(b.Positions), b.Columns * b.Rows * CellStride},
		{"spheres", len(b.Spheres), b.Rows * CellStride},
		{"points", len(b.Points), wide},
		{"raw_normals", len(b.RawNormals), wide},
		{"normals", len(b.Normals), wide},
	} {
		if c.got != c.want {
			return fmt.Errorf("%w: %s has %d values, want %d", ErrShapeMismatch, c.name, c.got, c.want)
		}
	}
	return nil
}

// PackFrame writes a frame into one row of a frame buffer.
func PackFrame(dst []float32, f geodesy.FlatFrame) {
	for i, row := range f.Rows {
		for j, v := range row {
			dst[3*i+j] = float32(v)
		}
	}
	for j, v := range f.Summit {
		dst[9+j] = float32(v)
	}
}
