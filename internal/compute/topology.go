package compute

import (
	"fmt"
	"math"

	"github.com/gogpu/cones/geodesy"
)

// ApexClock marks the apex column in the clock buffer.
const ApexClock float32 = -1

// Topology is the angular layout shared by every cone for one step:
// clocks per column, triangle indices and texture coordinates.
type Topology struct {
	Step    float64
	Clocks  []float32
	Indices []uint16
	UVs     []float32
}

// CheckStep reports whether step can be laid out: it must be positive and
// finite, and the columns plus apex and cap center must fit a uint16 index.
func CheckStep(step float64) error {
	if !(step > 0) || math.IsInf(step, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidStep, step)
	}
	if geodesy.TwoPi/step > math.MaxUint16-2 {
		return fmt.Errorf("%w: %v yields too many columns", ErrInvalidStep, step)
	}
	return nil
}

// NewTopology lays out columns at k·step for every k with k·step < 2π,
// followed by the apex column.
//
// Each ring column i contributes two triangles: (i, i+1, apex) for the
// mantle and (i, i+1, cap) for the base, the ring wrapping around.
func NewTopology(step float64) (*Topology, error) {
	if err := CheckStep(step); err != nil {
		return nil, err
	}
	var ring int
	for float64(ring)*step < geodesy.TwoPi {
		ring++
	}

	t := &Topology{
		Step:    step,
		Clocks:  make([]float32, 0, ring+1),
		Indices: make([]uint16, 0, 6*ring),
		UVs:     make([]float32, 0, 2*(ring+2)),
	}
	for k := range ring {
		c := float64(k) * step
		t.Clocks = append(t.Clocks, float32(c))
		t.UVs = append(t.UVs, float32(math.Cos(c)), float32(math.Sin(c)))
	}
	t.Clocks = append(t.Clocks, ApexClock)
	t.UVs = append(t.UVs, .5, .5, .5, .5)

	apex, base := uint16(ring), uint16(ring+1)
	for i := range ring {
		a, b := uint16(i), uint16((i+1)%ring)
		t.Indices = append(t.Indices, a, b, apex, a, b, base)
	}
	return t, nil
}

// Ring returns the number of angular columns.
func (t *Topology) Ring() int { return len(t.Clocks) - 1 }

// Columns returns the number of clock columns including the apex.
func (t *Topology) Columns() int { return len(t.Clocks) }
