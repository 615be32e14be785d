package cones

import (
	"maps"
	"slices"
	"sync/atomic"

	"github.com/gogpu/cones/geodesy"
)

// Cone is the reachability surface of one city and transport mode.
//
// Cones are created by Controller.Load and replaced, never mutated, when
// the cone set is rebuilt. Only the limit switch may change.
type Cone struct {
	city       string
	mode       string
	position   geodesy.Position
	elevations map[int]float64
	props      map[string]any

	withLimits atomic.Bool
	onLimits   func()
}

func newCone(city, mode string, t TownTransport, onLimits func()) *Cone {
	c := &Cone{
		city:       city,
		mode:       mode,
		position:   t.Position,
		elevations: make(map[int]float64),
		props:      t.coneProperties(mode),
		onLimits:   onLimits,
	}
	for year, dirs := range t.Transports[mode] {
		if len(dirs) > 0 {
			c.elevations[year] = dirs[0].Elevation
		}
	}
	c.withLimits.Store(true)
	return c
}

// City returns the city code in NFC form.
func (c *Cone) City() string { return c.city }

// Mode returns the transport mode.
func (c *Cone) Mode() string { return c.mode }

// Position returns the summit of the cone.
func (c *Cone) Position() geodesy.Position { return c.position }

// Elevation returns the cone slope for year, if the mode has data for it.
func (c *Cone) Elevation(year int) (float64, bool) {
	e, ok := c.elevations[year]
	return e, ok
}

// Years returns the years with an elevation, sorted.
func (c *Cone) Years() []int {
	return slices.Sorted(maps.Keys(c.elevations))
}

// Properties returns the pass-through properties of the source town plus
// "directions" and "transport". The map must not be modified.
func (c *Cone) Properties() map[string]any { return c.props }

// WithLimits reports whether the cone is clipped by its city boundary.
func (c *Cone) WithLimits() bool { return c.withLimits.Load() }

// SetWithLimits switches boundary clipping. A change marks the limits of
// the owning controller dirty; the geometry follows after the debounce.
func (c *Cone) SetWithLimits(v bool) {
	if c.withLimits.CompareAndSwap(!v, v) && c.onLimits != nil {
		c.onLimits()
	}
}

func (c *Cone) String() string { return c.city + "/" + c.mode }
