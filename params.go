package cones

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/cones/geodesy"
	"github.com/gogpu/cones/internal/compute"
)

// Projection is a display projection of cone geometry.
type Projection = compute.Projection

// Display projections. Flat projections are laid out in the XZ plane
// around the reference offset.
const (
	ProjectionGlobe           = compute.ProjectionGlobe
	ProjectionEquirectangular = compute.ProjectionEquirectangular
	ProjectionMercator        = compute.ProjectionMercator
)

// ParseProjection returns the projection with the given name, ignoring case.
func ParseProjection(s string) (Projection, error) {
	return compute.ParseProjection(s)
}

// ErrInvalidParam is returned by Params setters for out-of-range values.
var ErrInvalidParam = errors.New("cones: invalid parameter")

// Param identifies one configuration parameter.
type Param uint8

const (
	ParamConeStep Param = iota
	ParamYear
	ParamEarthRadius
	ParamThreeRadius
	ParamExtrudedHeight
	ParamProjectionInit
	ParamProjectionEnd
	ParamPercentProjection
	ParamLambda0
	ParamReference
	ParamTick

	paramCount
)

var paramNames = [paramCount]string{
	ParamConeStep:          "cone_step",
	ParamYear:              "year",
	ParamEarthRadius:       "earth_radius",
	ParamThreeRadius:       "three_radius",
	ParamExtrudedHeight:    "extruded_height",
	ParamProjectionInit:    "projection_init",
	ParamProjectionEnd:     "projection_end",
	ParamPercentProjection: "percent_projection",
	ParamLambda0:           "lambda0",
	ParamReference:         "reference",
	ParamTick:              "tick",
}

func (p Param) String() string {
	if p < paramCount {
		return paramNames[p]
	}
	return fmt.Sprintf("Param(%d)", uint8(p))
}

// Trigger returns the pipeline trigger a change of p causes.
func (p Param) Trigger() Trigger {
	switch p {
	case ParamConeStep:
		return TriggerConeStep
	case ParamYear:
		return TriggerYear
	case ParamTick:
		return TriggerTick
	case ParamProjectionInit, ParamProjectionEnd:
		return TriggerProjectionBegin
	case ParamEarthRadius:
		return TriggerRebuild
	default:
		return TriggerProjection
	}
}

// Config is a snapshot of every parameter.
type Config struct {
	ConeStep          float64 // radians
	Year              int
	EarthRadius       float64 // meters
	ThreeRadius       float64 // display units
	ExtrudedHeight    float64 // meters, slant length of unclipped cones
	ProjectionInit    Projection
	ProjectionEnd     Projection
	PercentProjection float64 // 0 = ProjectionInit, 100 = ProjectionEnd
	Lambda0           float64 // reference meridian, radians
	Reference         [3]float64
}

// DefaultConfig returns the default parameters.
func DefaultConfig() Config {
	return Config{
		ConeStep:          geodesy.Radians(5),
		Year:              0,
		EarthRadius:       geodesy.EarthRadius,
		ThreeRadius:       100,
		ExtrudedHeight:    1_000_000,
		ProjectionInit:    ProjectionGlobe,
		ProjectionEnd:     ProjectionGlobe,
		PercentProjection: 0,
		Lambda0:           0,
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	if err := compute.CheckStep(c.ConeStep); err != nil || c.ConeStep > geodesy.TwoPi {
		return fmt.Errorf("%w: cone step %v", ErrInvalidParam, c.ConeStep)
	}
	switch {
	case !(c.EarthRadius > 0) || math.IsInf(c.EarthRadius, 0):
		return fmt.Errorf("%w: earth radius %v", ErrInvalidParam, c.EarthRadius)
	case !(c.ThreeRadius > 0) || math.IsInf(c.ThreeRadius, 0):
		return fmt.Errorf("%w: three radius %v", ErrInvalidParam, c.ThreeRadius)
	case !(c.ExtrudedHeight >= 0) || math.IsInf(c.ExtrudedHeight, 0):
		return fmt.Errorf("%w: extruded height %v", ErrInvalidParam, c.ExtrudedHeight)
	case !c.ProjectionInit.Valid():
		return fmt.Errorf("%w: projection init %v", ErrInvalidParam, c.ProjectionInit)
	case !c.ProjectionEnd.Valid():
		return fmt.Errorf("%w: projection end %v", ErrInvalidParam, c.ProjectionEnd)
	case math.IsNaN(c.PercentProjection):
		return fmt.Errorf("%w: projection percent %v", ErrInvalidParam, c.PercentProjection)
	case math.IsNaN(c.Lambda0) || math.IsInf(c.Lambda0, 0):
		return fmt.Errorf("%w: lambda0 %v", ErrInvalidParam, c.Lambda0)
	}
	return nil
}

// uniforms packs the display parameters for the compute stages.
func (c Config) uniforms() compute.Uniforms {
	return compute.Uniforms{
		ProjectionInit: c.ProjectionInit,
		ProjectionEnd:  c.ProjectionEnd,
		Percent:        c.PercentProjection,
		ExtrudedHeight: c.ExtrudedHeight,
		ThreeRadius:    c.ThreeRadius,
		EarthRadius:    c.EarthRadius,
		Lambda0:        c.Lambda0,
		Reference:      c.Reference,
	}
}

// Listener is called after a parameter changed, with the new snapshot.
type Listener func(p Param, c Config) error

// Params is a concurrency-safe parameter store that notifies listeners of
// every change. Setting a parameter to its current value is not a change;
// Tick always notifies.
type Params struct {
	mu        sync.RWMutex
	cfg       Config
	listeners map[uuid.UUID]Listener
	order     []uuid.UUID
}

// NewParams returns a store holding cfg. It panics if cfg is invalid.
func NewParams(cfg Config) *Params {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return &Params{cfg: cfg, listeners: make(map[uuid.UUID]Listener)}
}

// Config returns the current parameters.
func (p *Params) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// AddListener registers l and returns the handle that removes it.
// Listeners are called in registration order.
func (p *Params) AddListener(l Listener) uuid.UUID {
	id := uuid.New()
	p.mu.Lock()
	p.listeners[id] = l
	p.order = append(p.order, id)
	p.mu.Unlock()
	return id
}

// RemoveListener unregisters a listener. It reports whether id was known.
func (p *Params) RemoveListener(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.listeners[id]; !ok {
		return false
	}
	delete(p.listeners, id)
	p.order = slices.DeleteFunc(p.order, func(x uuid.UUID) bool { return x == id })
	return true
}

// Listeners returns the number of registered listeners.
func (p *Params) Listeners() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.listeners)
}

// set applies change under the lock, validates the result and notifies the
// listeners outside of it. Listener errors are joined.
func (p *Params) set(param Param, change func(*Config)) error {
	p.mu.Lock()
	next := p.cfg
	change(&next)
	if err := next.Validate(); err != nil {
		p.mu.Unlock()
		return err
	}
	if next == p.cfg && param != ParamTick {
		p.mu.Unlock()
		return nil
	}
	p.cfg = next
	ls := make([]Listener, 0, len(p.order))
	for _, id := range p.order {
		ls = append(ls, p.listeners[id])
	}
	p.mu.Unlock()

	var errs []error
	for _, l := range ls {
		if err := l(param, next); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetConeStep sets the angular step in radians.
func (p *Params) SetConeStep(step float64) error {
	return p.set(ParamConeStep, func(c *Config) { c.ConeStep = step })
}

// SetYear sets the active year.
func (p *Params) SetYear(year int) error {
	return p.set(ParamYear, func(c *Config) { c.Year = year })
}

// SetEarthRadius sets the globe radius in meters.
func (p *Params) SetEarthRadius(r float64) error {
	return p.set(ParamEarthRadius, func(c *Config) { c.EarthRadius = r })
}

// SetThreeRadius sets the display radius of the globe.
func (p *Params) SetThreeRadius(r float64) error {
	return p.set(ParamThreeRadius, func(c *Config) { c.ThreeRadius = r })
}

// SetExtrudedHeight sets the slant length of unclipped cones in meters.
func (p *Params) SetExtrudedHeight(h float64) error {
	return p.set(ParamExtrudedHeight, func(c *Config) { c.ExtrudedHeight = h })
}

// SetProjectionInit sets the projection shown at 0 percent.
func (p *Params) SetProjectionInit(proj Projection) error {
	return p.set(ParamProjectionInit, func(c *Config) { c.ProjectionInit = proj })
}

// SetProjectionEnd sets the projection shown at 100 percent.
func (p *Params) SetProjectionEnd(proj Projection) error {
	return p.set(ParamProjectionEnd, func(c *Config) { c.ProjectionEnd = proj })
}

// SetPercentProjection sets the blend between the two projections.
func (p *Params) SetPercentProjection(percent float64) error {
	return p.set(ParamPercentProjection, func(c *Config) { c.PercentProjection = percent })
}

// SetLambda0 sets the reference meridian in radians.
func (p *Params) SetLambda0(lambda0 float64) error {
	return p.set(ParamLambda0, func(c *Config) { c.Lambda0 = lambda0 })
}

// SetReference sets the display offset of flat projections.
func (p *Params) SetReference(ref [3]float64) error {
	return p.set(ParamReference, func(c *Config) { c.Reference = ref })
}

// Tick emits the periodic tick signal.
func (p *Params) Tick() error {
	return p.set(ParamTick, func(*Config) {})
}
