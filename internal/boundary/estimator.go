package boundary

import (
	"sync"

	"github.com/gogpu/cones/geodesy"
)

// BBox is a geographic bounding box with the polygons it encloses.
// Bounds are in radians.
type BBox struct {
	MinLongitude, MinLatitude float64
	MaxLongitude, MaxLatitude float64
	Polygons                  [][]geodesy.Position
}

// Contains reports whether pos lies inside the box, bounds included.
func (b BBox) Contains(pos geodesy.Position) bool {
	return pos.Longitude >= b.MinLongitude && pos.Longitude <= b.MaxLongitude &&
		pos.Latitude >= b.MinLatitude && pos.Latitude <= b.MaxLatitude
}

// Match returns the polygons of every box containing pos.
func Match(pos geodesy.Position, boxes []BBox) [][]geodesy.Position {
	var out [][]geodesy.Position
	for _, b := range boxes {
		if b.Contains(pos) {
			out = append(out, b.Polygons...)
		}
	}
	return out
}

// Estimator caches boundary samples and limit functions per city.
// Raw samples never change once a city is added; functions are rebuilt
// lazily whenever the bucket width changes.
//
// Estimator is safe for concurrent use.
type Estimator struct {
	mu        sync.Mutex
	step      float64
	raw       map[string][]Sample
	functions map[string]*Function
}

// NewEstimator returns an estimator binning with the given step.
func NewEstimator(step float64) *Estimator {
	return &Estimator{
		step:      step,
		raw:       make(map[string][]Sample),
		functions: make(map[string]*Function),
	}
}

// Add registers the polygons of a city seen from its frame.
// Adding a city again replaces its samples.
func (e *Estimator) Add(city string, polygons [][]geodesy.Position, frame *geodesy.Frame) {
	samples := Raw(polygons, frame)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.raw[city] = samples
	delete(e.functions, city)
}

// SetStep changes the bucket width. Cached functions are dropped only when
// the width actually changes.
func (e *Estimator) SetStep(step float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if step == e.step {
		return
	}
	e.step = step
	clear(e.functions)
}

// Step returns the current bucket width.
func (e *Estimator) Step() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step
}

// Samples returns the raw samples of a city.
func (e *Estimator) Samples(city string) []Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.raw[city]
}

// Function returns the limit function of a city for the current step.
// Unknown cities get an unlimited function.
func (e *Estimator) Function(city string) *Function {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.functions[city]; ok {
		return f
	}
	f := Build(e.raw[city], e.step)
	e.functions[city] = f
	return f
}

// Len returns the number of registered cities.
func (e *Estimator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.raw)
}
