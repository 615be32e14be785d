package cones

import "sync"

// Geometry is the computed mesh data of one cone.
type Geometry struct {
	// Positions holds x, y, z, w per vertex: one vertex per clock column,
	// then the apex and the cap center.
	Positions []float32
	// Sphere is the bounding sphere: center x, y, z and radius.
	Sphere [4]float32
	// Normals mirrors Positions. It is nil when only positions were
	// recomputed and the previous normals still apply.
	Normals []float32
	// Indices and UVs are shared by every cone of the same step and must
	// not be modified.
	Indices []uint16
	UVs     []float32
	// DrawCount is the number of indices to draw; 0 hides the cone.
	DrawCount int
}

// Hidden reports whether the cone must not be drawn.
func (g Geometry) Hidden() bool { return g.DrawCount == 0 }

// Renderer receives cone geometry after every recompute.
//
// SetGeometry is called from the goroutine that triggered the recompute,
// once per cone, in row order. The slices belong to the renderer.
type Renderer interface {
	SetGeometry(c *Cone, g Geometry)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(c *Cone, g Geometry)

// SetGeometry calls f(c, g).
func (f RendererFunc) SetGeometry(c *Cone, g Geometry) { f(c, g) }

// Store is a Renderer keeping the latest geometry of every cone.
// Normals are carried over when an update has none.
type Store struct {
	mu sync.RWMutex
	m  map[*Cone]Geometry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{m: make(map[*Cone]Geometry)}
}

// SetGeometry implements Renderer.
func (s *Store) SetGeometry(c *Cone, g Geometry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.Normals == nil && !g.Hidden() {
		g.Normals = s.m[c].Normals
	}
	s.m[c] = g
}

// Geometry returns the latest geometry of c.
func (s *Store) Geometry(c *Cone) (Geometry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.m[c]
	return g, ok
}

// Len returns the number of cones with geometry.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Reset drops every geometry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.m)
}
