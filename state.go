package cones

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/gogpu/cones/geodesy"
	"github.com/gogpu/cones/internal/boundary"
	"github.com/gogpu/cones/internal/compute"
	"github.com/gogpu/cones/internal/metrics"
)

// ErrDisposed is returned by a pipeline or controller after it was disposed.
var ErrDisposed = errors.New("cones: pipeline disposed")

// hiddenElevation is uploaded for cones without data for the active year.
const hiddenElevation = math.Pi/2 - 1e-10

// yearData is the elevation row set of one year.
type yearData struct {
	elevations []float32
	hidden     []int // rows without an elevation
}

// PipelineState holds everything a recompute needs: the cone set, the
// per-city frames and boundary functions, the angular topology and the
// compute graph with its buffers.
//
// PipelineState is not safe for concurrent use; the Controller serializes
// access.
type PipelineState struct {
	graph     *compute.Graph
	globe     geodesy.Globe
	estimator *boundary.Estimator
	topology  *compute.Topology

	cones  []*Cone
	frames []*geodesy.Frame // per row, shared by the cones of a city

	year   int
	years  map[int]*yearData
	hidden map[*Cone]struct{}

	disposed bool
}

// NewPipelineState creates an empty pipeline dispatching to backend.
func NewPipelineState(backend Backend) (*PipelineState, error) {
	if backend == nil {
		return nil, ErrNoBackend
	}
	return &PipelineState{
		graph:  compute.NewGraph(backend),
		globe:  geodesy.Earth,
		years:  make(map[int]*yearData),
		hidden: make(map[*Cone]struct{}),
	}, nil
}

// layout is a cone set with its buffers filled for one step and year.
// It only becomes the pipeline state once every buffer is in place.
type layout struct {
	globe     geodesy.Globe
	estimator *boundary.Estimator
	topology  *compute.Topology
	cones     []*Cone
	frames    []*geodesy.Frame
	years     map[int]*yearData
	buf       *compute.Buffers
}

// Rebuild replaces the cone set with one cone per city and transport mode
// of lookup, in city then mode order, and uploads every input buffer.
// onLimits is called whenever a cone's limit switch changes.
//
// On error the previous cone set and buffers are left untouched.
func (s *PipelineState) Rebuild(lookup Lookup, bboxes []BBox, cfg Config, onLimits func()) ([]*Cone, error) {
	if s.disposed {
		return nil, ErrDisposed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &layout{
		globe:     geodesy.NewGlobe(cfg.EarthRadius),
		estimator: boundary.NewEstimator(cfg.ConeStep),
		years:     make(map[int]*yearData),
	}
	for _, city := range lookup.Cities() {
		town, _ := lookup.town(city)
		frame := l.globe.NewFrame(town.Position)
		l.estimator.Add(city, boundary.Match(town.Position, bboxes), frame)
		for _, mode := range town.modes() {
			l.cones = append(l.cones, newCone(city, mode, town, onLimits))
			l.frames = append(l.frames, frame)
		}
	}
	if err := l.fill(cfg.ConeStep, cfg.Year); err != nil {
		return nil, err
	}
	if err := s.commit(l, cfg.Year); err != nil {
		return nil, err
	}
	metrics.Cones.Set(float64(len(s.cones)))
	Logger().Info("cones: rebuilt", "cities", s.estimator.Len(), "cones", len(s.cones),
		"earth_radius", s.globe.Radius)
	return slices.Clone(s.cones), nil
}

// setStep lays out the columns for step and replaces the buffers. On
// error the previous step stays active.
func (s *PipelineState) setStep(step float64) error {
	if s.disposed {
		return ErrDisposed
	}
	if err := compute.CheckStep(step); err != nil {
		return err
	}
	l := &layout{
		globe:     s.globe,
		estimator: s.estimator,
		cones:     s.cones,
		frames:    s.frames,
		years:     s.years,
	}
	if err := l.fill(step, s.year); err != nil {
		return err
	}
	return s.commit(l, s.year)
}

// fill lays out the topology of step and fills every input buffer, with
// the elevations of year and the current limit switches.
func (l *layout) fill(step float64, year int) error {
	topo, err := compute.NewTopology(step)
	if err != nil {
		return err
	}
	l.estimator.SetStep(step)

	rows, columns := len(l.cones), topo.Columns()
	buf := compute.NewBuffers(columns, rows)
	copy(buf.Clocks, topo.Clocks)
	yd := l.yearData(year)
	copy(buf.Elevations, yd.elevations)
	for r, c := range l.cones {
		copy(buf.Boundaries[r*columns:(r+1)*columns], l.estimator.Function(c.city).Sample(topo.Clocks))
		compute.PackFrame(buf.Frames[r*compute.FrameStride:(r+1)*compute.FrameStride], l.frames[r].Flat())
		if c.WithLimits() {
			buf.WithLimits[r] = 1
		}
	}
	l.topology, l.buf = topo, buf
	return nil
}

// yearData returns the elevation rows of year, computing them on first use.
func (l *layout) yearData(year int) *yearData {
	if yd, ok := l.years[year]; ok {
		return yd
	}
	yd := &yearData{elevations: make([]float32, len(l.cones))}
	for r, c := range l.cones {
		e, ok := c.Elevation(year)
		if !ok {
			yd.hidden = append(yd.hidden, r)
			e = hiddenElevation
		}
		yd.elevations[r] = float32(e)
	}
	l.years[year] = yd
	return yd
}

// commit hands the filled buffers to the graph and adopts the layout.
func (s *PipelineState) commit(l *layout, year int) error {
	if err := s.graph.Replace(l.buf); err != nil {
		return err
	}
	s.globe = l.globe
	s.estimator = l.estimator
	s.topology = l.topology
	s.cones = l.cones
	s.frames = l.frames
	s.years = l.years
	s.year = year
	s.markHidden(s.years[year])
	Logger().Debug("cones: step applied", "step", l.topology.Step, "columns", l.topology.Columns(),
		"rows", len(l.cones))
	return nil
}

// setYear uploads the elevations of year, computing them on first use.
func (s *PipelineState) setYear(year int) error {
	if s.disposed {
		return ErrDisposed
	}
	l := &layout{cones: s.cones, years: s.years}
	yd := l.yearData(year)
	if err := s.graph.SetElevations(yd.elevations); err != nil {
		return err
	}
	s.year = year
	s.markHidden(yd)
	return nil
}

// markHidden records the cones of yd without an elevation.
func (s *PipelineState) markHidden(yd *yearData) {
	clear(s.hidden)
	for _, r := range yd.hidden {
		s.hidden[s.cones[r]] = struct{}{}
	}
	metrics.WithoutDisplay.Set(float64(len(yd.hidden)))
}

// uploadLimits uploads the limit switch of every cone.
func (s *PipelineState) uploadLimits() error {
	if s.disposed {
		return ErrDisposed
	}
	limits := make([]uint32, len(s.cones))
	for r, c := range s.cones {
		if c.WithLimits() {
			limits[r] = 1
		}
	}
	return s.graph.SetWithLimits(limits)
}

// run dispatches the stages with the display parameters of cfg.
func (s *PipelineState) run(cfg Config, withNormals bool) (*compute.Result, error) {
	if s.disposed {
		return nil, ErrDisposed
	}
	res, err := s.graph.Run(cfg.uniforms(), withNormals)
	if err != nil {
		return nil, fmt.Errorf("cones: recompute: %w", err)
	}
	return res, nil
}

// publish hands the geometry of every cone to r.
func (s *PipelineState) publish(res *compute.Result, r Renderer) {
	if r == nil || res == nil {
		return
	}
	for i, c := range s.cones {
		g := Geometry{
			Indices: s.topology.Indices,
			UVs:     s.topology.UVs,
		}
		if _, hidden := s.hidden[c]; !hidden {
			g.Positions = slices.Clone(res.Positions[i])
			g.Sphere = [4]float32(res.Spheres[i])
			if res.Normals != nil {
				g.Normals = slices.Clone(res.Normals[i])
			}
			g.DrawCount = len(s.topology.Indices)
		}
		r.SetGeometry(c, g)
	}
}

// Cones returns the cone set in row order.
func (s *PipelineState) Cones() []*Cone { return slices.Clone(s.cones) }

// WithoutDisplay returns the cones without an elevation for the active
// year, in row order.
func (s *PipelineState) WithoutDisplay() []*Cone {
	out := make([]*Cone, 0, len(s.hidden))
	for _, c := range s.cones {
		if _, ok := s.hidden[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Topology returns the angular layout of the current step, or nil before
// the first rebuild.
func (s *PipelineState) Topology() *compute.Topology { return s.topology }

// Year returns the active year.
func (s *PipelineState) Year() int { return s.year }

// Dispose releases the buffers. The backend is left to its owner.
func (s *PipelineState) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	s.graph = nil
	s.estimator = nil
	s.topology = nil
	s.cones = nil
	s.frames = nil
	s.years = nil
	s.hidden = nil
}
