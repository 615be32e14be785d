package compute

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/cones/internal/metrics"
)

// Result is the output of a successful run, sliced per row.
type Result struct {
	Columns int
	// Positions holds, per row, Columns+1 cells: the clock columns, the
	// apex and the cap center.
	Positions [][]float32
	// Spheres holds, per row, center x, y, z and radius.
	Spheres [][]float32
	// Normals mirrors Positions. It is nil when the run skipped normals.
	Normals [][]float32
}

// Graph owns the pipeline buffers and runs the stages on a backend.
//
// Inputs are uploaded between runs; a run works on a copy, so a failed
// dispatch leaves the previous outputs in place.
//
// Graph is not safe for concurrent use; callers serialize runs.
type Graph struct {
	backend Backend
	buf     *Buffers
	last    *Result
}

// NewGraph returns a graph dispatching to backend.
func NewGraph(backend Backend) *Graph {
	return &Graph{backend: backend}
}

// Backend returns the backend the graph dispatches to.
func (g *Graph) Backend() Backend { return g.backend }

// Allocate replaces every buffer with zeroed buffers of the given shape.
// The last result is dropped.
func (g *Graph) Allocate(columns, rows int) error {
	if columns < 1 || rows < 0 {
		return fmt.Errorf("%w: %d columns × %d rows", ErrShapeMismatch, columns, rows)
	}
	g.buf = NewBuffers(columns, rows)
	g.last = nil
	slogger().Debug("compute: allocated", "columns", columns, "rows", rows,
		"bytes", 4*(len(g.buf.Positions)+3*len(g.buf.Points)))
	return nil
}

// Replace swaps in fully uploaded buffers. They are validated first; on
// error the current buffers stay in place. The last result is kept until
// the next successful run.
func (g *Graph) Replace(b *Buffers) error {
	if b == nil || b.Columns < 1 {
		return fmt.Errorf("%w: no columns", ErrShapeMismatch)
	}
	if err := b.Validate(); err != nil {
		return err
	}
	g.buf = b
	slogger().Debug("compute: replaced", "columns", b.Columns, "rows", b.Rows)
	return nil
}

// Shape returns the allocated shape, or zeros before Allocate.
func (g *Graph) Shape() (columns, rows int) {
	if g.buf == nil {
		return 0, 0
	}
	return g.buf.Columns, g.buf.Rows
}

func upload[T any](name string, dst, src []T) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%w: %s has %d values, want %d", ErrShapeMismatch, name, len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

// SetClocks uploads one clock per column.
func (g *Graph) SetClocks(v []float32) error {
	if g.buf == nil {
		return ErrNotAllocated
	}
	return upload("clocks", g.buf.Clocks, v)
}

// SetBoundaries uploads Columns boundary distances per row.
func (g *Graph) SetBoundaries(v []float32) error {
	if g.buf == nil {
		return ErrNotAllocated
	}
	return upload("boundaries", g.buf.Boundaries, v)
}

// SetElevations uploads one elevation per row.
func (g *Graph) SetElevations(v []float32) error {
	if g.buf == nil {
		return ErrNotAllocated
	}
	return upload("elevations", g.buf.Elevations, v)
}

// SetWithLimits uploads the per-row limit switch, non-zero meaning clipped.
func (g *Graph) SetWithLimits(v []uint32) error {
	if g.buf == nil {
		return ErrNotAllocated
	}
	return upload("with_limits", g.buf.WithLimits, v)
}

// SetFrames uploads FrameStride values per row.
func (g *Graph) SetFrames(v []float32) error {
	if g.buf == nil {
		return ErrNotAllocated
	}
	return upload("frames", g.buf.Frames, v)
}

// Run dispatches the positions and bounding sphere stages, followed by the
// normal stages when withNormals is set, and returns the new result.
//
// On error the previous result is kept and returned by Last.
func (g *Graph) Run(u Uniforms, withNormals bool) (*Result, error) {
	if g.buf == nil {
		return nil, ErrNotAllocated
	}
	if g.backend == nil {
		return nil, errors.New("compute: no backend")
	}
	u.Columns, u.Rows = g.buf.Columns, g.buf.Rows
	if u.Rows == 0 {
		g.last = &Result{Columns: u.Columns}
		return g.last, nil
	}

	stages := Stages(withNormals)
	scratch := g.buf.Clone()

	start := time.Now()
	err := g.backend.Dispatch(stages, u, scratch)
	elapsed := time.Since(start)
	if err != nil {
		var se *StageError
		stage := "unknown"
		if errors.As(err, &se) {
			stage = se.Stage.String()
		}
		metrics.DispatchErrorsTotal.WithLabelValues(stage).Inc()
		slogger().Warn("compute: dispatch failed", "backend", g.backend.Name(), "err", err)
		return nil, fmt.Errorf("compute: run: %w", err)
	}
	metrics.DispatchDurationMs.WithLabelValues(passName(withNormals), g.backend.Name()).
		Observe(float64(elapsed.Microseconds()) / 1000)

	g.buf = scratch
	g.last = g.result(withNormals)
	slogger().Debug("compute: run done", "pass", passName(withNormals), "backend", g.backend.Name(),
		"rows", u.Rows, "elapsed", elapsed)
	return g.last, nil
}

// Last returns the result of the last successful run since Allocate,
// or nil.
func (g *Graph) Last() *Result { return g.last }

func (g *Graph) result(withNormals bool) *Result {
	b := g.buf
	width := (b.Columns + 1) * CellStride
	res := &Result{
		Columns:   b.Columns,
		Positions: make([][]float32, b.Rows),
		Spheres:   make([][]float32, b.Rows),
	}
	if withNormals {
		res.Normals = make([][]float32, b.Rows)
	}
	for r := range b.Rows {
		res.Positions[r] = b.Points[r*width : (r+1)*width : (r+1)*width]
		res.Spheres[r] = b.Spheres[r*CellStride : (r+1)*CellStride : (r+1)*CellStride]
		if withNormals {
			res.Normals[r] = b.Normals[r*width : (r+1)*width : (r+1)*width]
		}
	}
	return res
}
