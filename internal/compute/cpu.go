package compute

import (
	"fmt"

	"github.com/gogpu/cones/internal/parallel"
)

// CPUBackend runs the kernels on the host, one row per job.
type CPUBackend struct {
	pool *parallel.Pool
}

// NewCPUBackend starts a CPU backend with the given number of workers.
// Zero or negative means GOMAXPROCS.
func NewCPUBackend(workers int) *CPUBackend {
	return &CPUBackend{pool: parallel.NewPool(workers)}
}

// Name returns "cpu".
func (c *CPUBackend) Name() string { return "cpu" }

// Dispatch runs stages in order over b.
func (c *CPUBackend) Dispatch(stages []Stage, u Uniforms, b *Buffers) error {
	if len(stages) == 0 {
		return nil
	}
	if err := b.Validate(); err != nil {
		return &StageError{Stage: stages[0], Err: err}
	}
	if b.Columns < 1 {
		return &StageError{Stage: stages[0], Err: fmt.Errorf("%w: no columns", ErrShapeMismatch)}
	}

	for _, s := range stages {
		var kernel func(row int)
		switch s {
		case StagePositions:
			kernel = func(r int) { positionsRow(&u, b, r) }
		case StageBoundingSphere:
			kernel = func(r int) { sphereRow(b, r) }
		case StageRawNormals:
			kernel = func(r int) { rawNormalsRow(b, r) }
		case StageNormals:
			kernel = func(r int) { normalsRow(b, r) }
		default:
			return &StageError{Stage: s, Err: fmt.Errorf("unknown stage")}
		}
		c.pool.Rows(b.Rows, kernel)
		slogger().Debug("compute: stage done", "stage", s, "rows", b.Rows, "columns", b.Columns)
	}
	return nil
}

// Close stops the worker pool.
func (c *CPUBackend) Close() { c.pool.Close() }
