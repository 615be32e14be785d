package cones

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/cones/internal/compute"
	"github.com/gogpu/cones/internal/metrics"
	"github.com/gogpu/cones/internal/parallel"
)

// Dirty bits owned by the controller.
const (
	dirtyTopology uint32 = 1 << iota
	dirtyElevation
	dirtyLimits
	dirtyProjection
)

// Controller decides, for every trigger, how much of the pipeline has to
// run, runs it and hands the geometry to the renderer.
//
// Recomputes are serialized: a trigger arriving while another one is being
// handled waits for it to finish. Triggers received before the first Load
// are ignored.
type Controller struct {
	mu sync.Mutex

	params   *Params
	listener uuid.UUID
	renderer Renderer
	backend  Backend
	owned    bool // backend created by the controller

	state  *PipelineState
	lookup Lookup
	bboxes []BBox
	loaded bool
	closed bool

	dirty    parallel.Flags
	ticks    int
	debounce int
	runs     int
}

// NewController creates a controller. Without WithBackend the registered
// backend is used, or a CPU backend when none is registered.
func NewController(opts ...Option) *Controller {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Controller{
		params:   o.params,
		renderer: o.renderer,
		backend:  o.backend,
		debounce: o.debounce,
	}
	if c.params == nil {
		c.params = NewParams(DefaultConfig())
	}
	if c.backend == nil {
		c.backend = RegisteredBackend()
	}
	if c.backend == nil {
		c.backend = compute.NewCPUBackend(o.workers)
		c.owned = true
	}
	// The backend is non-nil here, so this cannot fail.
	c.state, _ = NewPipelineState(c.backend)
	c.listener = c.params.AddListener(func(p Param, _ Config) error {
		return c.Dispatch(p.Trigger())
	})
	Logger().Info("cones: controller created", "backend", c.backend.Name(), "debounce", c.debounce)
	return c
}

// Params returns the parameter store the controller listens to.
func (c *Controller) Params() *Params { return c.params }

// Backend returns the compute backend.
func (c *Controller) Backend() Backend { return c.backend }

// Load replaces the cone set and computes its geometry.
func (c *Controller) Load(lookup Lookup, bboxes []BBox) ([]*Cone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrDisposed
	}
	metrics.TriggersTotal.WithLabelValues(TriggerConeSetReplaced.String()).Inc()
	if err := c.rebuild(TriggerConeSetReplaced, lookup, bboxes); err != nil {
		return nil, err
	}
	return c.state.Cones(), nil
}

// Dispatch handles one trigger, running the stages it requires.
//
// A failed recompute leaves the previous geometry in place and is
// returned; nothing is retried.
func (c *Controller) Dispatch(t Trigger) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrDisposed
	}
	metrics.TriggersTotal.WithLabelValues(t.String()).Inc()

	if t == TriggerLimits {
		c.dirty.Mark(dirtyLimits)
		return nil
	}
	if !c.loaded && t != TriggerConeSetReplaced && t != TriggerRebuild {
		return nil
	}

	cfg := c.params.Config()
	switch t {
	case TriggerConeStep:
		c.dirty.Mark(dirtyTopology)
		taken := c.takeLimits()
		if err := c.state.setStep(cfg.ConeStep); err != nil {
			c.restoreLimits(taken)
			return fmt.Errorf("cones: cone step: %w", err)
		}
		c.dirty.Clear(dirtyTopology)
		return c.recompute(t, cfg, true, taken)

	case TriggerYear:
		c.dirty.Mark(dirtyElevation)
		if err := c.state.setYear(cfg.Year); err != nil {
			return fmt.Errorf("cones: year: %w", err)
		}
		c.dirty.Clear(dirtyElevation)
		taken := c.takeLimits()
		if err := c.state.uploadLimits(); err != nil {
			c.restoreLimits(taken)
			return err
		}
		return c.recompute(t, cfg, true, taken)

	case TriggerTick:
		if !c.dirty.Has(dirtyLimits) {
			return nil
		}
		c.ticks++
		if c.ticks <= c.debounce {
			return nil
		}
		taken := c.takeLimits()
		if err := c.state.uploadLimits(); err != nil {
			c.restoreLimits(taken)
			return err
		}
		return c.recompute(t, cfg, true, taken)

	case TriggerProjection:
		c.dirty.Mark(dirtyProjection)
		return c.recompute(t, cfg, false, false)

	case TriggerProjectionBegin:
		c.dirty.Mark(dirtyProjection)
		return c.recompute(t, cfg, true, false)

	case TriggerConeSetReplaced, TriggerRebuild:
		if c.lookup == nil {
			return nil
		}
		return c.rebuild(t, c.lookup, c.bboxes)
	}
	return fmt.Errorf("cones: unknown trigger %v", t)
}

// rebuild recreates the cone set from lookup. The source data is retained
// for later rebuilds only once the cone set was replaced. Callers hold c.mu.
func (c *Controller) rebuild(t Trigger, lookup Lookup, bboxes []BBox) error {
	cfg := c.params.Config()
	c.dirty.Mark(dirtyTopology | dirtyElevation)
	taken := c.takeLimits()
	if _, err := c.state.Rebuild(lookup, bboxes, cfg, c.limitsChanged); err != nil {
		c.restoreLimits(taken)
		return fmt.Errorf("cones: rebuild: %w", err)
	}
	c.dirty.Clear(dirtyTopology | dirtyElevation)
	c.lookup, c.bboxes = lookup, bboxes
	c.loaded = true
	return c.recompute(t, cfg, true, taken)
}

// takeLimits clears the pending limits change before the switches are
// snapshotted, so a change landing during the run marks them dirty again.
// Callers hold c.mu.
func (c *Controller) takeLimits() bool {
	c.ticks = 0
	return c.dirty.Take(dirtyLimits)
}

// restoreLimits puts back a limits change taken for a run that failed.
func (c *Controller) restoreLimits(taken bool) {
	if taken {
		c.dirty.Mark(dirtyLimits)
	}
}

// recompute runs the pipeline and publishes the result. limitsTaken tells
// whether the run carries a limits change taken with takeLimits; it is
// restored when the run fails. Callers hold c.mu.
func (c *Controller) recompute(t Trigger, cfg Config, withNormals, limitsTaken bool) error {
	metrics.RecomputesTotal.WithLabelValues(t.String()).Inc()
	res, err := c.state.run(cfg, withNormals)
	if err != nil {
		c.restoreLimits(limitsTaken)
		Logger().Warn("cones: recompute failed", "trigger", t.String(), "err", err)
		return err
	}
	c.runs++
	c.dirty.Clear(dirtyProjection)
	c.state.publish(res, c.renderer)
	Logger().Debug("cones: recomputed", "trigger", t.String(), "normals", withNormals,
		"cones", len(res.Positions))
	return nil
}

// limitsChanged is the hook of every cone's limit switch. It only marks
// the limits dirty, so it is safe to call from a renderer callback.
func (c *Controller) limitsChanged() {
	c.dirty.Mark(dirtyLimits)
	metrics.TriggersTotal.WithLabelValues(TriggerLimits.String()).Inc()
}

// Cones returns the current cone set in row order.
func (c *Controller) Cones() []*Cone {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.state.Cones()
}

// WithoutDisplay returns the cones hidden for the active year.
func (c *Controller) WithoutDisplay() []*Cone {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.state.WithoutDisplay()
}

// LimitsPending reports whether a limits change waits for enough ticks.
func (c *Controller) LimitsPending() bool { return c.dirty.Has(dirtyLimits) }

// Runs returns the number of successful recomputes.
func (c *Controller) Runs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

// Last returns the result of the last successful recompute, or nil.
func (c *Controller) Last() *compute.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.state.graph.Last()
}

// Close unregisters the parameter listener, disposes the pipeline and
// closes the backend if the controller created it. Close is idempotent.
func (c *Controller) Close() {
	c.params.RemoveListener(c.listener)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.state.Dispose()
	if c.owned {
		c.backend.Close()
	}
	c.dirty.Reset()
}
