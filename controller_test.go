package cones

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/cones/geodesy"
	"github.com/gogpu/cones/internal/compute"
)

// testLookup has two cities: A with road cones in 2000 and 2010, B with a
// rail cone in 2000 only.
func testLookup() (Lookup, []BBox) {
	lookup := Lookup{
		"B": {
			Position: geodesy.P(10, 45, 0),
			Transports: map[string]map[int][]Direction{
				"rail": {2000: {{Elevation: 0.3}}},
			},
			Properties: map[string]any{"name": "Bee", "position": "dropped"},
		},
		"A": {
			Position: geodesy.P(0, 0, 0),
			Transports: map[string]map[int][]Direction{
				"road": {2000: {{Elevation: 0.2}}, 2010: {{Elevation: 0.4}, {Elevation: 0.9}}},
			},
			Properties: map[string]any{"name": "Ay"},
		},
	}
	square := []geodesy.Position{
		geodesy.P(-1, -1, 0), geodesy.P(1, -1, 0), geodesy.P(1, 1, 0), geodesy.P(-1, 1, 0),
	}
	bboxes := []BBox{{
		MinLongitude: geodesy.Radians(-2), MinLatitude: geodesy.Radians(-2),
		MaxLongitude: geodesy.Radians(2), MaxLatitude: geodesy.Radians(2),
		Polygons: [][]geodesy.Position{square},
	}}
	return lookup, bboxes
}

// recorder is a Renderer remembering every call.
type recorder struct {
	mu    sync.Mutex
	calls int
	last  map[string]Geometry
}

func newRecorder() *recorder { return &recorder{last: make(map[string]Geometry)} }

func (r *recorder) SetGeometry(c *Cone, g Geometry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last[c.String()] = g
}

func (r *recorder) get(key string) Geometry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[key]
}

func newTestController(t *testing.T, year int, opts ...Option) (*Controller, *recorder) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Year = year
	rec := newRecorder()
	opts = append([]Option{WithParams(NewParams(cfg)), WithRenderer(rec), WithWorkers(2)}, opts...)
	c := NewController(opts...)
	t.Cleanup(c.Close)

	lookup, bboxes := testLookup()
	if _, err := c.Load(lookup, bboxes); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c, rec
}

func TestController_Load(t *testing.T) {
	c, rec := newTestController(t, 2000)

	cones := c.Cones()
	var names []string
	for _, cone := range cones {
		names = append(names, cone.String())
	}
	if want := []string{"A/road", "B/rail"}; !slices.Equal(names, want) {
		t.Fatalf("cones = %v, want %v", names, want)
	}
	if c.Runs() != 1 {
		t.Errorf("Runs() = %d, want 1", c.Runs())
	}

	ring := 72 // 5° step
	for _, name := range names {
		g := rec.get(name)
		if len(g.Positions) != (ring+2)*compute.CellStride {
			t.Errorf("%s: %d position floats, want %d", name, len(g.Positions), (ring+2)*compute.CellStride)
		}
		if len(g.Normals) != len(g.Positions) {
			t.Errorf("%s: %d normal floats, want %d", name, len(g.Normals), len(g.Positions))
		}
		if g.DrawCount != 6*ring || len(g.Indices) != 6*ring {
			t.Errorf("%s: DrawCount = %d, indices = %d, want %d", name, g.DrawCount, len(g.Indices), 6*ring)
		}
		if g.Sphere[3] <= 0 {
			t.Errorf("%s: bounding radius = %v, want > 0", name, g.Sphere[3])
		}
	}

	props := cones[1].Properties()
	if props["name"] != "Bee" || props["transport"] != "rail" {
		t.Errorf("properties = %v", props)
	}
	if _, ok := props["position"]; ok {
		t.Error("reserved property \"position\" was passed through")
	}
}

func TestController_WithoutDisplay(t *testing.T) {
	c, rec := newTestController(t, 2010)

	hidden := c.WithoutDisplay()
	if len(hidden) != 1 || hidden[0].String() != "B/rail" {
		t.Fatalf("WithoutDisplay() = %v, want [B/rail]", hidden)
	}
	if g := rec.get("B/rail"); !g.Hidden() || g.Positions != nil {
		t.Errorf("hidden cone geometry = %+v, want DrawCount 0 and no positions", g)
	}
	if g := rec.get("A/road"); g.Hidden() {
		t.Error("A/road is hidden in 2010")
	}

	if err := c.Params().SetYear(2000); err != nil {
		t.Fatalf("SetYear: %v", err)
	}
	if hidden := c.WithoutDisplay(); len(hidden) != 0 {
		t.Errorf("WithoutDisplay() after SetYear(2000) = %v, want empty", hidden)
	}
	if g := rec.get("B/rail"); g.Hidden() {
		t.Error("B/rail still hidden in 2000")
	}

	// Back to a cached year.
	if err := c.Params().SetYear(2010); err != nil {
		t.Fatalf("SetYear: %v", err)
	}
	if hidden := c.WithoutDisplay(); len(hidden) != 1 {
		t.Errorf("WithoutDisplay() after returning to 2010 = %v, want one cone", hidden)
	}
}

func TestController_Debounce(t *testing.T) {
	c, rec := newTestController(t, 2000)
	p := c.Params()

	// Ticks without pending limits do nothing.
	for range 20 {
		if err := p.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if c.Runs() != 1 {
		t.Fatalf("Runs() = %d after idle ticks, want 1", c.Runs())
	}

	c.Cones()[0].SetWithLimits(false)
	if !c.LimitsPending() {
		t.Fatal("LimitsPending() = false after SetWithLimits")
	}
	calls := rec.calls

	for i := range DefaultDebounce {
		if err := p.Tick(); err != nil {
			t.Fatalf("Tick %d: %v", i+1, err)
		}
		if c.Runs() != 1 {
			t.Fatalf("recomputed after %d ticks", i+1)
		}
	}
	if err := p.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if c.Runs() != 2 {
		t.Fatalf("Runs() = %d after %d ticks, want 2", c.Runs(), DefaultDebounce+1)
	}
	if c.LimitsPending() {
		t.Error("LimitsPending() = true after flush")
	}
	if rec.calls != calls+2 {
		t.Errorf("renderer called %d times by the flush, want 2", rec.calls-calls)
	}

	for range 2 * DefaultDebounce {
		_ = p.Tick()
	}
	if c.Runs() != 2 {
		t.Errorf("Runs() = %d after more ticks, want 2", c.Runs())
	}
}

func TestController_LimitsSameValue(t *testing.T) {
	c, _ := newTestController(t, 2000)
	c.Cones()[0].SetWithLimits(true)
	if c.LimitsPending() {
		t.Error("setting the current value marked limits dirty")
	}
}

func TestController_LimitsChangeGeometry(t *testing.T) {
	c, rec := newTestController(t, 2000, WithDebounce(0))
	limited := rec.get("A/road").Sphere[3]

	c.Cones()[0].SetWithLimits(false)
	if err := c.Dispatch(TriggerTick); err != nil {
		t.Fatalf("Dispatch(TriggerTick): %v", err)
	}
	unlimited := rec.get("A/road").Sphere[3]
	if !(unlimited > limited) {
		t.Errorf("bounding radius without limits = %v, want > %v", unlimited, limited)
	}
}

func TestController_Projection(t *testing.T) {
	c, rec := newTestController(t, 2000)

	if err := c.Params().SetPercentProjection(50); err != nil {
		t.Fatalf("SetPercentProjection: %v", err)
	}
	if g := rec.get("A/road"); g.Normals != nil {
		t.Error("projection change recomputed normals")
	}

	if err := c.Params().SetProjectionEnd(ProjectionMercator); err != nil {
		t.Fatalf("SetProjectionEnd: %v", err)
	}
	if g := rec.get("A/road"); g.Normals == nil {
		t.Error("projection endpoint change did not recompute normals")
	}
	if c.Runs() != 3 {
		t.Errorf("Runs() = %d, want 3", c.Runs())
	}
}

func TestController_ConeStep(t *testing.T) {
	c, rec := newTestController(t, 2000)

	if err := c.Params().SetConeStep(geodesy.Radians(10)); err != nil {
		t.Fatalf("SetConeStep: %v", err)
	}
	g := rec.get("A/road")
	if want := (36 + 2) * compute.CellStride; len(g.Positions) != want {
		t.Errorf("%d position floats, want %d", len(g.Positions), want)
	}
	if g.DrawCount != 6*36 {
		t.Errorf("DrawCount = %d, want %d", g.DrawCount, 6*36)
	}
}

func TestController_EarthRadiusRebuilds(t *testing.T) {
	c, _ := newTestController(t, 2000)
	before := c.Cones()

	if err := c.Params().SetEarthRadius(6_000_000); err != nil {
		t.Fatalf("SetEarthRadius: %v", err)
	}
	after := c.Cones()
	if len(after) != len(before) || after[0] == before[0] {
		t.Error("earth radius change did not rebuild the cone set")
	}
}

func TestController_Deterministic(t *testing.T) {
	c, rec := newTestController(t, 2000)
	first := rec.get("B/rail")

	if err := c.Dispatch(TriggerProjectionBegin); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	second := rec.get("B/rail")
	if !slices.Equal(first.Positions, second.Positions) ||
		!slices.Equal(first.Normals, second.Normals) ||
		first.Sphere != second.Sphere {
		t.Error("two recomputes of the same input differ")
	}
}

func TestController_BeforeLoad(t *testing.T) {
	rec := newRecorder()
	c := NewController(WithRenderer(rec))
	defer c.Close()

	for _, tr := range []Trigger{TriggerConeStep, TriggerYear, TriggerTick, TriggerProjection,
		TriggerProjectionBegin, TriggerConeSetReplaced, TriggerRebuild} {
		if err := c.Dispatch(tr); err != nil {
			t.Errorf("Dispatch(%v) before Load = %v, want nil", tr, err)
		}
	}
	if c.Runs() != 0 || rec.calls != 0 {
		t.Errorf("runs = %d, renderer calls = %d before Load, want 0", c.Runs(), rec.calls)
	}
}

// flakyBackend fails every dispatch while fail is set.
type flakyBackend struct {
	Backend
	fail atomic.Bool
}

func (f *flakyBackend) Dispatch(stages []compute.Stage, u compute.Uniforms, b *compute.Buffers) error {
	if f.fail.Load() {
		return &compute.StageError{Stage: stages[0], Err: errors.New("device lost")}
	}
	return f.Backend.Dispatch(stages, u, b)
}

func TestController_KeepsLastKnownGood(t *testing.T) {
	cpu := compute.NewCPUBackend(1)
	defer cpu.Close()
	flaky := &flakyBackend{Backend: cpu}

	c, rec := newTestController(t, 2000, WithBackend(flaky))
	last := c.Last()
	calls := rec.calls

	flaky.fail.Store(true)
	err := c.Params().SetLambda0(1)
	var se *compute.StageError
	if !errors.As(err, &se) || se.Stage != compute.StagePositions {
		t.Fatalf("SetLambda0 error = %v, want positions StageError", err)
	}
	if c.Last() != last {
		t.Error("failed recompute replaced the last result")
	}
	if rec.calls != calls {
		t.Error("failed recompute reached the renderer")
	}

	flaky.fail.Store(false)
	if err := c.Dispatch(TriggerProjection); err != nil {
		t.Fatalf("Dispatch after recovery: %v", err)
	}
	if c.Last() == last {
		t.Error("successful recompute kept the old result")
	}
}

func TestController_FailedFlushKeepsLimitsPending(t *testing.T) {
	cpu := compute.NewCPUBackend(1)
	defer cpu.Close()
	flaky := &flakyBackend{Backend: cpu}
	c, _ := newTestController(t, 2000, WithBackend(flaky), WithDebounce(0))

	c.Cones()[0].SetWithLimits(false)
	flaky.fail.Store(true)
	if err := c.Dispatch(TriggerTick); err == nil {
		t.Fatal("flush succeeded on a failing backend")
	}
	if !c.LimitsPending() {
		t.Fatal("failed flush dropped the limits change")
	}

	flaky.fail.Store(false)
	if err := c.Dispatch(TriggerTick); err != nil {
		t.Fatalf("flush after recovery: %v", err)
	}
	if c.LimitsPending() || c.Runs() != 2 {
		t.Errorf("pending = %v, runs = %d after recovery, want false, 2", c.LimitsPending(), c.Runs())
	}
}

// hookBackend runs a function once, at the start of the next dispatch.
type hookBackend struct {
	Backend
	next atomic.Pointer[func()]
}

func (h *hookBackend) Dispatch(stages []compute.Stage, u compute.Uniforms, b *compute.Buffers) error {
	if f := h.next.Swap(nil); f != nil {
		(*f)()
	}
	return h.Backend.Dispatch(stages, u, b)
}

func TestController_LimitsChangeDuringFlush(t *testing.T) {
	cpu := compute.NewCPUBackend(1)
	defer cpu.Close()
	hooked := &hookBackend{Backend: cpu}
	c, rec := newTestController(t, 2000, WithBackend(hooked), WithDebounce(0))
	cones := c.Cones()
	limited := rec.get("A/road").Sphere[3]

	toggle := func() { cones[0].SetWithLimits(false) }
	hooked.next.Store(&toggle)
	cones[1].SetWithLimits(false)

	if err := c.Dispatch(TriggerTick); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	if c.Runs() != 2 {
		t.Fatalf("Runs() = %d after the first flush, want 2", c.Runs())
	}
	if !c.LimitsPending() {
		t.Fatal("limits change made while flushing is not pending")
	}
	if got := rec.get("A/road").Sphere[3]; got != limited {
		t.Errorf("A/road radius = %v after the first flush, want the limited %v", got, limited)
	}

	if err := c.Dispatch(TriggerTick); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if c.Runs() != 3 || c.LimitsPending() {
		t.Errorf("runs = %d, pending = %v after the second flush, want 3, false", c.Runs(), c.LimitsPending())
	}
	if got := rec.get("A/road").Sphere[3]; !(got > limited) {
		t.Errorf("A/road radius = %v after the second flush, want > %v", got, limited)
	}
}

func TestController_RejectedStepKeepsState(t *testing.T) {
	c, rec := newTestController(t, 2000)

	if err := c.Params().SetConeStep(1e-5); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("SetConeStep(1e-5) = %v, want ErrInvalidParam", err)
	}
	if got := c.Params().Config().ConeStep; got != DefaultConfig().ConeStep {
		t.Fatalf("rejected step was stored: %v", got)
	}

	lookup, bboxes := testLookup()
	lookup["C"] = TownTransport{
		Position:   geodesy.P(-5, 40, 0),
		Transports: map[string]map[int][]Direction{"air": {2000: {{Elevation: 0.1}}}},
	}
	if _, err := c.Load(lookup, bboxes); err != nil {
		t.Fatalf("Load with a third city: %v", err)
	}
	if err := c.Params().SetLambda0(0.5); err != nil {
		t.Fatalf("SetLambda0: %v", err)
	}
	if len(c.Cones()) != 3 {
		t.Fatalf("%d cones, want 3", len(c.Cones()))
	}
	if g := rec.get("C/air"); g.Hidden() || len(g.Positions) == 0 {
		t.Errorf("C/air geometry = %+v, want visible", g)
	}
}

func TestPipelineState_FailuresKeepState(t *testing.T) {
	cpu := compute.NewCPUBackend(1)
	defer cpu.Close()
	s, err := NewPipelineState(cpu)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Year = 2000
	lookup, bboxes := testLookup()
	if _, err := s.Rebuild(lookup, bboxes, cfg, nil); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	topo := s.Topology()

	lookup["C"] = TownTransport{
		Position:   geodesy.P(-5, 40, 0),
		Transports: map[string]map[int][]Direction{"air": {2000: {{Elevation: 0.1}}}},
	}
	bad := cfg
	bad.ConeStep = 1e-5
	if _, err := s.Rebuild(lookup, bboxes, bad, nil); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("Rebuild with a tiny step = %v, want ErrInvalidParam", err)
	}
	if err := s.setStep(1e-5); !errors.Is(err, compute.ErrInvalidStep) {
		t.Fatalf("setStep(1e-5) = %v, want ErrInvalidStep", err)
	}
	if len(s.Cones()) != 2 || s.Topology() != topo {
		t.Fatalf("failed changes replaced the state: %d cones, topology %p -> %p",
			len(s.Cones()), topo, s.Topology())
	}

	res, err := s.run(cfg, false)
	if err != nil {
		t.Fatalf("run after failures: %v", err)
	}
	rec := newRecorder()
	s.publish(res, rec)
	if rec.calls != 2 {
		t.Errorf("published %d cones, want 2", rec.calls)
	}
}

func TestController_Close(t *testing.T) {
	p := NewParams(DefaultConfig())
	c := NewController(WithParams(p))
	if p.Listeners() != 1 {
		t.Fatalf("Listeners() = %d, want 1", p.Listeners())
	}
	c.Close()
	c.Close()
	if p.Listeners() != 0 {
		t.Errorf("Listeners() after Close = %d, want 0", p.Listeners())
	}
	if err := c.Dispatch(TriggerYear); !errors.Is(err, ErrDisposed) {
		t.Errorf("Dispatch after Close = %v, want ErrDisposed", err)
	}
	lookup, bboxes := testLookup()
	if _, err := c.Load(lookup, bboxes); !errors.Is(err, ErrDisposed) {
		t.Errorf("Load after Close = %v, want ErrDisposed", err)
	}
}

func TestController_ConcurrentTriggers(t *testing.T) {
	c, _ := newTestController(t, 2000)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr := TriggerProjection
			if i%2 == 0 {
				tr = TriggerProjectionBegin
			}
			if err := c.Dispatch(tr); err != nil {
				t.Errorf("Dispatch: %v", err)
			}
		}()
	}
	wg.Wait()
	if c.Runs() != 9 {
		t.Errorf("Runs() = %d, want 9", c.Runs())
	}
}
