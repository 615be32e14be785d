//go:build !nogpu

// Package gpu runs the cone pipeline as wgpu/hal compute passes.
//
// Every stage is one WGSL kernel. A dispatch uploads the host buffers,
// records the requested stages in order into one command buffer, copies
// the stage outputs to staging buffers, waits on a fence and reads them
// back into the host buffers.
package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/cones/geodesy"
	"github.com/gogpu/cones/internal/compute"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// fenceTimeout is the maximum time to wait for one dispatch.
const fenceTimeout = 5 * time.Second

// ErrNotReady is returned by Dispatch before Init or after Close.
var ErrNotReady = errors.New("cones gpu: backend not initialized")

type stagePipeline struct {
	module   hal.ShaderModule
	bgLayout hal.BindGroupLayout
	layout   hal.PipelineLayout
	pipeline hal.ComputePipeline
}

// Backend is a compute.Backend on a wgpu/hal device.
//
// The zero value is ready for Init, which opens its own Vulkan device.
// NewBackend and SetDeviceProvider use a device owned by someone else.
type Backend struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool // device is shared; do not destroy on Close
	adapter  string

	pipes [stageCount]stagePipeline
	bufs  *deviceBuffers
	ready bool
}

var _ compute.Backend = (*Backend)(nil)

// NewBackend returns a backend using an existing device and queue.
func NewBackend(device hal.Device, queue hal.Queue) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, errors.New("cones gpu: nil device or queue")
	}
	b := &Backend{device: device, queue: queue, external: true}
	if err := b.createPipelines(); err != nil {
		return nil, err
	}
	b.ready = true
	return b, nil
}

// Name returns "gpu".
func (b *Backend) Name() string { return "gpu" }

// Adapter returns the name of the adapter opened by Init, if any.
func (b *Backend) Adapter() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.adapter
}

// SetLogger routes the package logs to l.
func (b *Backend) SetLogger(l *slog.Logger) { setLogger(l) }

// Init opens a Vulkan device and builds the pipelines.
// It is a no-op on a backend that is already initialized.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}
	if err := b.initGPU(); err != nil {
		return fmt.Errorf("cones gpu: %w", err)
	}
	return nil
}

func (b *Backend) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("open device: %w", err)
	}

	b.instance = instance
	b.device = openDev.Device
	b.queue = openDev.Queue
	b.external = false
	if err := b.createPipelines(); err != nil {
		b.device.Destroy()
		b.instance.Destroy()
		b.device, b.queue, b.instance = nil, nil, nil
		return fmt.Errorf("create pipelines: %w", err)
	}
	b.adapter = selected.Info.Name
	b.ready = true
	slogger().Info("cones gpu: backend initialized", "adapter", b.adapter)
	return nil
}

// SetDeviceProvider switches the backend to a device shared by the host
// application, typically a gpucontext.DeviceProvider. The provider must
// expose HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue.
func (b *Backend) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("cones gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("cones gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("cones gpu: provider HalQueue is not hal.Queue")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.release()

	b.device = device
	b.queue = queue
	b.external = true
	if err := b.createPipelines(); err != nil {
		b.device, b.queue = nil, nil
		return fmt.Errorf("cones gpu: %w", err)
	}
	b.ready = true
	slogger().Info("cones gpu: using shared device")
	return nil
}

func bindGroupLayoutEntries(stage compute.Stage) []gputypes.BindGroupLayoutEntry {
	params := gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
	storage := func(binding uint32, t gputypes.BufferBindingType) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: t},
		}
	}
	ro := gputypes.BufferBindingTypeReadOnlyStorage
	rw := gputypes.BufferBindingTypeStorage

	switch stage {
	case compute.StagePositions:
		return []gputypes.BindGroupLayoutEntry{
			params, storage(1, ro), storage(2, ro), storage(3, ro), storage(4, ro), storage(5, ro), storage(6, rw),
		}
	case compute.StageBoundingSphere:
		return []gputypes.BindGroupLayoutEntry{params, storage(1, ro), storage(2, rw), storage(3, rw)}
	default:
		return []gputypes.BindGroupLayoutEntry{params, storage(1, ro), storage(2, rw)}
	}
}

func bindGroupEntries(stage compute.Stage, d *deviceBuffers) []gputypes.BindGroupEntry {
	var bufs []*deviceBuffer
	switch stage {
	case compute.StagePositions:
		bufs = []*deviceBuffer{&d.params, &d.clocks, &d.boundaries, &d.elevations, &d.withLimits, &d.frames, &d.positions}
	case compute.StageBoundingSphere:
		bufs = []*deviceBuffer{&d.params, &d.positions, &d.spheres, &d.points}
	case compute.StageRawNormals:
		bufs = []*deviceBuffer{&d.params, &d.points, &d.rawNormals}
	default:
		bufs = []*deviceBuffer{&d.params, &d.rawNormals, &d.normals}
	}
	entries := make([]gputypes.BindGroupEntry, len(bufs))
	for i, db := range bufs {
		entries[i] = gputypes.BindGroupEntry{
			Binding: uint32(i), //nolint:gosec // at most 7 bindings
			Resource: gputypes.BufferBinding{
				Buffer: db.buf.NativeHandle(),
				Offset: 0,
				Size:   0, // 0 = entire buffer
			},
		}
	}
	return entries
}

// output pairs a device buffer written by a stage with its host copy.
type output struct {
	db  *deviceBuffer
	dst []float32
}

func stageOutputs(stage compute.Stage, d *deviceBuffers, host *compute.Buffers) []output {
	switch stage {
	case compute.StagePositions:
		return []output{{&d.positions, host.Positions}}
	case compute.StageBoundingSphere:
		return []output{{&d.spheres, host.Spheres}, {&d.points, host.Points}}
	case compute.StageRawNormals:
		return []output{{&d.rawNormals, host.RawNormals}}
	default:
		return []output{{&d.normals, host.Normals}}
	}
}

func (b *Backend) createPipelines() error {
	for i := range stageCount {
		stage := compute.Stage(i)
		label := "cones_" + stage.String()

		module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  label,
			Source: shaderSource(stage),
		})
		if err != nil {
			b.destroyPipelines()
			return fmt.Errorf("create shader module for %s: %w", stage, err)
		}
		b.pipes[i].module = module

		entries := bindGroupLayoutEntries(stage)
		bgLayout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   label + "_bgl",
			Entries: entries,
		})
		if err != nil {
			b.destroyPipelines()
			return fmt.Errorf("create bind group layout for %s: %w", stage, err)
		}
		b.pipes[i].bgLayout = bgLayout

		layout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            label + "_pl",
			BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
		})
		if err != nil {
			b.destroyPipelines()
			return fmt.Errorf("create pipeline layout for %s: %w", stage, err)
		}
		b.pipes[i].layout = layout

		pipeline, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  label,
			Layout: layout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: "main",
			},
		})
		if err != nil {
			b.destroyPipelines()
			return fmt.Errorf("create compute pipeline for %s: %w", stage, err)
		}
		b.pipes[i].pipeline = pipeline

		slogger().Debug("cones gpu: pipeline created", "stage", stage.String(), "bindings", len(entries))
	}
	return nil
}

func (b *Backend) destroyPipelines() {
	for i := range b.pipes {
		p := &b.pipes[i]
		if p.pipeline != nil {
			b.device.DestroyComputePipeline(p.pipeline)
		}
		if p.layout != nil {
			b.device.DestroyPipelineLayout(p.layout)
		}
		if p.bgLayout != nil {
			b.device.DestroyBindGroupLayout(p.bgLayout)
		}
		if p.module != nil {
			b.device.DestroyShaderModule(p.module)
		}
		*p = stagePipeline{}
	}
}

// dispatchResources tracks per-dispatch GPU resources for cleanup.
type dispatchResources struct {
	device     hal.Device
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer
	fence      hal.Fence
}

func (r *dispatchResources) cleanup() {
	if r.fence != nil {
		r.device.DestroyFence(r.fence)
	}
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
	}
	for _, g := range r.bindGroups {
		r.device.DestroyBindGroup(g)
	}
}

// Dispatch runs stages in order on the device and reads their outputs
// back into host.
func (b *Backend) Dispatch(stages []compute.Stage, u compute.Uniforms, host *compute.Buffers) error {
	if len(stages) == 0 {
		return nil
	}
	first, last := stages[0], stages[len(stages)-1]

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		return &compute.StageError{Stage: first, Err: ErrNotReady}
	}
	if err := host.Validate(); err != nil {
		return &compute.StageError{Stage: first, Err: err}
	}
	for _, s := range stages {
		if s < 0 || int(s) >= stageCount {
			return &compute.StageError{Stage: s, Err: errors.New("unknown stage")}
		}
	}

	if b.bufs == nil || b.bufs.columns != host.Columns || b.bufs.rows != host.Rows {
		b.destroyBuffers(b.bufs)
		b.bufs = nil
		bufs, err := b.allocate(host)
		if err != nil {
			return &compute.StageError{Stage: first, Err: err}
		}
		b.bufs = bufs
	}

	u.Columns, u.Rows = host.Columns, host.Rows
	if u.EarthRadius <= 0 {
		u.EarthRadius = geodesy.EarthRadius
	}
	b.upload(b.bufs, u, host)

	res := &dispatchResources{device: b.device}
	defer res.cleanup()

	if err := b.encode(res, stages, host); err != nil {
		return err
	}
	if err := b.submitAndWait(res); err != nil {
		return &compute.StageError{Stage: last, Err: err}
	}
	for _, s := range stages {
		for _, o := range stageOutputs(s, b.bufs, host) {
			data := make([]byte, o.db.size)
			if err := b.queue.ReadBuffer(o.db.staging, 0, data); err != nil {
				return &compute.StageError{Stage: s, Err: fmt.Errorf("readback: %w", err)}
			}
			readFloats(o.dst, data)
		}
	}
	return nil
}

// encode records one compute pass per stage, then the staging copies.
func (b *Backend) encode(res *dispatchResources, stages []compute.Stage, host *compute.Buffers) error {
	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "cones"})
	if err != nil {
		return &compute.StageError{Stage: stages[0], Err: fmt.Errorf("create command encoder: %w", err)}
	}
	if err := encoder.BeginEncoding("cones"); err != nil {
		return &compute.StageError{Stage: stages[0], Err: fmt.Errorf("begin encoding: %w", err)}
	}

	for _, s := range stages {
		bg, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   fmt.Sprintf("cones_%s_bg", s),
			Layout:  b.pipes[s].bgLayout,
			Entries: bindGroupEntries(s, b.bufs),
		})
		if err != nil {
			encoder.DiscardEncoding()
			return &compute.StageError{Stage: s, Err: fmt.Errorf("create bind group: %w", err)}
		}
		res.bindGroups = append(res.bindGroups, bg)

		wg := workgroups(s, host.Columns, host.Rows)
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "cones_" + s.String()})
		pass.SetPipeline(b.pipes[s].pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(wg, 1, 1)
		pass.End()

		slogger().Debug("cones gpu: dispatched stage", "stage", s.String(), "workgroups", wg)
	}

	for _, s := range stages {
		for _, o := range stageOutputs(s, b.bufs, host) {
			encoder.CopyBufferToBuffer(o.db.buf, o.db.staging, []hal.BufferCopy{
				{SrcOffset: 0, DstOffset: 0, Size: o.db.size},
			})
		}
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return &compute.StageError{Stage: stages[len(stages)-1], Err: fmt.Errorf("end encoding: %w", err)}
	}
	res.cmdBuf = cmdBuf
	return nil
}

func (b *Backend) submitAndWait(res *dispatchResources) error {
	fence, err := b.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	res.fence = fence

	if err := b.queue.Submit([]hal.CommandBuffer{res.cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := b.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("GPU timeout after %v", fenceTimeout)
	}
	return nil
}

// release drops buffers and pipelines, and the device when owned.
// Callers hold b.mu.
func (b *Backend) release() {
	if b.device != nil {
		b.destroyBuffers(b.bufs)
		b.destroyPipelines()
	}
	b.bufs = nil
	if !b.external {
		if b.device != nil {
			b.device.Destroy()
		}
		if b.instance != nil {
			b.instance.Destroy()
		}
	}
	b.device, b.queue, b.instance = nil, nil, nil
	b.external = false
	b.ready = false
}

// Close releases every GPU resource. Close is safe to call multiple times.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release()
}
