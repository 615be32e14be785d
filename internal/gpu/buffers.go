//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/cones/internal/compute"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// deviceBuffer is one GPU buffer and, for stage outputs, its readback copy.
type deviceBuffer struct {
	buf     hal.Buffer
	staging hal.Buffer
	size    uint64
}

// deviceBuffers mirrors compute.Buffers on the device for one shape.
type deviceBuffers struct {
	columns, rows int

	params     deviceBuffer
	clocks     deviceBuffer
	boundaries deviceBuffer
	elevations deviceBuffer
	withLimits deviceBuffer
	frames     deviceBuffer

	positions  deviceBuffer
	spheres    deviceBuffer
	points     deviceBuffer
	rawNormals deviceBuffer
	normals    deviceBuffer
}

func (d *deviceBuffers) all() []*deviceBuffer {
	return []*deviceBuffer{
		&d.params, &d.clocks, &d.boundaries, &d.elevations, &d.withLimits, &d.frames,
		&d.positions, &d.spheres, &d.points, &d.rawNormals, &d.normals,
	}
}

func (b *Backend) createBuffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	const minBufSize = 4
	if size < minBufSize {
		size = minBufSize
	}
	return b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
}

// allocate creates device buffers for the shape of host.
func (b *Backend) allocate(host *compute.Buffers) (*deviceBuffers, error) {
	d := &deviceBuffers{columns: host.Columns, rows: host.Rows}

	input := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	result := gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	readback := gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst

	specs := []struct {
		target *deviceBuffer
		label  string
		values int
		usage  gputypes.BufferUsage
		output bool
	}{
		{&d.params, "cones_params", compute.UniformSize / 4, gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst, false},
		{&d.clocks, "cones_clocks", len(host.Clocks), input, false},
		{&d.boundaries, "cones_boundaries", len(host.Boundaries), input, false},
		{&d.elevations, "cones_elevations", len(host.Elevations), input, false},
		{&d.withLimits, "cones_with_limits", len(host.WithLimits), input, false},
		{&d.frames, "cones_frames", len(host.Frames), input, false},
		{&d.positions, "cones_positions", len(host.Positions), result, true},
		{&d.spheres, "cones_spheres", len(host.Spheres), result, true},
		{&d.points, "cones_points", len(host.Points), result, true},
		{&d.rawNormals, "cones_raw_normals", len(host.RawNormals), result, true},
		{&d.normals, "cones_normals", len(host.Normals), result, true},
	}
	for _, s := range specs {
		size := uint64(s.values) * 4 //nolint:gosec // lengths are non-negative
		buf, err := b.createBuffer(s.label, size, s.usage)
		if err != nil {
			b.destroyBuffers(d)
			return nil, fmt.Errorf("create %s buffer: %w", s.label, err)
		}
		s.target.buf = buf
		s.target.size = size
		if s.output {
			staging, err := b.createBuffer(s.label+"_staging", size, readback)
			if err != nil {
				b.destroyBuffers(d)
				return nil, fmt.Errorf("create %s staging buffer: %w", s.label, err)
			}
			s.target.staging = staging
		}
	}

	slogger().Debug("cones gpu: buffers allocated",
		"columns", host.Columns, "rows", host.Rows,
		"positions_bytes", d.positions.size, "points_bytes", d.points.size)
	return d, nil
}

func (b *Backend) destroyBuffers(d *deviceBuffers) {
	if d == nil {
		return
	}
	for _, db := range d.all() {
		if db.buf != nil {
			b.device.DestroyBuffer(db.buf)
		}
		if db.staging != nil {
			b.device.DestroyBuffer(db.staging)
		}
		*db = deviceBuffer{}
	}
}

// upload writes every host buffer to the device.
func (b *Backend) upload(d *deviceBuffers, u compute.Uniforms, host *compute.Buffers) {
	b.queue.WriteBuffer(d.params.buf, 0, u.Bytes())
	for _, w := range []struct {
		dst  hal.Buffer
		data []byte
	}{
		{d.clocks.buf, floatBytes(host.Clocks)},
		{d.boundaries.buf, floatBytes(host.Boundaries)},
		{d.elevations.buf, floatBytes(host.Elevations)},
		{d.withLimits.buf, uintBytes(host.WithLimits)},
		{d.frames.buf, floatBytes(host.Frames)},
		{d.positions.buf, floatBytes(host.Positions)},
		{d.points.buf, floatBytes(host.Points)},
		{d.rawNormals.buf, floatBytes(host.RawNormals)},
	} {
		if len(w.data) > 0 {
			b.queue.WriteBuffer(w.dst, 0, w.data)
		}
	}
}

func floatBytes(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

func uintBytes(v []uint32) []byte {
	out := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[4*i:], x)
	}
	return out
}

func readFloats(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
	}
}
