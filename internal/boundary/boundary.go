// Package boundary turns geographic bounding polygons into per-city limit
// functions: for every clock angle around a summit, the shortest distance to
// the polygon vertices seen in that angular bucket.
package boundary

import (
	"math"
	"sort"

	"github.com/gogpu/cones/geodesy"
)

// Unlimited is the float32 stand-in for an infinite limit in compute buffers.
const Unlimited float32 = 1e30

// Sample is one boundary vertex seen from a summit.
type Sample struct {
	Clock    float64 // radians
	Distance float64 // meters
}

// Raw converts every vertex of polygons into frame-local samples.
// Each vertex is emitted three times, at its clock and shifted by ±2π, so
// the sorted result covers the real line around one period.
func Raw(polygons [][]geodesy.Position, frame *geodesy.Frame) []Sample {
	var n int
	for _, poly := range polygons {
		n += len(poly)
	}
	out := make([]Sample, 0, 3*n)
	for _, poly := range polygons {
		for _, pos := range poly {
			local := frame.ToLocal(pos)
			clock := math.Atan2(local.Y, local.X)
			d := local.Norm()
			out = append(out,
				Sample{Clock: clock, Distance: d},
				Sample{Clock: clock + geodesy.TwoPi, Distance: d},
				Sample{Clock: clock - geodesy.TwoPi, Distance: d},
			)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Clock < out[j].Clock })
	return out
}

// Function maps a clock angle to a boundary distance.
// It is periodic with period 2π. A Function without nodes is unlimited.
type Function struct {
	step   float64
	clocks []float64
	dists  []float64
}

// Build bins samples into buckets of width step, keeps the smallest distance
// of every bucket, and interpolates linearly between bucket starts.
//
// Queries are wrapped into [-π, π) first. Samples carry their ±2π copies,
// so the wrapped query always has a node on each side; past the outermost
// node the value is clamped.
func Build(samples []Sample, step float64) *Function {
	f := &Function{step: step}
	if len(samples) == 0 || step <= 0 || math.IsNaN(step) {
		return f
	}

	buckets := make(map[int64]float64, len(samples))
	for _, s := range samples {
		if math.IsNaN(s.Clock) || math.IsNaN(s.Distance) {
			continue
		}
		k := int64(math.Floor(s.Clock / step))
		if d, ok := buckets[k]; !ok || s.Distance < d {
			buckets[k] = s.Distance
		}
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	f.clocks = make([]float64, len(keys))
	f.dists = make([]float64, len(keys))
	for i, k := range keys {
		f.clocks[i] = float64(k) * step
		f.dists[i] = buckets[k]
	}
	return f
}

// Step returns the bucket width the function was built with.
func (f *Function) Step() float64 { return f.step }

// Len returns the number of buckets holding at least one sample.
func (f *Function) Len() int { return len(f.clocks) }

// At returns the limit at clock. An empty function returns +Inf.
func (f *Function) At(clock float64) float64 {
	n := len(f.clocks)
	if n == 0 {
		return math.Inf(1)
	}
	x := geodesy.WrapAngle(clock)

	i := sort.SearchFloat64s(f.clocks, x)
	switch {
	case i < n && f.clocks[i] == x:
		return f.dists[i]
	case i == 0:
		return f.dists[0]
	case i == n:
		return f.dists[n-1]
	}
	x0, x1 := f.clocks[i-1], f.clocks[i]
	d0, d1 := f.dists[i-1], f.dists[i]
	t := (x - x0) / (x1 - x0)
	return d0 + (d1-d0)*t
}

// Sample evaluates the function at every clock for a compute buffer.
// Negative clocks mark the apex column and get Unlimited, as do infinite
// limits.
func (f *Function) Sample(clocks []float32) []float32 {
	out := make([]float32, len(clocks))
	for i, c := range clocks {
		if c < 0 {
			out[i] = Unlimited
			continue
		}
		d := f.At(float64(c))
		if math.IsInf(d, 1) || d >= float64(Unlimited) {
			out[i] = Unlimited
			continue
		}
		out[i] = float32(d)
	}
	return out
}
