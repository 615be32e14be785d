package compute

import (
	"github.com/gogpu/cones/geodesy"
)

func cell(buf []float32, i int) geodesy.Vec3 {
	o := i * CellStride
	return geodesy.V3(float64(buf[o]), float64(buf[o+1]), float64(buf[o+2]))
}

func setCell(buf []float32, i int, v geodesy.Vec3, w float32) {
	o := i * CellStride
	buf[o] = float32(v.X)
	buf[o+1] = float32(v.Y)
	buf[o+2] = float32(v.Z)
	buf[o+3] = w
}

// positionsRow places every column of row r.
// The apex column sits on the summit; ring columns are pushed along their
// direction by the extruded height, clipped to the boundary when the row
// has limits enabled.
func positionsRow(u *Uniforms, b *Buffers, r int) {
	fr := b.Frames[r*FrameStride : (r+1)*FrameStride]
	summit := geodesy.Position{
		Longitude: float64(fr[9]),
		Latitude:  float64(fr[10]),
		Height:    float64(fr[11]),
	}
	globe := geodesy.Globe{Radius: earthRadius(u)}
	origin := globe.ToGeocentric(summit)
	north := geodesy.V3(float64(fr[0]), float64(fr[1]), float64(fr[2]))
	east := geodesy.V3(float64(fr[3]), float64(fr[4]), float64(fr[5]))
	down := geodesy.V3(float64(fr[6]), float64(fr[7]), float64(fr[8]))

	elevation := float64(b.Elevations[r])
	limited := b.WithLimits[r] != 0

	for c, clock := range b.Clocks {
		pos := summit
		if clock >= 0 {
			length := u.ExtrudedHeight
			if limited {
				if d := float64(b.Boundaries[r*b.Columns+c]); d < length {
					length = d
				}
			}
			local := geodesy.Direction(float64(clock), elevation).Mul(length)
			ecef := origin.
				Add(north.Mul(local.X)).
				Add(east.Mul(local.Y)).
				Add(down.Mul(local.Z))
			pos = globe.ToGeodetic(ecef)
		}
		setCell(b.Positions, r*b.Columns+c, Project(u, pos), 1)
	}
}

// sphereRow reduces row r to its centroid and the farthest distance from
// it, then writes the points row: every position followed by the cap
// center, the centroid of the ring columns.
func sphereRow(b *Buffers, r int) {
	n := b.Columns
	base := r * n

	var center geodesy.Vec3
	for c := range n {
		center = center.Add(cell(b.Positions, base+c))
	}
	center = center.Mul(1 / float64(n))

	var radius float64
	for c := range n {
		radius = max(radius, cell(b.Positions, base+c).Distance(center))
	}
	setCell(b.Spheres, r, center, float32(radius))

	ring := n - 1
	capCenter := cell(b.Positions, base+ring)
	if ring > 0 {
		capCenter = geodesy.Vec3{}
		for c := range ring {
			capCenter = capCenter.Add(cell(b.Positions, base+c))
		}
		capCenter = capCenter.Mul(1 / float64(ring))
	}

	width := n + 1
	copy(b.Points[r*width*CellStride:], b.Positions[base*CellStride:(base+n)*CellStride])
	setCell(b.Points, r*width+n, capCenter, 1)
}

// rawNormalsRow computes one face normal per point of row r.
// Ring columns use the mantle triangle (i, i+1, apex); the apex and the cap
// center point away from each other along the cone axis.
func rawNormalsRow(b *Buffers, r int) {
	width := b.Columns + 1
	ring := b.Columns - 1
	base := r * width
	apex := cell(b.Points, base+ring)
	capCenter := cell(b.Points, base+ring+1)

	for i := range ring {
		p := cell(b.Points, base+i)
		next := cell(b.Points, base+(i+1)%ring)
		n := next.Sub(p).Cross(apex.Sub(p)).Normalize()
		setCell(b.RawNormals, base+i, n, 0)
	}
	setCell(b.RawNormals, base+ring, apex.Sub(capCenter).Normalize(), 0)
	setCell(b.RawNormals, base+ring+1, capCenter.Sub(apex).Normalize(), 0)
}

// normalsRow averages every ring normal with its two angular neighbors.
func normalsRow(b *Buffers, r int) {
	width := b.Columns + 1
	ring := b.Columns - 1
	base := r * width

	for i := range ring {
		prev := cell(b.RawNormals, base+(i+ring-1)%ring)
		here := cell(b.RawNormals, base+i)
		next := cell(b.RawNormals, base+(i+1)%ring)
		setCell(b.Normals, base+i, prev.Add(here).Add(next).Normalize(), 0)
	}
	for _, c := range []int{ring, ring + 1} {
		setCell(b.Normals, base+c, cell(b.RawNormals, base+c), 0)
	}
}
