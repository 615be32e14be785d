package compute

import (
	"math"

	"github.com/gogpu/cones/geodesy"
)

// mercatorMaxLatitude is the latitude where the Mercator square ends,
// atan(sinh(π)).
const mercatorMaxLatitude = 1.4844222297453324

// wrapPi folds x into [-π, π) with the same arithmetic as the kernels.
func wrapPi(x float64) float64 {
	return x - geodesy.TwoPi*math.Floor((x+math.Pi)/geodesy.TwoPi)
}

func earthRadius(u *Uniforms) float64 {
	if u.EarthRadius > 0 {
		return u.EarthRadius
	}
	return geodesy.EarthRadius
}

// projectOne maps a geodetic position to display space.
func projectOne(p Projection, u *Uniforms, pos geodesy.Position) geodesy.Vec3 {
	radius := earthRadius(u)
	scale := u.ThreeRadius / radius

	switch p {
	case ProjectionEquirectangular, ProjectionMercator:
		y := pos.Latitude
		if p == ProjectionMercator {
			lat := math.Max(-mercatorMaxLatitude, math.Min(mercatorMaxLatitude, pos.Latitude))
			y = math.Log(math.Tan(math.Pi/4 + lat/2))
		}
		return geodesy.V3(
			radius*scale*wrapPi(pos.Longitude-u.Lambda0)+u.Reference[0],
			radius*scale*y+u.Reference[1],
			pos.Height*scale+u.Reference[2],
		)
	default:
		r := (radius + pos.Height) * scale
		sinLon, cosLon := math.Sincos(pos.Longitude)
		sinLat, cosLat := math.Sincos(pos.Latitude)
		return geodesy.V3(r*cosLat*cosLon, r*cosLat*sinLon, r*sinLat)
	}
}

// Project blends the init and end projections of u by u.Percent.
func Project(u *Uniforms, pos geodesy.Position) geodesy.Vec3 {
	t := math.Max(0, math.Min(1, u.Percent/100))
	from := projectOne(u.ProjectionInit, u, pos)
	if t == 0 {
		return from
	}
	to := projectOne(u.ProjectionEnd, u, pos)
	return from.Mul(1 - t).Add(to.Mul(t))
}
