// Package cones computes the geometry of transport cones on a geodetic globe.
//
// # Overview
//
// A transport cone is the surface reached from a city by one transport mode
// in a given year: its slope is the elevation of the mode's direction
// samples and its footprint is clipped by the city's boundary polygons.
// cones regenerates the vertex positions, bounding spheres and normals of
// every cone whenever a configuration parameter changes, re-running no more
// of the pipeline than the change requires.
//
// # Quick Start
//
//	import "github.com/gogpu/cones"
//
//	ctrl := cones.NewController(cones.WithRenderer(myRenderer))
//	defer ctrl.Close()
//
//	// Build the cones and compute their geometry.
//	list, err := ctrl.Load(lookup, bboxes)
//
//	// Parameter changes recompute through the controller.
//	err = ctrl.Params().SetYear(1990)
//
// # Architecture
//
// The library is organized into:
//   - geodesy: geocentric and geodetic conversions, local NED frames
//   - internal/boundary: per-city clock → distance limit functions
//   - internal/compute: staged pipeline (positions, bounding spheres,
//     raw normals, normals) over texture-shaped buffers, CPU backend
//   - internal/gpu: the same stages as wgpu/hal compute passes
//   - Public API: Controller, Params, Cone, Geometry, Renderer
//
// # GPU Compute
//
// The CPU backend is used by default. Import the gpu package to run the
// stages on a Vulkan device when one is available:
//
//	import _ "github.com/gogpu/cones/gpu"
//
// # Coordinate System
//
// Positions are geodetic: longitude and latitude in radians, height in
// meters above a sphere of radius EarthRadius. Local frames are
// North-East-Down. The clock angle of a direction is measured from north
// towards east.
package cones
