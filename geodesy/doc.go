// Package geodesy converts between geodetic and geocentric coordinates on a
// spherical Earth and anchors North-East-Down local tangent frames at cone
// summits.
//
// # Coordinate systems
//
//   - Geodetic: [Position] holds longitude and latitude in radians and a
//     height in meters above the sphere.
//   - Geocentric (ECEF): [Vec3] in meters, X towards (0, 0), Z towards the
//     north pole.
//   - Local (NED): [Vec3] in meters relative to a [Frame] summit, X north,
//     Y east, Z down.
//
// # Clock angles
//
// Inside a frame the azimuth of a point, atan2(east, north), is called its
// clock. Cone surfaces are sampled by clock and elevation through
// [Frame.Project].
//
// # Degenerate input
//
// No conversion in this package fails. The geocenter maps to longitude and
// latitude zero, and the inverse transform picks between two equivalent
// formulas so that the cardinal meridians never divide by a vanishing sine.
package geodesy
