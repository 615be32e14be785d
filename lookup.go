package cones

import (
	"maps"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/gogpu/cones/geodesy"
	"github.com/gogpu/cones/internal/boundary"
)

// BBox is a geographic bounding box with the boundary polygons of the
// area it covers.
type BBox = boundary.BBox

// Direction is one directional sample of a transport mode.
type Direction struct {
	// Clock is the azimuth of the sample in radians.
	Clock float64 `json:"clock"`
	// Elevation is the cone slope in radians.
	Elevation float64 `json:"elevation"`
}

// TownTransport is the source data of one city.
type TownTransport struct {
	Position geodesy.Position
	// Transports maps a transport mode to its direction samples per year.
	Transports map[string]map[int][]Direction
	// Properties are passed through to every cone of the city.
	Properties map[string]any
}

// Lookup maps a city code to its source data.
type Lookup map[string]TownTransport

// reservedProperties are dropped when properties are passed through.
var reservedProperties = []string{"referential", "position", "transports"}

// normalizeCode returns the NFC form of a city code.
func normalizeCode(code string) string {
	return norm.NFC.String(code)
}

// Cities returns the city codes in NFC form, sorted. Codes that are equal
// after normalization are listed once.
func (l Lookup) Cities() []string {
	codes := make([]string, 0, len(l))
	for code := range l {
		codes = append(codes, normalizeCode(code))
	}
	slices.Sort(codes)
	return slices.Compact(codes)
}

// town returns the entry of a normalized city code. When several raw codes
// share the normal form the smallest raw code wins.
func (l Lookup) town(city string) (TownTransport, bool) {
	if t, ok := l[city]; ok {
		return t, true
	}
	for _, raw := range slices.Sorted(maps.Keys(l)) {
		if normalizeCode(raw) == city {
			return l[raw], true
		}
	}
	return TownTransport{}, false
}

// modes returns the transport modes of t, sorted.
func (t TownTransport) modes() []string {
	return slices.Sorted(maps.Keys(t.Transports))
}

// coneProperties merges the town properties with the per-cone attributes.
func (t TownTransport) coneProperties(mode string) map[string]any {
	props := make(map[string]any, len(t.Properties)+2)
	for k, v := range t.Properties {
		if !slices.Contains(reservedProperties, k) {
			props[k] = v
		}
	}
	props["directions"] = t.Transports[mode]
	props["transport"] = mode
	return props
}
