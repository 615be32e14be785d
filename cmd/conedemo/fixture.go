package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gogpu/cones"
	"github.com/gogpu/cones/geodesy"
)

//go:embed sample.json
var sampleFixture []byte

// fixture is the JSON form of a lookup. Angles are in degrees.
type fixture struct {
	Cities map[string]fixtureCity `json:"cities"`
	BBoxes []fixtureBBox          `json:"bboxes"`
}

type fixtureCity struct {
	Longitude  float64                               `json:"longitude"`
	Latitude   float64                               `json:"latitude"`
	Height     float64                               `json:"height"`
	Transports map[string]map[int][]fixtureDirection `json:"transports"`
	Properties map[string]any                        `json:"properties"`
}

type fixtureDirection struct {
	Clock     float64 `json:"clock"`
	Elevation float64 `json:"elevation"`
}

type fixtureBBox struct {
	MinLongitude float64        `json:"minLongitude"`
	MinLatitude  float64        `json:"minLatitude"`
	MaxLongitude float64        `json:"maxLongitude"`
	MaxLatitude  float64        `json:"maxLatitude"`
	Polygons     [][][2]float64 `json:"polygons"` // [longitude, latitude]
}

// loadFixture decodes a JSON fixture into a lookup and its bounding boxes.
func loadFixture(r io.Reader) (cones.Lookup, []cones.BBox, error) {
	var f fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, nil, fmt.Errorf("decode fixture: %w", err)
	}
	if len(f.Cities) == 0 {
		return nil, nil, fmt.Errorf("fixture has no cities")
	}

	lookup := make(cones.Lookup, len(f.Cities))
	for code, c := range f.Cities {
		town := cones.TownTransport{
			Position:   geodesy.P(c.Longitude, c.Latitude, c.Height),
			Transports: make(map[string]map[int][]cones.Direction, len(c.Transports)),
			Properties: c.Properties,
		}
		for mode, years := range c.Transports {
			byYear := make(map[int][]cones.Direction, len(years))
			for year, dirs := range years {
				out := make([]cones.Direction, len(dirs))
				for i, d := range dirs {
					out[i] = cones.Direction{
						Clock:     geodesy.Radians(d.Clock),
						Elevation: geodesy.Radians(d.Elevation),
					}
				}
				byYear[year] = out
			}
			town.Transports[mode] = byYear
		}
		lookup[code] = town
	}

	bboxes := make([]cones.BBox, len(f.BBoxes))
	for i, b := range f.BBoxes {
		bboxes[i] = cones.BBox{
			MinLongitude: geodesy.Radians(b.MinLongitude),
			MinLatitude:  geodesy.Radians(b.MinLatitude),
			MaxLongitude: geodesy.Radians(b.MaxLongitude),
			MaxLatitude:  geodesy.Radians(b.MaxLatitude),
		}
		for _, poly := range b.Polygons {
			ring := make([]geodesy.Position, len(poly))
			for j, p := range poly {
				ring[j] = geodesy.P(p[0], p[1], 0)
			}
			bboxes[i].Polygons = append(bboxes[i].Polygons, ring)
		}
	}
	return lookup, bboxes, nil
}
