package cones

import (
	"slices"
	"testing"

	"github.com/gogpu/cones/geodesy"
)

func TestLookup_CitiesAreNormalized(t *testing.T) {
	decomposed := "Gene\u0300ve"
	precomposed := "Gen\u00e8ve"
	l := Lookup{
		decomposed:  {Position: geodesy.P(6.1, 46.2, 0)},
		precomposed: {Position: geodesy.P(6.1, 46.2, 0)},
		"Bern":      {Position: geodesy.P(7.4, 46.9, 0)},
	}

	got := l.Cities()
	if want := []string{"Bern", precomposed}; !slices.Equal(got, want) {
		t.Fatalf("Cities() = %q, want %q", got, want)
	}
	if _, ok := l.town(precomposed); !ok {
		t.Error("town(NFC code) not found")
	}

	only := Lookup{decomposed: {Position: geodesy.P(6.1, 46.2, 0)}}
	if _, ok := only.town(precomposed); !ok {
		t.Error("town(NFC code) did not match a decomposed key")
	}
}

func TestCone_Elevations(t *testing.T) {
	town := TownTransport{
		Transports: map[string]map[int][]Direction{
			"air": {
				1990: {{Clock: 1, Elevation: 0.5}, {Clock: 2, Elevation: 0.7}},
				2000: {},
				1980: {{Elevation: 0.1}},
			},
		},
		Properties: map[string]any{"transports": 1, "referential": 2, "pop": 3},
	}
	c := newCone("X", "air", town, nil)

	if e, ok := c.Elevation(1990); !ok || e != 0.5 {
		t.Errorf("Elevation(1990) = %v, %v, want first sample 0.5", e, ok)
	}
	if _, ok := c.Elevation(2000); ok {
		t.Error("a year without samples has an elevation")
	}
	if got := c.Years(); !slices.Equal(got, []int{1980, 1990}) {
		t.Errorf("Years() = %v", got)
	}

	props := c.Properties()
	if props["pop"] != 3 || props["transport"] != "air" || props["directions"] == nil {
		t.Errorf("Properties() = %v", props)
	}
	for _, k := range reservedProperties {
		if _, ok := props[k]; ok {
			t.Errorf("reserved property %q passed through", k)
		}
	}
}

func TestCone_SetWithLimits(t *testing.T) {
	calls := 0
	c := newCone("X", "air", TownTransport{}, func() { calls++ })

	if !c.WithLimits() {
		t.Fatal("new cone is not limited")
	}
	c.SetWithLimits(true)
	if calls != 0 {
		t.Error("hook called without a change")
	}
	c.SetWithLimits(false)
	c.SetWithLimits(false)
	if calls != 1 || c.WithLimits() {
		t.Errorf("calls = %d, WithLimits = %v after switching off", calls, c.WithLimits())
	}
	c.SetWithLimits(true)
	if calls != 2 {
		t.Errorf("calls = %d after switching back on, want 2", calls)
	}
}

func TestStore(t *testing.T) {
	s := NewStore()
	c := newCone("X", "air", TownTransport{}, nil)

	s.SetGeometry(c, Geometry{Positions: []float32{1}, Normals: []float32{2}, DrawCount: 3})
	s.SetGeometry(c, Geometry{Positions: []float32{4}, DrawCount: 3})
	g, ok := s.Geometry(c)
	if !ok || g.Positions[0] != 4 || len(g.Normals) != 1 || g.Normals[0] != 2 {
		t.Errorf("Geometry() = %+v, %v, want new positions and carried normals", g, ok)
	}

	s.SetGeometry(c, Geometry{})
	if g, _ := s.Geometry(c); !g.Hidden() || g.Normals != nil {
		t.Errorf("hidden geometry = %+v", g)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	s.Reset()
	if s.Len() != 0 {
		t.Errorf("Len() after Reset = %d", s.Len())
	}
}
