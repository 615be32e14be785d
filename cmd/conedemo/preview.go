package main

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/gogpu/cones"
	"github.com/gogpu/cones/internal/compute"
)

var modePalette = []color.NRGBA{
	{R: 0xe4, G: 0x57, B: 0x2e, A: 0xa0},
	{R: 0x29, G: 0x80, B: 0xb9, A: 0xa0},
	{R: 0x27, G: 0xae, B: 0x60, A: 0xa0},
	{R: 0x8e, G: 0x44, B: 0xad, A: 0xa0},
}

// footprint is the display-space outline of one visible cone.
type footprint struct {
	cone *cones.Cone
	ring [][2]float64
	apex [2]float64
}

func footprints(list []*cones.Cone, store *cones.Store) []footprint {
	var out []footprint
	for _, c := range list {
		g, ok := store.Geometry(c)
		if !ok || g.Hidden() {
			continue
		}
		n := len(g.Indices) / 6
		fp := footprint{cone: c, ring: make([][2]float64, n)}
		for i := range n {
			fp.ring[i] = [2]float64{float64(g.Positions[i*compute.CellStride]), float64(g.Positions[i*compute.CellStride+1])}
		}
		fp.apex = [2]float64{float64(g.Positions[n*compute.CellStride]), float64(g.Positions[n*compute.CellStride+1])}
		out = append(out, fp)
	}
	return out
}

// writePreview draws the X/Y footprint of every visible cone into a square
// PNG, fitted to the drawing, with the city codes at the apexes.
func writePreview(path string, size int, list []*cones.Cone, store *cones.Store) error {
	fps := footprints(list, store)
	if len(fps) == 0 {
		return fmt.Errorf("no visible cone to draw")
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, fp := range fps {
		for _, p := range append(fp.ring, fp.apex) {
			minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
			minY, maxY = math.Min(minY, p[1]), math.Max(maxY, p[1])
		}
	}
	const margin = 24
	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 {
		span = 1
	}
	scale := float64(size-2*margin) / span
	toPixel := func(p [2]float64) (float32, float32) {
		return float32(margin + (p[0]-minX)*scale), float32(float64(size-margin) - (p[1]-minY)*scale)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	modes := map[string]int{}
	z := vector.NewRasterizer(size, size)
	for _, fp := range fps {
		idx, ok := modes[fp.cone.Mode()]
		if !ok {
			idx = len(modes)
			modes[fp.cone.Mode()] = idx
		}
		z.Reset(size, size)
		x, y := toPixel(fp.ring[0])
		z.MoveTo(x, y)
		for _, p := range fp.ring[1:] {
			z.LineTo(toPixel(p))
		}
		z.ClosePath()
		z.Draw(dst, dst.Bounds(), image.NewUniform(modePalette[idx%len(modePalette)]), image.Point{})
	}

	face, err := labelFace(12)
	if err != nil {
		return err
	}
	defer func() { _ = face.Close() }()
	d := &font.Drawer{Dst: dst, Src: image.Black, Face: face}
	labelled := map[string]bool{}
	for _, fp := range fps {
		if labelled[fp.cone.City()] {
			continue
		}
		labelled[fp.cone.City()] = true
		x, y := toPixel(fp.apex)
		d.Dot = fixed.P(int(x)+4, int(y)-4)
		d.DrawString(fp.cone.City())
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, dst); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func labelFace(size float64) (font.Face, error) {
	parsed, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse label font: %w", err)
	}
	return opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
