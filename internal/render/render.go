// Package render draws per-sample spatial maps: hotspot-density heatmaps
// from grid cells and categorical scatter plots of the fused point set.
package render

import (
	"fmt"
	"image/color"

	"github.com/fogleman/gg"

	"nervemap/internal/fuse"
	"nervemap/internal/grid"
	"nervemap/pkg/colormap"
)

// Heatmap renders grid cells colored by hotspot count and writes a PNG.
// One spatial unit maps to one pixel. Cells without hotspots stay white so
// sparse samples read as mostly empty rather than dark.
func Heatmap(cells []grid.Cell, extent grid.Extent, path string) error {
	dc := gg.NewContext(int(extent.X), int(extent.Y))
	dc.SetColor(color.White)
	dc.Clear()

	maxCount := 0
	for _, c := range cells {
		if c.HotspotCount > maxCount {
			maxCount = c.HotspotCount
		}
	}

	for _, c := range cells {
		if c.HotspotCount == 0 {
			continue
		}
		t := float64(c.HotspotCount) / float64(maxCount)
		dc.SetColor(colormap.Viridis.At(t))
		dc.DrawRectangle(c.Bounds.X, c.Bounds.Y, c.Bounds.Width, c.Bounds.Height)
		dc.Fill()
	}

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("save heatmap: %w", err)
	}
	return nil
}

// Scatter renders the fused point set with one color per category and
// writes a PNG. Hotspots draw last and slightly larger so they stay
// visible over dense cell neighborhoods.
func Scatter(points []fuse.Point, extent grid.Extent, cmap *colormap.Categorical, path string) error {
	dc := gg.NewContext(int(extent.X), int(extent.Y))
	dc.SetColor(color.White)
	dc.Clear()

	for _, p := range points {
		if p.Category == fuse.NerveHotspot {
			continue
		}
		dc.SetColor(cmap.Color(p.Category))
		dc.DrawCircle(p.X, p.Y, 1.5)
		dc.Fill()
	}
	for _, p := range points {
		if p.Category != fuse.NerveHotspot {
			continue
		}
		dc.SetColor(cmap.Color(p.Category))
		dc.DrawCircle(p.X, p.Y, 3)
		dc.Fill()
	}

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("save scatter: %w", err)
	}
	return nil
}
