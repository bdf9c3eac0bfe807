// Package grid partitions a sample's coordinate space into fixed-size
// square cells and aggregates fused-point statistics per cell.
package grid

import (
	"errors"
	"fmt"
	"math"

	"nervemap/internal/fuse"
	"nervemap/pkg/geometry"
)

// ErrInvalidStep reports a grid misconfiguration. It must surface before
// any per-sample processing starts.
var ErrInvalidStep = errors.New("invalid grid step")

// NoPairs is the mean-pairwise-distance sentinel for a cell containing no
// hotspots, distinguishing "no points" (-1) from "one point, no pairs" (0).
const NoPairs = -1

// Extent is the coordinate-space bound of a sample image.
type Extent struct {
	X float64
	Y float64
}

// Cell is one grid cell with its aggregate statistics. A cell that
// contains no points reports zero counts, zero means/maxima and the
// NoPairs distance sentinel; no field is ever left undefined.
type Cell struct {
	XIndex int
	YIndex int
	Bounds geometry.Rect
	Center geometry.Point2D

	// Count and the aggregates below cover the points the cell was
	// aggregated over (all points, or only the target category when one
	// was requested).
	Count          int
	CategoryCounts map[string]int
	MeanSize       float64
	MaxSize        float64
	MeanElongation float64
	MaxElongation  float64

	// Hotspot statistics are computed over contained NerveHotspot points
	// regardless of the target filter.
	HotspotCount    int
	MeanHotspotDist float64
	HasHotspot      bool
}

// Bin tiles [0, extent-step] per axis in non-overlapping step-sized cells
// and aggregates the sample's points per cell. The tiling deliberately
// truncates at the boundary when the extent is not an exact multiple of
// the step. If target is non-empty, aggregation is restricted to points of
// that category (hotspot density maps); otherwise per-category counts are
// kept (abundance tables).
//
// Points are bucketed into cells in one pass, so each point lands in
// exactly one cell: lower edges are inclusive, and the far grid edge is
// inclusive for the last cell of the axis.
func Bin(points []fuse.Point, extent Extent, step float64, target string) ([]Cell, error) {
	if step <= 0 {
		return nil, fmt.Errorf("%w: step %g must be positive", ErrInvalidStep, step)
	}
	if step > extent.X || step > extent.Y {
		return nil, fmt.Errorf("%w: step %g exceeds extent (%g, %g)", ErrInvalidStep, step, extent.X, extent.Y)
	}

	nx := int(math.Floor((extent.X-step)/step)) + 1
	ny := int(math.Floor((extent.Y-step)/step)) + 1
	gridEndX := float64(nx) * step
	gridEndY := float64(ny) * step

	cells := make([]Cell, nx*ny)
	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			bounds := geometry.NewRect(float64(ix)*step, float64(iy)*step, step, step)
			cells[iy*nx+ix] = Cell{
				XIndex:          ix,
				YIndex:          iy,
				Bounds:          bounds,
				Center:          bounds.Center(),
				CategoryCounts:  make(map[string]int),
				MeanHotspotDist: NoPairs,
			}
		}
	}

	// Bucket each point into its cell once instead of testing every point
	// against every cell.
	contained := make([][]fuse.Point, nx*ny)
	for _, p := range points {
		ix, ok := bucket(p.X, step, nx, gridEndX)
		if !ok {
			continue
		}
		iy, ok := bucket(p.Y, step, ny, gridEndY)
		if !ok {
			continue
		}
		i := iy*nx + ix
		contained[i] = append(contained[i], p)
	}

	for i := range cells {
		aggregate(&cells[i], contained[i], target)
	}
	return cells, nil
}

// bucket maps a coordinate to its cell index along one axis. The far grid
// edge belongs to the last cell; coordinates outside [0, gridEnd] fall off
// the truncated grid.
func bucket(v, step float64, n int, gridEnd float64) (int, bool) {
	if v < 0 || v > gridEnd {
		return 0, false
	}
	i := int(math.Floor(v / step))
	if i >= n {
		i = n - 1
	}
	return i, true
}

func aggregate(c *Cell, pts []fuse.Point, target string) {
	var hotspotCenters []geometry.Point2D
	for _, p := range pts {
		if p.Category == fuse.NerveHotspot {
			hotspotCenters = append(hotspotCenters, geometry.Point2D{X: p.X, Y: p.Y})
		}
	}
	c.HotspotCount = len(hotspotCenters)
	c.HasHotspot = c.HotspotCount > 0
	if c.HasHotspot {
		c.MeanHotspotDist = geometry.MeanPairwiseDistance(hotspotCenters)
	}

	var sumSize, sumElong float64
	for _, p := range pts {
		if target != "" && p.Category != target {
			continue
		}
		c.Count++
		c.CategoryCounts[p.Category]++
		sumSize += p.SizeProxy
		sumElong += p.Elongation
		// Seed the maxima from the first point: the hotspot elongation
		// sentinel is negative, so starting from zero would report a
		// maximum no contained point attains.
		if c.Count == 1 || p.SizeProxy > c.MaxSize {
			c.MaxSize = p.SizeProxy
		}
		if c.Count == 1 || p.Elongation > c.MaxElongation {
			c.MaxElongation = p.Elongation
		}
	}
	if c.Count > 0 {
		c.MeanSize = sumSize / float64(c.Count)
		c.MeanElongation = sumElong / float64(c.Count)
	}
}
