package grid

import (
	"errors"
	"testing"

	"nervemap/internal/fuse"
	"nervemap/pkg/geometry"
)

func pt(x, y float64, cat string) fuse.Point {
	return fuse.Point{SampleID: "S1", X: x, Y: y, Category: cat, SizeProxy: 5, Elongation: 0.5}
}

func TestBinCellCount(t *testing.T) {
	cells, err := Bin(nil, Extent{X: 850, Y: 850}, 25, "")
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}
	// floor((850-25)/25)+1 = 34 bins per axis.
	if len(cells) != 34*34 {
		t.Errorf("got %d cells, want 1156", len(cells))
	}

	first := cells[0]
	if first.Bounds.X != 0 || first.Bounds.Y != 0 || first.Bounds.Width != 25 {
		t.Errorf("first cell bounds = %+v", first.Bounds)
	}
	if first.Center.X != 12.5 || first.Center.Y != 12.5 {
		t.Errorf("first cell center = %+v", first.Center)
	}

	last := cells[len(cells)-1]
	if last.Bounds.X != 825 || last.Bounds.Y != 825 {
		t.Errorf("last cell bounds = %+v", last.Bounds)
	}
}

func TestBinTruncatesBoundary(t *testing.T) {
	// 110 is not a multiple of 25: cells start at 0,25,50,75 and coverage
	// stops at 100.
	cells, err := Bin(nil, Extent{X: 110, Y: 110}, 25, "")
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}
	if len(cells) != 4*4 {
		t.Errorf("got %d cells, want 16", len(cells))
	}
}

func TestBinInvalidStep(t *testing.T) {
	if _, err := Bin(nil, Extent{X: 850, Y: 850}, 0, ""); !errors.Is(err, ErrInvalidStep) {
		t.Errorf("step 0: got %v, want ErrInvalidStep", err)
	}
	if _, err := Bin(nil, Extent{X: 850, Y: 850}, -5, ""); !errors.Is(err, ErrInvalidStep) {
		t.Errorf("negative step: got %v, want ErrInvalidStep", err)
	}
	if _, err := Bin(nil, Extent{X: 100, Y: 850}, 200, ""); !errors.Is(err, ErrInvalidStep) {
		t.Errorf("step beyond extent: got %v, want ErrInvalidStep", err)
	}
}

func TestBinPartitionsPointsExactlyOnce(t *testing.T) {
	points := []fuse.Point{
		pt(0, 0, "Tcell"),
		pt(12, 40, "Bcell"),
		pt(25, 25, "Tcell"),   // shared corner: belongs to one cell only
		pt(100, 100, "Tcell"), // far grid edge, inclusive
		pt(100.5, 3, "Tcell"), // beyond the truncated grid, dropped
		pt(-1, 3, "Tcell"),    // negative coordinate, dropped
	}
	cells, err := Bin(points, Extent{X: 110, Y: 110}, 25, "")
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}

	total := 0
	for _, c := range cells {
		total += c.Count
	}
	if total != 4 {
		t.Errorf("contained point total = %d, want 4 (each in-grid point exactly once)", total)
	}
}

func TestBinTargetCategoryFilter(t *testing.T) {
	points := []fuse.Point{
		pt(10, 10, fuse.NerveHotspot),
		pt(11, 11, "Tcell"),
		pt(12, 12, "Tcell"),
	}
	cells, err := Bin(points, Extent{X: 50, Y: 50}, 25, fuse.NerveHotspot)
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}

	c := cells[0]
	if c.Count != 1 {
		t.Errorf("filtered count = %d, want 1", c.Count)
	}
	if c.CategoryCounts["Tcell"] != 0 {
		t.Error("target filter should exclude other categories from counts")
	}
	if !c.HasHotspot {
		t.Error("HasHotspot should be set")
	}
}

func TestBinHasHotspotIgnoresTargetFilter(t *testing.T) {
	points := []fuse.Point{
		pt(10, 10, fuse.NerveHotspot),
		pt(11, 11, "Tcell"),
	}
	cells, err := Bin(points, Extent{X: 50, Y: 50}, 25, "Tcell")
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}

	c := cells[0]
	if c.Count != 1 || c.CategoryCounts["Tcell"] != 1 {
		t.Errorf("cell = %+v", c)
	}
	if !c.HasHotspot || c.HotspotCount != 1 {
		t.Error("hotspot flag must be computed regardless of target category")
	}
}

func TestBinPairwiseDistanceSentinels(t *testing.T) {
	points := []fuse.Point{
		pt(10, 10, fuse.NerveHotspot), // alone in cell (0,0)
		pt(30, 10, fuse.NerveHotspot), // cell (1,0), with a partner
		pt(33, 14, fuse.NerveHotspot),
	}
	cells, err := Bin(points, Extent{X: 100, Y: 100}, 25, "")
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}

	var single, pair, empty *Cell
	for i := range cells {
		c := &cells[i]
		switch {
		case c.XIndex == 0 && c.YIndex == 0:
			single = c
		case c.XIndex == 1 && c.YIndex == 0:
			pair = c
		case c.XIndex == 2 && c.YIndex == 0:
			empty = c
		}
	}

	if single.MeanHotspotDist != 0 {
		t.Errorf("single hotspot: dist = %g, want 0", single.MeanHotspotDist)
	}
	if pair.MeanHotspotDist != 5 {
		t.Errorf("pair (3,4 apart): dist = %g, want 5", pair.MeanHotspotDist)
	}
	if empty.MeanHotspotDist != NoPairs {
		t.Errorf("empty cell: dist = %g, want %d sentinel", empty.MeanHotspotDist, NoPairs)
	}
	if empty.Count != 0 || empty.HasHotspot {
		t.Errorf("empty cell aggregates = %+v", empty)
	}
}

// A cell whose contained points all carry the hotspot elongation sentinel
// must report that sentinel as its maximum, not a zero no point attains.
func TestBinMaxElongationWithSentinelPoints(t *testing.T) {
	points := []fuse.Point{
		{SampleID: "S1", X: 5, Y: 5, Category: fuse.NerveHotspot, SizeProxy: 40, Elongation: fuse.ElongationNA},
		{SampleID: "S1", X: 8, Y: 8, Category: fuse.NerveHotspot, SizeProxy: 20, Elongation: fuse.ElongationNA},
	}
	cells, err := Bin(points, Extent{X: 50, Y: 50}, 25, fuse.NerveHotspot)
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}

	c := cells[0]
	if c.MaxElongation != fuse.ElongationNA {
		t.Errorf("max elongation = %g, want %g sentinel", c.MaxElongation, float64(fuse.ElongationNA))
	}
	if c.MeanElongation != fuse.ElongationNA {
		t.Errorf("mean elongation = %g, want %g sentinel", c.MeanElongation, float64(fuse.ElongationNA))
	}
	if c.MaxSize != 40 {
		t.Errorf("max size = %g, want 40", c.MaxSize)
	}
}

// Bucket indexing is a shortcut over testing every point against every
// cell; the cell a point is counted in must also contain it geometrically.
func TestBinBucketsAgreeWithGeometry(t *testing.T) {
	points := []fuse.Point{
		pt(0, 0, "Tcell"),
		pt(12.5, 60, "Tcell"),
		pt(25, 25, "Tcell"), // corner shared by four cells
		pt(49.999, 74.9, "Bcell"),
		pt(75, 40, "Tcell"), // far grid edge
	}

	for _, p := range points {
		cells, err := Bin([]fuse.Point{p}, Extent{X: 80, Y: 80}, 25, "")
		if err != nil {
			t.Fatalf("Bin: %v", err)
		}

		var hit *Cell
		for i := range cells {
			if cells[i].Count == 0 {
				continue
			}
			if hit != nil {
				t.Fatalf("point (%g, %g) counted in more than one cell", p.X, p.Y)
			}
			hit = &cells[i]
		}
		if hit == nil {
			t.Fatalf("point (%g, %g) not counted in any cell", p.X, p.Y)
		}

		q := geometry.Point2D{X: p.X, Y: p.Y}
		if !hit.Bounds.Contains(q) {
			t.Errorf("cell (%d, %d) counted (%g, %g) but its bounds exclude it", hit.XIndex, hit.YIndex, p.X, p.Y)
		}
		corners := hit.Bounds.Corners()
		if !geometry.PointInPolygon(q, corners[:]) {
			t.Errorf("cell (%d, %d) counted (%g, %g) but its corner polygon excludes it", hit.XIndex, hit.YIndex, p.X, p.Y)
		}
	}
}

func TestBinAggregates(t *testing.T) {
	points := []fuse.Point{
		{SampleID: "S1", X: 5, Y: 5, Category: "Tcell", SizeProxy: 4, Elongation: 0.2},
		{SampleID: "S1", X: 6, Y: 6, Category: "Bcell", SizeProxy: 8, Elongation: 0.8},
	}
	cells, err := Bin(points, Extent{X: 50, Y: 50}, 25, "")
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}

	c := cells[0]
	if c.MeanSize != 6 || c.MaxSize != 8 {
		t.Errorf("size aggregates: mean %g max %g, want 6 and 8", c.MeanSize, c.MaxSize)
	}
	if c.MeanElongation != 0.5 || c.MaxElongation != 0.8 {
		t.Errorf("elongation aggregates: mean %g max %g", c.MeanElongation, c.MaxElongation)
	}
	if c.CategoryCounts["Tcell"] != 1 || c.CategoryCounts["Bcell"] != 1 {
		t.Errorf("category counts = %v", c.CategoryCounts)
	}
}
