package hotspot

import (
	"sort"

	"nervemap/pkg/geometry"
)

// measure computes per-label features over the marker-positive pixels of a
// row-major label image. Labels are emitted in ascending label order.
// Pixels the watershed assigned to a label but that are not marker-positive
// (the dilation fringe) do not contribute; a label with no marker-positive
// pixels produces no candidate.
func measure(labels []int32, w, h int, positive []uint8, intensity []float64) []Candidate {
	type acc struct {
		pixels    []geometry.Point2D
		intensity float64
	}
	byLabel := make(map[int32]*acc)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			l := labels[i]
			if l == 0 || positive[i] == 0 {
				continue
			}
			a := byLabel[l]
			if a == nil {
				a = &acc{}
				byLabel[l] = a
			}
			a.pixels = append(a.pixels, geometry.Point2D{X: float64(x), Y: float64(y)})
			a.intensity += intensity[i]
		}
	}

	order := make([]int32, 0, len(byLabel))
	for l := range byLabel {
		order = append(order, l)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]Candidate, 0, len(order))
	for _, l := range order {
		a := byLabel[l]
		n := float64(len(a.pixels))
		center := geometry.Centroid(a.pixels)

		var radiusSum float64
		for _, p := range a.pixels {
			radiusSum += center.Distance(p)
		}

		out = append(out, Candidate{
			Label:         int(l),
			Center:        center,
			Area:          n,
			MeanRadius:    radiusSum / n,
			MeanIntensity: a.intensity / n,
		})
	}
	return out
}
