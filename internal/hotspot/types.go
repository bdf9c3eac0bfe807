// Package hotspot detects nerve hotspots in marker mask images and filters
// them by per-sample area.
package hotspot

import (
	"nervemap/pkg/geometry"
)

// Candidate is one connected component produced by mask segmentation,
// before the area filter.
type Candidate struct {
	// Label is the watershed label the component came from.
	Label int

	Center geometry.Point2D
	// Area is the marker-positive pixel count of the component.
	Area float64
	// MeanRadius is the mean distance of the component's pixels from
	// its centroid.
	MeanRadius float64
	// MeanIntensity is the mean reference-channel value over the
	// component's pixels.
	MeanIntensity float64
}

// Hotspot is a candidate that survived the area filter.
type Hotspot struct {
	Candidate
}

// Params parameterizes extraction.
type Params struct {
	// Tolerance sets the watershed seed height as a fraction below the
	// distance-transform maximum. Low values leave one seed per bridged
	// fragment group, so adjacent scattered bright pixels merge into one
	// object.
	Tolerance float64
}

// DefaultParams returns extraction parameters matching the standard
// acquisition setup.
func DefaultParams() Params {
	return Params{Tolerance: 0.0002}
}
