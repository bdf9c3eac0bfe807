package hotspot

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"nervemap/internal/mask"
)

// Extract segments the marker channel of a mask image into hotspot
// candidates using a distance-transform watershed.
//
// The marker channel is binarized, then dilated by one pixel (the
// extension radius, 8-connectivity) so that scattered bright pixels less
// than two pixels apart join into one support region. Each bridged
// component is seeded where its distance relief reaches (1 - tolerance)
// of that component's own peak, and seed pixels carry their component's
// label, so every component grows back as exactly one object no matter
// how its size compares to the rest of the image. Features are measured
// over the original (undilated) marker-positive pixels only.
//
// A mask with no marker-positive pixels yields an empty slice, not an
// error. Extract is a pure function of its inputs.
func Extract(m *mask.Image, p Params) ([]Candidate, error) {
	if p.Tolerance <= 0 || p.Tolerance >= 1 {
		return nil, fmt.Errorf("tolerance %g out of range (0, 1)", p.Tolerance)
	}

	marker := m.MarkerMat()
	defer marker.Close()

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(marker, &bin, 0, 255, gocv.ThresholdBinary)

	if gocv.CountNonZero(bin) == 0 {
		return nil, nil
	}

	// Extension radius 1: bridge gaps of up to one pixel between fragments.
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 3, Y: 3})
	defer kernel.Close()

	bridged := gocv.NewMat()
	defer bridged.Close()
	gocv.Dilate(bin, &bridged, kernel)

	compLabels := gocv.NewMat()
	defer compLabels.Close()
	nComps := gocv.ConnectedComponents(bridged, &compLabels)
	if nComps <= 1 {
		return nil, nil
	}

	dist := gocv.NewMat()
	defer dist.Close()
	distLabels := gocv.NewMat()
	defer distLabels.Close()
	gocv.DistanceTransform(bridged, &dist, &distLabels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)

	seeds := seedComponents(compLabels, dist, nComps, p.Tolerance)
	defer seeds.Close()

	// Watershed markers: label 1 = known background, component labels
	// shifted up by one, 0 = unknown (flooded by the watershed).
	markers := buildMarkers(bridged, compLabels, seeds)
	defer markers.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(bridged, &bgr, gocv.ColorGrayToBGR)
	gocv.Watershed(bgr, &markers)

	labels := readLabels(markers)
	return measure(labels, m.Width, m.Height, m.Marker, m.Intensity), nil
}

// seedComponents thresholds the distance relief of each bridged component
// against that component's own peak. A small component next to a large one
// keeps its seed this way; a global threshold would leave it seedless and
// the watershed would flood it as background. The comparison is inclusive,
// so a component's peak pixel always seeds.
func seedComponents(compLabels, dist gocv.Mat, nComps int, tolerance float64) gocv.Mat {
	rows, cols := dist.Rows(), dist.Cols()

	peak := make([]float32, nComps)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if c := compLabels.GetIntAt(y, x); c > 0 {
				if v := dist.GetFloatAt(y, x); v > peak[c] {
					peak[c] = v
				}
			}
		}
	}

	seeds := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			c := compLabels.GetIntAt(y, x)
			if c > 0 && float64(dist.GetFloatAt(y, x)) >= (1-tolerance)*float64(peak[c]) {
				seeds.SetUCharAt(y, x, 255)
			} else {
				seeds.SetUCharAt(y, x, 0)
			}
		}
	}
	return seeds
}

// buildMarkers assembles the 32-bit marker image gocv.Watershed expects.
// Seed pixels carry their bridged component's label shifted up by one, so
// disjoint seed islands inside one component still flood as one object.
func buildMarkers(bridged, compLabels, seeds gocv.Mat) gocv.Mat {
	rows, cols := bridged.Rows(), bridged.Cols()
	markers := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32SC1)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			switch {
			case bridged.GetUCharAt(y, x) == 0:
				markers.SetIntAt(y, x, 1)
			case seeds.GetUCharAt(y, x) > 0:
				markers.SetIntAt(y, x, compLabels.GetIntAt(y, x)+1)
			default:
				markers.SetIntAt(y, x, 0)
			}
		}
	}
	return markers
}

// readLabels flattens the watershed result to a row-major label slice.
// Background (1) and watershed boundaries (-1) map to zero; object labels
// are shifted back down so the first object is label 1.
func readLabels(markers gocv.Mat) []int32 {
	rows, cols := markers.Rows(), markers.Cols()
	labels := make([]int32, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := markers.GetIntAt(y, x)
			if v > 1 {
				labels[y*cols+x] = v - 1
			}
		}
	}
	return labels
}
