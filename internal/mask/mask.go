// Package mask provides loading of nerve-marker mask images.
//
// A mask image carries two channels: the marker channel (red) is the
// binary/intensity map the segmentation model produced, and the reference
// channel (green) holds the raw antibody-stain intensity that per-object
// intensity statistics are computed against.
package mask

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	_ "golang.org/x/image/tiff"
)

// Image is a decoded two-channel mask, row-major.
type Image struct {
	SampleID string
	Width    int
	Height   int

	// Marker holds the segmentation channel; nonzero means marker-positive.
	Marker []uint8
	// Intensity holds the reference stain channel, scaled to [0, 255].
	Intensity []float64
}

// SampleID derives the sample identifier from a mask filename: the base
// name without extension. This is the join key against the single-cell
// dataset, so it must match that dataset's sample column exactly.
func SampleID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load decodes a mask image (TIFF, PNG, or JPEG) and splits its channels.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mask: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode mask %s: %w", filepath.Base(path), err)
	}

	return FromImage(SampleID(path), src), nil
}

// FromImage splits a decoded image into marker and reference channels.
func FromImage(sampleID string, src image.Image) *Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	m := &Image{
		SampleID:  sampleID,
		Width:     w,
		Height:    h,
		Marker:    make([]uint8, w*h),
		Intensity: make([]float64, w*h),
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, _, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*w + x
			m.Marker[i] = uint8(r >> 8)
			m.Intensity[i] = float64(g >> 8)
		}
	}
	return m
}

// MarkerMat converts the marker channel to a single-channel OpenCV Mat.
// The caller owns the returned Mat and must Close it.
func (m *Image) MarkerMat() gocv.Mat {
	mat := gocv.NewMatWithSize(m.Height, m.Width, gocv.MatTypeCV8UC1)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			mat.SetUCharAt(y, x, m.Marker[y*m.Width+x])
		}
	}
	return mat
}

// IntensityAt returns the reference-channel value at (x, y).
func (m *Image) IntensityAt(x, y int) float64 {
	return m.Intensity[y*m.Width+x]
}
