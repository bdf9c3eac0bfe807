// Package fuse merges hotspot objects and single-cell records into one
// schema-unified spatial point set per sample.
package fuse

import (
	"errors"
	"fmt"
	"math"

	"nervemap/internal/cells"
	"nervemap/internal/hotspot"
)

// NerveHotspot is the category label every fused hotspot carries.
const NerveHotspot = "NerveHotspot"

// ElongationNA marks the elongation proxy of points that have no
// meaningful elongation (hotspots).
const ElongationNA = -1

// ErrSchemaMismatch reports a record missing a required field. It is fatal
// for the sample's fusion step; the batch recovers by skipping the sample.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Point is one spatial point in the unified per-sample schema. Cells and
// hotspots both reduce to this shape so downstream binning and abundance
// analysis treat them uniformly.
type Point struct {
	SampleID string
	X        float64
	Y        float64
	// SizeProxy is the cell's major-axis length, or the hotspot's mean
	// radius.
	SizeProxy float64
	// Elongation is the cell's eccentricity; hotspots carry ElongationNA.
	Elongation float64
	Category   string
}

// CollapseRules maps fine-grained phenotype labels to coarse ones, e.g.
// several epithelial and undefined subtypes onto "Cancer". The mapping is
// dataset-specific configuration, not a universal constant.
type CollapseRules map[string]string

// Apply collapses a phenotype label. Labels without a rule pass through, so
// applying the rules twice equals applying them once as long as no rule
// target is itself a rule source (config validation enforces that).
func (r CollapseRules) Apply(label string) string {
	if to, ok := r[label]; ok {
		return to
	}
	return label
}

// Fuse unions hotspots and cell records into one point set tagged with the
// sample identifier. Every input appears exactly once; no deduplication and
// no coordinate transformation. Hotspots take the NerveHotspot category and
// the ElongationNA sentinel; cell phenotypes go through the collapse rules.
func Fuse(sampleID string, hotspots []hotspot.Hotspot, cellRecs []cells.Record, rules CollapseRules) ([]Point, error) {
	if sampleID == "" {
		return nil, fmt.Errorf("%w: empty sample identifier", ErrSchemaMismatch)
	}

	out := make([]Point, 0, len(hotspots)+len(cellRecs))

	for i, h := range hotspots {
		if h.Area <= 0 {
			return nil, fmt.Errorf("%w: hotspot %d of sample %s has no area", ErrSchemaMismatch, i, sampleID)
		}
		if !finite(h.Center.X) || !finite(h.Center.Y) {
			return nil, fmt.Errorf("%w: hotspot %d of sample %s has no position", ErrSchemaMismatch, i, sampleID)
		}
		out = append(out, Point{
			SampleID:   sampleID,
			X:          h.Center.X,
			Y:          h.Center.Y,
			SizeProxy:  h.MeanRadius,
			Elongation: ElongationNA,
			Category:   NerveHotspot,
		})
	}

	for i, c := range cellRecs {
		if c.Phenotype == "" {
			return nil, fmt.Errorf("%w: cell %d of sample %s has no phenotype", ErrSchemaMismatch, i, sampleID)
		}
		if !finite(c.X) || !finite(c.Y) {
			return nil, fmt.Errorf("%w: cell %d of sample %s has no position", ErrSchemaMismatch, i, sampleID)
		}
		out = append(out, Point{
			SampleID:   sampleID,
			X:          c.X,
			Y:          c.Y,
			SizeProxy:  c.MajorAxis,
			Elongation: c.Eccentricity,
			Category:   rules.Apply(c.Phenotype),
		})
	}

	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
