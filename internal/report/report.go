// Package report produces per-sample and cohort summary tables from
// hotspot and grid data. Pure aggregation: nothing upstream is filtered
// or mutated here.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"nervemap/internal/grid"
	"nervemap/internal/hotspot"
)

// SampleSummary is the per-sample scalar summary computed from hotspots
// before binning.
type SampleSummary struct {
	SampleID      string
	HotspotCount  int
	PixelCount    float64
	MeanArea      float64
	MeanRadius    float64
	MeanIntensity float64
}

// Summarize reduces one sample's hotspots to scalars. A sample without
// hotspots yields zeros, not an error.
func Summarize(sampleID string, hotspots []hotspot.Hotspot) SampleSummary {
	s := SampleSummary{SampleID: sampleID, HotspotCount: len(hotspots)}
	if len(hotspots) == 0 {
		return s
	}

	areas := make([]float64, len(hotspots))
	radii := make([]float64, len(hotspots))
	intensities := make([]float64, len(hotspots))
	for i, h := range hotspots {
		areas[i] = h.Area
		radii[i] = h.MeanRadius
		intensities[i] = h.MeanIntensity
		s.PixelCount += h.Area
	}
	s.MeanArea = stat.Mean(areas, nil)
	s.MeanRadius = stat.Mean(radii, nil)
	s.MeanIntensity = stat.Mean(intensities, nil)
	return s
}

// GridRow is one grid cell of one sample in the cohort grid table.
type GridRow struct {
	SampleID string
	Cell     grid.Cell
}

// CohortTable concatenates per-sample grid cells into one table, in the
// given sample order.
func CohortTable(sampleIDs []string, cellsBySample map[string][]grid.Cell) []GridRow {
	var rows []GridRow
	for _, id := range sampleIDs {
		for _, c := range cellsBySample[id] {
			rows = append(rows, GridRow{SampleID: id, Cell: c})
		}
	}
	return rows
}

// WriteSampleSummaries writes the per-sample summary table as CSV.
func WriteSampleSummaries(w io.Writer, summaries []SampleSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sample", "hotspots", "pixel_count", "mean_area", "mean_radius", "mean_intensity"}); err != nil {
		return err
	}
	for _, s := range summaries {
		row := []string{
			s.SampleID,
			strconv.Itoa(s.HotspotCount),
			ftoa(s.PixelCount),
			ftoa(s.MeanArea),
			ftoa(s.MeanRadius),
			ftoa(s.MeanIntensity),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGridTable writes the cohort grid table as CSV. Per-category counts
// are emitted as one column per vocabulary entry, in vocabulary order, so
// the table is rectangular across samples.
func WriteGridTable(w io.Writer, rows []GridRow, vocabulary []string) error {
	cw := csv.NewWriter(w)

	header := []string{
		"sample", "x_index", "y_index", "x_start", "x_end", "y_start", "y_end",
		"count", "mean_size", "max_size", "mean_elongation", "max_elongation",
		"hotspot_count", "mean_hotspot_dist", "has_hotspot",
	}
	for _, cat := range vocabulary {
		header = append(header, "n_"+cat)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		c := r.Cell
		row := []string{
			r.SampleID,
			strconv.Itoa(c.XIndex),
			strconv.Itoa(c.YIndex),
			ftoa(c.Bounds.X),
			ftoa(c.Bounds.X + c.Bounds.Width),
			ftoa(c.Bounds.Y),
			ftoa(c.Bounds.Y + c.Bounds.Height),
			strconv.Itoa(c.Count),
			ftoa(c.MeanSize),
			ftoa(c.MaxSize),
			ftoa(c.MeanElongation),
			ftoa(c.MaxElongation),
			strconv.Itoa(c.HotspotCount),
			ftoa(c.MeanHotspotDist),
			strconv.FormatBool(c.HasHotspot),
		}
		for _, cat := range vocabulary {
			row = append(row, strconv.Itoa(c.CategoryCounts[cat]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCorpus writes the fused point corpus as CSV for the downstream
// spatial-statistics consumer.
func WriteCorpus(w io.Writer, rows []CorpusRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sample", "x", "y", "size_proxy", "elongation", "category"}); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{r.SampleID, ftoa(r.X), ftoa(r.Y), ftoa(r.SizeProxy), ftoa(r.Elongation), r.Category}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CorpusRow is one fused point in the corpus export.
type CorpusRow struct {
	SampleID   string
	X          float64
	Y          float64
	SizeProxy  float64
	Elongation float64
	Category   string
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FprintRunSummary writes the always-emitted end-of-run report: which
// samples succeeded, which were skipped, and why.
func FprintRunSummary(w io.Writer, succeeded []string, skipped map[string]string) {
	fmt.Fprintf(w, "run complete: %d samples succeeded, %d skipped\n", len(succeeded), len(skipped))
	for _, id := range succeeded {
		fmt.Fprintf(w, "  ok   %s\n", id)
	}
	ids := make([]string, 0, len(skipped))
	for id := range skipped {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  skip %s: %s\n", id, skipped[id])
	}
}
