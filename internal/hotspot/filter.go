package hotspot

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// FilterStats describes the outcome of an area filter pass.
type FilterStats struct {
	// Cutoff is the per-sample area quantile candidates had to exceed.
	Cutoff float64
	// VisualizationSuppressed is set when fewer than two hotspots survive.
	// The sample still flows through the pipeline; only hotspot-specific
	// plots are skipped.
	VisualizationSuppressed bool
}

// Filter drops candidates whose area does not exceed the given per-sample
// area quantile (default 0.05). The cutoff is recomputed from the input on
// every call; nothing is shared across samples.
func Filter(cands []Candidate, percentile float64) ([]Hotspot, FilterStats) {
	if len(cands) == 0 {
		return nil, FilterStats{VisualizationSuppressed: true}
	}

	areas := make([]float64, len(cands))
	for i, c := range cands {
		areas[i] = c.Area
	}
	sort.Float64s(areas)
	cutoff := stat.Quantile(percentile, stat.Empirical, areas, nil)

	var kept []Hotspot
	for _, c := range cands {
		if c.Area > cutoff {
			kept = append(kept, Hotspot{Candidate: c})
		}
	}

	return kept, FilterStats{
		Cutoff:                  cutoff,
		VisualizationSuppressed: len(kept) < 2,
	}
}
