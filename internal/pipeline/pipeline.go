// Package pipeline orchestrates the batch run: mask segmentation, area
// filtering, record fusion, corpus assembly, grid binning and reporting,
// with per-sample failure recovery.
package pipeline

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"nervemap/internal/cells"
	"nervemap/internal/config"
	"nervemap/internal/corpus"
	"nervemap/internal/fuse"
	"nervemap/internal/grid"
	"nervemap/internal/hotspot"
	"nervemap/internal/mask"
	"nervemap/internal/report"
)

// ErrInputMismatch reports a sample present in only one of the two input
// datasets. Whether it aborts the run or skips the sample is configured.
var ErrInputMismatch = errors.New("input mismatch")

// Options wires the run. The function fields default to the real
// implementations; tests substitute them to run without image files.
type Options struct {
	Config *config.Config

	LoadMask func(path string) (*mask.Image, error)
	Extract  func(m *mask.Image, p hotspot.Params) ([]hotspot.Candidate, error)
}

// SampleResult is the per-sample output of a successful run.
type SampleResult struct {
	SampleID string
	Hotspots []hotspot.Hotspot
	Filter   hotspot.FilterStats
	Points   []fuse.Point
	// Cells is the all-category grid; HotspotCells the hotspot-only grid
	// used for density maps.
	Cells        []grid.Cell
	HotspotCells []grid.Cell
	Summary      report.SampleSummary
}

// RunResult is the batch outcome. Skipped maps sample id to the reason it
// was excluded; the run summary must always surface it.
type RunResult struct {
	Corpus    *corpus.Corpus
	Samples   []SampleResult
	Succeeded []string
	Skipped   map[string]string
}

// GridRows flattens the per-sample all-category grids into the cohort
// table, in processing order.
func (r *RunResult) GridRows() []report.GridRow {
	cellsBySample := make(map[string][]grid.Cell, len(r.Samples))
	for _, s := range r.Samples {
		cellsBySample[s.SampleID] = s.Cells
	}
	return report.CohortTable(r.Succeeded, cellsBySample)
}

// Summaries collects the per-sample scalar summaries in processing order.
func (r *RunResult) Summaries() []report.SampleSummary {
	out := make([]report.SampleSummary, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Summary
	}
	return out
}

// Run processes the mask file list against the single-cell dataset.
//
// Configuration errors (including an invalid grid step) fail before any
// sample is touched. Per-sample failures follow the configured policy:
// mismatched samples and schema mismatches are logged and skipped, the
// batch continues, and the result lists every skip with its reason.
func Run(maskPaths []string, ds *cells.Dataset, opts Options) (*RunResult, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Fail fast on grid misconfiguration against the real extent, before
	// any per-sample work.
	extent := grid.Extent{X: cfg.Grid.ExtentX, Y: cfg.Grid.ExtentY}
	if _, err := grid.Bin(nil, extent, cfg.Grid.Step, ""); err != nil {
		return nil, err
	}

	loadMask := opts.LoadMask
	if loadMask == nil {
		loadMask = mask.Load
	}
	extract := opts.Extract
	if extract == nil {
		extract = hotspot.Extract
	}

	result := &RunResult{
		Corpus:  corpus.New(),
		Skipped: make(map[string]string),
	}

	// Validate the join between the mask list and the cell dataset up
	// front. A silent partial join is a correctness hazard, so every
	// mismatch is surfaced before processing.
	var runnable []string
	seen := make(map[string]bool, len(maskPaths))
	for _, path := range maskPaths {
		id := mask.SampleID(path)
		seen[id] = true
		if !ds.Has(id) {
			if cfg.Run.OnMismatch == config.MismatchFail {
				return nil, fmt.Errorf("%w: mask sample %s has no entry in the cell dataset", ErrInputMismatch, id)
			}
			log.Printf("sample %s: no entry in the cell dataset, skipping", id)
			result.Skipped[id] = "no entry in the cell dataset"
			continue
		}
		runnable = append(runnable, path)
	}
	for _, id := range ds.SampleIDs() {
		if !seen[id] {
			log.Printf("cell dataset sample %s has no mask image", id)
			result.Skipped[id] = "no mask image in file list"
		}
	}

	workers := cfg.Run.Workers
	if workers > len(runnable) && len(runnable) > 0 {
		workers = len(runnable)
	}

	type outcome struct {
		res *SampleResult
		err error
	}

	outcomes := make([]outcome, len(runnable))
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i, path := range runnable {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := processSample(path, ds, cfg, loadMask, extract)
			outcomes[i] = outcome{res: res, err: err}
		}(i, path)
	}
	wg.Wait()

	// Corpus insertion happens in file-list order; per-sample results are
	// independent, so ordering only affects output row order.
	for i, o := range outcomes {
		id := mask.SampleID(runnable[i])
		if o.err != nil {
			log.Printf("sample %s: %v, skipping", id, o.err)
			result.Skipped[id] = o.err.Error()
			continue
		}
		if err := result.Corpus.Add(id, o.res.Points); err != nil {
			return nil, err
		}
		result.Samples = append(result.Samples, *o.res)
		result.Succeeded = append(result.Succeeded, id)
	}

	return result, nil
}

func processSample(path string, ds *cells.Dataset, cfg *config.Config,
	loadMask func(string) (*mask.Image, error),
	extract func(*mask.Image, hotspot.Params) ([]hotspot.Candidate, error)) (*SampleResult, error) {

	m, err := loadMask(path)
	if err != nil {
		return nil, err
	}
	id := m.SampleID

	cands, err := extract(m, hotspot.Params{Tolerance: cfg.Segmentation.WatershedTolerance})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	hotspots, stats := hotspot.Filter(cands, cfg.Segmentation.AreaPercentile)
	if stats.VisualizationSuppressed {
		log.Printf("sample %s: %d hotspots survive the area filter, hotspot plots suppressed", id, len(hotspots))
	}

	cellRecs, _ := ds.Sample(id)
	points, err := fuse.Fuse(id, hotspots, cellRecs, fuse.CollapseRules(cfg.Categories.Collapse))
	if err != nil {
		return nil, err
	}

	extent := grid.Extent{X: cfg.Grid.ExtentX, Y: cfg.Grid.ExtentY}
	allCells, err := grid.Bin(points, extent, cfg.Grid.Step, "")
	if err != nil {
		return nil, err
	}
	hotspotCells, err := grid.Bin(points, extent, cfg.Grid.Step, fuse.NerveHotspot)
	if err != nil {
		return nil, err
	}

	return &SampleResult{
		SampleID:     id,
		Hotspots:     hotspots,
		Filter:       stats,
		Points:       points,
		Cells:        allCells,
		HotspotCells: hotspotCells,
		Summary:      report.Summarize(id, hotspots),
	}, nil
}
