package pipeline

import (
	"errors"
	"strings"
	"testing"

	"nervemap/internal/cells"
	"nervemap/internal/config"
	"nervemap/internal/hotspot"
	"nervemap/internal/mask"
	"nervemap/pkg/geometry"
)

const cellCSV = `sample,x,y,major_axis,eccentricity,area,phenotype
S1,10,20,8,0.6,55,Tcell
S1,30,40,7,0.4,48,Epithelial
S2,5,6,6,0.5,40,Bcell
`

func testDataset(t *testing.T, csv string) *cells.Dataset {
	t.Helper()
	ds, err := cells.Read(strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func fakeLoader() func(string) (*mask.Image, error) {
	return func(path string) (*mask.Image, error) {
		return &mask.Image{SampleID: mask.SampleID(path)}, nil
	}
}

// fakeExtract returns fixed candidates per sample, bypassing OpenCV.
func fakeExtract(bySample map[string][]hotspot.Candidate) func(*mask.Image, hotspot.Params) ([]hotspot.Candidate, error) {
	return func(m *mask.Image, p hotspot.Params) ([]hotspot.Candidate, error) {
		return bySample[m.SampleID], nil
	}
}

func cand(x, y, area float64) hotspot.Candidate {
	return hotspot.Candidate{Center: geometry.Point2D{X: x, Y: y}, Area: area, MeanRadius: 2}
}

func TestRunHappyPath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Categories.Collapse = map[string]string{"Epithelial": "Cancer"}

	opts := Options{
		Config:   cfg,
		LoadMask: fakeLoader(),
		Extract: fakeExtract(map[string][]hotspot.Candidate{
			"S1": {cand(100, 100, 10), cand(200, 200, 50), cand(300, 300, 60)},
			"S2": {cand(50, 50, 30), cand(60, 60, 45)},
		}),
	}

	res, err := Run([]string{"masks/S1.tiff", "masks/S2.tiff"}, testDataset(t, cellCSV), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Skipped) != 0 {
		t.Errorf("skipped = %v, want none", res.Skipped)
	}
	if len(res.Succeeded) != 2 || res.Succeeded[0] != "S1" {
		t.Errorf("succeeded = %v", res.Succeeded)
	}

	// S1: areas [10, 50, 60], 5th-percentile cutoff sits at 10, so the
	// 50 and 60 components survive.
	s1 := res.Samples[0]
	if len(s1.Hotspots) != 2 {
		t.Fatalf("S1 hotspots = %d, want 2", len(s1.Hotspots))
	}
	if s1.Filter.VisualizationSuppressed {
		t.Error("two survivors should keep visualization enabled")
	}

	// Fused set: 2 hotspots + 2 cells, with the collapse rule applied.
	if len(s1.Points) != 4 {
		t.Fatalf("S1 fused points = %d, want 4", len(s1.Points))
	}
	cats := make(map[string]int)
	for _, p := range s1.Points {
		cats[p.Category]++
	}
	if cats["NerveHotspot"] != 2 || cats["Tcell"] != 1 || cats["Cancer"] != 1 {
		t.Errorf("category counts = %v", cats)
	}

	// Default grid: 34x34 cells per sample.
	if len(s1.Cells) != 1156 {
		t.Errorf("grid cells = %d, want 1156", len(s1.Cells))
	}
	if len(s1.HotspotCells) != 1156 {
		t.Errorf("hotspot grid cells = %d, want 1156", len(s1.HotspotCells))
	}

	// S2: areas [30, 45] leave one hotspot past the cutoff, plus one cell.
	if res.Corpus.Len() != 2 || res.Corpus.TotalPoints() != 6 {
		t.Errorf("corpus: %d samples, %d points; want 2 and 6", res.Corpus.Len(), res.Corpus.TotalPoints())
	}

	sums := res.Summaries()
	if len(sums) != 2 || sums[0].SampleID != "S1" || sums[0].HotspotCount != 2 {
		t.Errorf("summaries = %+v", sums)
	}
	if sums[0].PixelCount != 110 {
		t.Errorf("S1 pixel count = %g, want 110", sums[0].PixelCount)
	}

	rows := res.GridRows()
	if len(rows) != 2*1156 {
		t.Errorf("cohort grid rows = %d, want 2312", len(rows))
	}
}

func TestRunSkipsMismatchedSamples(t *testing.T) {
	opts := Options{
		Config:   config.DefaultConfig(),
		LoadMask: fakeLoader(),
		Extract: fakeExtract(map[string][]hotspot.Candidate{
			"S1": {cand(10, 10, 20), cand(20, 20, 30)},
		}),
	}

	// S9 has a mask but no cell records; S2 has cell records but no mask.
	res, err := Run([]string{"S1.tiff", "S9.tiff"}, testDataset(t, cellCSV), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Succeeded) != 1 || res.Succeeded[0] != "S1" {
		t.Errorf("succeeded = %v", res.Succeeded)
	}
	if _, ok := res.Skipped["S9"]; !ok {
		t.Error("mask-only sample S9 should be reported as skipped")
	}
	if _, ok := res.Skipped["S2"]; !ok {
		t.Error("cell-only sample S2 should be reported as skipped")
	}
}

func TestRunMismatchHardFail(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Run.OnMismatch = config.MismatchFail

	opts := Options{
		Config:   cfg,
		LoadMask: fakeLoader(),
		Extract:  fakeExtract(nil),
	}

	_, err := Run([]string{"S9.tiff"}, testDataset(t, cellCSV), opts)
	if !errors.Is(err, ErrInputMismatch) {
		t.Errorf("got %v, want ErrInputMismatch", err)
	}
}

func TestRunRecoversSchemaMismatch(t *testing.T) {
	// S1's cell rows include an empty phenotype, which fails fusion for
	// that sample only.
	badCSV := `sample,x,y,major_axis,eccentricity,area,phenotype
S1,10,20,8,0.6,55,
S2,5,6,6,0.5,40,Bcell
`
	opts := Options{
		Config:   config.DefaultConfig(),
		LoadMask: fakeLoader(),
		Extract: fakeExtract(map[string][]hotspot.Candidate{
			"S1": {cand(10, 10, 20)},
			"S2": {cand(30, 30, 25), cand(40, 40, 35)},
		}),
	}

	res, err := Run([]string{"S1.tiff", "S2.tiff"}, testDataset(t, badCSV), opts)
	if err != nil {
		t.Fatalf("batch should continue past a schema mismatch: %v", err)
	}
	if len(res.Succeeded) != 1 || res.Succeeded[0] != "S2" {
		t.Errorf("succeeded = %v, want only S2", res.Succeeded)
	}
	reason, ok := res.Skipped["S1"]
	if !ok || !strings.Contains(reason, "schema mismatch") {
		t.Errorf("S1 skip reason = %q", reason)
	}
}

func TestRunFailsFastOnInvalidStep(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Grid.Step = 25
	cfg.Grid.ExtentX = 10 // step exceeds extent

	called := false
	opts := Options{
		Config:   cfg,
		LoadMask: fakeLoader(),
		Extract: func(m *mask.Image, p hotspot.Params) ([]hotspot.Candidate, error) {
			called = true
			return nil, nil
		},
	}

	if _, err := Run([]string{"S1.tiff"}, testDataset(t, cellCSV), opts); err == nil {
		t.Fatal("invalid step should abort the run")
	}
	if called {
		t.Error("no sample may be processed after a configuration failure")
	}
}

func TestRunParallelWorkersMatchSequential(t *testing.T) {
	extract := fakeExtract(map[string][]hotspot.Candidate{
		"S1": {cand(10, 10, 20), cand(20, 20, 30)},
		"S2": {cand(30, 30, 25), cand(40, 40, 35)},
	})

	run := func(workers int) *RunResult {
		cfg := config.DefaultConfig()
		cfg.Run.Workers = workers
		res, err := Run([]string{"S1.tiff", "S2.tiff"}, testDataset(t, cellCSV), Options{
			Config: cfg, LoadMask: fakeLoader(), Extract: extract,
		})
		if err != nil {
			t.Fatal(err)
		}
		return res
	}

	seq := run(1)
	par := run(4)

	if len(seq.Succeeded) != len(par.Succeeded) {
		t.Fatal("worker count changed the set of succeeded samples")
	}
	for i := range seq.Succeeded {
		if seq.Succeeded[i] != par.Succeeded[i] {
			t.Error("result order must follow the file list regardless of workers")
		}
	}
	if seq.Corpus.TotalPoints() != par.Corpus.TotalPoints() {
		t.Error("worker count changed the corpus size")
	}
}
