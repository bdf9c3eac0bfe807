// Command nervemap runs the nerve hotspot pipeline over a batch of mask
// images and a single-cell dataset, producing summary tables, the fused
// spatial corpus, and optional plots and a results database.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nervemap/internal/cells"
	"nervemap/internal/config"
	"nervemap/internal/fuse"
	"nervemap/internal/grid"
	"nervemap/internal/pipeline"
	"nervemap/internal/render"
	"nervemap/internal/report"
	"nervemap/internal/store"
	"nervemap/internal/version"
	"nervemap/pkg/colormap"
)

func main() {
	configPath := flag.String("config", "nervemap.yaml", "Path to run configuration")
	masksArg := flag.String("masks", "", "Mask list file (one path per line) or directory of mask images")
	cellsPath := flag.String("cells", "", "Path to the single-cell dataset CSV")
	outDir := flag.String("out", "", "Output directory (overrides config)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("nervemap %s (%s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
		return
	}

	if *masksArg == "" || *cellsPath == "" {
		fmt.Println("Usage: nervemap -masks <list-or-dir> -cells <csv> [-config nervemap.yaml] [-out dir]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.Run.OutputDir = *outDir
	}

	maskPaths, err := collectMasks(*masksArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read mask list: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d mask paths\n", len(maskPaths))

	ds, err := cells.ReadFile(*cellsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read cell dataset: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Cell dataset: %d records across %d samples\n", ds.Len(), len(ds.SampleIDs()))

	startedAt := time.Now()
	res, err := pipeline.Run(maskPaths, ds, pipeline.Options{Config: cfg})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(1)
	}

	if err := writeOutputs(cfg, res, startedAt); err != nil {
		fmt.Fprintf(os.Stderr, "Output error: %v\n", err)
		os.Exit(1)
	}

	report.FprintRunSummary(os.Stdout, res.Succeeded, res.Skipped)
	if len(res.Skipped) > 0 && len(res.Succeeded) == 0 {
		os.Exit(1)
	}
}

// collectMasks resolves the -masks argument: a directory is scanned for
// image files; anything else is read as a list file with one path per line.
func collectMasks(arg string) ([]string, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var paths []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".tif", ".tiff", ".png", ".jpg", ".jpeg":
				paths = append(paths, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(paths)
		return paths, nil
	}

	f, err := os.Open(arg)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var paths []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	return paths, sc.Err()
}

func writeOutputs(cfg *config.Config, res *pipeline.RunResult, startedAt time.Time) error {
	dir := cfg.Run.OutputDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if err := writeCSV(filepath.Join(dir, "sample_summaries.csv"), func(f *os.File) error {
		return report.WriteSampleSummaries(f, res.Summaries())
	}); err != nil {
		return err
	}

	vocabulary := append([]string{}, cfg.Categories.Vocabulary...)
	vocabulary = append(vocabulary, fuse.NerveHotspot)
	if err := writeCSV(filepath.Join(dir, "grid_table.csv"), func(f *os.File) error {
		return report.WriteGridTable(f, res.GridRows(), vocabulary)
	}); err != nil {
		return err
	}

	if err := writeCSV(filepath.Join(dir, "corpus.csv"), func(f *os.File) error {
		return report.WriteCorpus(f, corpusRows(res))
	}); err != nil {
		return err
	}

	// The downstream interaction analysis reads its graph parameters from
	// here so cohorts are compared under identical settings.
	params, err := yaml.Marshal(cfg.Neighbors)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "neighbor_params.yaml"), params, 0o644); err != nil {
		return err
	}

	if cfg.Run.RenderPlots {
		if err := renderPlots(cfg, res, dir); err != nil {
			return err
		}
	}

	if cfg.Run.ResultsDB != "" {
		st, err := store.Open(cfg.Run.ResultsDB)
		if err != nil {
			return err
		}
		defer st.Close()
		runID, err := st.SaveRun(startedAt, res.Summaries(), res.GridRows(), res.Skipped)
		if err != nil {
			return err
		}
		fmt.Printf("Results saved as run %d in %s\n", runID, cfg.Run.ResultsDB)
	}

	return nil
}

func corpusRows(res *pipeline.RunResult) []report.CorpusRow {
	var rows []report.CorpusRow
	for _, id := range res.Corpus.SampleIDs() {
		pts, _ := res.Corpus.Sample(id)
		for _, p := range pts {
			rows = append(rows, report.CorpusRow{
				SampleID: p.SampleID, X: p.X, Y: p.Y,
				SizeProxy: p.SizeProxy, Elongation: p.Elongation, Category: p.Category,
			})
		}
	}
	return rows
}

func renderPlots(cfg *config.Config, res *pipeline.RunResult, dir string) error {
	extent := grid.Extent{X: cfg.Grid.ExtentX, Y: cfg.Grid.ExtentY}
	labels := append([]string{}, cfg.Categories.Vocabulary...)
	labels = append(labels, fuse.NerveHotspot)
	cmap := colormap.NewCategorical(labels)

	for _, s := range res.Samples {
		if err := render.Scatter(s.Points, extent, cmap, filepath.Join(dir, s.SampleID+"_scatter.png")); err != nil {
			return err
		}
		if s.Filter.VisualizationSuppressed {
			log.Printf("sample %s: hotspot heatmap suppressed", s.SampleID)
			continue
		}
		if err := render.Heatmap(s.HotspotCells, extent, filepath.Join(dir, s.SampleID+"_hotspots.png")); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
