// Command hotspottest runs hotspot extraction on a single mask image and
// prints the detected components, for tuning tolerance and the area filter.
package main

import (
	"flag"
	"fmt"
	"os"

	"nervemap/internal/hotspot"
	"nervemap/internal/mask"
)

func main() {
	imagePath := flag.String("image", "", "Path to mask image (TIFF, PNG, or JPEG)")
	tolerance := flag.Float64("tolerance", 0.0002, "Watershed merge tolerance")
	percentile := flag.Float64("percentile", 0.05, "Area filter percentile")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: hotspottest -image <path> [-tolerance 0.0002] [-percentile 0.05]")
		os.Exit(1)
	}

	m, err := mask.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load mask: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded mask %s: %dx%d pixels\n", m.SampleID, m.Width, m.Height)

	cands, err := hotspot.Extract(m, hotspot.Params{Tolerance: *tolerance})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Found %d candidates (tolerance %g)\n\n", len(cands), *tolerance)

	kept, stats := hotspot.Filter(cands, *percentile)
	fmt.Printf("Area cutoff (p%.0f): %.1f px\n", *percentile*100, stats.Cutoff)
	if stats.VisualizationSuppressed {
		fmt.Println("Fewer than 2 hotspots survive: hotspot plots would be suppressed for this sample")
	}

	fmt.Printf("\n%-6s %10s %10s %8s %10s %12s\n", "Label", "X", "Y", "Area", "Radius", "Intensity")
	for _, h := range kept {
		fmt.Printf("%-6d %10.1f %10.1f %8.0f %10.2f %12.2f\n",
			h.Label, h.Center.X, h.Center.Y, h.Area, h.MeanRadius, h.MeanIntensity)
	}
	fmt.Printf("\nTotal: %d hotspots after filtering\n", len(kept))
}
