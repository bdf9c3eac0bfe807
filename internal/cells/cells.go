// Package cells reads the external single-cell segmentation/phenotyping
// dataset. The dataset is consumed read-only; this package only parses and
// groups it by sample.
package cells

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// Record is one segmented cell from the external dataset.
type Record struct {
	SampleID     string
	X            float64
	Y            float64
	MajorAxis    float64
	Eccentricity float64
	Area         float64
	Phenotype    string
}

// Dataset holds all cell records grouped by sample identifier.
type Dataset struct {
	bySample map[string][]Record
}

// columns the CSV header must provide, by name.
var required = []string{"sample", "x", "y", "major_axis", "eccentricity", "area", "phenotype"}

// ReadFile parses a single-cell CSV file.
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cell dataset: %w", err)
	}
	defer f.Close()

	ds, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("parse cell dataset %s: %w", path, err)
	}
	return ds, nil
}

// Read parses single-cell CSV data. The first row is a header; columns are
// located by name so column order in the source file does not matter.
func Read(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range required {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	ds := &Dataset{bySample: make(map[string][]Record)}
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		rec := Record{
			SampleID:  row[col["sample"]],
			Phenotype: row[col["phenotype"]],
		}
		if rec.SampleID == "" {
			return nil, fmt.Errorf("line %d: empty sample identifier", line)
		}

		fields := []struct {
			name string
			dst  *float64
		}{
			{"x", &rec.X},
			{"y", &rec.Y},
			{"major_axis", &rec.MajorAxis},
			{"eccentricity", &rec.Eccentricity},
			{"area", &rec.Area},
		}
		for _, fld := range fields {
			v, err := strconv.ParseFloat(row[col[fld.name]], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %q: %w", line, fld.name, err)
			}
			*fld.dst = v
		}

		ds.bySample[rec.SampleID] = append(ds.bySample[rec.SampleID], rec)
	}
	return ds, nil
}

// Sample returns the records for one sample. The second return reports
// whether the sample exists in the dataset at all, so callers can tell an
// absent sample from one with zero cells.
func (d *Dataset) Sample(id string) ([]Record, bool) {
	recs, ok := d.bySample[id]
	return recs, ok
}

// Has reports whether the dataset contains the sample.
func (d *Dataset) Has(id string) bool {
	_, ok := d.bySample[id]
	return ok
}

// SampleIDs returns all sample identifiers in sorted order.
func (d *Dataset) SampleIDs() []string {
	ids := make([]string, 0, len(d.bySample))
	for id := range d.bySample {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the total record count.
func (d *Dataset) Len() int {
	n := 0
	for _, recs := range d.bySample {
		n += len(recs)
	}
	return n
}
