// Package corpus accumulates per-sample fused point sets into one
// cohort-wide collection keyed by sample identifier.
package corpus

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"nervemap/internal/fuse"
)

// ErrDuplicateSample reports an attempt to insert a sample twice. That is
// a caller bug, not a data condition, so it is fatal.
var ErrDuplicateSample = errors.New("duplicate sample")

// Corpus is the cohort-wide fused point collection. Add is safe for
// concurrent use so per-sample processing may run in parallel; readers
// must wait until the build is complete.
type Corpus struct {
	mu       sync.Mutex
	bySample map[string][]fuse.Point
}

// New creates an empty corpus.
func New() *Corpus {
	return &Corpus{bySample: make(map[string][]fuse.Point)}
}

// Add appends one sample's fused point set under its identifier.
func (c *Corpus) Add(sampleID string, points []fuse.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.bySample[sampleID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSample, sampleID)
	}
	c.bySample[sampleID] = points
	return nil
}

// Sample returns one sample's points.
func (c *Corpus) Sample(id string) ([]fuse.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pts, ok := c.bySample[id]
	return pts, ok
}

// SampleIDs returns all sample identifiers in sorted order, so cohort
// outputs do not depend on ingestion order.
func (c *Corpus) SampleIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.bySample))
	for id := range c.bySample {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of samples.
func (c *Corpus) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bySample)
}

// TotalPoints returns the cohort-wide point count.
func (c *Corpus) TotalPoints() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, pts := range c.bySample {
		n += len(pts)
	}
	return n
}

// CategoryCounts returns cohort-wide per-category point counts. Counting
// is associative, so the result does not depend on sample insertion order.
func (c *Corpus) CategoryCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[string]int)
	for _, pts := range c.bySample {
		for _, p := range pts {
			counts[p.Category]++
		}
	}
	return counts
}
