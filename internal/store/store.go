// Package store persists pipeline run results to a SQLite database so
// cohort tables can be queried without rerunning segmentation.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"nervemap/internal/report"
)

// Store provides persistent storage for pipeline runs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the results database.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		samples_ok INTEGER NOT NULL,
		samples_skipped INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sample_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		sample TEXT NOT NULL,
		hotspots INTEGER NOT NULL,
		pixel_count REAL NOT NULL,
		mean_area REAL NOT NULL,
		mean_radius REAL NOT NULL,
		mean_intensity REAL NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_run ON sample_summaries(run_id);
	CREATE INDEX IF NOT EXISTS idx_summaries_sample ON sample_summaries(sample);

	CREATE TABLE IF NOT EXISTS grid_cells (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		sample TEXT NOT NULL,
		x_index INTEGER NOT NULL,
		y_index INTEGER NOT NULL,
		x_start REAL NOT NULL,
		y_start REAL NOT NULL,
		count INTEGER NOT NULL,
		mean_size REAL NOT NULL,
		max_size REAL NOT NULL,
		hotspot_count INTEGER NOT NULL,
		mean_hotspot_dist REAL NOT NULL,
		has_hotspot INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_grid_run_sample ON grid_cells(run_id, sample);

	CREATE TABLE IF NOT EXISTS skipped_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		sample TEXT NOT NULL,
		reason TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun persists one complete run: summaries, the cohort grid table and
// the skip list, under a fresh run id.
func (s *Store) SaveRun(startedAt time.Time, summaries []report.SampleSummary, gridRows []report.GridRow, skipped map[string]string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO runs (started_at, samples_ok, samples_skipped) VALUES (?, ?, ?)`,
		startedAt.Format(time.RFC3339), len(summaries), len(skipped))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	sumStmt, err := tx.Prepare(`
		INSERT INTO sample_summaries (run_id, sample, hotspots, pixel_count, mean_area, mean_radius, mean_intensity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare summary insert: %w", err)
	}
	defer sumStmt.Close()

	for _, sum := range summaries {
		if _, err := sumStmt.Exec(runID, sum.SampleID, sum.HotspotCount, sum.PixelCount, sum.MeanArea, sum.MeanRadius, sum.MeanIntensity); err != nil {
			return 0, fmt.Errorf("insert summary %s: %w", sum.SampleID, err)
		}
	}

	cellStmt, err := tx.Prepare(`
		INSERT INTO grid_cells (run_id, sample, x_index, y_index, x_start, y_start, count,
			mean_size, max_size, hotspot_count, mean_hotspot_dist, has_hotspot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare cell insert: %w", err)
	}
	defer cellStmt.Close()

	for _, r := range gridRows {
		c := r.Cell
		hasHotspot := 0
		if c.HasHotspot {
			hasHotspot = 1
		}
		if _, err := cellStmt.Exec(runID, r.SampleID, c.XIndex, c.YIndex, c.Bounds.X, c.Bounds.Y,
			c.Count, c.MeanSize, c.MaxSize, c.HotspotCount, c.MeanHotspotDist, hasHotspot); err != nil {
			return 0, fmt.Errorf("insert cell (%s %d,%d): %w", r.SampleID, c.XIndex, c.YIndex, err)
		}
	}

	for sample, reason := range skipped {
		if _, err := tx.Exec(`INSERT INTO skipped_samples (run_id, sample, reason) VALUES (?, ?, ?)`,
			runID, sample, reason); err != nil {
			return 0, fmt.Errorf("insert skip %s: %w", sample, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// SampleSummaries reads back the per-sample summaries of a run.
func (s *Store) SampleSummaries(runID int64) ([]report.SampleSummary, error) {
	rows, err := s.db.Query(`
		SELECT sample, hotspots, pixel_count, mean_area, mean_radius, mean_intensity
		FROM sample_summaries WHERE run_id = ? ORDER BY sample
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []report.SampleSummary
	for rows.Next() {
		var sum report.SampleSummary
		if err := rows.Scan(&sum.SampleID, &sum.HotspotCount, &sum.PixelCount, &sum.MeanArea, &sum.MeanRadius, &sum.MeanIntensity); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// HotspotCellCount returns how many grid cells of a run's sample contain
// at least one hotspot.
func (s *Store) HotspotCellCount(runID int64, sample string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM grid_cells WHERE run_id = ? AND sample = ? AND has_hotspot = 1
	`, runID, sample).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count hotspot cells: %w", err)
	}
	return n, nil
}
