// Package metricsstore implements the Metrics Store + QC Policy component
// (spec.md §4.D): a thread-safe per-timepoint FOV-metrics map, the four
// pure focus-score algorithms, and CSV persistence grounded on the
// teacher's temp-file + atomic-rename save discipline
// (internal/task/store.go's FileTaskStore.Save).
package metricsstore

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"firestige.xyz/acquisitiond/internal/acqtypes"
)

// csvColumns is the fixed column order for qc_metrics.csv (spec.md §6).
var csvColumns = []string{
	"region_id", "fov_index", "timestamp", "z_position_um",
	"focus_score", "laser_af_displacement_um",
	"z_diff_from_last_timepoint_um", "error",
}

// Store is a thread-safe FOV-identifier -> FOVMetrics map scoped to one
// timepoint. At most one entry per FOV (add replaces); never partially
// updated (spec.md §3 "Timepoint metrics store").
type Store struct {
	mu        sync.RWMutex
	timepoint int
	entries   map[acqtypes.FOVID]acqtypes.FOVMetrics
	order     []acqtypes.FOVID // first-insertion order, for deterministic GetAll/save
}

// New creates an empty Store scoped to timepoint t.
func New(t int) *Store {
	return &Store{timepoint: t, entries: make(map[acqtypes.FOVID]acqtypes.FOVMetrics)}
}

// Timepoint returns the timepoint this Store is scoped to.
func (s *Store) Timepoint() int {
	return s.timepoint
}

// Add inserts or replaces the entry for m.FOV.
func (s *Store) Add(m acqtypes.FOVMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[m.FOV]; !exists {
		s.order = append(s.order, m.FOV)
	}
	s.entries[m.FOV] = m
}

// Get returns the metrics for fov and whether an entry exists.
func (s *Store) Get(fov acqtypes.FOVID) (acqtypes.FOVMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.entries[fov]
	return m, ok
}

// GetAll returns an ordered snapshot of all entries, in first-insertion
// order.
func (s *Store) GetAll() []acqtypes.FOVMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]acqtypes.FOVMetrics, 0, len(s.order))
	for _, fov := range s.order {
		out = append(out, s.entries[fov])
	}
	return out
}

// GetMetricValues returns a snapshot map of FOV -> value for the named
// metric field, restricted to entries where that field is non-null.
func (s *Store) GetMetricValues(metricName string) map[acqtypes.FOVID]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[acqtypes.FOVID]float64)
	for _, fov := range s.order {
		m := s.entries[fov]
		if v, ok := metricValue(m, metricName); ok {
			out[fov] = v
		}
	}
	return out
}

// metricValue extracts the named optional metric field from m.
func metricValue(m acqtypes.FOVMetrics, metricName string) (float64, bool) {
	switch metricName {
	case "focus_score":
		if m.FocusScore != nil {
			return *m.FocusScore, true
		}
	case "laser_af_displacement_um":
		if m.LaserAFDisplacementUM != nil {
			return *m.LaserAFDisplacementUM, true
		}
	case "z_diff_from_last_timepoint_um":
		if m.ZDiffFromLastTimepoint != nil {
			return *m.ZDiffFromLastTimepoint, true
		}
	case "z_position_um":
		return m.ZPositionUM, true
	}
	return 0, false
}

// ToFrame returns the store's rows keyed by metric column name, for
// in-process analysis (a lightweight stand-in for a dataframe).
func (s *Store) ToFrame() map[string][]string {
	rows := s.GetAll()
	frame := make(map[string][]string, len(csvColumns))
	for _, col := range csvColumns {
		frame[col] = make([]string, 0, len(rows))
	}
	for _, m := range rows {
		rec := toRecord(m)
		for i, col := range csvColumns {
			frame[col] = append(frame[col], rec[i])
		}
	}
	return frame
}

// Save writes the store as tabular CSV to path, one row per FOV, columns
// per csvColumns, using a unique temp file plus atomic rename so a crash
// mid-write never leaves a corrupt or partial file in place.
func (s *Store) Save(path string) error {
	rows := s.GetAll()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("metrics store: create directory %q: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".qc_metrics.*.tmp")
	if err != nil {
		return fmt.Errorf("metrics store: create temp file: %w", err)
	}
	tmpName := tmpFile.Name()

	w := csv.NewWriter(tmpFile)
	if err := w.Write(csvColumns); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("metrics store: write header: %w", err)
	}
	for _, m := range rows {
		if err := w.Write(toRecord(m)); err != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpName)
			return fmt.Errorf("metrics store: write row for %s: %w", m.FOV, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("metrics store: flush: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("metrics store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("metrics store: rename to %q: %w", path, err)
	}
	return nil
}

// toRecord renders m as a CSV row in csvColumns order. Missing optional
// values are empty strings (spec.md §6).
func toRecord(m acqtypes.FOVMetrics) []string {
	return []string{
		m.FOV.RegionID,
		strconv.Itoa(m.FOV.Index),
		m.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"),
		strconv.FormatFloat(m.ZPositionUM, 'g', -1, 64),
		optFloat(m.FocusScore),
		optFloat(m.LaserAFDisplacementUM),
		optFloat(m.ZDiffFromLastTimepoint),
		m.Error,
	}
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// sortedFOVIDs returns a copy of fovs sorted by FOVID.Less, a key ordering
// independent of insertion order.
func sortedFOVIDs(fovs []acqtypes.FOVID) []acqtypes.FOVID {
	out := append([]acqtypes.FOVID(nil), fovs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
