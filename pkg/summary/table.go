// Package summary holds the append-only result table fed by the analysis
// engine. One row is appended per successful analysis invocation; prior rows
// are never mutated. The table is the only shared mutable state in the system,
// so appends are serialized with a mutex and the engine only appends once a
// run has fully completed.
package summary

import (
	"encoding/csv"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Settings is a flattened snapshot of the threshold configuration that
// produced a row. It is a plain value so rows stay self-describing after the
// live configuration has moved on.
type Settings struct {
	PreIndex             int
	EarlyIndex           int
	LateIndex            int
	BackgroundPercentile float64
	BackgroundFraction   float64
	PEThreshold          float64
	SERMode              string
	SERClamp             float64
}

// ClassCount is a per-label voxel tally, ordered by the producer.
type ClassCount struct {
	Name  string
	Count int
}

// Row is one functional-tumour-volume result: the FTV metric, the voxel
// counts behind it, and the full settings that produced it.
type Row struct {
	RunID     uuid.UUID
	Timestamp time.Time

	// VoxelCount is the number of voxels labelled with an enhancing class.
	VoxelCount int

	// CandidateCount is the number of voxels passing the ROI and background
	// criteria before the PE/SER thresholds, the denominator the reference
	// tool uses for its distribution percentages.
	CandidateCount int

	FTVCubicMM float64
	FTVCubicCM float64

	ClassCounts []ClassCount
	Settings    Settings
}

// Table is the append-only sequence of result rows for a session.
type Table struct {
	mu   sync.Mutex
	rows []Row
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// Append adds a row to the table, assigning a fresh RunID and timestamp when
// the caller left them zero. The stored row is returned.
func (t *Table) Append(row Row) Row {
	if row.RunID == uuid.Nil {
		row.RunID = uuid.New()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now().UTC()
	}
	t.mu.Lock()
	t.rows = append(t.rows, row)
	t.mu.Unlock()
	return row
}

// Len returns the current number of rows.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Rows returns a copy of the rows in append order.
func (t *Table) Rows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// WriteCSV writes the table, one line per row, with a header. Per-class counts
// are folded into a single "name=count;..." column so the schema is stable
// across SER modes.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{
		"run_id", "timestamp",
		"ftv_mm3", "ftv_cm3", "voxel_count", "candidate_count", "class_counts",
		"pre_index", "early_index", "late_index",
		"background_percentile", "background_fraction",
		"pe_threshold", "ser_mode", "ser_clamp",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range t.Rows() {
		classes := ""
		for i, cc := range row.ClassCounts {
			if i > 0 {
				classes += ";"
			}
			classes += fmt.Sprintf("%s=%d", cc.Name, cc.Count)
		}
		record := []string{
			row.RunID.String(),
			row.Timestamp.Format(time.RFC3339),
			fmt.Sprintf("%.6f", row.FTVCubicMM),
			fmt.Sprintf("%.6f", row.FTVCubicCM),
			fmt.Sprintf("%d", row.VoxelCount),
			fmt.Sprintf("%d", row.CandidateCount),
			classes,
			fmt.Sprintf("%d", row.Settings.PreIndex),
			fmt.Sprintf("%d", row.Settings.EarlyIndex),
			fmt.Sprintf("%d", row.Settings.LateIndex),
			fmt.Sprintf("%.4f", row.Settings.BackgroundPercentile),
			fmt.Sprintf("%.4f", row.Settings.BackgroundFraction),
			fmt.Sprintf("%.4f", row.Settings.PEThreshold),
			row.Settings.SERMode,
			fmt.Sprintf("%.4f", row.Settings.SERClamp),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
