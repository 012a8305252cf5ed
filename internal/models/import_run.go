package models

import (
	"time"

	"github.com/amai2222/shipment-data-view-sub002/internal/importer"
)

type ImportRunStatus string

const (
	RunPreviewed ImportRunStatus = "previewed"
	RunQueued    ImportRunStatus = "queued"
	RunApplying  ImportRunStatus = "applying"
	RunCompleted ImportRunStatus = "completed"
	RunFailed    ImportRunStatus = "failed"
)

// ImportRun is one preview-then-apply cycle. Exactly one of Selective and
// Full is set, according to Mode.
type ImportRun struct {
	ID       string              `json:"id"`
	Mode     importer.ImportMode `json:"mode"`
	Filename string              `json:"filename"`
	Project  string              `json:"project,omitempty"`
	Status   ImportRunStatus     `json:"status"`

	Selective *importer.SelectivePreview  `json:"selective,omitempty"`
	Full      *importer.FullImportPreview `json:"full,omitempty"`

	// ApprovedRows limits a selective apply to these sheet rows; empty means
	// every matched row.
	ApprovedRows []int `json:"approved_rows,omitempty"`
	// Approved holds the duplicate indices approved for a full import.
	Approved []int `json:"approved,omitempty"`

	Outcome *importer.ImportOutcome `json:"outcome,omitempty"`
	Error   string                  `json:"error,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Finished reports whether the run reached a terminal status.
func (r *ImportRun) Finished() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}

// ImportRunSummary is the listing form of a run.
type ImportRunSummary struct {
	ID        string              `json:"id"`
	Mode      importer.ImportMode `json:"mode"`
	Filename  string              `json:"filename"`
	Status    ImportRunStatus     `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}

func (r *ImportRun) Summary() ImportRunSummary {
	return ImportRunSummary{ID: r.ID, Mode: r.Mode, Filename: r.Filename, Status: r.Status, CreatedAt: r.CreatedAt}
}
