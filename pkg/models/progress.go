package models

import "time"

// RunProgress is a point-in-time snapshot of one table run, safe to hand to
// the dashboard while the run is still moving.
type RunProgress struct {
	ExecutionID   string        `json:"execution_id"`
	RunID         string        `json:"run_id"`
	Table         TableRef      `json:"table"`
	RunType       RunType       `json:"run_type"`
	Status        RunStatus     `json:"status"`
	BatchesTotal  int           `json:"batches_total"`
	BatchesDone   int           `json:"batches_done"`
	RowsProcessed int64         `json:"rows_processed"`
	// Phase timings shared by both run types: warehouse read, compliance
	// call (profiling or masking), write-back.
	ReadDuration time.Duration `json:"read_duration_ns"`
	MaskDuration time.Duration `json:"mask_duration_ns"`
	LoadDuration time.Duration `json:"load_duration_ns"`
	Message      string        `json:"message,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ExecutionProgress aggregates the run snapshots of one execution.
type ExecutionProgress struct {
	ExecutionID  string        `json:"execution_id"`
	RunType      RunType       `json:"run_type"`
	TablesTotal  int           `json:"tables_total"`
	TablesDone   int           `json:"tables_done"`
	TablesFailed int           `json:"tables_failed"`
	Runs         []RunProgress `json:"runs"`
}

// Finished reports whether every run of the execution reached a terminal
// status.
func (p ExecutionProgress) Finished() bool {
	return p.TablesTotal > 0 && p.TablesDone+p.TablesFailed == p.TablesTotal
}
