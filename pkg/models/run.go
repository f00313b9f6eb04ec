package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a single table run.
type RunStatus string

const (
	RunStatusWaiting    RunStatus = "WAITING"
	RunStatusInProgress RunStatus = "IN_PROGRESS"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusFailed     RunStatus = "FAILED"
)

// ValidRunStatuses contains all valid run statuses.
var ValidRunStatuses = []RunStatus{
	RunStatusWaiting,
	RunStatusInProgress,
	RunStatusCompleted,
	RunStatusFailed,
}

// IsValidRunStatus checks if the given status is valid.
func IsValidRunStatus(status RunStatus) bool {
	for _, s := range ValidRunStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the run status is terminal (completed/failed).
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// CanTransitionTo checks if transitioning from the current status to the
// target status is valid. The lifecycle is monotonic: a run never moves
// backward and never leaves a terminal status. Re-running a table means a
// new execution, not a transition.
func (s RunStatus) CanTransitionTo(target RunStatus) bool {
	switch s {
	case RunStatusWaiting:
		return target == RunStatusInProgress || target == RunStatusFailed
	case RunStatusInProgress:
		return target == RunStatusCompleted || target == RunStatusFailed
	case RunStatusCompleted, RunStatusFailed:
		return false
	default:
		return false
	}
}

// RunType identifies what kind of work a run performs.
type RunType string

const (
	RunTypeDiscovery   RunType = "DISCOVERY"
	RunTypeMaskDeliver RunType = "MASK_DELIVER"
	RunTypeInPlaceMask RunType = "IN_PLACE_MASK"
)

// ValidRunTypes contains all valid run types.
var ValidRunTypes = []RunType{
	RunTypeDiscovery,
	RunTypeMaskDeliver,
	RunTypeInPlaceMask,
}

// IsValidRunType checks if the given run type is valid.
func IsValidRunType(runType RunType) bool {
	for _, t := range ValidRunTypes {
		if t == runType {
			return true
		}
	}
	return false
}

// IsMasking returns true for run types that write masked data.
func (t RunType) IsMasking() bool {
	return t == RunTypeMaskDeliver || t == RunTypeInPlaceMask
}

// runIDTimestampLayout is MMDDYYYYHHMMSS, matching the run id suffix format.
const runIDTimestampLayout = "01022006150405"

// NewExecutionID returns a fresh execution identifier. One execution groups
// every table run launched by a single user action.
func NewExecutionID() string {
	return "exec-" + uuid.NewString()
}

// NewRunID returns the run identifier for a table within an execution.
func NewRunID(table string, at time.Time) string {
	return fmt.Sprintf("%s-%s", table, at.Format(runIDTimestampLayout))
}

// EventLogEntry is one row of the events log: a single run of a single
// table within an execution.
type EventLogEntry struct {
	ExecutionID        string     `json:"execution_id"`
	RunID              string     `json:"run_id"`
	RunStatus          RunStatus  `json:"run_status"`
	RunType            RunType    `json:"run_type"`
	ExecutionStartTime time.Time  `json:"execution_start_time"`
	ExecutionEndTime   *time.Time `json:"execution_end_time,omitempty"`
	SourceDatabase     string     `json:"source_database"`
	SourceSchema       string     `json:"source_schema"`
	SourceTable        string     `json:"source_table"`
	DestDatabase       string     `json:"dest_database,omitempty"`
	DestSchema         string     `json:"dest_schema,omitempty"`
	DestTable          string     `json:"dest_table,omitempty"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
}

// Duration returns the elapsed run time, or zero if the run has not ended.
func (e *EventLogEntry) Duration() time.Duration {
	if e.ExecutionEndTime == nil {
		return 0
	}
	return e.ExecutionEndTime.Sub(e.ExecutionStartTime)
}

// RunStatistics aggregates the events log for the monitoring page.
type RunStatistics struct {
	TotalRuns             int                       `json:"total_runs"`
	CompletedRuns         int                       `json:"completed_runs"`
	FailedRuns            int                       `json:"failed_runs"`
	ActiveRuns            int                       `json:"active_runs"`
	AverageDurationByType map[RunType]time.Duration `json:"average_duration_by_type"`
}
