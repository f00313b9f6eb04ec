package services

import (
	"sync"
	"time"

	"github.com/veildata/veil-engine/pkg/models"
)

// trackedExecutions caps how many executions the tracker retains. Oldest
// finished executions are pruned first; live ones are never dropped.
const trackedExecutions = 20

// ProgressTracker holds live run snapshots for the dashboard. Workers write
// through it from pool goroutines; readers get point-in-time copies. It is
// not persisted: the events log is the durable record, this is the moving
// needle between event writes.
type ProgressTracker struct {
	mu         sync.RWMutex
	executions map[string]*executionEntry
	order      []string // insertion order, oldest first
}

type executionEntry struct {
	runType  models.RunType
	runs     map[string]*models.RunProgress
	runOrder []string
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		executions: make(map[string]*executionEntry),
	}
}

// StartRun registers a WAITING snapshot for one table run. The first run of
// an execution creates the execution entry.
func (t *ProgressTracker) StartRun(executionID, runID string, runType models.RunType, table models.TableRef) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.executions[executionID]
	if !ok {
		t.pruneLocked()
		entry = &executionEntry{
			runType: runType,
			runs:    make(map[string]*models.RunProgress),
		}
		t.executions[executionID] = entry
		t.order = append(t.order, executionID)
	}

	if _, exists := entry.runs[runID]; exists {
		return
	}

	now := time.Now().UTC()
	entry.runs[runID] = &models.RunProgress{
		ExecutionID: executionID,
		RunID:       runID,
		Table:       table,
		RunType:     runType,
		Status:      models.RunStatusWaiting,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	entry.runOrder = append(entry.runOrder, runID)
}

// Update applies fn to one run's snapshot under the lock and stamps the
// update time. Unknown runs are ignored; the tracker is advisory, never a
// source of truth.
func (t *ProgressTracker) Update(executionID, runID string, fn func(*models.RunProgress)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.executions[executionID]
	if !ok {
		return
	}
	run, ok := entry.runs[runID]
	if !ok {
		return
	}

	fn(run)
	run.UpdatedAt = time.Now().UTC()
}

// Execution returns a copy of one execution's progress.
func (t *ProgressTracker) Execution(executionID string) (models.ExecutionProgress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.executions[executionID]
	if !ok {
		return models.ExecutionProgress{}, false
	}
	return t.snapshotLocked(executionID, entry), true
}

// Latest returns the most recently started execution's progress.
func (t *ProgressTracker) Latest() (models.ExecutionProgress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.order) == 0 {
		return models.ExecutionProgress{}, false
	}
	executionID := t.order[len(t.order)-1]
	return t.snapshotLocked(executionID, t.executions[executionID]), true
}

// snapshotLocked copies one execution out. Must be called with at least the
// read lock held.
func (t *ProgressTracker) snapshotLocked(executionID string, entry *executionEntry) models.ExecutionProgress {
	progress := models.ExecutionProgress{
		ExecutionID: executionID,
		RunType:     entry.runType,
		TablesTotal: len(entry.runOrder),
		Runs:        make([]models.RunProgress, 0, len(entry.runOrder)),
	}
	for _, runID := range entry.runOrder {
		run := *entry.runs[runID]
		progress.Runs = append(progress.Runs, run)
		switch run.Status {
		case models.RunStatusCompleted:
			progress.TablesDone++
		case models.RunStatusFailed:
			progress.TablesFailed++
		}
	}
	return progress
}

// pruneLocked drops the oldest finished executions once the retention cap is
// reached. Must be called with the write lock held.
func (t *ProgressTracker) pruneLocked() {
	for len(t.order) >= trackedExecutions {
		pruned := false
		for i, executionID := range t.order {
			if t.finishedLocked(t.executions[executionID]) {
				delete(t.executions, executionID)
				t.order = append(t.order[:i], t.order[i+1:]...)
				pruned = true
				break
			}
		}
		if !pruned {
			return
		}
	}
}

func (t *ProgressTracker) finishedLocked(entry *executionEntry) bool {
	for _, run := range entry.runs {
		if !run.Status.IsTerminal() {
			return false
		}
	}
	return true
}
