package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/database"
	"github.com/veildata/veil-engine/pkg/models"
)

// EventsRepository provides data access for the events log. Every table run
// is one row keyed by (execution_id, run_id); the row's status only ever
// moves forward through the run lifecycle.
type EventsRepository interface {
	// Create inserts a WAITING row for a new run.
	Create(ctx context.Context, entry *models.EventLogEntry) error

	// Advance moves a run to the target status, stamping the end time on
	// terminal states. Transitions that would move the run backward, or out
	// of a terminal state, fail with ErrRunStateInvalid.
	Advance(ctx context.Context, executionID, runID string, status models.RunStatus, errorMessage string) error

	// GetByExecution retrieves every run of one execution.
	GetByExecution(ctx context.Context, executionID string) ([]models.EventLogEntry, error)

	// Recent retrieves the latest runs across all executions.
	Recent(ctx context.Context, limit int) ([]models.EventLogEntry, error)

	// FinalizeExecution stamps the end time on every run of an execution
	// that does not have one yet, and returns how many rows were stamped.
	FinalizeExecution(ctx context.Context, executionID string) (int, error)

	// Statistics aggregates the whole log for the monitoring page.
	Statistics(ctx context.Context) (*models.RunStatistics, error)
}

type eventsRepository struct {
	db *database.DB
}

// NewEventsRepository creates a new EventsRepository.
func NewEventsRepository(db *database.DB) EventsRepository {
	return &eventsRepository{db: db}
}

var _ EventsRepository = (*eventsRepository)(nil)

func (r *eventsRepository) Create(ctx context.Context, entry *models.EventLogEntry) error {
	query := `
		INSERT INTO dcs_events_log (
			execution_id, run_id, run_status, run_type, execution_start_time,
			source_database, source_schema, source_table,
			dest_database, dest_schema, dest_table
		)
		VALUES ($1, $2, $3, $4, NOW(), $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''))
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ExecutionID, entry.RunID, models.RunStatusWaiting, entry.RunType,
		entry.SourceDatabase, entry.SourceSchema, entry.SourceTable,
		entry.DestDatabase, entry.DestSchema, entry.DestTable,
	)
	if err != nil {
		return fmt.Errorf("failed to create events log entry for run %s: %w", entry.RunID, err)
	}

	return nil
}

func (r *eventsRepository) Advance(ctx context.Context, executionID, runID string, status models.RunStatus, errorMessage string) error {
	if !models.IsValidRunStatus(status) {
		return fmt.Errorf("unknown run status %q: %w", status, apperrors.ErrInvalidInput)
	}

	// Statuses the target can legally be reached from. Folding them into
	// the WHERE clause makes the transition guard atomic under concurrent
	// workers.
	var from []string
	for _, s := range models.ValidRunStatuses {
		if s.CanTransitionTo(status) {
			from = append(from, string(s))
		}
	}

	query := `
		UPDATE dcs_events_log
		SET run_status = $3,
			execution_end_time = CASE WHEN $3 IN ('COMPLETED', 'FAILED') THEN NOW() ELSE execution_end_time END,
			error_message = COALESCE(NULLIF($4, ''), error_message)
		WHERE execution_id = $1
		AND run_id = $2
		AND run_status = ANY($5)
	`

	tag, err := r.db.Pool.Exec(ctx, query, executionID, runID, status, errorMessage, from)
	if err != nil {
		return fmt.Errorf("failed to advance run %s: %w", runID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing matched: either the run does not exist or the transition is
	// not allowed from its current status.
	var current models.RunStatus
	err = r.db.Pool.QueryRow(ctx,
		"SELECT run_status FROM dcs_events_log WHERE execution_id = $1 AND run_id = $2",
		executionID, runID).Scan(&current)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("run %s of execution %s: %w", runID, executionID, apperrors.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read run status for %s: %w", runID, err)
	}

	return fmt.Errorf("run %s cannot move %s -> %s: %w", runID, current, status, apperrors.ErrRunStateInvalid)
}

const eventLogFields = `
	execution_id, run_id, run_status, run_type,
	execution_start_time, execution_end_time,
	source_database, source_schema, source_table,
	COALESCE(dest_database, ''), COALESCE(dest_schema, ''), COALESCE(dest_table, ''),
	error_message
`

func (r *eventsRepository) GetByExecution(ctx context.Context, executionID string) ([]models.EventLogEntry, error) {
	query := `
		SELECT ` + eventLogFields + `
		FROM dcs_events_log
		WHERE execution_id = $1
		ORDER BY execution_start_time, run_id
	`

	rows, err := r.db.Pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution runs: %w", err)
	}
	defer rows.Close()

	return scanEventLogEntries(rows)
}

func (r *eventsRepository) Recent(ctx context.Context, limit int) ([]models.EventLogEntry, error) {
	query := `
		SELECT ` + eventLogFields + `
		FROM dcs_events_log
		ORDER BY execution_start_time DESC, run_id
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	return scanEventLogEntries(rows)
}

func (r *eventsRepository) FinalizeExecution(ctx context.Context, executionID string) (int, error) {
	query := `
		UPDATE dcs_events_log
		SET execution_end_time = NOW()
		WHERE execution_id = $1
		AND execution_end_time IS NULL
	`

	tag, err := r.db.Pool.Exec(ctx, query, executionID)
	if err != nil {
		return 0, fmt.Errorf("failed to finalize execution %s: %w", executionID, err)
	}

	return int(tag.RowsAffected()), nil
}

func (r *eventsRepository) Statistics(ctx context.Context) (*models.RunStatistics, error) {
	stats := &models.RunStatistics{
		AverageDurationByType: make(map[models.RunType]time.Duration),
	}

	countQuery := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE run_status = 'COMPLETED'),
			COUNT(*) FILTER (WHERE run_status = 'FAILED'),
			COUNT(*) FILTER (WHERE run_status IN ('WAITING', 'IN_PROGRESS'))
		FROM dcs_events_log
	`

	err := r.db.Pool.QueryRow(ctx, countQuery).Scan(
		&stats.TotalRuns, &stats.CompletedRuns, &stats.FailedRuns, &stats.ActiveRuns,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate run counts: %w", err)
	}

	durationQuery := `
		SELECT run_type, AVG(EXTRACT(EPOCH FROM (execution_end_time - execution_start_time)))
		FROM dcs_events_log
		WHERE execution_end_time IS NOT NULL
		GROUP BY run_type
	`

	rows, err := r.db.Pool.Query(ctx, durationQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate run durations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var runType models.RunType
		var seconds float64
		if err := rows.Scan(&runType, &seconds); err != nil {
			return nil, fmt.Errorf("failed to scan run duration: %w", err)
		}
		stats.AverageDurationByType[runType] = time.Duration(seconds * float64(time.Second))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run durations: %w", err)
	}

	return stats, nil
}

func scanEventLogEntries(rows pgx.Rows) ([]models.EventLogEntry, error) {
	var entries []models.EventLogEntry
	for rows.Next() {
		var entry models.EventLogEntry
		err := rows.Scan(
			&entry.ExecutionID, &entry.RunID, &entry.RunStatus, &entry.RunType,
			&entry.ExecutionStartTime, &entry.ExecutionEndTime,
			&entry.SourceDatabase, &entry.SourceSchema, &entry.SourceTable,
			&entry.DestDatabase, &entry.DestSchema, &entry.DestTable,
			&entry.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan events log row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events log rows: %w", err)
	}

	return entries, nil
}
