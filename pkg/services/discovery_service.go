package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/compliance"
	"github.com/veildata/veil-engine/pkg/logging"
	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/repositories"
)

// DefaultSampleSize caps how many rows per table travel to the profiling
// endpoint when configuration does not say otherwise.
const DefaultSampleSize = 1000

// ComplianceAPI is the slice of the compliance client the workflow services
// call. *compliance.Client satisfies it; tests substitute fakes.
type ComplianceAPI interface {
	ProfileByColumn(ctx context.Context, samples map[string][]string) (*compliance.ProfileResult, error)
	MaskBatch(ctx context.Context, rows *warehouse.RowSet, assignments map[string]string) (*compliance.MaskResult, error)
}

var (
	_ ComplianceAPI = (*compliance.Client)(nil)
	_ ComplianceAPI = (*compliance.Provider)(nil)
)

// DiscoveryService runs profiling executions over warehouse tables.
type DiscoveryService interface {
	// StartDiscovery begins one discovery execution over the given tables
	// and returns its execution ID. A non-positive sampleSize selects the
	// configured default. The work continues in the background after
	// return; callers follow it through the progress tracker and the
	// events log.
	StartDiscovery(ctx context.Context, tables []models.TableRef, sampleSize int) (string, error)
}

type discoveryService struct {
	adapter     warehouse.Adapter
	api         ComplianceAPI
	rulesetRepo repositories.RulesetRepository
	eventsRepo  repositories.EventsRepository
	tracker     *ProgressTracker
	pool        *WorkerPool
	sampleSize  int
	logger      *zap.Logger
}

// NewDiscoveryService creates a new discovery service.
func NewDiscoveryService(
	adapter warehouse.Adapter,
	api ComplianceAPI,
	rulesetRepo repositories.RulesetRepository,
	eventsRepo repositories.EventsRepository,
	tracker *ProgressTracker,
	pool *WorkerPool,
	sampleSize int,
	logger *zap.Logger,
) DiscoveryService {
	if sampleSize < 1 {
		sampleSize = DefaultSampleSize
	}
	return &discoveryService{
		adapter:     adapter,
		api:         api,
		rulesetRepo: rulesetRepo,
		eventsRepo:  eventsRepo,
		tracker:     tracker,
		pool:        pool,
		sampleSize:  sampleSize,
		logger:      logger.Named("discovery"),
	}
}

var _ DiscoveryService = (*discoveryService)(nil)

func (s *discoveryService) StartDiscovery(ctx context.Context, tables []models.TableRef, sampleSize int) (string, error) {
	if len(tables) == 0 {
		return "", fmt.Errorf("no tables selected: %w", apperrors.ErrInvalidInput)
	}
	if sampleSize < 1 {
		sampleSize = s.sampleSize
	}

	executionID := models.NewExecutionID()
	startedAt := time.Now().UTC()

	runIDs := make([]string, len(tables))
	for i, table := range tables {
		runIDs[i] = models.NewRunID(table.Table, startedAt)
	}

	// Every run gets its WAITING row before any work starts, so the events
	// log shows the full execution from the first poll.
	for i, table := range tables {
		entry := &models.EventLogEntry{
			ExecutionID:    executionID,
			RunID:          runIDs[i],
			RunType:        models.RunTypeDiscovery,
			SourceDatabase: table.Database,
			SourceSchema:   table.Schema,
			SourceTable:    table.Table,
		}
		if err := s.eventsRepo.Create(ctx, entry); err != nil {
			s.abortPendingRuns(ctx, executionID, runIDs[:i])
			return "", apperrors.Persistence("registering run for %s: %v", table, err)
		}
		s.tracker.StartRun(executionID, runIDs[i], models.RunTypeDiscovery, table)
	}

	jobs := make([]TableJob, len(tables))
	for i, table := range tables {
		runID := runIDs[i]
		jobs[i] = TableJob{
			RunID: runID,
			Run: func(ctx context.Context) error {
				if err := s.discoverTable(ctx, executionID, runID, table, sampleSize); err != nil {
					s.failRun(ctx, executionID, runID, table, err)
					return err
				}
				return nil
			},
		}
	}

	// The caller's context ends with its HTTP request; the execution must
	// not.
	go s.runExecution(context.WithoutCancel(ctx), executionID, jobs)

	s.logger.Info("Discovery execution started",
		zap.String("execution_id", executionID),
		zap.Int("tables", len(tables)))

	return executionID, nil
}

func (s *discoveryService) runExecution(ctx context.Context, executionID string, jobs []TableJob) {
	results := s.pool.RunAll(ctx, jobs, func(done, total int) {
		s.logger.Debug("Discovery progress",
			zap.String("execution_id", executionID),
			zap.Int("done", done),
			zap.Int("total", total))
	})

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}

	if _, err := s.eventsRepo.FinalizeExecution(ctx, executionID); err != nil {
		s.logger.Error("Failed to finalize discovery execution",
			zap.String("execution_id", executionID),
			zap.Error(err))
	}

	s.logger.Info("Discovery execution finished",
		zap.String("execution_id", executionID),
		zap.Int("tables", len(jobs)),
		zap.Int("failed", failed))
}

// discoverTable runs one table end to end: refresh column metadata, sample,
// profile, record detections.
func (s *discoveryService) discoverTable(ctx context.Context, executionID, runID string, table models.TableRef, sampleSize int) error {
	if err := s.eventsRepo.Advance(ctx, executionID, runID, models.RunStatusInProgress, ""); err != nil {
		return apperrors.Persistence("starting run %s: %v", runID, err)
	}
	s.tracker.Update(executionID, runID, func(p *models.RunProgress) {
		p.Status = models.RunStatusInProgress
	})

	readStart := time.Now()
	columns, err := s.adapter.DescribeTable(ctx, table.Schema, table.Table)
	if err != nil {
		return apperrors.Access("describing %s: %v", table, err)
	}
	if len(columns) == 0 {
		return apperrors.Access("%s has no columns; table missing or not visible", table)
	}

	rowCount, err := s.adapter.CountRows(ctx, table.Schema, table.Table)
	if err != nil {
		return apperrors.Access("counting rows of %s: %v", table, err)
	}

	discovered := make([]models.DiscoveredColumn, len(columns))
	for i, col := range columns {
		discovered[i] = models.DiscoveredColumn{
			DatabaseName:    table.Database,
			SchemaName:      table.Schema,
			TableName:       table.Table,
			ColumnName:      col.Name,
			ColumnType:      col.DataType,
			MaxLength:       col.MaxLength,
			OrdinalPosition: col.OrdinalPosition,
			RowCount:        rowCount,
		}
	}
	merge, err := s.rulesetRepo.UpsertColumnMetadata(ctx, discovered)
	if err != nil {
		return apperrors.Persistence("merging metadata for %s: %v", table, err)
	}

	sample, err := s.adapter.SampleRows(ctx, table.Schema, table.Table, sampleSize)
	if err != nil {
		return apperrors.Access("sampling %s: %v", table, err)
	}
	s.tracker.Update(executionID, runID, func(p *models.RunProgress) {
		p.ReadDuration = time.Since(readStart)
	})

	if sample.NumRows() == 0 {
		if _, err := s.rulesetRepo.ApplyDiscovery(ctx, table, nil, 0); err != nil {
			return apperrors.Persistence("recording empty profile for %s: %v", table, err)
		}
		if err := s.eventsRepo.Advance(ctx, executionID, runID, models.RunStatusCompleted, ""); err != nil {
			return apperrors.Persistence("completing run %s: %v", runID, err)
		}
		s.tracker.Update(executionID, runID, func(p *models.RunProgress) {
			p.Status = models.RunStatusCompleted
			p.Message = "table is empty; nothing to profile"
		})
		s.logger.Info("Discovery run completed on empty table",
			zap.String("run_id", runID),
			zap.String("table", table.String()),
			zap.Int("columns", len(columns)))
		return nil
	}

	maskStart := time.Now()
	samples := make(map[string][]string, len(sample.Columns))
	for j, name := range sample.Columns {
		values := make([]string, sample.NumRows())
		for i, row := range sample.Rows {
			values[i] = warehouse.TextValue(row[j])
		}
		samples[name] = values
	}

	profile, err := s.api.ProfileByColumn(ctx, samples)
	if err != nil {
		return fmt.Errorf("profiling %s: %w", table, err)
	}
	s.tracker.Update(executionID, runID, func(p *models.RunProgress) {
		p.MaskDuration = time.Since(maskStart)
	})

	loadStart := time.Now()
	updated, err := s.rulesetRepo.ApplyDiscovery(ctx, table, profile.Detections, sample.NumRows())
	if err != nil {
		return apperrors.Persistence("recording profile for %s: %v", table, err)
	}
	if err := s.eventsRepo.Advance(ctx, executionID, runID, models.RunStatusCompleted, ""); err != nil {
		return apperrors.Persistence("completing run %s: %v", runID, err)
	}

	s.tracker.Update(executionID, runID, func(p *models.RunProgress) {
		p.Status = models.RunStatusCompleted
		p.LoadDuration = time.Since(loadStart)
		p.RowsProcessed = int64(sample.NumRows())
		p.Message = fmt.Sprintf("%d columns profiled, %d sensitive", len(columns), len(profile.Detections))
	})

	s.logger.Info("Discovery run completed",
		zap.String("run_id", runID),
		zap.String("table", table.String()),
		zap.Int("columns", len(columns)),
		zap.Int("sensitive", len(profile.Detections)),
		zap.Int("rows_profiled", sample.NumRows()),
		zap.Int("rules_updated", updated),
		zap.Int("metadata_inserted", merge.Inserted),
		zap.Int("metadata_updated", merge.Updated),
		zap.String("api_run_id", profile.APIRunID))

	return nil
}

// failRun records a terminal failure in both the events log and the tracker.
// The message is sanitized first; profiling failures wrap compliance errors
// that can carry auth material.
func (s *discoveryService) failRun(ctx context.Context, executionID, runID string, table models.TableRef, cause error) {
	message := logging.SanitizeError(cause)
	if err := s.eventsRepo.Advance(ctx, executionID, runID, models.RunStatusFailed, message); err != nil {
		s.logger.Error("Failed to record run failure",
			zap.String("run_id", runID),
			zap.Error(err))
	}
	s.tracker.Update(executionID, runID, func(p *models.RunProgress) {
		p.Status = models.RunStatusFailed
		p.Message = message
	})
	s.logger.Error("Discovery run failed",
		zap.String("run_id", runID),
		zap.String("table", table.String()),
		zap.String("error", message))
}

// abortPendingRuns fails runs that were registered before the execution
// itself failed to start.
func (s *discoveryService) abortPendingRuns(ctx context.Context, executionID string, runIDs []string) {
	for _, runID := range runIDs {
		if err := s.eventsRepo.Advance(ctx, executionID, runID, models.RunStatusFailed, "execution aborted before start"); err != nil {
			s.logger.Warn("Failed to abort pending run",
				zap.String("run_id", runID),
				zap.Error(err))
		}
		s.tracker.Update(executionID, runID, func(p *models.RunProgress) {
			p.Status = models.RunStatusFailed
			p.Message = "execution aborted before start"
		})
	}
}
