package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/logging"
	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/repositories"
)

// DefaultChunkRows bounds how many rows one warehouse read holds in memory
// when configuration does not say otherwise.
const DefaultChunkRows = 10000

// stageSuffix names the staging table an in-place run writes masked rows to
// before swapping them back into the source.
const stageSuffix = "_masking_stage"

// MaskingTablePair maps one source table to its masked destination. Equal
// source and destination means the table is masked in place.
type MaskingTablePair struct {
	Source models.TableRef `json:"source"`
	Dest   models.TableRef `json:"dest"`
}

// InPlace reports whether the pair masks the source table itself.
func (p MaskingTablePair) InPlace() bool {
	return p.Source == p.Dest
}

func (p MaskingTablePair) runType() models.RunType {
	if p.InPlace() {
		return models.RunTypeInPlaceMask
	}
	return models.RunTypeMaskDeliver
}

// MaskingRequest describes one masking execution.
type MaskingRequest struct {
	Tables []MaskingTablePair `json:"tables"`
	// Overwrite empties an existing destination before masked rows are
	// written; otherwise masked rows append. Ignored for in-place runs,
	// which always replace the source rows.
	Overwrite bool `json:"overwrite"`
}

// MaskingService runs masking executions over warehouse tables, using the
// algorithm assignments recorded by discovery.
type MaskingService interface {
	// StartMasking begins one masking execution and returns its execution
	// ID. The work continues in the background after return; callers follow
	// it through the progress tracker and the events log.
	StartMasking(ctx context.Context, req MaskingRequest) (string, error)
}

type maskingService struct {
	adapter        warehouse.Adapter
	api            ComplianceAPI
	rulesetRepo    repositories.RulesetRepository
	eventsRepo     repositories.EventsRepository
	tracker        *ProgressTracker
	pool           *WorkerPool
	chunkRows      int
	payloadCeiling int
	logger         *zap.Logger
}

// NewMaskingService creates a new masking service. chunkRows bounds one
// warehouse read; payloadCeilingBytes caps one masking request.
func NewMaskingService(
	adapter warehouse.Adapter,
	api ComplianceAPI,
	rulesetRepo repositories.RulesetRepository,
	eventsRepo repositories.EventsRepository,
	tracker *ProgressTracker,
	pool *WorkerPool,
	chunkRows int,
	payloadCeilingBytes int,
	logger *zap.Logger,
) MaskingService {
	if chunkRows < 1 {
		chunkRows = DefaultChunkRows
	}
	return &maskingService{
		adapter:        adapter,
		api:            api,
		rulesetRepo:    rulesetRepo,
		eventsRepo:     eventsRepo,
		tracker:        tracker,
		pool:           pool,
		chunkRows:      chunkRows,
		payloadCeiling: payloadCeilingBytes,
		logger:         logger.Named("masking"),
	}
}

var _ MaskingService = (*maskingService)(nil)

func (s *maskingService) StartMasking(ctx context.Context, req MaskingRequest) (string, error) {
	if len(req.Tables) == 0 {
		return "", fmt.Errorf("no tables selected: %w", apperrors.ErrInvalidInput)
	}
	for _, pair := range req.Tables {
		if pair.Source.Schema == "" || pair.Source.Table == "" ||
			pair.Dest.Schema == "" || pair.Dest.Table == "" {
			return "", fmt.Errorf("source and destination must be fully specified: %w", apperrors.ErrInvalidInput)
		}
		if pair.Source.Database != pair.Dest.Database {
			return "", fmt.Errorf("cross-database masking: %w", apperrors.ErrUnsupported)
		}
	}

	executionID := models.NewExecutionID()
	startedAt := time.Now().UTC()

	runIDs := make([]string, len(req.Tables))
	for i, pair := range req.Tables {
		runIDs[i] = models.NewRunID(pair.Source.Table, startedAt)
	}

	for i, pair := range req.Tables {
		entry := &models.EventLogEntry{
			ExecutionID:    executionID,
			RunID:          runIDs[i],
			RunType:        pair.runType(),
			SourceDatabase: pair.Source.Database,
			SourceSchema:   pair.Source.Schema,
			SourceTable:    pair.Source.Table,
			DestDatabase:   pair.Dest.Database,
			DestSchema:     pair.Dest.Schema,
			DestTable:      pair.Dest.Table,
		}
		if err := s.eventsRepo.Create(ctx, entry); err != nil {
			s.abortPendingRuns(ctx, executionID, runIDs[:i])
			return "", apperrors.Persistence("registering run for %s: %v", pair.Source, err)
		}
		s.tracker.StartRun(executionID, runIDs[i], pair.runType(), pair.Source)
	}

	jobs := make([]TableJob, len(req.Tables))
	for i, pair := range req.Tables {
		runID := runIDs[i]
		jobs[i] = TableJob{
			RunID: runID,
			Run: func(ctx context.Context) error {
				if err := s.maskTable(ctx, executionID, runID, pair, req.Overwrite); err != nil {
					s.failRun(ctx, executionID, runID, pair, err)
					return err
				}
				return nil
			},
		}
	}

	go s.runExecution(context.WithoutCancel(ctx), executionID, jobs)

	s.logger.Info("Masking execution started",
		zap.String("execution_id", executionID),
		zap.Int("tables", len(req.Tables)),
		zap.Bool("overwrite", req.Overwrite))

	return executionID, nil
}

func (s *maskingService) runExecution(ctx context.Context, executionID string, jobs []TableJob) {
	results := s.pool.RunAll(ctx, jobs, func(done, total int) {
		s.logger.Debug("Masking progress",
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
		s.logger.Error("Failed to finalize masking execution",
			zap.String("execution_id", executionID),
			zap.Error(err))
	}

	s.logger.Info("Masking execution finished",
		zap.String("execution_id", executionID),
		zap.Int("tables", len(jobs)),
		zap.Int("failed", failed))
}

// maskTable runs one table end to end. Tables without assigned rules are
// copied (or left alone in place); tables with rules go through the batch
// pipeline.
func (s *maskingService) maskTable(ctx context.Context, executionID, runID string, pair MaskingTablePair, overwrite bool) error {
	if err := s.eventsRepo.Advance(ctx, executionID, runID, models.RunStatusInProgress, ""); err != nil {
		return apperrors.Persistence("starting run %s: %v", runID, err)
	}
	s.tracker.Update(executionID, runID, func(p *models.RunProgress) {
		p.Status = models.RunStatusInProgress
	})

	src := pair.Source
	ruleset, err := s.rulesetRepo.GetTableRuleset(ctx, src.Database, src.Schema, src.Table)
	if err != nil {
		return apperrors.Persistence("loading ruleset for %s: %v", src, err)
	}
	if len(ruleset) == 0 {
		return fmt.Errorf("no discovery metadata for %s; run discovery first: %w", src, apperrors.ErrNotFound)
	}

	assignments := make(map[string]string)
	for _, col := range ruleset {
		if algorithm := col.EffectiveAlgorithm(); algorithm != "" {
			assignments[col.ColumnName] = algorithm
		}
	}

	rowCount, err := s.adapter.CountRows(ctx, src.Schema, src.Table)
	if err != nil {
		return apperrors.Access("counting rows of %s: %v", src, err)
	}

	if len(assignments) == 0 {
		return s.copyWithoutRules(ctx, executionID, runID, pair, overwrite, rowCount)
	}

	columns, err := s.adapter.DescribeTable(ctx, src.Schema, src.Table)
	if err != nil {
		return apperrors.Access("describing %s: %v", src, err)
	}

	if rowCount == 0 {
		if !pair.InPlace() {
			if err := s.adapter.CreateTableLike(ctx, pair.Dest.Schema, pair.Dest.Table, src.Schema, src.Table); err != nil {
				return apperrors.Persistence("creating %s: %v", pair.Dest, err)
			}
		}
		return s.completeRun(ctx, executionID, runID, 0, 0, "source table is empty")
	}

	plan := PlanBatches(rowCount, columns, assignments, s.payloadCeiling)

	// Batches never span chunks: clamp the batch to the chunk bound, then
	// shrink the chunk to a whole number of batches so progress counts are
	// exact.
	batchRows := plan.BatchSize
	if batchRows > s.chunkRows {
		batchRows = s.chunkRows
	}
	chunkRows := (s.chunkRows / batchRows) * batchRows
	batchesTotal := int((rowCount + int64(batchRows) - 1) / int64(batchRows))

	s.tracker.Update(executionID, runID, func(p *models.RunProgress) {
		p.BatchesTotal = batchesTotal
	})
	s.logger.Info("Masking run planned",
		zap.String("run_id", runID),
		zap.String("table", src.String()),
		zap.Int64("rows", rowCount),
		zap.Int("sensitive_columns", len(assignments)),
		zap.Int("batch_rows", batchRows),
		zap.Int("batches", batchesTotal),
		zap.String("reasoning", plan.Reasoning))

	write := pair.Dest
	if pair.InPlace() {
		write = src
		write.Table = src.Table + stageSuffix
		// a stage left behind by an earlier crashed run is stale
		if err := s.adapter.DropTable(ctx, write.Schema, write.Table); err != nil {
			return apperrors.Persistence("clearing stale stage %s: %v", write, err)
		}
		if err := s.adapter.CreateTableLike(ctx, write.Schema, write.Table, src.Schema, src.Table); err != nil {
			return apperrors.Persistence("creating stage %s: %v", write, err)
		}
	} else {
		if err := s.adapter.CreateTableLike(ctx, write.Schema, write.Table, src.Schema, src.Table); err != nil {
			return apperrors.Persistence("creating %s: %v", write, err)
		}
		if overwrite {
			deleted, err := s.adapter.DeleteAllRows(ctx, write.Schema, write.Table)
			if err != nil {
				return apperrors.Persistence("emptying %s: %v", write, err)
			}
			if deleted > 0 {
				s.logger.Info("Destination emptied before masking",
					zap.String("run_id", runID),
					zap.String("table", write.String()),
					zap.Int64("rows_deleted", deleted))
			}
		}
	}

	rowsWritten, err := s.runPipeline(ctx, executionID, runID, src, write, assignments, rowCount, chunkRows, batchRows)
	if err != nil {
		if pair.InPlace() {
			s.dropStage(ctx, runID, write)
		}
		return err
	}

	if pair.InPlace() {
		if err := s.writeBack(ctx, runID, src, write); err != nil {
			return err
		}
	}

	message := fmt.Sprintf("%d rows masked in %d batches", rowsWritten, batchesTotal)
	if err := s.completeRun(ctx, executionID, runID, rowsWritten, batchesTotal, message); err != nil {
		return err
	}

	s.logger.Info("Masking run completed",
		zap.String("run_id", runID),
		zap.String("table", src.String()),
		zap.String("dest", pair.Dest.String()),
		zap.Int64("rows", rowsWritten),
		zap.Int("batches", batchesTotal))
	return nil
}

// runPipeline reads the source in ordered chunks, masks batch by batch, and
// appends masked rows to the write target in read order. The first failed
// batch aborts the run; a partially filled destination is never reported as
// masked.
func (s *maskingService) runPipeline(
	ctx context.Context,
	executionID, runID string,
	src, write models.TableRef,
	assignments map[string]string,
	rowCount int64,
	chunkRows, batchRows int,
) (int64, error) {
	var rowsWritten int64
	var readTotal, maskTotal, loadTotal time.Duration
	batchesDone := 0

	for offset := int64(0); offset < rowCount; {
		readStart := time.Now()
		chunk, err := s.adapter.ReadChunk(ctx, src.Schema, src.Table, chunkRows, int(offset))
		if err != nil {
			return rowsWritten, apperrors.Access("reading %s at offset %d: %v", src, offset, err)
		}
		readTotal += time.Since(readStart)

		if chunk.NumRows() == 0 {
			// the table shrank under us; stop at what we could read
			break
		}

		for start := 0; start < chunk.NumRows(); start += batchRows {
			end := min(start+batchRows, chunk.NumRows())
			batch := &warehouse.RowSet{Columns: chunk.Columns, Rows: chunk.Rows[start:end]}

			maskStart := time.Now()
			result, err := s.api.MaskBatch(ctx, batch, assignments)
			if err != nil {
				return rowsWritten, fmt.Errorf("masking batch %d of %s: %w", batchesDone+1, src, err)
			}
			maskTotal += time.Since(maskStart)

			loadStart := time.Now()
			warehouse.CoerceMerged(result.Rows, batch, assignments)
			written, err := s.adapter.AppendRows(ctx, write.Schema, write.Table, result.Rows)
			if err != nil {
				return rowsWritten, apperrors.Persistence("writing batch %d to %s: %v", batchesDone+1, write, err)
			}
			loadTotal += time.Since(loadStart)

			rowsWritten += written
			batchesDone++
			s.tracker.Update(executionID, runID, func(p *models.RunProgress) {
				p.BatchesDone = batchesDone
				p.RowsProcessed = rowsWritten
				p.ReadDuration = readTotal
				p.MaskDuration = maskTotal
				p.LoadDuration = loadTotal
			})
		}

		offset += int64(chunk.NumRows())
	}

	return rowsWritten, nil
}

// copyWithoutRules handles tables whose ruleset assigns no algorithms. Rows
// move inside the warehouse without touching the API. In place there is
// nothing to do at all.
func (s *maskingService) copyWithoutRules(ctx context.Context, executionID, runID string, pair MaskingTablePair, overwrite bool, rowCount int64) error {
	if pair.InPlace() {
		return s.completeRun(ctx, executionID, runID, 0, 0, "no masking rules assigned; table left unchanged")
	}

	src, dest := pair.Source, pair.Dest
	exists, err := s.adapter.TableExists(ctx, dest.Schema, dest.Table)
	if err != nil {
		return apperrors.Access("checking %s: %v", dest, err)
	}

	var copied int64
	switch {
	case !exists:
		if err := s.adapter.CreateTableAsSelect(ctx, dest.Schema, dest.Table, src.Schema, src.Table); err != nil {
			return apperrors.Persistence("copying %s to %s: %v", src, dest, err)
		}
		copied = rowCount
	case overwrite:
		if _, err := s.adapter.DeleteAllRows(ctx, dest.Schema, dest.Table); err != nil {
			return apperrors.Persistence("emptying %s: %v", dest, err)
		}
		copied, err = s.adapter.InsertFromTable(ctx, dest.Schema, dest.Table, src.Schema, src.Table)
		if err != nil {
			return apperrors.Persistence("copying %s to %s: %v", src, dest, err)
		}
	default:
		copied, err = s.adapter.InsertFromTable(ctx, dest.Schema, dest.Table, src.Schema, src.Table)
		if err != nil {
			return apperrors.Persistence("copying %s to %s: %v", src, dest, err)
		}
	}

	if err := s.completeRun(ctx, executionID, runID, copied, 0, "no masking rules assigned; rows copied unmasked"); err != nil {
		return err
	}
	s.logger.Info("Masking run copied table without rules",
		zap.String("run_id", runID),
		zap.String("table", src.String()),
		zap.String("dest", dest.String()),
		zap.Int64("rows", copied))
	return nil
}

// writeBack swaps the staged masked rows into the source table. Once the
// source is emptied, a failure keeps the stage so the masked rows are not
// lost.
func (s *maskingService) writeBack(ctx context.Context, runID string, src, stage models.TableRef) error {
	if _, err := s.adapter.DeleteAllRows(ctx, src.Schema, src.Table); err != nil {
		s.dropStage(ctx, runID, stage)
		return apperrors.Persistence("emptying %s for write-back: %v", src, err)
	}
	if _, err := s.adapter.InsertFromTable(ctx, src.Schema, src.Table, stage.Schema, stage.Table); err != nil {
		return apperrors.Persistence("writing masked rows back to %s; masked copy kept in %s: %v", src, stage, err)
	}
	s.dropStage(ctx, runID, stage)
	return nil
}

func (s *maskingService) dropStage(ctx context.Context, runID string, stage models.TableRef) {
	if err := s.adapter.DropTable(ctx, stage.Schema, stage.Table); err != nil {
		s.logger.Warn("Failed to drop stage table",
			zap.String("run_id", runID),
			zap.String("table", stage.String()),
			zap.Error(err))
	}
}

func (s *maskingService) completeRun(ctx context.Context, executionID, runID string, rows int64, batches int, message string) error {
	if err := s.eventsRepo.Advance(ctx, executionID, runID, models.RunStatusCompleted, ""); err != nil {
		return apperrors.Persistence("completing run %s: %v", runID, err)
	}
	s.tracker.Update(executionID, runID, func(p *models.RunProgress) {
		p.Status = models.RunStatusCompleted
		p.RowsProcessed = rows
		p.BatchesDone = batches
		p.Message = message
	})
	return nil
}

func (s *maskingService) failRun(ctx context.Context, executionID, runID string, pair MaskingTablePair, cause error) {
	// Compliance errors can echo credentials; strip them before the message
	// reaches the events log or the progress feed.
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
	s.logger.Error("Masking run failed",
		zap.String("run_id", runID),
		zap.String("table", pair.Source.String()),
		zap.String("dest", pair.Dest.String()),
		zap.String("error", message))
}

func (s *maskingService) abortPendingRuns(ctx context.Context, executionID string, runIDs []string) {
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
