package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/repositories"
)

const (
	// DefaultRecentRuns is how many runs the monitoring page shows when the
	// caller does not ask for a specific window.
	DefaultRecentRuns = 50

	// maxRecentRuns caps the window so one request cannot drag the whole
	// events log into memory.
	maxRecentRuns = 500
)

// MonitoringSnapshot bundles everything the monitoring page renders in one
// round trip.
type MonitoringSnapshot struct {
	Statistics *models.RunStatistics     `json:"statistics"`
	Recent     []models.EventLogEntry    `json:"recent"`
	Live       *models.ExecutionProgress `json:"live,omitempty"`
}

// RunsService reads the events log and the live progress tracker for the
// monitoring surfaces. It owns no workflow; discovery and masking write the
// records this service reads.
type RunsService interface {
	// Statistics aggregates the whole events log.
	Statistics(ctx context.Context) (*models.RunStatistics, error)

	// Recent returns the latest runs, newest first. A non-positive limit
	// selects the default window.
	Recent(ctx context.Context, limit int) ([]models.EventLogEntry, error)

	// Execution returns every run of one execution, or ErrNotFound when the
	// execution never existed.
	Execution(ctx context.Context, executionID string) ([]models.EventLogEntry, error)

	// Monitoring gathers statistics, recent runs and live progress for the
	// monitoring page.
	Monitoring(ctx context.Context, limit int) (*MonitoringSnapshot, error)

	// LiveProgress returns the most recently started execution's in-memory
	// progress, when any execution has been tracked.
	LiveProgress() (models.ExecutionProgress, bool)

	// ExecutionProgress returns one execution's in-memory progress.
	ExecutionProgress(executionID string) (models.ExecutionProgress, bool)
}

type runsService struct {
	eventsRepo repositories.EventsRepository
	tracker    *ProgressTracker
	logger     *zap.Logger
}

// NewRunsService creates a new runs service.
func NewRunsService(
	eventsRepo repositories.EventsRepository,
	tracker *ProgressTracker,
	logger *zap.Logger,
) RunsService {
	return &runsService{
		eventsRepo: eventsRepo,
		tracker:    tracker,
		logger:     logger.Named("runs"),
	}
}

var _ RunsService = (*runsService)(nil)

func (s *runsService) Statistics(ctx context.Context) (*models.RunStatistics, error) {
	stats, err := s.eventsRepo.Statistics(ctx)
	if err != nil {
		return nil, apperrors.Persistence("aggregating run statistics: %v", err)
	}
	return stats, nil
}

func (s *runsService) Recent(ctx context.Context, limit int) ([]models.EventLogEntry, error) {
	if limit <= 0 {
		limit = DefaultRecentRuns
	}
	if limit > maxRecentRuns {
		limit = maxRecentRuns
	}

	entries, err := s.eventsRepo.Recent(ctx, limit)
	if err != nil {
		return nil, apperrors.Persistence("listing recent runs: %v", err)
	}
	return entries, nil
}

func (s *runsService) Execution(ctx context.Context, executionID string) ([]models.EventLogEntry, error) {
	if executionID == "" {
		return nil, fmt.Errorf("execution id is required: %w", apperrors.ErrInvalidInput)
	}

	entries, err := s.eventsRepo.GetByExecution(ctx, executionID)
	if err != nil {
		return nil, apperrors.Persistence("loading execution %s: %v", executionID, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("execution %s: %w", executionID, apperrors.ErrNotFound)
	}
	return entries, nil
}

// Monitoring fans the two events-log reads out in parallel; the tracker read
// is in-memory and stays on the calling goroutine.
func (s *runsService) Monitoring(ctx context.Context, limit int) (*MonitoringSnapshot, error) {
	snapshot := &MonitoringSnapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := s.Statistics(gctx)
		if err != nil {
			return err
		}
		snapshot.Statistics = stats
		return nil
	})
	g.Go(func() error {
		recent, err := s.Recent(gctx, limit)
		if err != nil {
			return err
		}
		snapshot.Recent = recent
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if live, ok := s.tracker.Latest(); ok {
		snapshot.Live = &live
	}
	return snapshot, nil
}

func (s *runsService) LiveProgress() (models.ExecutionProgress, bool) {
	return s.tracker.Latest()
}

func (s *runsService) ExecutionProgress(executionID string) (models.ExecutionProgress, bool) {
	return s.tracker.Execution(executionID)
}
