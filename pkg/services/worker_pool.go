package services

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DefaultWorkerCount is the pool ceiling used when configuration does not
// say otherwise. Sized for host memory, not CPU: each worker holds one
// table's chunk in flight.
const DefaultWorkerCount = 4

// WorkerPool runs independent per-table jobs with bounded parallelism.
// Discovery and masking share the same shape: tables are independent units,
// a failed table never blocks or cancels its siblings.
type WorkerPool struct {
	maxConcurrent int
	logger        *zap.Logger
}

// NewWorkerPool creates a pool with the given concurrency ceiling.
func NewWorkerPool(maxConcurrent int, logger *zap.Logger) *WorkerPool {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultWorkerCount
	}
	return &WorkerPool{
		maxConcurrent: maxConcurrent,
		logger:        logger.Named("worker-pool"),
	}
}

// TableJob is one unit of work: a single table's run.
type TableJob struct {
	RunID string
	Run   func(ctx context.Context) error
}

// JobResult is the outcome of one job.
type JobResult struct {
	RunID string
	Err   error
}

// RunAll executes every job, at most maxConcurrent at a time, and returns
// results in completion order. All jobs run to their own outcome; one job's
// error does not stop the others. onDone, if set, is called after each job
// finishes with the running completion count.
func (p *WorkerPool) RunAll(ctx context.Context, jobs []TableJob, onDone func(done, total int)) []JobResult {
	if len(jobs) == 0 {
		return nil
	}

	resultsChan := make(chan JobResult, len(jobs))
	sem := make(chan struct{}, p.maxConcurrent)

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job TableJob) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultsChan <- JobResult{RunID: job.RunID, Err: ctx.Err()}
				return
			}

			resultsChan <- JobResult{RunID: job.RunID, Err: job.Run(ctx)}
		}(job)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]JobResult, 0, len(jobs))
	for result := range resultsChan {
		results = append(results, result)
		if result.Err != nil {
			p.logger.Warn("Job finished with error",
				zap.String("run_id", result.RunID),
				zap.Error(result.Err))
		}
		if onDone != nil {
			onDone(len(results), len(jobs))
		}
	}

	return results
}
