// Package executor runs the expanded job instances on a worker pool.
//
// Job instances are fully independent: there is no ordering among them, no
// shared state, and a failure in one neither cancels nor influences any
// other. The only aggregation is the final run result, which is failed if
// any instance failed.
package executor

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/verigrid/verigrid/internal/ctxlog"
	"github.com/verigrid/verigrid/internal/job"
	"github.com/verigrid/verigrid/internal/matrix"
	"github.com/verigrid/verigrid/internal/trigger"
)

// DefaultWorkerCount is used when the configured worker count is not positive.
const DefaultWorkerCount = 4

// JobRunner executes one job instance to completion, recording everything on
// the instance itself.
type JobRunner interface {
	RunJob(ctx context.Context, ev trigger.Event, j *job.Instance)
}

// Executor fans job instances out to a fixed pool of workers.
type Executor struct {
	runner     JobRunner
	numWorkers int
}

// New builds an executor.
func New(runner JobRunner, workers int) *Executor {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	return &Executor{runner: runner, numWorkers: workers}
}

// RunResult is the aggregate outcome of one pipeline run.
type RunResult struct {
	RunID uuid.UUID
	Jobs  []*job.Instance
}

// Failed reports whether any job instance failed. There is no configured
// exception: one failed instance fails the whole run.
func (r *RunResult) Failed() bool {
	for _, j := range r.Jobs {
		if j.State() != job.Succeeded {
			return true
		}
	}
	return false
}

// Counts returns the number of succeeded and failed instances.
func (r *RunResult) Counts() (succeeded, failed int) {
	for _, j := range r.Jobs {
		if j.State() == job.Succeeded {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Run expands nothing and retries nothing: it creates one instance per
// combination, executes all of them, and waits for the last one. A context
// cancellation (operator abort) stops instances that have not started yet;
// it never touches a running instance's independence from its peers.
func (e *Executor) Run(ctx context.Context, ev trigger.Event, combos []matrix.Combination) *RunResult {
	logger := ctxlog.FromContext(ctx)

	result := &RunResult{RunID: ev.ID}
	readyChan := make(chan *job.Instance, len(combos))
	for _, c := range combos {
		inst := job.NewInstance(c)
		result.Jobs = append(result.Jobs, inst)
		readyChan <- inst
	}
	close(readyChan)

	logger.Debug("Starting worker pool.", "workers", e.numWorkers, "jobs", len(result.Jobs))
	var wg sync.WaitGroup
	wg.Add(e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(ctx, readyChan, &wg, ev, i)
	}
	wg.Wait()
	logger.Debug("All job instances completed.")

	return result
}

// worker is the processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *job.Instance, wg *sync.WaitGroup, ev trigger.Event, workerID int) {
	defer wg.Done()
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for inst := range readyChan {
		if err := ctx.Err(); err != nil {
			logger.Warn("Run aborted, skipping job instance.", "job", inst.Key, "error", err)
			if serr := inst.Skip(err); serr != nil {
				logger.Error("Could not skip job instance.", "job", inst.Key, "error", serr)
			}
			continue
		}

		logger.Debug("Worker picked up job instance.", "workerID", workerID, "job", inst.Key)
		e.runner.RunJob(ctx, ev, inst)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}
