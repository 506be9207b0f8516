package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/verigrid/verigrid/internal/coverage"
	"github.com/verigrid/verigrid/internal/ctxlog"
	"github.com/verigrid/verigrid/internal/executor"
	"github.com/verigrid/verigrid/internal/matrix"
	"github.com/verigrid/verigrid/internal/steprun"
	"github.com/verigrid/verigrid/internal/trigger"
)

// Run executes the main application logic: decide whether the event fires
// the pipeline, expand the matrix, execute every job instance, and report.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.config.HealthcheckPort)
	}

	kind, err := trigger.ParseKind(a.config.Event)
	if err != nil {
		return err
	}

	if !a.triggers.Fires(kind) {
		a.logger.Info("Event is not in the pipeline's trigger set; nothing to do.",
			"event", string(kind), "pipeline", a.pipeline.Name)
		return nil
	}

	ev := trigger.NewEvent(kind, a.config.Revision)
	if kind == trigger.KindSchedule {
		if a.config.Wait {
			next, _ := a.triggers.Next(time.Now().UTC())
			if err := a.waitForTick(ctx, next); err != nil {
				return err
			}
			ev.ScheduledAt = next
			ev.FiredAt = time.Now().UTC()
		} else {
			// Fired by an external scheduler at the intended time.
			ev.ScheduledAt = ev.FiredAt
		}
	}

	combos := matrix.Expand(a.pipeline.Matrix)
	a.logger.Info("🚀 Matrix expanded, starting run.",
		"pipeline", a.pipeline.Name,
		"event", string(ev.Kind),
		"run", ev.ID.String(),
		"os_values", len(a.pipeline.Matrix.OS),
		"interpreter_values", len(a.pipeline.Matrix.Interpreters),
		"jobs", len(combos),
	)

	runner, cleanup, err := a.buildRunner(ev)
	if err != nil {
		return err
	}
	defer cleanup()

	exec := executor.New(runner, a.config.WorkerCount)
	a.result = exec.Run(ctx, ev, combos)

	for _, j := range a.result.Jobs {
		a.logger.Info("Job instance result.", "job", j.Key, "state", j.State().String())
	}
	succeeded, failed := a.result.Counts()
	if a.result.Failed() {
		a.logger.Error("🏁 Run failed.", "succeeded", succeeded, "failed", failed)
		return fmt.Errorf("run failed: %d of %d job instances failed", failed, succeeded+failed)
	}

	a.logger.Info("🏁 Run succeeded.", "jobs", succeeded)
	return nil
}

// buildRunner assembles the per-job step runner, substituting any test
// doubles installed via options. The cleanup closes the production uploader
// and removes the run-scoped workspace root.
func (a *App) buildRunner(ev trigger.Event) (*steprun.Runner, func(), error) {
	workRoot := a.config.WorkDir
	ownsWorkRoot := false
	if workRoot == "" {
		dir, err := os.MkdirTemp("", "verigrid-run-*")
		if err != nil {
			return nil, nil, fmt.Errorf("creating run workspace root: %w", err)
		}
		workRoot = dir
		ownsWorkRoot = true
	}

	uploader := a.uploader
	var closeUploader func()
	if uploader == nil {
		ep, err := coverage.ResolveEndpoint(a.pipeline.Coverage.UploadURL)
		if err != nil {
			if ownsWorkRoot {
				os.RemoveAll(workRoot)
			}
			return nil, nil, err
		}
		httpUploader := coverage.NewHTTPUploader(ep)
		uploader = httpUploader
		closeUploader = func() {
			if err := httpUploader.Close(); err != nil {
				a.logger.Warn("Closing upload client failed.", "error", err)
			}
		}
	}

	backend := a.backend
	if backend == nil {
		backend = steprun.NewExecBackend()
	}

	cleanup := func() {
		if closeUploader != nil {
			closeUploader()
		}
		if ownsWorkRoot {
			if err := os.RemoveAll(workRoot); err != nil {
				a.logger.Warn("Removing run workspace root failed.", "error", err)
			}
		}
	}
	return steprun.NewRunner(a.pipeline, backend, uploader, workRoot), cleanup, nil
}

// waitForTick blocks until the scheduled fire time or context cancellation.
func (a *App) waitForTick(ctx context.Context, at time.Time) error {
	d := time.Until(at)
	if d <= 0 {
		return nil
	}
	a.logger.Info("⏳ Waiting for the next scheduled tick.", "at", at.Format(time.RFC3339), "in", d.String())
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
