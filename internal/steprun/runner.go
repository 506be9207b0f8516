package steprun

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/verigrid/verigrid/internal/config"
	"github.com/verigrid/verigrid/internal/coverage"
	"github.com/verigrid/verigrid/internal/ctxlog"
	"github.com/verigrid/verigrid/internal/job"
	"github.com/verigrid/verigrid/internal/trigger"
	"github.com/verigrid/verigrid/internal/workspace"
)

// Step names, in the order every job instance executes them.
const (
	StepCheckout         = "checkout"
	StepSetup            = "setup"
	StepInstallPackaging = "install:packaging-tool"
	StepInstallManager   = "install:manager"
	StepInstallDeps      = "install:dependencies"
	StepTest             = "test"
	StepUpload           = "upload"
)

// Sequence is the fixed step order. Every job instance runs exactly this
// sequence; only the matrix combination underneath it varies.
var Sequence = []string{
	StepCheckout,
	StepSetup,
	StepInstallPackaging,
	StepInstallManager,
	StepInstallDeps,
	StepTest,
	StepUpload,
}

// Runner executes the full step sequence for individual job instances. A
// single Runner is shared by all workers; it holds no per-job state.
type Runner struct {
	pipeline *config.Pipeline
	backend  Backend
	uploader coverage.Uploader
	workRoot string
}

// NewRunner builds a step runner for one pipeline.
func NewRunner(p *config.Pipeline, backend Backend, uploader coverage.Uploader, workRoot string) *Runner {
	return &Runner{pipeline: p, backend: backend, uploader: uploader, workRoot: workRoot}
}

// RunJob drives one job instance from pending to its terminal state. All
// outcomes, including infrastructure failures, are recorded on the instance;
// nothing escapes to affect any other instance.
func (r *Runner) RunJob(ctx context.Context, ev trigger.Event, j *job.Instance) {
	logger := ctxlog.FromContext(ctx).With("job", j.Key)
	ctx = ctxlog.WithLogger(ctx, logger)

	if err := j.Start(); err != nil {
		logger.Error("Job instance could not start.", "error", err)
		return
	}
	logger.Info("▶️ Job instance started.", "os", j.Combo.OS, "interpreter", j.Combo.Interpreter)

	fatal := func(stage string, cause error) {
		logger.Error("Fatal step failure, aborting job.", "step", stage, "error", cause)
		r.skipAfter(j, stage)
		if err := j.Finish(false, cause); err != nil {
			logger.Error("Job instance could not finish.", "error", err)
		}
	}

	ws, err := workspace.New(r.workRoot, j.Key)
	if err != nil {
		r.recordFailure(j, StepCheckout, err)
		fatal(StepCheckout, err)
		return
	}
	defer func() {
		// Teardown is unconditional, success or failure.
		if err := ws.Remove(); err != nil {
			logger.Warn("Workspace teardown failed.", "error", err)
		}
	}()

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"matrix": j.Combo.Values()},
	}
	env := r.environment(ev, j)

	// 1. Acquire a clean copy of the source at the triggering revision.
	if err := r.checkout(ctx, ev, j, ws, env); err != nil {
		fatal(StepCheckout, err)
		return
	}

	// 2. Provision the declared interpreter for this combination.
	if err := r.setup(ctx, j, ws, env, evalCtx); err != nil {
		fatal(StepSetup, err)
		return
	}

	// 3. Packaging tool, dependency manager, project dependencies. Any
	// failure aborts the job; there is no partial-success state.
	installs := []struct {
		name string
		expr hcl.Expression
	}{
		{StepInstallPackaging, r.pipeline.Install.PackagingTool},
		{StepInstallManager, r.pipeline.Install.Manager},
		{StepInstallDeps, r.pipeline.Install.Dependencies},
	}
	for _, step := range installs {
		argv, err := config.Argv(step.expr, evalCtx)
		if err != nil {
			r.recordFailure(j, step.name, err)
			fatal(step.name, err)
			return
		}
		if _, err := r.runRecorded(ctx, j, step.name, CommandSpec{Argv: argv, Dir: ws.SourceDir(), Env: env}); err != nil {
			fatal(step.name, err)
			return
		}
	}

	// 4. Tests with coverage instrumentation. A failure marks the job failed
	// but never aborts it: whatever coverage was collected still moves on to
	// the upload step.
	testErr := r.test(ctx, j, ws, env, evalCtx)
	if testErr != nil {
		logger.Warn("Test step failed; coverage upload will still be attempted.", "error", testErr)
	}

	// 5. Upload. Its outcome lives on its own step record and never changes
	// the pass/fail decided by the test step.
	r.upload(ctx, ev, j, ws)

	if err := j.Finish(testErr == nil, testErr); err != nil {
		logger.Error("Job instance could not finish.", "error", err)
		return
	}
	logger.Info("🏁 Job instance finished.", "state", j.State().String())
}

// checkout places a clean copy of the source tree into the workspace. Local
// paths are copied; anything else is treated as a git remote and cloned at
// the triggering revision.
func (r *Runner) checkout(ctx context.Context, ev trigger.Event, j *job.Instance, ws *workspace.Workspace, env []string) error {
	started := time.Now().UTC()
	err := r.acquireSource(ctx, ev, ws, env)

	rec := job.StepRecord{Name: StepCheckout, StartedAt: started, CompletedAt: time.Now().UTC()}
	if err != nil {
		rec.Conclusion = job.ConclusionFailure
		rec.Detail = err.Error()
	} else {
		rec.Conclusion = job.ConclusionSuccess
	}
	j.Record(rec)
	return err
}

func (r *Runner) acquireSource(ctx context.Context, ev trigger.Event, ws *workspace.Workspace, env []string) error {
	src := r.pipeline.Source
	if info, err := os.Stat(src); err == nil && info.IsDir() {
		if err := os.MkdirAll(ws.SourceDir(), 0o755); err != nil {
			return fmt.Errorf("preparing source dir: %w", err)
		}
		if err := workspace.CopyTree(ws.SourceDir(), src); err != nil {
			return fmt.Errorf("copying source tree: %w", err)
		}
		return nil
	}

	cloneArgv := []string{"git", "clone"}
	if r.pipeline.Checkout.Depth > 0 {
		cloneArgv = append(cloneArgv, "--depth", strconv.Itoa(r.pipeline.Checkout.Depth))
	}
	cloneArgv = append(cloneArgv, src, ws.SourceDir())
	if err := r.bare(ctx, CommandSpec{Argv: cloneArgv, Dir: ws.Root, Env: env}); err != nil {
		return err
	}

	if ev.Revision != "" {
		argv := []string{"git", "-C", ws.SourceDir(), "checkout", "--detach", ev.Revision}
		if err := r.bare(ctx, CommandSpec{Argv: argv, Dir: ws.Root, Env: env}); err != nil {
			return err
		}
	}
	return nil
}

// setup resolves the interpreter command for this combination and verifies
// it is invocable.
func (r *Runner) setup(ctx context.Context, j *job.Instance, ws *workspace.Workspace, env []string, evalCtx *hcl.EvalContext) error {
	argv, err := config.Argv(r.pipeline.Setup.Command, evalCtx)
	if err != nil {
		r.recordFailure(j, StepSetup, err)
		return err
	}
	_, err = r.runRecorded(ctx, j, StepSetup, CommandSpec{
		Argv: append(argv, "--version"),
		Dir:  ws.SourceDir(),
		Env:  env,
	})
	return err
}

// test runs the test command with coverage instrumentation. The explicit
// coverage config-file path is appended at invocation time; the originating
// ecosystem's coverage tool does not reliably discover it on its own.
func (r *Runner) test(ctx context.Context, j *job.Instance, ws *workspace.Workspace, env []string, evalCtx *hcl.EvalContext) error {
	argv, err := config.Argv(r.pipeline.Test.Command, evalCtx)
	if err != nil {
		r.recordFailure(j, StepTest, err)
		return err
	}
	if cf := r.pipeline.Test.ConfigFile; cf != "" {
		flag := r.pipeline.Test.ConfigFlag
		if flag == "" {
			flag = config.DefaultConfigFlag
		}
		argv = append(argv, flag+"="+cf)
	}
	_, err = r.runRecorded(ctx, j, StepTest, CommandSpec{Argv: argv, Dir: ws.SourceDir(), Env: env})
	return err
}

// upload locates the report and transmits it, recording the outcome on the
// upload step only.
func (r *Runner) upload(ctx context.Context, ev trigger.Event, j *job.Instance, ws *workspace.Workspace) {
	logger := ctxlog.FromContext(ctx)
	started := time.Now().UTC()

	reportPath := r.pipeline.Test.ReportPath
	if reportPath == "" {
		reportPath = config.DefaultReportPath
	}
	tags := coverage.Tags{
		RunID:       ev.ID.String(),
		JobID:       j.ID.String(),
		OS:          j.Combo.OS,
		Interpreter: j.Combo.Interpreter,
		Revision:    ev.Revision,
		Event:       string(ev.Kind),
	}

	rep, err := coverage.Locate(ws.SourceDir(), reportPath, r.pipeline.Coverage.Format, tags)
	if err == nil {
		err = r.uploader.Upload(ctx, rep)
	}

	rec := job.StepRecord{Name: StepUpload, StartedAt: started, CompletedAt: time.Now().UTC()}
	if err != nil {
		rec.Conclusion = job.ConclusionFailure
		rec.Detail = err.Error()
		logger.Warn("Coverage upload failed; job status is unchanged.", "error", err)
	} else {
		rec.Conclusion = job.ConclusionSuccess
	}
	j.Record(rec)
}

// runRecorded executes one command and appends its step record. The returned
// error is non-nil for both spawn failures and non-zero exits.
func (r *Runner) runRecorded(ctx context.Context, j *job.Instance, name string, spec CommandSpec) (Result, error) {
	started := time.Now().UTC()
	res, err := r.backend.Run(ctx, spec)

	rec := job.StepRecord{
		Name:        name,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
		ExitCode:    res.ExitCode,
	}
	switch {
	case err != nil:
		rec.Conclusion = job.ConclusionFailure
		rec.Detail = err.Error()
	case res.ExitCode != 0:
		rec.Conclusion = job.ConclusionFailure
		rec.Detail = tail(res.Stderr)
		err = fmt.Errorf("%s: exit status %d", name, res.ExitCode)
	default:
		rec.Conclusion = job.ConclusionSuccess
	}
	j.Record(rec)
	return res, err
}

// bare runs a command without its own step record; used for the individual
// git invocations inside the single checkout step.
func (r *Runner) bare(ctx context.Context, spec CommandSpec) error {
	res, err := r.backend.Run(ctx, spec)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s: exit status %d: %s", strings.Join(spec.Argv, " "), res.ExitCode, tail(res.Stderr))
	}
	return nil
}

// recordFailure appends a failed record for a step that never got to run a
// command (evaluation or provisioning errors).
func (r *Runner) recordFailure(j *job.Instance, name string, err error) {
	now := time.Now().UTC()
	j.Record(job.StepRecord{
		Name:        name,
		Conclusion:  job.ConclusionFailure,
		StartedAt:   now,
		CompletedAt: now,
		Detail:      err.Error(),
	})
}

// skipAfter records skipped outcomes for every step past the one that failed
// fatally.
func (r *Runner) skipAfter(j *job.Instance, failed string) {
	now := time.Now().UTC()
	past := false
	for _, name := range Sequence {
		if name == failed {
			past = true
			continue
		}
		if past {
			j.Record(job.StepRecord{Name: name, Conclusion: job.ConclusionSkipped, StartedAt: now, CompletedAt: now})
		}
	}
}

// environment builds the restricted environment for every command of a job:
// a small host base, the declared pipeline env, and the job's own identity.
// Nothing else from the runner's environment is visible to steps.
func (r *Runner) environment(ev trigger.Event, j *job.Instance) []string {
	var env []string
	for _, k := range []string{"PATH", "HOME", "TMPDIR"} {
		if v := os.Getenv(k); v != "" {
			env = append(env, k+"="+v)
		}
	}

	keys := make([]string, 0, len(r.pipeline.Env))
	for k := range r.pipeline.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+r.pipeline.Env[k])
	}

	env = append(env,
		"VERIGRID_EVENT="+string(ev.Kind),
		"VERIGRID_RUN="+ev.ID.String(),
		"VERIGRID_JOB="+j.ID.String(),
		"VERIGRID_OS="+j.Combo.OS,
		"VERIGRID_INTERPRETER="+j.Combo.Interpreter,
	)
	if ev.Revision != "" {
		env = append(env, "VERIGRID_REVISION="+ev.Revision)
	}
	return env
}

// tail returns the last portion of command output for step records.
func tail(b []byte) string {
	const max = 512
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = "..." + s[len(s)-max:]
	}
	return s
}
