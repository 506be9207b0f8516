package steprun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// CommandSpec is one command invocation inside a job workspace. Env is the
// complete environment; nothing from the runner's own environment leaks in
// unless the spec carries it.
type CommandSpec struct {
	Argv []string
	Dir  string
	Env  []string
}

// Result is the observed outcome of a completed command.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Backend runs commands for the step runner. The production backend spawns
// real processes; tests substitute a scripted fake.
type Backend interface {
	Run(ctx context.Context, spec CommandSpec) (Result, error)
}

// ExecBackend runs commands as real subprocesses via os/exec.
type ExecBackend struct{}

// NewExecBackend returns the production process backend.
func NewExecBackend() *ExecBackend {
	return &ExecBackend{}
}

// Run spawns the command and waits for it. A non-zero exit is reported
// through Result.ExitCode with a nil error; the error return is reserved for
// failures to spawn at all (missing binary, bad workspace).
func (b *ExecBackend) Run(ctx context.Context, spec CommandSpec) (Result, error) {
	if len(spec.Argv) == 0 {
		return Result{}, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("starting %q: %w", spec.Argv[0], err)
	}
	return res, nil
}
