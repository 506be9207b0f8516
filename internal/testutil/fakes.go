package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/verigrid/verigrid/internal/coverage"
	"github.com/verigrid/verigrid/internal/steprun"
)

// FailRule makes the fake backend fail commands matching both substrings.
// An empty substring matches anything.
type FailRule struct {
	ArgvContains string
	EnvContains  string
	ExitCode     int
}

func (r FailRule) matches(spec steprun.CommandSpec) bool {
	argv := strings.Join(spec.Argv, " ")
	env := strings.Join(spec.Env, " ")
	return strings.Contains(argv, r.ArgvContains) && strings.Contains(env, r.EnvContains)
}

// FakeBackend is a scripted stand-in for the process backend. Every call is
// recorded; commands succeed unless a rule says otherwise. When ReportOn is
// set, any command whose argv contains it drops a report file into its
// working directory the way a real coverage run would, even when the command
// then fails.
type FakeBackend struct {
	mu    sync.Mutex
	calls []steprun.CommandSpec

	FailRules []FailRule
	SpawnErrs []FailRule

	ReportOn   string
	ReportPath string
	ReportBody string
}

// Run implements steprun.Backend.
func (b *FakeBackend) Run(_ context.Context, spec steprun.CommandSpec) (steprun.Result, error) {
	b.mu.Lock()
	b.calls = append(b.calls, spec)
	b.mu.Unlock()

	for _, r := range b.SpawnErrs {
		if r.matches(spec) {
			return steprun.Result{}, errors.New("scripted spawn failure")
		}
	}

	if b.ReportOn != "" && strings.Contains(strings.Join(spec.Argv, " "), b.ReportOn) {
		body := b.ReportBody
		if body == "" {
			body = "<coverage/>"
		}
		path := b.ReportPath
		if path == "" {
			path = "coverage.xml"
		}
		if err := os.WriteFile(filepath.Join(spec.Dir, path), []byte(body), 0o644); err != nil {
			return steprun.Result{}, err
		}
	}

	for _, r := range b.FailRules {
		if r.matches(spec) {
			return steprun.Result{ExitCode: r.ExitCode, Stderr: []byte("scripted failure")}, nil
		}
	}
	return steprun.Result{}, nil
}

// Calls returns a snapshot of every command the backend received.
func (b *FakeBackend) Calls() []steprun.CommandSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]steprun.CommandSpec, len(b.calls))
	copy(out, b.calls)
	return out
}

// CallsMatching returns the recorded commands matching the rule's substrings.
func (b *FakeBackend) CallsMatching(r FailRule) []steprun.CommandSpec {
	var out []steprun.CommandSpec
	for _, c := range b.Calls() {
		if r.matches(c) {
			out = append(out, c)
		}
	}
	return out
}

// FakeUploader records coverage uploads and optionally fails them all.
type FakeUploader struct {
	mu      sync.Mutex
	reports []*coverage.Report

	Err error
}

// Upload implements coverage.Uploader.
func (u *FakeUploader) Upload(_ context.Context, rep *coverage.Report) error {
	u.mu.Lock()
	u.reports = append(u.reports, rep)
	u.mu.Unlock()
	return u.Err
}

// Reports returns a snapshot of every uploaded report.
func (u *FakeUploader) Reports() []*coverage.Report {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]*coverage.Report, len(u.reports))
	copy(out, u.reports)
	return out
}
