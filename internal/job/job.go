// Package job defines the job instance model: one execution of the full step
// sequence for one point in the environment matrix.
package job

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/verigrid/verigrid/internal/matrix"
)

// State is the lifecycle of a job instance. Transitions only move forward:
// pending -> running -> {succeeded, failed}. A pending instance may also be
// skipped straight to failed when the run is aborted before it starts.
type State int32

const (
	Pending State = iota
	Running
	Succeeded
	Failed
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int32(s))
}

// Conclusion is the recorded outcome of a single step within a job.
type Conclusion string

const (
	ConclusionSuccess Conclusion = "success"
	ConclusionFailure Conclusion = "failure"
	ConclusionSkipped Conclusion = "skipped"
)

// StepRecord captures the outcome of one step of the fixed sequence.
type StepRecord struct {
	Name        string
	Conclusion  Conclusion
	StartedAt   time.Time
	CompletedAt time.Time
	ExitCode    int
	Detail      string
}

// Instance is a single job: one matrix combination executing the full step
// sequence in its own isolated environment. Instances never share state with
// each other.
type Instance struct {
	ID    uuid.UUID
	Key   string
	Combo matrix.Combination

	state atomic.Int32
	steps []StepRecord
	err   error
}

// NewInstance creates a pending instance for one matrix combination.
func NewInstance(c matrix.Combination) *Instance {
	return &Instance{
		ID:    uuid.New(),
		Key:   c.Key(),
		Combo: c,
	}
}

// State returns the current lifecycle state.
func (j *Instance) State() State {
	return State(j.state.Load())
}

// Start transitions pending -> running.
func (j *Instance) Start() error {
	if !j.state.CompareAndSwap(int32(Pending), int32(Running)) {
		return fmt.Errorf("job %s: cannot start from state %s", j.Key, j.State())
	}
	return nil
}

// Finish transitions running -> succeeded or failed. The cause, if any, is
// retained for the run summary.
func (j *Instance) Finish(ok bool, cause error) error {
	target := Succeeded
	if !ok {
		target = Failed
	}
	if !j.state.CompareAndSwap(int32(Running), int32(target)) {
		return fmt.Errorf("job %s: cannot finish from state %s", j.Key, j.State())
	}
	j.err = cause
	return nil
}

// Skip transitions pending -> failed without running. Used when the run is
// aborted before the instance was picked up.
func (j *Instance) Skip(cause error) error {
	if !j.state.CompareAndSwap(int32(Pending), int32(Failed)) {
		return fmt.Errorf("job %s: cannot skip from state %s", j.Key, j.State())
	}
	j.err = cause
	return nil
}

// Record appends a step outcome to the instance's step log.
func (j *Instance) Record(rec StepRecord) {
	j.steps = append(j.steps, rec)
}

// Steps returns the recorded step outcomes, in execution order.
func (j *Instance) Steps() []StepRecord {
	return j.steps
}

// Err returns the failure cause, if the instance failed.
func (j *Instance) Err() error {
	return j.err
}
