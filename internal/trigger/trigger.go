// Package trigger implements the pipeline trigger surface: which event kinds
// initiate a run, and when the cron schedule next fires.
package trigger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/verigrid/verigrid/internal/config"
)

// Kind identifies the external event that initiates a pipeline run.
type Kind string

const (
	KindPush        Kind = "push"
	KindPullRequest Kind = "pull_request"
	KindSchedule    Kind = "schedule"
)

// ParseKind validates an event kind supplied on the command line.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPush, KindPullRequest, KindSchedule:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown event kind %q: must be 'push', 'pull_request' or 'schedule'", s)
}

// Event is a single firing of a trigger. Each event carries its own identity
// so every artifact produced downstream can be tagged back to it.
type Event struct {
	ID       uuid.UUID
	Kind     Kind
	Revision string

	// ScheduledAt is the intended fire time (UTC). Zero for push and
	// pull_request events.
	ScheduledAt time.Time
	// FiredAt is the actual emission time.
	FiredAt time.Time
}

// NewEvent constructs an event fired now.
func NewEvent(kind Kind, revision string) Event {
	return Event{
		ID:       uuid.New(),
		Kind:     kind,
		Revision: revision,
		FiredAt:  time.Now().UTC(),
	}
}

// Set is the immutable trigger set declared by a pipeline.
type Set struct {
	push        bool
	pullRequest bool
	schedule    cron.Schedule
	spec        string
}

// NewSet builds the trigger set from the declared configuration, parsing the
// cron expression if one is present.
func NewSet(t config.Triggers) (*Set, error) {
	s := &Set{push: t.Push, pullRequest: t.PullRequest, spec: t.Schedule}
	if t.Schedule != "" {
		sched, err := cron.ParseStandard(t.Schedule)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule expression %q: %w", t.Schedule, err)
		}
		s.schedule = sched
	}
	return s, nil
}

// Fires reports whether an event of the given kind initiates a run for this
// trigger set. An undeclared kind is a no-op, not an error.
func (s *Set) Fires(k Kind) bool {
	switch k {
	case KindPush:
		return s.push
	case KindPullRequest:
		return s.pullRequest
	case KindSchedule:
		return s.schedule != nil
	}
	return false
}

// Next returns the next scheduled fire time strictly after the given time.
// ok is false when the set has no schedule.
func (s *Set) Next(after time.Time) (next time.Time, ok bool) {
	if s.schedule == nil {
		return time.Time{}, false
	}
	return s.schedule.Next(after), true
}

// Spec returns the raw cron expression, for logging.
func (s *Set) Spec() string {
	return s.spec
}
