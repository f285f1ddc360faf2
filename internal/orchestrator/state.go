package orchestrator

import (
	"context"
	"fmt"

	"calibrator/internal/release"
)

// State is a step of the update flow.
type State int

const (
	Idle State = iota
	Checking
	NoUpdate
	UpdateFound
	Declined
	BackingUp
	Downloading
	Applying
	Scheduled
	Failed
)

var stateNames = [...]string{
	Idle:        "idle",
	Checking:    "checking",
	NoUpdate:    "no_update",
	UpdateFound: "update_found",
	Declined:    "declined",
	BackingUp:   "backing_up",
	Downloading: "downloading",
	Applying:    "applying",
	Scheduled:   "scheduled",
	Failed:      "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether the flow stops in s.
func (s State) Terminal() bool {
	switch s {
	case NoUpdate, Declined, Scheduled, Failed:
		return true
	}
	return false
}

// Choice is the user's answer to an update offer.
type Choice int

const (
	Reject Choice = iota
	Accept
)

func (c Choice) String() string {
	if c == Accept {
		return "accept"
	}
	return "reject"
}

// Decision is returned by a Decider.
type Decision struct {
	Choice        Choice
	BackupConfigs bool
}

// Decider presents an available update and blocks until the user answers.
// An error means the question could not be asked and counts as Reject.
type Decider interface {
	Decide(ctx context.Context, info release.ReleaseInfo) (Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, info release.ReleaseInfo) (Decision, error)

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, info release.ReleaseInfo) (Decision, error) {
	return f(ctx, info)
}
