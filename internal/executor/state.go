package executor

import (
	"fmt"
	"time"
)

// State of a job execution. The happy path goes through all states in the
// declared order, every execution ends in StateCleanedUp.
type State int

const (
	StateQueued State = iota
	StateAdmitted
	StateWorkspaceReady
	StateAuthenticated
	StateImagePulled
	StateOSProbed
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
	StateCleanedUp
)

var stateNames = [...]string{
	StateQueued:         "queued",
	StateAdmitted:       "admitted",
	StateWorkspaceReady: "workspace_ready",
	StateAuthenticated:  "authenticated",
	StateImagePulled:    "image_pulled",
	StateOSProbed:       "os_probed",
	StateRunning:        "running",
	StateCompleted:      "completed",
	StateFailed:         "failed",
	StateCancelled:      "cancelled",
	StateCleanedUp:      "cleaned_up",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether s is one of the outcomes.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Execution is a single run of a job request. It is owned by the executor
// until Execute returns.
type Execution struct {
	ID        string // job instance id, used as container name
	Image     string // resolved image reference
	OS        string // image OS as reported by docker inspect
	Workspace string // host path, removed on cleanup
	State     State
	Outcome   State // StateCompleted, StateFailed or StateCancelled
	ExitCode  int
	Err       error
	Started   time.Time
	Stopped   time.Time

	history []State
}

// History returns all states the execution went through.
func (x *Execution) History() []State {
	return append([]State(nil), x.history...)
}
