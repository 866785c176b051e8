package runner

import "fmt"

// State is the lifecycle state of a job inside a run.
type State string

// Job lifecycle. Succeeded and failed are terminal.
const (
	StatePending      State = "pending"
	StateProvisioning State = "provisioning"
	StateRunning      State = "running"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
)

// Terminal reports whether a job in this state is finished.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Transition validates a state change. Jobs move pending->provisioning when
// an environment is being acquired, provisioning->running once toolchain
// setup succeeds, and into a terminal state exactly once. Anything else is
// a programming error.
func Transition(from, to State) error {
	if allowedTransition(from, to) {
		return nil
	}

	return fmt.Errorf("invalid job transition %v -> %v", from, to)
}

func allowedTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateProvisioning
	case StateProvisioning:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to == StateSucceeded || to == StateFailed
	default:
		return false
	}
}
