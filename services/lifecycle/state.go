package lifecycle

import "fmt"

// RunState is the lifecycle state of a bot run. All mutations of a run's
// state go through Engine.Transition, which enforces the graph below.
type RunState string

const (
	StateCreated  RunState = "CREATED"
	StateQueued   RunState = "QUEUED"
	StateStarting RunState = "STARTING"
	StateSyncing  RunState = "SYNCING"
	StateRunning  RunState = "RUNNING"
	StateStopping RunState = "STOPPING"
	StateStopped  RunState = "STOPPED"
	StateFailed   RunState = "FAILED"
	StateTimedOut RunState = "TIMED_OUT"
)

// transitions is the full allowed-edge set. Terminal states have an empty
// entry, so every transition out of them is rejected.
var transitions = map[RunState][]RunState{
	StateCreated:  {StateQueued},
	StateQueued:   {StateStarting, StateFailed},
	StateStarting: {StateSyncing, StateStopping, StateFailed, StateTimedOut},
	StateSyncing:  {StateRunning, StateStopping, StateFailed, StateTimedOut},
	StateRunning:  {StateStopping, StateFailed, StateTimedOut},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {},
	StateFailed:   {},
	StateTimedOut: {},
}

// ParseRunState validates a caller-supplied state string.
func ParseRunState(s string) (RunState, error) {
	state := RunState(s)
	if _, ok := transitions[state]; !ok {
		return "", fmt.Errorf("unknown run state %q", s)
	}
	return state, nil
}

// IsTerminal reports whether state has no outgoing edges.
func IsTerminal(state RunState) bool {
	switch state {
	case StateStopped, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}

// IsValidTransition reports whether the edge from -> to is allowed.
func IsValidTransition(from, to RunState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ActiveStates are the non-terminal run states. At most one run per bot may
// be in any of these at a time, enforced at creation.
func ActiveStates() []RunState {
	return []RunState{StateCreated, StateQueued, StateStarting, StateSyncing, StateRunning, StateStopping}
}

// LeasableStates are the states in which a run is expected to hold a worker
// lease. CREATED and QUEUED runs have not been picked up yet and are
// excluded from reconciliation.
func LeasableStates() []RunState {
	return []RunState{StateStarting, StateSyncing, StateRunning, StateStopping}
}

// EventTypeFor returns the audit event type recorded for a transition into
// the given state, e.g. RUN_RUNNING.
func EventTypeFor(to RunState) string {
	return "RUN_" + string(to)
}

// IntentState tracks an intent from creation to its exchange outcome.
type IntentState string

const (
	IntentPending   IntentState = "PENDING"
	IntentSubmitted IntentState = "SUBMITTED"
	IntentFilled    IntentState = "FILLED"
	IntentCancelled IntentState = "CANCELLED"
	IntentFailed    IntentState = "FAILED"
)

// ParseIntentState validates a caller-supplied intent state string.
func ParseIntentState(s string) (IntentState, error) {
	switch state := IntentState(s); state {
	case IntentPending, IntentSubmitted, IntentFilled, IntentCancelled, IntentFailed:
		return state, nil
	default:
		return "", fmt.Errorf("unknown intent state %q", s)
	}
}

// IsTerminalIntent reports whether an intent state is immutable. Terminal
// intents record a fact about what happened at the exchange.
func IsTerminalIntent(state IntentState) bool {
	switch state {
	case IntentFilled, IntentCancelled, IntentFailed:
		return true
	default:
		return false
	}
}

// Error codes recorded on failure-class terminal transitions.
const (
	ErrCodeStaleLease          = "STALE_LEASE"
	ErrCodeMaxDurationExceeded = "MAX_DURATION_EXCEEDED"
)
