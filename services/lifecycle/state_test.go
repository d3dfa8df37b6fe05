package lifecycle

import "testing"

func TestIsValidTransition(t *testing.T) {
	allowed := map[RunState][]RunState{
		StateCreated:  {StateQueued},
		StateQueued:   {StateStarting, StateFailed},
		StateStarting: {StateSyncing, StateStopping, StateFailed, StateTimedOut},
		StateSyncing:  {StateRunning, StateStopping, StateFailed, StateTimedOut},
		StateRunning:  {StateStopping, StateFailed, StateTimedOut},
		StateStopping: {StateStopped, StateFailed},
		StateStopped:  nil,
		StateFailed:   nil,
		StateTimedOut: nil,
	}

	all := []RunState{
		StateCreated, StateQueued, StateStarting, StateSyncing,
		StateRunning, StateStopping, StateStopped, StateFailed, StateTimedOut,
	}

	for from, targets := range allowed {
		want := make(map[RunState]bool, len(targets))
		for _, to := range targets {
			want[to] = true
		}
		for _, to := range all {
			if got := IsValidTransition(from, to); got != want[to] {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", from, to, got, want[to])
			}
		}
	}
}

func TestIsValidTransitionUnknownState(t *testing.T) {
	if IsValidTransition(RunState("BOGUS"), StateQueued) {
		t.Fatal("IsValidTransition accepted an unknown source state")
	}
	if IsValidTransition(StateCreated, RunState("BOGUS")) {
		t.Fatal("IsValidTransition accepted an unknown target state")
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		state RunState
		want  bool
	}{
		{StateCreated, false},
		{StateQueued, false},
		{StateStarting, false},
		{StateSyncing, false},
		{StateRunning, false},
		{StateStopping, false},
		{StateStopped, true},
		{StateFailed, true},
		{StateTimedOut, true},
	}

	for _, tt := range tests {
		if got := IsTerminal(tt.state); got != tt.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestTerminalStatesHaveNoEdges(t *testing.T) {
	for state, targets := range transitions {
		if IsTerminal(state) && len(targets) != 0 {
			t.Errorf("terminal state %s has outgoing edges %v", state, targets)
		}
		if !IsTerminal(state) && len(targets) == 0 {
			t.Errorf("non-terminal state %s has no outgoing edges", state)
		}
	}
}

func TestParseRunState(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RunState
		wantErr bool
	}{
		{name: "running", input: "RUNNING", want: StateRunning},
		{name: "timed out", input: "TIMED_OUT", want: StateTimedOut},
		{name: "lowercase rejected", input: "running", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "unknown", input: "PAUSED", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRunState(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRunState() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got != tt.want {
				t.Fatalf("ParseRunState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventTypeFor(t *testing.T) {
	tests := []struct {
		state RunState
		want  string
	}{
		{StateQueued, "RUN_QUEUED"},
		{StateRunning, "RUN_RUNNING"},
		{StateTimedOut, "RUN_TIMED_OUT"},
	}

	for _, tt := range tests {
		if got := EventTypeFor(tt.state); got != tt.want {
			t.Errorf("EventTypeFor(%s) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestLeasableStatesExcludeQueue(t *testing.T) {
	for _, state := range LeasableStates() {
		if state == StateCreated || state == StateQueued {
			t.Errorf("LeasableStates includes %s, which never holds a lease", state)
		}
		if IsTerminal(state) {
			t.Errorf("LeasableStates includes terminal state %s", state)
		}
	}
}

func TestActiveStatesAreNonTerminal(t *testing.T) {
	active := ActiveStates()
	if len(active)+3 != len(transitions) {
		t.Fatalf("ActiveStates returned %d states, want %d", len(active), len(transitions)-3)
	}
	for _, state := range active {
		if IsTerminal(state) {
			t.Errorf("ActiveStates includes terminal state %s", state)
		}
	}
}

func TestParseIntentState(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    IntentState
		wantErr bool
	}{
		{name: "pending", input: "PENDING", want: IntentPending},
		{name: "filled", input: "FILLED", want: IntentFilled},
		{name: "lowercase rejected", input: "filled", wantErr: true},
		{name: "unknown", input: "REJECTED", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIntentState(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIntentState() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got != tt.want {
				t.Fatalf("ParseIntentState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTerminalIntent(t *testing.T) {
	tests := []struct {
		state IntentState
		want  bool
	}{
		{IntentPending, false},
		{IntentSubmitted, false},
		{IntentFilled, true},
		{IntentCancelled, true},
		{IntentFailed, true},
	}

	for _, tt := range tests {
		if got := IsTerminalIntent(tt.state); got != tt.want {
			t.Errorf("IsTerminalIntent(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}
