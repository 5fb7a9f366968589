package sync

import "testing"

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInitializing, "INITIALIZING"},
		{StatePushActive, "PUSH_ACTIVE"},
		{StatePollActive, "POLL_ACTIVE"},
		{StateStopped, "STOPPED"},
		{State(42), "UNKNOWN(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestStateIsTerminal(t *testing.T) {
	for _, s := range []State{StateInitializing, StatePushActive, StatePollActive} {
		if s.IsTerminal() {
			t.Errorf("state %s should not be terminal", s)
		}
	}
	if !StateStopped.IsTerminal() {
		t.Error("STOPPED should be terminal")
	}
}
