package status

import (
	"testing"

	"github.com/matheus3301/msgr/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != SignedOut {
		t.Errorf("initial state = %s, want SIGNED_OUT", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{SignedOut, Connecting},
		{Connecting, Authenticating},
		{Connecting, SignedOut},
		{Authenticating, Redirecting},
		{Authenticating, Priming},
		{Redirecting, Connecting},
		{Priming, Ready},
		{Priming, Error},
		{Ready, SignedOut},
		{Error, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(SIGNED_OUT -> READY) should fail")
	}
	if m.Current() != SignedOut {
		t.Errorf("state = %s, want SIGNED_OUT (should not have changed)", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.SessionStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.SessionStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != SignedOut || change.To != Connecting {
		t.Errorf("change = %v -> %v, want SIGNED_OUT -> CONNECTING", change.From, change.To)
	}
}

// TestRedirectLifecycle walks the path a redirected sign-in takes:
// SIGNED_OUT → CONNECTING → AUTHENTICATING → REDIRECTING → CONNECTING →
// AUTHENTICATING → PRIMING → READY
func TestRedirectLifecycle(t *testing.T) {
	m := NewMachine(nil)

	steps := []State{Connecting, Authenticating, Redirecting, Connecting, Authenticating, Priming, Ready}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

// TestRedirectCannotSkipConnect verifies a redirect must reconnect before
// authenticating again.
func TestRedirectCannotSkipConnect(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Redirecting)

	if err := m.Transition(Authenticating); err == nil {
		t.Fatal("Transition(REDIRECTING -> AUTHENTICATING) should fail")
	}
}

func TestNilMachine(t *testing.T) {
	var m *Machine
	if err := m.Transition(Ready); err != nil {
		t.Errorf("nil machine Transition() error = %v", err)
	}
	if m.Current() != SignedOut {
		t.Errorf("nil machine state = %s, want SIGNED_OUT", m.Current())
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		SignedOut:      {},
		Connecting:     {Connecting},
		Authenticating: {Connecting, Authenticating},
		Redirecting:    {Connecting, Authenticating, Redirecting},
		Priming:        {Connecting, Authenticating, Priming},
		Ready:          {Connecting, Authenticating, Priming, Ready},
		Error:          {Connecting, Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
