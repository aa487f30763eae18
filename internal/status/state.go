package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/msgr/internal/bus"
)

// State is a step of the sign-in lifecycle.
type State string

const (
	SignedOut      State = "SIGNED_OUT"
	Connecting     State = "CONNECTING"
	Authenticating State = "AUTHENTICATING"
	Redirecting    State = "REDIRECTING"
	Priming        State = "PRIMING"
	Ready          State = "READY"
	Error          State = "ERROR"
)

// validTransitions defines allowed state transitions. Every in-flight state
// may fall back to SignedOut on cancellation or to Error on failure.
var validTransitions = map[State][]State{
	SignedOut:      {Connecting},
	Connecting:     {Authenticating, SignedOut, Error},
	Authenticating: {Redirecting, Priming, SignedOut, Error},
	Redirecting:    {Connecting, SignedOut, Error},
	Priming:        {Ready, SignedOut, Error},
	Ready:          {SignedOut, Error},
	Error:          {SignedOut, Connecting},
}

// Machine tracks and enforces sign-in state transitions. A nil *Machine
// accepts every transition and reports SignedOut.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     bus.Publisher
}

// NewMachine creates a new state machine starting in SignedOut.
func NewMachine(b bus.Publisher) *Machine {
	return &Machine{
		current: SignedOut,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	if m == nil {
		return SignedOut
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.SessionStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
