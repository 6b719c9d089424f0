package workflows

import "fmt"

// State is a step of the certificate generation workflow
type State string

const (
	StateValidating State = "validating"
	StateIdentified State = "identified"
	StateRendering  State = "rendering"
	StateConverting State = "converting"
	StateNotifying  State = "notifying"
	StateLogged     State = "logged"
	StateDone       State = "done"
)

// StateMachine enforces certificate workflow transitions
type StateMachine struct {
	allowedTransitions map[State][]State
}

// NewStateMachine creates a new state machine with allowed transitions.
// Every state after validation may short-circuit to logging or to done so a
// failed request still terminates.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		allowedTransitions: map[State][]State{
			StateValidating: {StateIdentified, StateDone},
			StateIdentified: {StateRendering, StateLogged, StateDone},
			StateRendering:  {StateConverting, StateLogged, StateDone},
			StateConverting: {StateNotifying, StateLogged, StateDone},
			StateNotifying:  {StateLogged, StateDone},
			StateLogged:     {StateDone},
			StateDone:       {},
		},
	}
}

// CanTransition checks if a state transition is allowed
func (sm *StateMachine) CanTransition(from, to State) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next states for a given state
func (sm *StateMachine) GetAllowedTransitions(from State) []State {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []State{}
	}
	return allowed
}

// Tracker follows a single run through the state machine.
type Tracker struct {
	sm      *StateMachine
	current State
	history []State
}

// NewTracker starts a run in the validating state.
func (sm *StateMachine) NewTracker() *Tracker {
	return &Tracker{
		sm:      sm,
		current: StateValidating,
		history: []State{StateValidating},
	}
}

// Advance moves the run to the next state or reports an illegal transition.
func (t *Tracker) Advance(to State) error {
	if !t.sm.CanTransition(t.current, to) {
		return fmt.Errorf("illegal workflow transition %s -> %s", t.current, to)
	}
	t.current = to
	t.history = append(t.history, to)
	return nil
}

// Current returns the state the run is in.
func (t *Tracker) Current() State {
	return t.current
}

// History returns every state visited, in order.
func (t *Tracker) History() []State {
	out := make([]State, len(t.history))
	copy(out, t.history)
	return out
}
