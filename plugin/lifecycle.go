package plugin

import (
	"sync"

	"github.com/opnet-chain/opnetd/errors"
)

// State is one node in the plugin lifecycle DAG, per spec.md §4.8:
// DISCOVERED -> VALIDATED -> LOADING -> LOADED -> (ENABLED <-> DISABLED)
// -> UNLOADING -> (removed), with ERROR/CRASHED as absorbing-with-
// recovery terminals reachable from most states.
//
// This uses a plain enum and transition table rather than looplab/fsm
// (already used, with an unverified API, in ibd/orchestrator.go) to
// avoid stacking a second unverified third-party state-machine API onto
// this runtime; p2p/peersession.go made the same call for its own
// connection lifecycle.
type State int

const (
	StateDiscovered State = iota
	StateValidated
	StateLoading
	StateLoaded
	StateEnabled
	StateDisabled
	StateUnloading
	StateError
	StateCrashed
	stateRemoved
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "DISCOVERED"
	case StateValidated:
		return "VALIDATED"
	case StateLoading:
		return "LOADING"
	case StateLoaded:
		return "LOADED"
	case StateEnabled:
		return "ENABLED"
	case StateDisabled:
		return "DISABLED"
	case StateUnloading:
		return "UNLOADING"
	case StateError:
		return "ERROR"
	case StateCrashed:
		return "CRASHED"
	case stateRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// allowedTransitions enumerates every valid edge of the lifecycle DAG.
var allowedTransitions = map[State]map[State]bool{
	StateDiscovered: {StateValidated: true, StateError: true},
	StateValidated:  {StateLoading: true, StateError: true},
	StateLoading:    {StateLoaded: true, StateError: true},
	StateLoaded:     {StateEnabled: true, StateUnloading: true, StateError: true},
	StateEnabled:    {StateDisabled: true, StateUnloading: true, StateCrashed: true, StateError: true},
	StateDisabled:   {StateEnabled: true, StateUnloading: true, StateError: true},
	StateUnloading:  {stateRemoved: true, StateError: true},
	StateCrashed:    {StateEnabled: true, StateUnloading: true},
	StateError:      {StateUnloading: true},
}

// Lifecycle tracks one plugin instance's state under a mutex; every
// transition is validated against allowedTransitions.
type Lifecycle struct {
	mu    sync.Mutex
	id    string
	state State
}

// NewLifecycle starts a plugin at DISCOVERED.
func NewLifecycle(id string) *Lifecycle {
	return &Lifecycle{id: id, state: StateDiscovered}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Transition moves the plugin to next, rejecting any edge not present
// in allowedTransitions.
func (l *Lifecycle) Transition(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !allowedTransitions[l.state][next] {
		return errors.NewInvalidTransitionError("plugin %s: invalid transition %s -> %s", l.id, l.state, next)
	}
	l.state = next
	return nil
}

// IsEnabled reports whether the plugin is currently ENABLED, the only
// state in which hook dispatch and plugin API calls are permitted.
func (l *Lifecycle) IsEnabled() bool {
	return l.State() == StateEnabled
}
