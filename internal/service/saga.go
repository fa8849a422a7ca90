package service

import "fmt"

// SagaState is a step of one registration workflow.
type SagaState int

const (
	StateValidating SagaState = iota
	StateEmailChecking
	StateIdentityCreating
	StateTxCommitting
	StateSucceeded
	StateCompensating
	StateFailed
)

var stateNames = [...]string{
	StateValidating:       "validating",
	StateEmailChecking:    "email_checking",
	StateIdentityCreating: "identity_creating",
	StateTxCommitting:     "tx_committing",
	StateSucceeded:        "succeeded",
	StateCompensating:     "compensating",
	StateFailed:           "failed",
}

func (s SagaState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("SagaState(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s SagaState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// sagaTransitions lists the legal next states. Failures before the identity
// exists go straight to Failed; after it exists they pass through
// Compensating.
var sagaTransitions = map[SagaState][]SagaState{
	StateValidating:       {StateEmailChecking, StateFailed},
	StateEmailChecking:    {StateIdentityCreating, StateFailed},
	StateIdentityCreating: {StateTxCommitting, StateFailed},
	StateTxCommitting:     {StateSucceeded, StateCompensating},
	StateCompensating:     {StateFailed},
}

// CanTransition reports whether to is a legal successor of s.
func (s SagaState) CanTransition(to SagaState) bool {
	for _, next := range sagaTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// saga tracks one workflow's position. It is owned by a single request.
type saga struct {
	state SagaState
}

func newSaga() *saga {
	return &saga{state: StateValidating}
}

// mustTransition advances the saga. An illegal transition is a programming
// error.
func (s *saga) mustTransition(to SagaState) {
	if !s.state.CanTransition(to) {
		panic(fmt.Sprintf("illegal saga transition %s -> %s", s.state, to))
	}
	s.state = to
}
