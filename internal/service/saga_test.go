package service

import "testing"

func TestSagaState_Transitions(t *testing.T) {
	tests := []struct {
		from, to SagaState
		want     bool
	}{
		{StateValidating, StateEmailChecking, true},
		{StateValidating, StateFailed, true},
		{StateValidating, StateTxCommitting, false},
		{StateEmailChecking, StateIdentityCreating, true},
		{StateIdentityCreating, StateTxCommitting, true},
		{StateIdentityCreating, StateCompensating, false},
		{StateTxCommitting, StateSucceeded, true},
		{StateTxCommitting, StateCompensating, true},
		{StateTxCommitting, StateFailed, false},
		{StateCompensating, StateFailed, true},
		{StateCompensating, StateSucceeded, false},
		{StateSucceeded, StateFailed, false},
		{StateFailed, StateValidating, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSaga_IllegalTransitionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	sg := newSaga()
	sg.mustTransition(StateSucceeded)
}

func TestSagaState_Terminal(t *testing.T) {
	if !StateSucceeded.Terminal() || !StateFailed.Terminal() {
		t.Error("succeeded and failed are terminal")
	}
	if StateCompensating.Terminal() {
		t.Error("compensating is not terminal")
	}
	if got := SagaState(42).String(); got != "SagaState(42)" {
		t.Errorf("got %q", got)
	}
}
