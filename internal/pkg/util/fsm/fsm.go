// Package fsm holds small helpers around looplab/fsm shared by the state
// machines in this module.
package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning handler to an fsm.Callback. A non-nil
// error is recorded on the event and returned from FSM.Event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// OnEnter is the callback key fired after entering state.
func OnEnter(state string) string {
	return "enter_" + state
}

// Settle drops the errors looplab/fsm returns for transitions that did not
// happen: a self transition and a canceled one.
func Settle(err error) error {
	if err == nil {
		return nil
	}

	var noTransition fsm.NoTransitionError
	var canceled fsm.CanceledError
	if errors.As(err, &noTransition) || errors.As(err, &canceled) {
		return nil
	}
	return err
}
