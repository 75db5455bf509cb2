package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid transition: from, to, or event cannot be nil")
	ErrInvalidEvent      = errors.New("invalid event: event cannot be nil")

	// ErrNoTransition and ErrRejected are matched by TransitionError via errors.Is.
	ErrNoTransition = errors.New("no transition available")
	ErrRejected     = errors.New("transition rejected by guards")
)

// TransitionError describes a Fire call that could not move the machine.
type TransitionError struct {
	State  string
	Event  string
	Reason error // ErrNoTransition or ErrRejected
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s from state '%s' for event '%s'", e.Reason, e.State, e.Event)
}

func (e *TransitionError) Unwrap() error {
	return e.Reason
}

func NewErrNoTransitionAvailable(stateName, eventName string) *TransitionError {
	return &TransitionError{State: stateName, Event: eventName, Reason: ErrNoTransition}
}

func NewErrTransitionRejected(stateName, eventName string) *TransitionError {
	return &TransitionError{State: stateName, Event: eventName, Reason: ErrRejected}
}

func IsNoTransitionAvailableError(err error) bool {
	return errors.Is(err, ErrNoTransition)
}

func IsTransitionRejectedError(err error) bool {
	return errors.Is(err, ErrRejected)
}
