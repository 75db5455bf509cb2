package statemachine

import (
	"context"
	"fmt"
)

// Definition is an immutable transition table. It is built once and shared by
// any number of machines, so creating a machine per request or per record
// costs a single small allocation.
type Definition struct {
	initial     State
	transitions map[string]map[string][]Transition // [from][event]
	terminal    map[string]bool
}

// Option configures a Definition during construction.
type Option func(*Definition) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption func(*Transition)

// Define builds a Definition with the given initial state.
func Define(initial State, opts ...Option) (*Definition, error) {
	if initial == nil {
		return nil, fmt.Errorf("initial state cannot be nil")
	}

	d := &Definition{
		initial:     initial,
		transitions: make(map[string]map[string][]Transition),
		terminal:    make(map[string]bool),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// MustDefine is Define that panics on error. Meant for package-level tables.
func MustDefine(initial State, opts ...Option) *Definition {
	d, err := Define(initial, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to define state machine: %v", err))
	}
	return d
}

// WithTransition adds a transition. Several transitions may share the same
// from state and event; the first one whose guards pass wins.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(d *Definition) error {
		if from == nil || to == nil || event == nil {
			return ErrInvalidTransition
		}
		t := Transition{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		if d.transitions[from.Name()] == nil {
			d.transitions[from.Name()] = make(map[string][]Transition)
		}
		d.transitions[from.Name()][event.Name()] = append(d.transitions[from.Name()][event.Name()], t)
		return nil
	}
}

// WithTerminal marks states from which no further transitions are allowed,
// even if the table would otherwise contain one.
func WithTerminal(states ...State) Option {
	return func(d *Definition) error {
		for _, s := range states {
			if s == nil {
				return ErrInvalidTransition
			}
			d.terminal[s.Name()] = true
		}
		return nil
	}
}

// WithGuard adds a guard to a transition.
func WithGuard(guard Guard) TransitionOption {
	return func(t *Transition) {
		if guard != nil {
			t.Guards = append(t.Guards, guard)
		}
	}
}

// WithAction adds an action to a transition.
func WithAction(action Action) TransitionOption {
	return func(t *Transition) {
		if action != nil {
			t.Actions = append(t.Actions, action)
		}
	}
}

// Initial returns the state new machines start in.
func (d *Definition) Initial() State {
	return d.initial
}

// IsTerminal reports whether s was marked terminal.
func (d *Definition) IsTerminal(s State) bool {
	return s != nil && d.terminal[s.Name()]
}

// Target returns the destination of the first unguarded-or-passing
// transition for event from state from, without side effects.
func (d *Definition) Target(ctx context.Context, from State, event Event, data any) (State, error) {
	t, err := d.lookup(ctx, from, event, data)
	if err != nil {
		return nil, err
	}
	return t.To, nil
}

// Allows reports whether any transition leads from one state to the other,
// ignoring guards. Useful for validating persisted status changes.
func (d *Definition) Allows(from, to State) bool {
	if from == nil || to == nil || d.terminal[from.Name()] {
		return false
	}
	for _, ts := range d.transitions[from.Name()] {
		for _, t := range ts {
			if t.To.Name() == to.Name() {
				return true
			}
		}
	}
	return false
}

// New returns a machine positioned at the initial state.
func (d *Definition) New() *Machine {
	return &Machine{def: d, current: d.initial}
}

// NewAt returns a machine positioned at the given state, e.g. one loaded from storage.
func (d *Definition) NewAt(current State) *Machine {
	if current == nil {
		current = d.initial
	}
	return &Machine{def: d, current: current}
}

func (d *Definition) lookup(ctx context.Context, from State, event Event, data any) (*Transition, error) {
	if event == nil {
		return nil, ErrInvalidEvent
	}
	if from == nil {
		return nil, ErrInvalidTransition
	}
	if d.terminal[from.Name()] {
		return nil, NewErrNoTransitionAvailable(from.Name(), event.Name())
	}

	transitions := d.transitions[from.Name()][event.Name()]
	if len(transitions) == 0 {
		return nil, NewErrNoTransitionAvailable(from.Name(), event.Name())
	}

	// First transition with passing guards wins (enables priority ordering)
	for i := range transitions {
		if guardsPass(ctx, &transitions[i], from, event, data) {
			return &transitions[i], nil
		}
	}
	return nil, NewErrTransitionRejected(from.Name(), event.Name())
}

func guardsPass(ctx context.Context, t *Transition, from State, event Event, data any) bool {
	for _, guard := range t.Guards {
		if !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}
