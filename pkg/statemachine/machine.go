package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Machine tracks the current state against a shared Definition.
// It is safe for concurrent use.
type Machine struct {
	def     *Definition
	current State
	mu      sync.RWMutex
}

var _ StateMachine = (*Machine)(nil)

func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Is reports whether the machine is currently in state s.
func (m *Machine) Is(s State) bool {
	cur := m.Current()
	return s != nil && cur.Name() == s.Name()
}

// Fire applies event to the current state. Actions run before the state
// changes; any action error aborts the transition.
func (m *Machine) Fire(ctx context.Context, event Event, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.def.lookup(ctx, m.current, event, data)
	if err != nil {
		return err
	}

	for _, action := range t.Actions {
		if err := action(ctx, m.current, t.To, event, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}

	m.current = t.To
	return nil
}

func (m *Machine) CanFire(ctx context.Context, event Event, data any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.def.lookup(ctx, m.current, event, data)
	return err == nil
}

// Reset moves the machine back to the initial state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.def.initial
}
