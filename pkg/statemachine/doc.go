// Package statemachine provides a small finite-state-machine toolkit.
//
// A Definition is an immutable transition table built with functional
// options. Machines created from it only hold their current state, which makes
// them cheap enough to create per HTTP request or per loaded record.
//
//	var lifecycle = statemachine.MustDefine(pending,
//		statemachine.WithTransition(pending, active, activate),
//		statemachine.WithTransition(active, suspended, suspend),
//		statemachine.WithTerminal(deleted),
//	)
//
//	m := lifecycle.NewAt(current)
//	if err := m.Fire(ctx, activate, nil); err != nil {
//		// statemachine.IsNoTransitionAvailableError(err)
//	}
//
// Guards decide between several transitions sharing a from state and event;
// the first transition whose guards all pass is taken. Actions run before the
// state changes and abort the transition on error.
//
// Definition.Allows answers "may a record move from A to B" without a machine,
// which is what storage layers usually need.
package statemachine
