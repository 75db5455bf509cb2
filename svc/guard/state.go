package guard

import "github.com/dmitrymomot/crmkit/pkg/statemachine"

// State is the phase of one request in the guard.
type State = statemachine.StringState

const (
	StateUnresolved State = "unresolved"
	StateResolving  State = "resolving"
	StateActive     State = "active"
	StateFailed     State = "failed"
	StateTornDown   State = "torn_down"
)

const (
	eventResolve  = statemachine.StringEvent("resolve")
	eventBind     = statemachine.StringEvent("bind")
	eventFail     = statemachine.StringEvent("fail")
	eventBypass   = statemachine.StringEvent("bypass")
	eventTeardown = statemachine.StringEvent("teardown")
)

// Pipeline is the per-request state table. Landlord requests bypass from
// Resolving straight to TornDown since nothing was bound.
var Pipeline = statemachine.MustDefine(StateUnresolved,
	statemachine.WithTransition(StateUnresolved, StateResolving, eventResolve),
	statemachine.WithTransition(StateResolving, StateActive, eventBind),
	statemachine.WithTransition(StateResolving, StateFailed, eventFail),
	statemachine.WithTransition(StateResolving, StateTornDown, eventBypass),
	statemachine.WithTransition(StateActive, StateTornDown, eventTeardown),
	statemachine.WithTransition(StateFailed, StateTornDown, eventTeardown),
	statemachine.WithTerminal(StateTornDown),
)
