package emitter

import "context"

// Store is the state container actions are dispatched to. Dispatch blocks
// until every handler for the given actions has finished, and must return
// promptly once ctx is canceled. A list of actions is applied as one unit.
type Store interface {
	Dispatch(ctx context.Context, actions ...Action) error
	Snapshot() map[string]any
}

// StateContext is handed to handlers to read and replace the state slice
// they own. SetState fails once the dispatch context has been canceled.
type StateContext interface {
	GetState() any
	SetState(state any) error
	Dispatch(ctx context.Context, actions ...Action) error
}

// StateOf returns the handler's current state as S, or the zero value when
// the state is unset or of another type.
func StateOf[S any](sc StateContext) S {
	var zero S
	if sc == nil {
		return zero
	}
	if v, ok := sc.GetState().(S); ok {
		return v
	}
	return zero
}
