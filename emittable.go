package emitter

import (
	"context"
	"fmt"
	"strings"
)

// binding is the resolved dispatch target of an emittable.
type binding struct {
	actionType        string
	action            ActionClass
	payload           any
	hasPayload        bool
	cancelUncompleted bool
}

func bindingFor(meta HandlerMetadata, cfg Config) binding {
	b := binding{
		actionType:        meta.Type,
		action:            meta.Action,
		payload:           meta.Payload,
		hasPayload:        meta.HasPayload,
		cancelUncompleted: meta.CancelUncompleted,
	}
	if o, ok := cfg.override(meta.Type); ok {
		if o.CancelUncompleted != nil {
			b.cancelUncompleted = *o.CancelUncompleted
		}
		if o.Payload != nil {
			b.payload = o.Payload
			b.hasPayload = true
		}
	}
	return b
}

// newAction builds a fresh action. A nil payload is replaced by the default
// payload when one is set.
func (b binding) newAction(payload any) (Action, error) {
	if payload == nil && b.hasPayload {
		payload = b.payload
	}
	return b.construct(payload)
}

func (b binding) construct(payload any) (Action, error) {
	if b.action == nil {
		return NewEmitterAction(b.actionType, payload), nil
	}
	action, err := b.action.New(payload)
	if err != nil {
		return nil, err
	}
	if action == nil {
		return nil, fmt.Errorf("action class %s returned a nil action", b.action.Name())
	}
	return action, nil
}

// Emittable dispatches actions for a single handler.
type Emittable struct {
	engine  *Engine
	binding binding
}

// Type returns the action type the emittable dispatches.
func (e *Emittable) Type() string { return e.binding.actionType }

// Emit dispatches one action. A nil payload means no payload; the handler's
// default payload is used instead when one is registered.
func (e *Emittable) Emit(ctx context.Context, payload any) *Completion {
	return e.engine.emit(ctx, e.binding, payload)
}

// EmitMany emits once per payload, in order, without waiting between emits.
// The returned completion resolves when every emit has resolved.
func (e *Emittable) EmitMany(ctx context.Context, payloads ...any) *Completion {
	children := make([]*Completion, 0, len(payloads))
	for _, payload := range payloads {
		children = append(children, e.Emit(ctx, payload))
	}
	return e.engine.aggregate(e.binding.actionType, children)
}

// TransactionEmittable dispatches one action per handler in a single Store
// call.
type TransactionEmittable struct {
	engine   *Engine
	bindings []binding
}

// Types returns the action types in handler order.
func (t *TransactionEmittable) Types() []string {
	out := make([]string, 0, len(t.bindings))
	for _, b := range t.bindings {
		out = append(out, b.actionType)
	}
	return out
}

// Emit pairs payload i with handler i. Missing payloads are nil and default
// payloads are not applied.
func (t *TransactionEmittable) Emit(ctx context.Context, payloads ...any) *Completion {
	label := strings.Join(t.Types(), ",")

	actions := make([]Action, 0, len(t.bindings))
	for i, b := range t.bindings {
		var payload any
		if i < len(payloads) {
			payload = payloads[i]
		}
		action, err := b.construct(payload)
		if err != nil {
			id := t.engine.newID()
			err = newError(ErrDispatchFailed,
				fmt.Sprintf("failed to construct action for `%s`: %v", b.actionType, err),
				err,
				map[string]any{"type": b.actionType, "dispatch_id": id, "index": i})
			t.engine.metrics.RecordOutcome(label, StatusFailed, 0)
			return failedCompletion(id, label, err)
		}
		actions = append(actions, action)
	}

	return t.engine.emitBatch(ctx, label, actions)
}
