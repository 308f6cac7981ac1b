package emitter

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// HandlerFunc mutates the owning state in response to an action.
type HandlerFunc func(ctx context.Context, sc StateContext, action Action) error

// Handler is a reference to a handler function declared on an owning state.
// It carries no metadata until it is registered with a Registry.
type Handler struct {
	owner *State
	key   any
	raw   any
	fn    HandlerFunc
}

// NewHandler creates an unregistered handler reference.
func NewHandler(owner *State, key any, fn any) *Handler {
	return &Handler{owner: owner, key: key, raw: fn}
}

func (h *Handler) Owner() *State { return h.owner }
func (h *Handler) Key() any      { return h.key }

// Name renders the handler key.
func (h *Handler) Name() string {
	if h == nil {
		return ""
	}
	return KeyString(h.key)
}

func (h *Handler) String() string {
	if h == nil || h.owner == nil {
		return "<handler " + h.Name() + ">"
	}
	return h.owner.Entity() + "." + h.Name()
}

// Call invokes the handler. Panics are converted to HANDLER_PANIC errors.
func (h *Handler) Call(ctx context.Context, sc StateContext, action Action) (err error) {
	if h == nil || h.fn == nil {
		return newError(ErrUnregisteredHandler, "handler has not been registered", nil, nil)
	}
	defer recoverHandlerPanic(h.String(), action, &err)
	return h.fn(ctx, sc, action)
}

// ReceiverOptions holds registration options for a handler.
type ReceiverOptions struct {
	Type              string
	Action            ActionClass
	Actions           []ActionClass
	Payload           any
	HasPayload        bool
	CancelUncompleted bool
}

// ReceiverOption configures a handler registration.
type ReceiverOption func(*ReceiverOptions)

// WithType sets an explicit type instead of the generated one.
func WithType(actionType string) ReceiverOption {
	return func(o *ReceiverOptions) {
		o.Type = actionType
	}
}

// WithAction makes emits instantiate class instead of the generic action.
func WithAction(class ActionClass) ReceiverOption {
	return func(o *ReceiverOptions) {
		o.Action = class
	}
}

// WithActions registers every class type as an alias of the handler.
func WithActions(classes ...ActionClass) ReceiverOption {
	return func(o *ReceiverOptions) {
		o.Actions = append(o.Actions, classes...)
	}
}

// WithPayload sets the payload used when Emit is called without one.
func WithPayload(payload any) ReceiverOption {
	return func(o *ReceiverOptions) {
		o.Payload = payload
		o.HasPayload = true
	}
}

// WithCancelUncompleted cancels a pending dispatch of the handler when a new
// one is emitted.
func WithCancelUncompleted(cancel bool) ReceiverOption {
	return func(o *ReceiverOptions) {
		o.CancelUncompleted = cancel
	}
}

// HandlerMetadata is attached to a handler when it is registered.
type HandlerMetadata struct {
	Type              string
	Entity            string
	Key               any
	Action            ActionClass
	Actions           []ActionClass
	Aliases           []string
	Payload           any
	HasPayload        bool
	CancelUncompleted bool
}

var (
	contextType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	stateContextType = reflect.TypeOf((*StateContext)(nil)).Elem()
	actionType       = reflect.TypeOf((*Action)(nil)).Elem()
	errorType        = reflect.TypeOf((*error)(nil)).Elem()
)

// normalizeHandler validates that fn can be invoked without an instance of
// the owning entity and adapts it to a HandlerFunc.
func normalizeHandler(owner *State, key any, fn any) (HandlerFunc, error) {
	invalid := func(reason string) error {
		return newError(ErrInvalidHandlerKind,
			fmt.Sprintf("Only static functions can be decorated: %s.%s %s",
				ownerEntity(owner), KeyString(key), reason),
			nil,
			map[string]any{
				"entity": ownerEntity(owner),
				"key":    KeyString(key),
			})
	}

	switch f := fn.(type) {
	case nil:
		return nil, invalid("is nil")
	case HandlerFunc:
		if f == nil {
			return nil, invalid("is nil")
		}
		if isMethodValue(reflect.ValueOf(f)) {
			return nil, invalid("is bound to an instance")
		}
		return f, nil
	}

	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, invalid(fmt.Sprintf("is a %s, not a function", t.Kind()))
	}
	if v.IsNil() {
		return nil, invalid("is nil")
	}
	if isMethodValue(v) {
		return nil, invalid("is bound to an instance")
	}
	if owner != nil && t.NumIn() > 0 && owner.ownedBy(t.In(0)) {
		return nil, invalid("requires an instance receiver")
	}

	if t.NumOut() != 1 || t.Out(0) != errorType {
		return nil, invalid(fmt.Sprintf("has unsupported signature %s", t))
	}

	switch t.NumIn() {
	case 2:
		if !t.In(0).Implements(contextType) || t.In(1) != stateContextType {
			return nil, invalid(fmt.Sprintf("has unsupported signature %s", t))
		}
		return func(ctx context.Context, sc StateContext, _ Action) error {
			return callErr(v.Call([]reflect.Value{reflect.ValueOf(&ctx).Elem(), reflect.ValueOf(&sc).Elem()}))
		}, nil
	case 3:
		if !t.In(0).Implements(contextType) || t.In(1) != stateContextType {
			return nil, invalid(fmt.Sprintf("has unsupported signature %s", t))
		}
		msgType := t.In(2)
		if msgType == actionType {
			if direct, ok := fn.(func(context.Context, StateContext, Action) error); ok {
				return direct, nil
			}
		}
		if !msgType.Implements(actionType) {
			return nil, invalid(fmt.Sprintf("expects %s which does not implement Action", msgType))
		}
		return func(ctx context.Context, sc StateContext, action Action) error {
			av, err := actionValue(msgType, action)
			if err != nil {
				return err
			}
			return callErr(v.Call([]reflect.Value{reflect.ValueOf(&ctx).Elem(), reflect.ValueOf(&sc).Elem(), av}))
		}, nil
	default:
		return nil, invalid(fmt.Sprintf("has unsupported signature %s", t))
	}
}

func actionValue(msgType reflect.Type, action Action) (reflect.Value, error) {
	if action == nil {
		return reflect.Zero(msgType), nil
	}
	av := reflect.ValueOf(action)
	if av.Type().AssignableTo(msgType) {
		return av, nil
	}
	return reflect.Value{}, fmt.Errorf("handler expects %s, received %T (%s)", msgType, action, action.Type())
}

func callErr(out []reflect.Value) error {
	if len(out) == 0 || out[0].IsNil() {
		return nil
	}
	return out[0].Interface().(error)
}

// isMethodValue reports whether v is a method value bound to a receiver;
// the runtime names those wrappers with a "-fm" suffix.
func isMethodValue(v reflect.Value) bool {
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return false
	}
	return strings.HasSuffix(f.Name(), "-fm")
}

func ownerEntity(owner *State) string {
	if owner == nil {
		return "<nil>"
	}
	return owner.Entity()
}
