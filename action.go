package emitter

import (
	"fmt"
	"reflect"
)

// Action is a unit of work routed to a handler by its type.
type Action interface {
	Type() string
}

// PayloadAction is implemented by actions carrying a payload.
type PayloadAction interface {
	Action
	Payload() any
}

// EmitterAction is the generic action built for handlers registered without
// a custom action class. A fresh value is built for every dispatch.
type EmitterAction struct {
	actionType string
	payload    any
}

func NewEmitterAction(actionType string, payload any) EmitterAction {
	return EmitterAction{actionType: actionType, payload: payload}
}

func (a EmitterAction) Type() string { return a.actionType }
func (a EmitterAction) Payload() any { return a.payload }

func (a EmitterAction) String() string {
	return fmt.Sprintf("EmitterAction(%s)", a.actionType)
}

// PayloadOf extracts a typed payload from an action. It understands
// PayloadAction implementations and structs exposing a Payload field.
func PayloadOf[T any](action Action) (T, bool) {
	var zero T
	if action == nil {
		return zero, false
	}

	if pa, ok := action.(PayloadAction); ok {
		v, ok := pa.Payload().(T)
		return v, ok
	}

	field, ok := payloadField(reflect.ValueOf(action))
	if !ok {
		return zero, false
	}
	v, ok := field.Interface().(T)
	return v, ok
}

// ActionClass describes a constructible action shape with a static type.
type ActionClass interface {
	Type() string
	Name() string
	New(payload any) (Action, error)
}

type actionClass struct {
	actionType string
	name       string
	ctor       func(payload any) (Action, error)
}

// NewActionClass builds an ActionClass from an explicit constructor.
func NewActionClass(actionType string, ctor func(payload any) (Action, error)) ActionClass {
	return &actionClass{
		actionType: actionType,
		name:       actionType,
		ctor:       ctor,
	}
}

func (c *actionClass) Type() string { return c.actionType }
func (c *actionClass) Name() string { return c.name }

func (c *actionClass) New(payload any) (Action, error) {
	if c.ctor == nil {
		return nil, fmt.Errorf("action class %s has no constructor", c.name)
	}
	return c.ctor(payload)
}

// ClassOf derives an ActionClass from a Go type. The static type is the value
// returned by Type() on a freshly allocated A. New allocates A and assigns the
// payload to an exported Payload field when one exists.
func ClassOf[A Action]() ActionClass {
	t := reflect.TypeOf((*A)(nil)).Elem()
	c := &actionClass{name: typeName(t)}
	if inst, ok := newActionValue(t); ok {
		c.actionType = safeActionType(inst)
	}
	c.ctor = func(payload any) (Action, error) {
		return buildAction(t, payload)
	}
	return c
}

func buildAction(t reflect.Type, payload any) (Action, error) {
	v := allocate(t)
	if payload != nil {
		target := v
		if target.Kind() == reflect.Ptr {
			target = target.Elem()
		}
		if target.Kind() == reflect.Struct {
			field := target.FieldByName("Payload")
			if field.IsValid() && field.CanSet() {
				pv := reflect.ValueOf(payload)
				switch {
				case pv.Type().AssignableTo(field.Type()):
					field.Set(pv)
				case pv.Type().ConvertibleTo(field.Type()):
					field.Set(pv.Convert(field.Type()))
				default:
					return nil, fmt.Errorf("payload of type %T cannot be assigned to %s.Payload (%s)",
						payload, typeName(t), field.Type())
				}
			}
		}
	}

	action, ok := v.Interface().(Action)
	if !ok {
		return nil, fmt.Errorf("%s does not implement Action", typeName(t))
	}
	return action, nil
}

// allocate returns an addressable zero value for t; pointer types get a
// freshly allocated element.
func allocate(t reflect.Type) reflect.Value {
	if t.Kind() == reflect.Ptr {
		return reflect.New(t.Elem())
	}
	return reflect.New(t).Elem()
}

func newActionValue(t reflect.Type) (Action, bool) {
	if t.Kind() == reflect.Interface {
		return nil, false
	}
	a, ok := allocate(t).Interface().(Action)
	return a, ok
}

func safeActionType(a Action) (actionType string) {
	defer func() {
		if r := recover(); r != nil {
			actionType = ""
		}
	}()
	return a.Type()
}

func payloadField(v reflect.Value) (reflect.Value, bool) {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	f := v.FieldByName("Payload")
	if !f.IsValid() || !f.CanInterface() {
		return reflect.Value{}, false
	}
	return f, true
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
