package emitter

import (
	"fmt"
	"reflect"
	"strings"
)

// emitTag binds a field by action type: `emit:"TodosState.addTodo"`. A comma
// separated list binds a *TransactionEmittable field.
const emitTag = "emit"

var (
	emittableType   = reflect.TypeOf((*Emittable)(nil))
	transactionType = reflect.TypeOf((*TransactionEmittable)(nil))
)

// PropertyBinding binds a consumer field to one or more handlers.
type PropertyBinding struct {
	Name     string
	Handlers []*Handler
}

// Property declares that field name receives an emittable for handlers. One
// handler binds an *Emittable, several bind a *TransactionEmittable.
func Property(name string, handlers ...*Handler) PropertyBinding {
	return PropertyBinding{Name: name, Handlers: handlers}
}

// Inject sets emittable fields on consumer, which must be a non-nil pointer to
// a struct. Explicit properties are bound first, then fields carrying an
// `emit` tag that are still nil.
func (s *EmitStore) Inject(consumer any, props ...PropertyBinding) error {
	rv := reflect.ValueOf(consumer)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return newError(ErrInvalidInjectionTarget,
			fmt.Sprintf("injection target must be a non-nil pointer to a struct, got %T", consumer),
			nil, nil)
	}
	target := rv.Elem()
	consumerType := target.Type()

	for _, prop := range props {
		field, err := s.injectableField(target, prop.Name)
		if err != nil {
			return err
		}
		if err := s.checkCollision(consumerType, prop.Name); err != nil {
			return err
		}
		if err := s.bindField(field, prop.Name, prop.Handlers); err != nil {
			return err
		}
	}

	for i := 0; i < consumerType.NumField(); i++ {
		sf := consumerType.Field(i)
		tag, ok := sf.Tag.Lookup(emitTag)
		if !ok || tag == "-" {
			continue
		}
		field := target.Field(i)
		if !field.CanSet() || !field.IsNil() {
			continue
		}

		handlers, err := s.lookupTagged(sf.Name, tag)
		if err != nil {
			return err
		}
		if err := s.checkCollision(consumerType, sf.Name); err != nil {
			return err
		}
		if err := s.bindField(field, sf.Name, handlers); err != nil {
			return err
		}
	}

	return nil
}

func (s *EmitStore) injectableField(target reflect.Value, name string) (reflect.Value, error) {
	field := target.FieldByName(name)
	if !field.IsValid() {
		return reflect.Value{}, newError(ErrInvalidInjectionTarget,
			fmt.Sprintf("%s has no field `%s`", typeName(target.Type()), name),
			nil,
			map[string]any{"property": name})
	}
	if !field.CanSet() {
		return reflect.Value{}, newError(ErrInvalidInjectionTarget,
			fmt.Sprintf("field `%s` of %s is not exported", name, typeName(target.Type())),
			nil,
			map[string]any{"property": name})
	}
	return field, nil
}

// checkCollision rejects a property that shadows a registered handler declared
// on the same entity.
func (s *EmitStore) checkCollision(consumerType reflect.Type, name string) error {
	for _, h := range s.registry.Handlers() {
		if h.owner == nil || !h.owner.ownedBy(consumerType) {
			continue
		}
		if KeyString(h.key) == name {
			return newError(ErrNameCollision,
				fmt.Sprintf("Property with name `%s` already exists, please rename to avoid conflicts", name),
				nil,
				map[string]any{"property": name, "entity": h.owner.Entity()})
		}
	}
	return nil
}

func (s *EmitStore) lookupTagged(name, tag string) ([]*Handler, error) {
	var handlers []*Handler
	for _, t := range strings.Split(tag, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		h, ok := s.registry.Lookup(t)
		if !ok {
			return nil, newError(ErrUnregisteredHandler,
				fmt.Sprintf("field `%s` is bound to type `%s` which has no registered handler", name, t),
				nil,
				map[string]any{"property": name, "type": t})
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

func (s *EmitStore) bindField(field reflect.Value, name string, handlers []*Handler) error {
	if len(handlers) == 0 {
		return newError(ErrInvalidInjectionTarget,
			fmt.Sprintf("property `%s` is not bound to any handler", name),
			nil,
			map[string]any{"property": name})
	}

	switch field.Type() {
	case emittableType:
		if len(handlers) != 1 {
			return newError(ErrInvalidInjectionTarget,
				fmt.Sprintf("property `%s` is an *Emittable but is bound to %d handlers", name, len(handlers)),
				nil,
				map[string]any{"property": name})
		}
		e, err := s.Emitter(handlers[0])
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(e))
	case transactionType:
		t, err := s.TransactionEmitter(handlers...)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))
	default:
		return newError(ErrInvalidInjectionTarget,
			fmt.Sprintf("property `%s` has type %s, expected *Emittable or *TransactionEmittable", name, field.Type()),
			nil,
			map[string]any{"property": name})
	}
	return nil
}
