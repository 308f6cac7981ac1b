package emitter

import (
	"reflect"
	"strings"
)

// EntityNamer lets an entity type choose the name used in generated handler
// types instead of its Go type name.
type EntityNamer interface {
	EntityName() string
}

// State declares a named slice of store state and owns the handlers that
// mutate it.
type State struct {
	name       string
	entity     string
	entityType reflect.Type
	defaults   any
	parent     *State
	children   []*State
}

// StateOption configures a State declaration.
type StateOption func(*State)

// WithChildren nests child states under the declared state.
func WithChildren(children ...*State) StateOption {
	return func(s *State) {
		for _, child := range children {
			if child == nil {
				continue
			}
			child.parent = s
			s.children = append(s.children, child)
		}
	}
}

// WithEntityName overrides the derived entity name.
func WithEntityName(name string) StateOption {
	return func(s *State) {
		if name = strings.TrimSpace(name); name != "" {
			s.entity = name
		}
	}
}

// NewState declares a state owned by entity type T, stored under name with
// the given defaults.
func NewState[T any](name string, defaults any, opts ...StateOption) *State {
	t := reflect.TypeOf((*T)(nil)).Elem()
	s := &State{
		name:       name,
		entity:     entityName(t),
		entityType: baseType(t),
		defaults:   defaults,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *State) Name() string             { return s.name }
func (s *State) Entity() string           { return s.entity }
func (s *State) EntityType() reflect.Type { return s.entityType }
func (s *State) Defaults() any            { return s.defaults }
func (s *State) Parent() *State           { return s.parent }
func (s *State) Children() []*State       { return append([]*State(nil), s.children...) }
func (s *State) HasChildren() bool        { return len(s.children) > 0 }
func (s *State) String() string           { return s.entity + "(" + s.Path() + ")" }

func (s *State) ownedBy(t reflect.Type) bool {
	return t != nil && s.entityType == baseType(t)
}

// Path returns the dotted location of the state in the store tree.
func (s *State) Path() string {
	if s.parent == nil {
		return s.name
	}
	return s.parent.Path() + "." + s.name
}

// Flatten returns the state and all its descendants, parents first.
func (s *State) Flatten() []*State {
	out := []*State{s}
	for _, child := range s.children {
		out = append(out, child.Flatten()...)
	}
	return out
}

func entityName(t reflect.Type) string {
	if namer, ok := newEntityNamer(t); ok {
		if name := strings.TrimSpace(namer.EntityName()); name != "" {
			return name
		}
	}
	return typeName(t)
}

func newEntityNamer(t reflect.Type) (namer EntityNamer, ok bool) {
	if t.Kind() == reflect.Interface {
		return nil, false
	}
	defer func() {
		if r := recover(); r != nil {
			namer, ok = nil, false
		}
	}()
	namer, ok = allocate(t).Interface().(EntityNamer)
	return namer, ok
}

func baseType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
