// Package demo declares small example states used by emitctl and tests.
package demo

import (
	"context"
	"fmt"
	"time"

	emitter "github.com/goliatone/go-emitter"
)

// IncrementDelay is how long the increment handler waits before writing.
var IncrementDelay = 50 * time.Millisecond

type Todo struct {
	Text      string `json:"text" yaml:"text"`
	Completed bool   `json:"completed" yaml:"completed"`
}

type TodosState struct{}
type CounterState struct{}
type AnimalsState struct{}

// Increment and Decrement are dispatched straight to the store to drive the
// counter's mutate handler.
type Increment struct{}
type Decrement struct{}

func (Increment) Type() string { return "[Counter] Increment" }
func (Decrement) Type() string { return "[Counter] Decrement" }

// States holds fresh state declarations. Each call returns new values so
// independent stores never share a tree.
type States struct {
	Todos   *emitter.State
	Counter *emitter.State
	Animals *emitter.State
}

func NewStates() States {
	return States{
		Todos:   emitter.NewState[TodosState]("todos", []Todo{}),
		Counter: emitter.NewState[CounterState]("counter", 0),
		Animals: emitter.NewState[AnimalsState]("animals", []string{}),
	}
}

func (s States) All() []*emitter.State {
	return []*emitter.State{s.Todos, s.Counter, s.Animals}
}

// Handlers are the registered demo handler references.
type Handlers struct {
	AddTodo    *emitter.Handler
	RemoveTodo *emitter.Handler
	ClearTodos *emitter.Handler
	Increment  *emitter.Handler
	Mutate     *emitter.Handler
	AddAnimal  *emitter.Handler
}

// Register declares every demo handler in reg.
func Register(reg *emitter.Registry, states States) (*Handlers, error) {
	h := &Handlers{}
	var err error

	if h.AddTodo, err = reg.Receiver(states.Todos, "addTodo", addTodo); err != nil {
		return nil, err
	}
	if h.RemoveTodo, err = reg.Receiver(states.Todos, "removeTodo", removeTodo); err != nil {
		return nil, err
	}
	if h.ClearTodos, err = reg.Receiver(states.Todos, "clearTodos", clearTodos,
		emitter.WithPayload([]Todo{})); err != nil {
		return nil, err
	}
	if h.Increment, err = reg.Receiver(states.Counter, "increment", increment,
		emitter.WithCancelUncompleted(true)); err != nil {
		return nil, err
	}
	if h.Mutate, err = reg.Receiver(states.Counter, "mutate", mutate,
		emitter.WithActions(emitter.ClassOf[Increment](), emitter.ClassOf[Decrement]())); err != nil {
		return nil, err
	}
	if h.AddAnimal, err = reg.Receiver(states.Animals, "addAnimal", addAnimal); err != nil {
		return nil, err
	}

	return h, nil
}

func addTodo(_ context.Context, sc emitter.StateContext, action emitter.Action) error {
	todo, err := todoFrom(payload(action))
	if err != nil {
		return err
	}
	todos := emitter.StateOf[[]Todo](sc)
	next := make([]Todo, 0, len(todos)+1)
	next = append(next, todos...)
	return sc.SetState(append(next, todo))
}

func removeTodo(_ context.Context, sc emitter.StateContext, action emitter.Action) error {
	index, err := indexFrom(payload(action))
	if err != nil {
		return err
	}
	todos := emitter.StateOf[[]Todo](sc)
	if index < 0 || index >= len(todos) {
		return fmt.Errorf("todo index %d out of range [0,%d)", index, len(todos))
	}
	next := make([]Todo, 0, len(todos)-1)
	next = append(next, todos[:index]...)
	return sc.SetState(append(next, todos[index+1:]...))
}

func clearTodos(_ context.Context, sc emitter.StateContext, action emitter.Action) error {
	todos, _ := payload(action).([]Todo)
	if todos == nil {
		todos = []Todo{}
	}
	return sc.SetState(todos)
}

func increment(ctx context.Context, sc emitter.StateContext) error {
	select {
	case <-time.After(IncrementDelay):
	case <-ctx.Done():
		return context.Cause(ctx)
	}
	return sc.SetState(emitter.StateOf[int](sc) + 1)
}

func mutate(_ context.Context, sc emitter.StateContext, action emitter.Action) error {
	n := emitter.StateOf[int](sc)
	switch action.(type) {
	case Increment, *Increment:
		return sc.SetState(n + 1)
	case Decrement, *Decrement:
		return sc.SetState(n - 1)
	default:
		return fmt.Errorf("mutate cannot handle %T", action)
	}
}

func addAnimal(_ context.Context, sc emitter.StateContext, action emitter.Action) error {
	name, ok := emitter.PayloadOf[string](action)
	if !ok {
		return fmt.Errorf("addAnimal expects a string payload, got %T", payload(action))
	}
	animals := emitter.StateOf[[]string](sc)
	next := make([]string, 0, len(animals)+1)
	next = append(next, animals...)
	return sc.SetState(append(next, name))
}

func payload(action emitter.Action) any {
	if pa, ok := action.(emitter.PayloadAction); ok {
		return pa.Payload()
	}
	return nil
}

func todoFrom(v any) (Todo, error) {
	switch t := v.(type) {
	case Todo:
		return t, nil
	case *Todo:
		if t != nil {
			return *t, nil
		}
	case string:
		return Todo{Text: t}, nil
	case map[string]any:
		todo := Todo{}
		todo.Text, _ = t["text"].(string)
		todo.Completed, _ = t["completed"].(bool)
		return todo, nil
	}
	return Todo{}, fmt.Errorf("addTodo expects a todo payload, got %T", v)
}

func indexFrom(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("removeTodo expects an index payload, got %T", v)
}
