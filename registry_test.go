package emitter

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TodosState struct{}

func (t *TodosState) addTodoMethod(ctx context.Context, sc StateContext, action Action) error {
	return nil
}

type BarState struct{}

type namedState struct{}

func (namedState) EntityName() string { return "Renamed" }

type AddTodo struct {
	Payload string
}

func (AddTodo) Type() string { return "[Todos] Add" }

type untypedAction struct{}

func (untypedAction) Type() string { return "" }

func noop(ctx context.Context, sc StateContext, action Action) error { return nil }

func noopAction(ctx context.Context, sc StateContext) error { return nil }

func TestRegistryDefaultTypeShape(t *testing.T) {
	reg := NewRegistry()
	todos := NewState[TodosState]("todos", []string{})

	h, err := reg.Receiver(todos, "addTodo", noop)
	require.NoError(t, err)

	meta, err := reg.Metadata(h)
	require.NoError(t, err)
	assert.Contains(t, meta.Type, "TodosState.addTodo")
	assert.Equal(t, "TodosState", meta.Entity)

	found, ok := reg.Lookup("TodosState.addTodo")
	require.True(t, ok)
	assert.Same(t, h, found)
}

func TestRegistryEntityNamer(t *testing.T) {
	reg := NewRegistry()
	st := NewState[namedState]("named", nil)

	h, err := reg.Receiver(st, "run", noop)
	require.NoError(t, err)

	meta, err := reg.Metadata(h)
	require.NoError(t, err)
	assert.Equal(t, "Renamed.run", meta.Type)
}

func TestRegistrySymbolKey(t *testing.T) {
	reg := NewRegistry()
	bar := NewState[BarState]("bar", map[string]any{})

	h, err := reg.Receiver(bar, SymbolFor("foo"), noop)
	require.NoError(t, err)

	meta, err := reg.Metadata(h)
	require.NoError(t, err)
	assert.Contains(t, meta.Type, "BarState.Symbol(foo)")
	assert.Equal(t, "BarState.Symbol(foo)", h.String())
}

func TestRegistryDuplicateType(t *testing.T) {
	reg := NewRegistry()
	todos := NewState[TodosState]("todos", nil)

	_, err := reg.Receiver(todos, "first", noop, WithType("shared"))
	require.NoError(t, err)

	second := NewHandler(todos, "second", noopAction)
	err = reg.Register(second, WithType("shared"))
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrCodeDuplicateType))
	assert.Contains(t, err.Error(), "Method decorated with such type `shared` already exists")
	assert.False(t, reg.IsRegistered(second))

	h, ok := reg.Lookup("shared")
	require.True(t, ok)
	assert.Equal(t, "first", h.Name())
}

func TestRegistryRegisterTwice(t *testing.T) {
	reg := NewRegistry()
	todos := NewState[TodosState]("todos", nil)

	h := NewHandler(todos, "once", noop)
	require.NoError(t, reg.Register(h))

	err := reg.Register(h, WithType("another"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeDuplicateType, ErrorCode(err))
	_, ok := reg.Lookup("another")
	assert.False(t, ok)
}

func TestRegistryStaticOnly(t *testing.T) {
	todos := NewState[TodosState]("todos", nil)
	instance := &TodosState{}

	tests := []struct {
		name string
		fn   any
	}{
		{name: "nil", fn: nil},
		{name: "not a function", fn: "addTodo"},
		{name: "method value", fn: instance.addTodoMethod},
		{name: "method expression", fn: (*TodosState).addTodoMethod},
		{name: "unsupported signature", fn: func(s string) error { return nil }},
		{name: "missing error result", fn: func(ctx context.Context, sc StateContext) {}},
		{name: "non action argument", fn: func(ctx context.Context, sc StateContext, n int) error { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			h := NewHandler(todos, "addTodo", tt.fn)

			err := reg.Register(h)
			require.Error(t, err)
			assert.True(t, IsKind(err, ErrCodeInvalidHandlerKind))
			assert.Contains(t, err.Error(), "Only static functions can be decorated")
			assert.Contains(t, err.Error(), "TodosState.addTodo")

			_, metaErr := reg.Metadata(h)
			assert.True(t, IsKind(metaErr, ErrCodeUnregisteredHandler))
			assert.Empty(t, reg.Types())
		})
	}
}

func TestRegistrySupportedSignatures(t *testing.T) {
	todos := NewState[TodosState]("todos", nil)

	tests := []struct {
		name string
		fn   any
	}{
		{name: "handler func", fn: HandlerFunc(noop)},
		{name: "plain func", fn: noop},
		{name: "no action", fn: noopAction},
		{name: "typed action", fn: func(ctx context.Context, sc StateContext, a AddTodo) error { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			_, err := reg.Receiver(todos, "addTodo", tt.fn)
			assert.NoError(t, err)
		})
	}
}

func TestRegistryActionClass(t *testing.T) {
	t.Run("uses the action type", func(t *testing.T) {
		reg := NewRegistry()
		todos := NewState[TodosState]("todos", nil)

		h, err := reg.Receiver(todos, "add", noop, WithAction(ClassOf[AddTodo]()))
		require.NoError(t, err)

		meta, err := reg.Metadata(h)
		require.NoError(t, err)
		assert.Equal(t, "[Todos] Add", meta.Type)
		assert.Equal(t, "AddTodo", meta.Action.Name())
	})

	t.Run("missing type", func(t *testing.T) {
		reg := NewRegistry()
		todos := NewState[TodosState]("todos", nil)

		_, err := reg.Receiver(todos, "add", noop, WithAction(ClassOf[untypedAction]()))
		require.Error(t, err)
		assert.True(t, IsKind(err, ErrCodeMissingActionType))
		assert.Contains(t, err.Error(), "untypedAction")
	})

	t.Run("missing type in actions", func(t *testing.T) {
		reg := NewRegistry()
		todos := NewState[TodosState]("todos", nil)

		_, err := reg.Receiver(todos, "add", noop,
			WithActions(ClassOf[AddTodo](), ClassOf[untypedAction]()))
		require.Error(t, err)
		assert.True(t, IsKind(err, ErrCodeMissingActionType))
		assert.Empty(t, reg.Types())
	})

	t.Run("explicit type mismatch", func(t *testing.T) {
		reg := NewRegistry()
		todos := NewState[TodosState]("todos", nil)

		_, err := reg.Receiver(todos, "add", noop,
			WithType("other"), WithAction(ClassOf[AddTodo]()))
		require.Error(t, err)
		assert.True(t, IsKind(err, ErrCodeActionTypeMismatch))
	})
}

func TestRegistryAliases(t *testing.T) {
	reg := NewRegistry()
	todos := NewState[TodosState]("todos", nil)

	inc := NewActionClass("[Counter] Increment", func(any) (Action, error) {
		return NewEmitterAction("[Counter] Increment", nil), nil
	})
	dec := NewActionClass("[Counter] Decrement", func(any) (Action, error) {
		return NewEmitterAction("[Counter] Decrement", nil), nil
	})

	h, err := reg.Receiver(todos, "mutate", noop, WithActions(inc, dec))
	require.NoError(t, err)

	meta, err := reg.Metadata(h)
	require.NoError(t, err)
	assert.Equal(t, "TodosState.mutate", meta.Type)
	assert.Equal(t, []string{"[Counter] Increment", "[Counter] Decrement"}, meta.Aliases)

	for _, typ := range []string{"TodosState.mutate", "[Counter] Increment", "[Counter] Decrement"} {
		found, ok := reg.Lookup(typ)
		require.True(t, ok, typ)
		assert.Same(t, h, found)
	}

	_, err = reg.Receiver(todos, "other", noop, WithActions(dec))
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrCodeDuplicateType))

	_, err = reg.Receiver(todos, "twice", noop, WithActions(
		NewActionClass("dup", nil), NewActionClass("dup", nil)))
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrCodeDuplicateType))
}

func TestRegistryUnregisteredHandler(t *testing.T) {
	reg := NewRegistry()
	todos := NewState[TodosState]("todos", nil)

	_, err := reg.Metadata(NewHandler(todos, "ghost", noop))
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrCodeUnregisteredHandler))
	assert.Contains(t, err.Error(), "TodosState.ghost")

	other := NewRegistry()
	h, err := other.Receiver(todos, "elsewhere", noop)
	require.NoError(t, err)
	_, err = reg.Metadata(h)
	assert.True(t, IsKind(err, ErrCodeUnregisteredHandler))

	_, err = reg.Metadata(nil)
	assert.True(t, IsKind(err, ErrCodeUnregisteredHandler))
}

func TestRegistryInitializeSeals(t *testing.T) {
	reg := NewRegistry()
	todos := NewState[TodosState]("todos", nil)

	_, err := reg.Receiver(todos, "before", noop)
	require.NoError(t, err)

	require.NoError(t, reg.Initialize())
	assert.True(t, reg.Initialized())

	_, err = reg.Receiver(todos, "after", noop)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrCodeRegistrySealed))

	err = reg.Initialize()
	assert.True(t, IsKind(err, ErrCodeRegistrySealed))
}

func TestRegistryConcurrentRegistration(t *testing.T) {
	reg := NewRegistry()
	todos := NewState[TodosState]("todos", nil)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Receiver(todos, "same", noop)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, failed int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		failed++
		assert.True(t, IsKind(err, ErrCodeDuplicateType))
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 49, failed)
	assert.Len(t, reg.Handlers(), 1)
}

func TestHandlerCallRecoversPanic(t *testing.T) {
	reg := NewRegistry()
	todos := NewState[TodosState]("todos", nil)

	h, err := reg.Receiver(todos, "boom", func(ctx context.Context, sc StateContext) error {
		panic("boom")
	})
	require.NoError(t, err)

	err = h.Call(context.Background(), nil, NewEmitterAction("TodosState.boom", nil))
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrCodeHandlerPanic))
	assert.True(t, strings.Contains(err.Error(), "boom"))
}

func TestHandlerCallTypedActionMismatch(t *testing.T) {
	reg := NewRegistry()
	todos := NewState[TodosState]("todos", nil)

	h, err := reg.Receiver(todos, "typed", func(ctx context.Context, sc StateContext, a AddTodo) error {
		return nil
	})
	require.NoError(t, err)

	err = h.Call(context.Background(), nil, NewEmitterAction("TodosState.typed", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AddTodo")

	assert.NoError(t, h.Call(context.Background(), nil, AddTodo{Payload: "x"}))
}

func TestUnregisteredHandlerCall(t *testing.T) {
	todos := NewState[TodosState]("todos", nil)
	h := NewHandler(todos, "raw", noop)

	err := h.Call(context.Background(), nil, nil)
	assert.True(t, IsKind(err, ErrCodeUnregisteredHandler))
}
