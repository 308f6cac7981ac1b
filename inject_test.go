package emitter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emitter "github.com/goliatone/go-emitter"
	"github.com/goliatone/go-emitter/store"
)

type todoComponent struct {
	AddTodo    *emitter.Emittable
	AddAnimal  *emitter.Emittable `emit:"AnimalsState.addAnimal"`
	Bulk       *emitter.TransactionEmittable
	Mutate     *emitter.Emittable `emit:"[Counter] Decrement"`
	Ignored    *emitter.Emittable `emit:"-"`
	Untouched  string
	unexported *emitter.Emittable
}

func TestInjectProperties(t *testing.T) {
	f := newFixture(t)

	c := &todoComponent{}
	err := f.emit.Inject(c,
		emitter.Property("AddTodo", f.handlers.AddTodo),
		emitter.Property("Bulk", f.handlers.AddTodo, f.handlers.AddAnimal),
	)
	require.NoError(t, err)

	require.NotNil(t, c.AddTodo)
	require.NotNil(t, c.AddAnimal)
	require.NotNil(t, c.Bulk)
	require.NotNil(t, c.Mutate)
	assert.Nil(t, c.Ignored)
	assert.Nil(t, c.unexported)

	assert.Equal(t, "TodosState.addTodo", c.AddTodo.Type())
	assert.Equal(t, "AnimalsState.addAnimal", c.AddAnimal.Type())
	assert.Equal(t, "CounterState.mutate", c.Mutate.Type())
	assert.Equal(t, []string{"TodosState.addTodo", "AnimalsState.addAnimal"}, c.Bulk.Types())

	require.NoError(t, wait(t, c.AddAnimal.Emit(context.Background(), "Otter")))
	animals, _ := store.Select[[]string](f.store, "animals")
	assert.Equal(t, []string{"Otter"}, animals)
}

func TestInjectKeepsPresetFields(t *testing.T) {
	f := newFixture(t)

	preset := f.emit.MustEmitter(f.handlers.AddTodo)
	c := &todoComponent{AddAnimal: preset}
	require.NoError(t, f.emit.Inject(c))
	assert.Same(t, preset, c.AddAnimal)
}

func TestInjectInvalidTargets(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		consumer any
		props    []emitter.PropertyBinding
		code     string
	}{
		{name: "nil", consumer: nil, code: emitter.ErrCodeInvalidInjectionTarget},
		{name: "not a pointer", consumer: todoComponent{}, code: emitter.ErrCodeInvalidInjectionTarget},
		{name: "nil pointer", consumer: (*todoComponent)(nil), code: emitter.ErrCodeInvalidInjectionTarget},
		{name: "pointer to non struct", consumer: new(int), code: emitter.ErrCodeInvalidInjectionTarget},
		{
			name:     "unknown field",
			consumer: &todoComponent{},
			props:    []emitter.PropertyBinding{emitter.Property("Missing", f.handlers.AddTodo)},
			code:     emitter.ErrCodeInvalidInjectionTarget,
		},
		{
			name:     "unexported field",
			consumer: &todoComponent{},
			props:    []emitter.PropertyBinding{emitter.Property("unexported", f.handlers.AddTodo)},
			code:     emitter.ErrCodeInvalidInjectionTarget,
		},
		{
			name:     "wrong field type",
			consumer: &todoComponent{},
			props:    []emitter.PropertyBinding{emitter.Property("Untouched", f.handlers.AddTodo)},
			code:     emitter.ErrCodeInvalidInjectionTarget,
		},
		{
			name:     "several handlers on single emittable",
			consumer: &todoComponent{},
			props:    []emitter.PropertyBinding{emitter.Property("AddTodo", f.handlers.AddTodo, f.handlers.AddAnimal)},
			code:     emitter.ErrCodeInvalidInjectionTarget,
		},
		{
			name:     "no handlers",
			consumer: &todoComponent{},
			props:    []emitter.PropertyBinding{emitter.Property("AddTodo")},
			code:     emitter.ErrCodeInvalidInjectionTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.emit.Inject(tt.consumer, tt.props...)
			require.Error(t, err)
			assert.True(t, emitter.IsKind(err, tt.code), err.Error())
		})
	}
}

func TestInjectUnregisteredHandler(t *testing.T) {
	f := newFixture(t)

	orphan := emitter.NewHandler(f.states.Todos, "orphan", func(ctx context.Context, sc emitter.StateContext) error {
		return nil
	})

	err := f.emit.Inject(&todoComponent{}, emitter.Property("AddTodo", orphan))
	require.Error(t, err)
	assert.True(t, emitter.IsKind(err, emitter.ErrCodeUnregisteredHandler))

	type badTag struct {
		Missing *emitter.Emittable `emit:"Nobody.nothing"`
	}
	err = f.emit.Inject(&badTag{})
	require.Error(t, err)
	assert.True(t, emitter.IsKind(err, emitter.ErrCodeUnregisteredHandler))
	assert.Contains(t, err.Error(), "Nobody.nothing")
}

type PanelState struct {
	Refresh *emitter.Emittable
	Reload  *emitter.Emittable
}

func TestInjectNameCollision(t *testing.T) {
	reg := emitter.NewRegistry()
	panel := emitter.NewState[PanelState]("panel", 0)

	refresh, err := reg.Receiver(panel, "Refresh", func(ctx context.Context, sc emitter.StateContext) error {
		return sc.SetState(emitter.StateOf[int](sc) + 1)
	})
	require.NoError(t, err)

	s := store.MustNew(reg, []*emitter.State{panel})
	es := emitter.NewEmitStore(s, reg, emitter.WithLogger(quietLogger()))

	err = es.Inject(&PanelState{}, emitter.Property("Refresh", refresh))
	require.Error(t, err)
	assert.True(t, emitter.IsKind(err, emitter.ErrCodeNameCollision))
	assert.Contains(t, err.Error(), "Property with name `Refresh` already exists")

	consumer := &PanelState{}
	require.NoError(t, es.Inject(consumer, emitter.Property("Reload", refresh)))
	require.NotNil(t, consumer.Reload)

	other := &struct{ Refresh *emitter.Emittable }{}
	require.NoError(t, es.Inject(other, emitter.Property("Refresh", refresh)))
	assert.NotNil(t, other.Refresh)

	require.NoError(t, wait(t, consumer.Reload.Emit(context.Background(), nil)))
	v, _ := store.Select[int](s, "panel")
	assert.Equal(t, 1, v)
}

func TestInjectDemoCounter(t *testing.T) {
	f := newFixture(t)

	var panel struct {
		Increment *emitter.Emittable `emit:"CounterState.increment"`
	}
	require.NoError(t, f.emit.Inject(&panel))

	require.NoError(t, wait(t, panel.Increment.Emit(context.Background(), nil)))
	counter, _ := store.Select[int](f.store, "counter")
	assert.Equal(t, 1, counter)
}
