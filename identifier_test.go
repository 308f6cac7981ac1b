package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stringerKey struct{ name string }

func (k stringerKey) String() string { return "key:" + k.name }

func TestKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  any
		want string
	}{
		{name: "nil", key: nil, want: ""},
		{name: "string", key: "addTodo", want: "addTodo"},
		{name: "symbol", key: NewSymbol("foo"), want: "Symbol(foo)"},
		{name: "stringer", key: stringerKey{name: "x"}, want: "key:x"},
		{name: "int", key: 42, want: "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeyString(tt.key))
		})
	}
}

func TestDefaultType(t *testing.T) {
	assert.Equal(t, "TodosState.addTodo", DefaultType("TodosState", "addTodo"))
	assert.Equal(t, "BarState.Symbol(foo)", DefaultType("BarState", SymbolFor("foo")))
	assert.NotEqual(t, DefaultType("A", "run"), DefaultType("B", "run"))
}

func TestSymbols(t *testing.T) {
	assert.NotSame(t, NewSymbol("foo"), NewSymbol("foo"))
	assert.Same(t, SymbolFor("shared"), SymbolFor("shared"))
	assert.Equal(t, "shared", SymbolFor("shared").Description())

	var nilSymbol *Symbol
	assert.Equal(t, "Symbol()", nilSymbol.String())
}
