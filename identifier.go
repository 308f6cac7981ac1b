package emitter

import (
	"fmt"
	"sync"
)

// Symbol is a handler key with identity semantics. Two symbols created with
// NewSymbol never compare equal, even with the same description.
type Symbol struct {
	description string
}

// NewSymbol returns a new unique symbol.
func NewSymbol(description string) *Symbol {
	return &Symbol{description: description}
}

var (
	symbolsMu sync.Mutex
	symbols   = map[string]*Symbol{}
)

// SymbolFor returns the process-wide symbol registered for description,
// creating it on first use.
func SymbolFor(description string) *Symbol {
	symbolsMu.Lock()
	defer symbolsMu.Unlock()
	if s, ok := symbols[description]; ok {
		return s
	}
	s := &Symbol{description: description}
	symbols[description] = s
	return s
}

func (s *Symbol) Description() string {
	if s == nil {
		return ""
	}
	return s.description
}

func (s *Symbol) String() string {
	return "Symbol(" + s.Description() + ")"
}

// KeyString renders a handler key as text.
func KeyString(key any) string {
	switch k := key.(type) {
	case nil:
		return ""
	case string:
		return k
	case *Symbol:
		return k.String()
	case fmt.Stringer:
		return k.String()
	default:
		return fmt.Sprint(k)
	}
}

// DefaultType derives the identifier used for handlers registered without an
// explicit type: "<entity>.<key>".
func DefaultType(entity string, key any) string {
	return entity + "." + KeyString(key)
}
