package registry

import (
	"context"
	"sync"

	emitter "github.com/goliatone/go-emitter"
)

var (
	globalMu       sync.RWMutex
	globalRegistry = emitter.NewRegistry()
)

// Default returns the process wide registry.
func Default() *emitter.Registry {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalRegistry
}

// Receiver declares a handler on the process wide registry.
func Receiver(owner *emitter.State, key any, fn any, opts ...emitter.ReceiverOption) (*emitter.Handler, error) {
	return Default().Receiver(owner, key, fn, opts...)
}

// MustReceiver is like Receiver but panics on error. Meant for package level
// declarations.
func MustReceiver(owner *emitter.State, key any, fn any, opts ...emitter.ReceiverOption) *emitter.Handler {
	return Default().MustReceiver(owner, key, fn, opts...)
}

// Register attaches metadata to a handler built with emitter.NewHandler.
func Register(h *emitter.Handler, opts ...emitter.ReceiverOption) error {
	return Default().Register(h, opts...)
}

func Lookup(actionType string) (*emitter.Handler, bool) {
	return Default().Lookup(actionType)
}

func Types() []string {
	return Default().Types()
}

// Start seals the process wide registry.
func Start(_ context.Context) error {
	return Default().Initialize()
}

// Stop replaces the process wide registry with an empty one.
func Stop(_ context.Context) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRegistry = emitter.NewRegistry()
	return nil
}

// WithTestRegistry runs fn against a fresh process wide registry and restores
// the previous one afterwards.
func WithTestRegistry(fn func()) {
	globalMu.Lock()
	old := globalRegistry
	globalRegistry = emitter.NewRegistry()
	globalMu.Unlock()

	defer func() {
		globalMu.Lock()
		globalRegistry = old
		globalMu.Unlock()
	}()
	fn()
}
