package emitter

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps unique action types to registered handlers. It is written
// during startup and read by stores and emitters afterwards.
type Registry struct {
	mu          sync.RWMutex
	types       map[string]*Handler
	metadata    map[*Handler]*HandlerMetadata
	order       []*Handler
	initialized bool
}

func NewRegistry() *Registry {
	return &Registry{
		types:    make(map[string]*Handler),
		metadata: make(map[*Handler]*HandlerMetadata),
	}
}

// Receiver declares and registers a handler in one step.
func (r *Registry) Receiver(owner *State, key any, fn any, opts ...ReceiverOption) (*Handler, error) {
	h := NewHandler(owner, key, fn)
	if err := r.Register(h, opts...); err != nil {
		return nil, err
	}
	return h, nil
}

// MustReceiver is like Receiver but panics on error. Intended for
// package-level declarations.
func (r *Registry) MustReceiver(owner *State, key any, fn any, opts ...ReceiverOption) *Handler {
	h, err := r.Receiver(owner, key, fn, opts...)
	if err != nil {
		panic(err)
	}
	return h
}

// Register validates h and attaches its metadata. Nothing is recorded when
// validation fails.
func (r *Registry) Register(h *Handler, opts ...ReceiverOption) error {
	if h == nil {
		return newError(ErrInvalidHandlerKind, "handler reference cannot be nil", nil, nil)
	}
	if h.owner == nil {
		return newError(ErrInvalidHandlerKind,
			fmt.Sprintf("handler %s has no owning state", h.Name()), nil, nil)
	}

	options := ReceiverOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	fn, err := normalizeHandler(h.owner, h.key, h.raw)
	if err != nil {
		return err
	}

	if options.Action != nil {
		if err := validateActionClass(options.Action); err != nil {
			return err
		}
	}
	for _, class := range options.Actions {
		if err := validateActionClass(class); err != nil {
			return err
		}
	}

	primary := options.Type
	switch {
	case primary != "" && options.Action != nil && options.Action.Type() != primary:
		return newError(ErrActionTypeMismatch,
			fmt.Sprintf("%s`s type `%s` does not match handler type `%s`",
				options.Action.Name(), options.Action.Type(), primary),
			nil,
			map[string]any{"action": options.Action.Name(), "type": primary})
	case primary == "" && options.Action != nil:
		primary = options.Action.Type()
	case primary == "":
		primary = DefaultType(h.owner.Entity(), h.key)
	}

	aliases := make([]string, 0, len(options.Actions))
	for _, class := range options.Actions {
		if class.Type() != primary {
			aliases = append(aliases, class.Type())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return newError(ErrRegistrySealed,
			fmt.Sprintf("cannot register %s after registry has been initialized", h), nil, nil)
	}

	if existing, ok := r.metadata[h]; ok {
		return duplicateTypeError(existing.Type, h)
	}

	seen := make(map[string]struct{}, len(aliases)+1)
	for _, t := range append([]string{primary}, aliases...) {
		if _, dup := seen[t]; dup {
			return duplicateTypeError(t, h)
		}
		seen[t] = struct{}{}
		if _, exists := r.types[t]; exists {
			return duplicateTypeError(t, h)
		}
	}

	h.fn = fn
	meta := &HandlerMetadata{
		Type:              primary,
		Entity:            h.owner.Entity(),
		Key:               h.key,
		Action:            options.Action,
		Actions:           append([]ActionClass(nil), options.Actions...),
		Aliases:           aliases,
		Payload:           options.Payload,
		HasPayload:        options.HasPayload,
		CancelUncompleted: options.CancelUncompleted,
	}

	r.metadata[h] = meta
	r.order = append(r.order, h)
	for t := range seen {
		r.types[t] = h
	}

	return nil
}

// Metadata returns a copy of the metadata attached to h.
func (r *Registry) Metadata(h *Handler) (HandlerMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h != nil {
		if meta, ok := r.metadata[h]; ok {
			return *meta, nil
		}
	}
	return HandlerMetadata{}, unregisteredError(h)
}

// IsRegistered reports whether h has metadata in this registry.
func (r *Registry) IsRegistered(h *Handler) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.metadata[h]
	return ok
}

// Lookup returns the handler registered for an action type, primary or alias.
func (r *Registry) Lookup(actionType string) (*Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.types[actionType]
	return h, ok
}

// Handlers returns registered handlers in registration order.
func (r *Registry) Handlers() []*Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Handler(nil), r.order...)
}

// Types returns every registered type, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Initialize seals the registry. Later registrations fail.
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return newError(ErrRegistrySealed, "registry already initialized", nil, nil)
	}
	r.initialized = true
	return nil
}

func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

func validateActionClass(class ActionClass) error {
	if class == nil {
		return newError(ErrMissingActionType, "action class cannot be nil", nil, nil)
	}
	if strings.TrimSpace(class.Type()) == "" {
		return newError(ErrMissingActionType,
			fmt.Sprintf("%s`s type should be defined as a non-empty Type()", class.Name()),
			nil,
			map[string]any{"action": class.Name()})
	}
	return nil
}

func duplicateTypeError(actionType string, h *Handler) error {
	return newError(ErrDuplicateType,
		fmt.Sprintf("Method decorated with such type `%s` already exists", actionType),
		nil,
		map[string]any{"type": actionType, "handler": h.String()})
}

func unregisteredError(h *Handler) error {
	return newError(ErrUnregisteredHandler,
		fmt.Sprintf("Static metadata cannot be found for %s, was it registered as a receiver?", h),
		nil,
		map[string]any{"handler": h.String()})
}
