package emitter

import (
	"context"
	"fmt"
)

// EmitStore builds emittables over a Store for handlers registered in a
// Registry.
type EmitStore struct {
	store    Store
	registry *Registry
	engine   *Engine
	config   Config
	logger   Logger
}

// Option configures an EmitStore.
type Option func(*emitStoreOptions)

type emitStoreOptions struct {
	config  Config
	logger  Logger
	engine  []EngineOption
	metrics MetricsRecorder
}

// WithConfig applies handler overrides from cfg to every binding.
func WithConfig(cfg Config) Option {
	return func(o *emitStoreOptions) {
		o.config = cfg
	}
}

func WithLogger(logger Logger) Option {
	return func(o *emitStoreOptions) {
		o.logger = logger
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(o *emitStoreOptions) {
		o.metrics = recorder
	}
}

// WithEngineOptions passes options to the underlying Engine.
func WithEngineOptions(opts ...EngineOption) Option {
	return func(o *emitStoreOptions) {
		o.engine = append(o.engine, opts...)
	}
}

func NewEmitStore(store Store, registry *Registry, opts ...Option) *EmitStore {
	o := emitStoreOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if registry == nil {
		registry = NewRegistry()
	}
	logger := normalizeLogger(o.logger)

	engineOpts := []EngineOption{WithEngineLogger(logger)}
	if o.metrics != nil {
		engineOpts = append(engineOpts, WithMetrics(o.metrics))
	}
	engineOpts = append(engineOpts, o.engine...)

	s := &EmitStore{
		store:    store,
		registry: registry,
		engine:   NewEngine(store, engineOpts...),
		config:   o.config,
		logger:   logger,
	}

	for actionType := range o.config.Handlers {
		if _, ok := registry.Lookup(actionType); !ok {
			logger.Warn("config override for unknown type `%s`", actionType)
		}
	}

	return s
}

func (s *EmitStore) Registry() *Registry { return s.registry }
func (s *EmitStore) Engine() *Engine     { return s.engine }
func (s *EmitStore) Store() Store        { return s.store }

// Emitter returns an emittable for h.
func (s *EmitStore) Emitter(h *Handler) (*Emittable, error) {
	b, err := s.bind(h)
	if err != nil {
		return nil, err
	}
	return &Emittable{engine: s.engine, binding: b}, nil
}

// MustEmitter is like Emitter but panics on error.
func (s *EmitStore) MustEmitter(h *Handler) *Emittable {
	e, err := s.Emitter(h)
	if err != nil {
		panic(err)
	}
	return e
}

// EmitterFor returns an emittable for the handler registered under
// actionType. For an alias type the emittable dispatches that alias's
// action class.
func (s *EmitStore) EmitterFor(actionType string) (*Emittable, error) {
	h, ok := s.registry.Lookup(actionType)
	if !ok {
		return nil, newError(ErrUnregisteredHandler,
			fmt.Sprintf("no handler registered for type `%s`", actionType), nil,
			map[string]any{"type": actionType})
	}
	b, err := s.bind(h)
	if err != nil {
		return nil, err
	}
	if b.actionType != actionType {
		meta, _ := s.registry.Metadata(h)
		for _, class := range meta.Actions {
			if class != nil && class.Type() == actionType {
				b.actionType = actionType
				b.action = class
				break
			}
		}
	}
	return &Emittable{engine: s.engine, binding: b}, nil
}

// TransactionEmitter returns an emittable that dispatches one action per
// handler as a single unit.
func (s *EmitStore) TransactionEmitter(handlers ...*Handler) (*TransactionEmittable, error) {
	if len(handlers) == 0 {
		return nil, newError(ErrUnregisteredHandler, "transaction emitter requires at least one handler", nil, nil)
	}
	bindings := make([]binding, 0, len(handlers))
	for _, h := range handlers {
		b, err := s.bind(h)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return &TransactionEmittable{engine: s.engine, bindings: bindings}, nil
}

// Dispatch sends actions straight to the Store, bypassing emittables.
func (s *EmitStore) Dispatch(ctx context.Context, actions ...Action) error {
	return s.store.Dispatch(ctx, actions...)
}

func (s *EmitStore) Snapshot() map[string]any {
	return s.store.Snapshot()
}

func (s *EmitStore) bind(h *Handler) (binding, error) {
	meta, err := s.registry.Metadata(h)
	if err != nil {
		return binding{}, err
	}
	return bindingFor(meta, s.config), nil
}
