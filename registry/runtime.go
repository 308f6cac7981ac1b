package registry

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"

	emitter "github.com/goliatone/go-emitter"
	"github.com/goliatone/go-emitter/cron"
	"github.com/goliatone/go-emitter/store"
)

const ErrCodeNoScheduler = "NO_SCHEDULER"

// RuntimeDependencies captures explicit runtime wiring dependencies.
type RuntimeDependencies struct {
	// Registry defaults to a new registry. Pass Default() to share the
	// process wide one.
	Registry *emitter.Registry
	States   []*emitter.State

	Config  emitter.Config
	Logger  emitter.Logger
	Metrics emitter.MetricsRecorder

	// Scheduler is optional; without it ScheduleEmit fails.
	Scheduler *cron.Scheduler

	StoreOptions  []store.Option
	EngineOptions []emitter.EngineOption
}

// Runtime bundles a registry, its store and the emit store bound to both.
type Runtime struct {
	mu      sync.Mutex
	deps    RuntimeDependencies
	reg     *emitter.Registry
	store   *store.Store
	emit    *emitter.EmitStore
	handles []cron.Handle
	started bool
}

// NewRuntime builds a runtime from deps. Handlers may still be registered
// until Start is called.
func NewRuntime(deps RuntimeDependencies) (*Runtime, error) {
	reg := deps.Registry
	if reg == nil {
		reg = emitter.NewRegistry()
	}
	logger := deps.Logger
	if logger == nil {
		logger = emitter.NewFmtLogger(nil)
	}

	storeOpts := append([]store.Option{store.WithLogger(logger)}, deps.StoreOptions...)
	s, err := store.New(reg, deps.States, storeOpts...)
	if err != nil {
		return nil, err
	}

	emitOpts := []emitter.Option{
		emitter.WithConfig(deps.Config),
		emitter.WithLogger(logger),
		emitter.WithEngineOptions(deps.EngineOptions...),
	}
	if deps.Metrics != nil {
		emitOpts = append(emitOpts, emitter.WithMetricsRecorder(deps.Metrics))
	}

	return &Runtime{
		deps:  deps,
		reg:   reg,
		store: s,
		emit:  emitter.NewEmitStore(s, reg, emitOpts...),
	}, nil
}

// Dependencies returns a copy of runtime dependencies.
func (r *Runtime) Dependencies() RuntimeDependencies {
	r.mu.Lock()
	defer r.mu.Unlock()
	deps := r.deps
	deps.States = append([]*emitter.State(nil), deps.States...)
	deps.StoreOptions = append([]store.Option(nil), deps.StoreOptions...)
	deps.EngineOptions = append([]emitter.EngineOption(nil), deps.EngineOptions...)
	return deps
}

func (r *Runtime) Registry() *emitter.Registry   { return r.reg }
func (r *Runtime) Store() *store.Store           { return r.store }
func (r *Runtime) EmitStore() *emitter.EmitStore { return r.emit }
func (r *Runtime) Scheduler() *cron.Scheduler    { return r.deps.Scheduler }

// ScheduleEmit binds h and schedules it on the runtime scheduler. A config
// without an expression runs once, immediately.
func (r *Runtime) ScheduleEmit(cfg cron.JobConfig, h *emitter.Handler, payload any) (cron.Handle, error) {
	if r.deps.Scheduler == nil {
		return nil, errors.New("runtime has no scheduler", errors.CategoryOperation).
			WithTextCode(ErrCodeNoScheduler)
	}
	target, err := r.emit.Emitter(h)
	if err != nil {
		return nil, err
	}

	var handle cron.Handle
	if cfg.Expression == "" {
		handle, err = r.deps.Scheduler.ScheduleEmitAfter(0, cfg, target, payload)
	} else {
		handle, err = r.deps.Scheduler.ScheduleEmit(cfg, target, payload)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.handles = append(r.handles, handle)
	r.mu.Unlock()
	return handle, nil
}

// Start seals the registry and starts the scheduler.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if !r.reg.Initialized() {
		if err := r.reg.Initialize(); err != nil {
			return err
		}
	}
	if r.deps.Scheduler != nil {
		if err := r.deps.Scheduler.Start(ctx); err != nil {
			return err
		}
	}
	r.started = true
	return nil
}

// Stop cancels scheduled emits and stops the scheduler.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	handles := r.handles
	r.handles = nil
	r.started = false
	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	if r.deps.Scheduler != nil {
		return r.deps.Scheduler.Stop(ctx)
	}
	return nil
}
