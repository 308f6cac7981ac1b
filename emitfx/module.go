package emitfx

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	emitter "github.com/goliatone/go-emitter"
	"github.com/goliatone/go-emitter/cron"
	"github.com/goliatone/go-emitter/metrics"
	"github.com/goliatone/go-emitter/registry"
	"github.com/goliatone/go-emitter/store"
)

// Settings collects what the module needs to build a runtime.
type Settings struct {
	States     []*emitter.State
	Config     emitter.Config
	Logger     emitter.Logger
	Registerer prometheus.Registerer
	Scheduler  []cron.Option
	// UseScheduler is set by WithScheduler.
	UseScheduler bool
	Register     []func(*emitter.Registry) error
}

type Option func(*Settings)

func WithStates(states ...*emitter.State) Option {
	return func(s *Settings) { s.States = append(s.States, states...) }
}

func WithConfig(cfg emitter.Config) Option {
	return func(s *Settings) { s.Config = cfg }
}

// WithLogger skips building a logger from Config.Logging.
func WithLogger(logger emitter.Logger) Option {
	return func(s *Settings) { s.Logger = logger }
}

// WithMetrics exports dispatch metrics to reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Settings) { s.Registerer = reg }
}

// WithScheduler adds a cron scheduler started and stopped with the app.
func WithScheduler(opts ...cron.Option) Option {
	return func(s *Settings) {
		s.UseScheduler = true
		s.Scheduler = append(s.Scheduler, opts...)
	}
}

// WithHandlers registers handlers before the registry is sealed.
func WithHandlers(fn func(*emitter.Registry) error) Option {
	return func(s *Settings) {
		if fn != nil {
			s.Register = append(s.Register, fn)
		}
	}
}

// Module provides the runtime and its parts. The registry is sealed when the
// app starts, so handlers must be registered by WithHandlers or an fx.Invoke.
func Module(opts ...Option) fx.Option {
	settings := Settings{}
	for _, o := range opts {
		if o != nil {
			o(&settings)
		}
	}
	return fx.Module("emitter",
		fx.Provide(func() Settings { return settings }),
		fx.Provide(provideLogger),
		fx.Provide(provideRuntime),
		fx.Provide(
			func(rt *registry.Runtime) *emitter.Registry { return rt.Registry() },
			func(rt *registry.Runtime) *store.Store { return rt.Store() },
			func(rt *registry.Runtime) *emitter.EmitStore { return rt.EmitStore() },
		),
		fx.Invoke(registerHooks),
	)
}

func provideLogger(lc fx.Lifecycle, s Settings) (emitter.Logger, error) {
	if s.Logger != nil {
		return s.Logger, nil
	}
	logger, closer, err := emitter.NewLoggerFromConfig(s.Config.Logging)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return closer.Close() },
	})
	return logger, nil
}

func provideRuntime(s Settings, logger emitter.Logger) (*registry.Runtime, error) {
	deps := registry.RuntimeDependencies{
		States: s.States,
		Config: s.Config,
		Logger: logger,
	}
	if s.Registerer != nil {
		recorder, err := metrics.NewRecorder(s.Registerer)
		if err != nil {
			return nil, err
		}
		deps.Metrics = recorder
	}
	if s.UseScheduler {
		deps.Scheduler = cron.NewScheduler(append([]cron.Option{cron.WithLogger(logger)}, s.Scheduler...)...)
	}

	rt, err := registry.NewRuntime(deps)
	if err != nil {
		return nil, err
	}
	for _, register := range s.Register {
		if err := register(rt.Registry()); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

func registerHooks(lc fx.Lifecycle, rt *registry.Runtime) {
	lc.Append(fx.Hook{
		OnStart: rt.Start,
		OnStop:  rt.Stop,
	})
}
