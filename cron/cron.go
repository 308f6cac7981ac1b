package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	rcron "github.com/robfig/cron/v3"

	emitter "github.com/goliatone/go-emitter"
	"github.com/goliatone/go-emitter/runner"
)

const ErrCodeInvalidSchedule = "INVALID_SCHEDULE"

// EmitTarget is satisfied by *emitter.Emittable.
type EmitTarget interface {
	Emit(ctx context.Context, payload any) *emitter.Completion
}

// JobConfig describes how a scheduled job runs.
type JobConfig struct {
	Name       string
	Expression string
	MaxRetries int
	MaxRuns    int
	Timeout    time.Duration
	Deadline   time.Time
	RunOnce    bool
	Retry      runner.RetryStrategy
}

// Scheduler runs jobs on cron expressions or at a point in time.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	errorHandler func(error)

	logger   emitter.Logger
	parser   Parser
	logLevel LogLevel

	nextHandleID int64
	handles      map[int64]*jobHandle
}

// NewScheduler creates a new scheduler instance with the provided options.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		parser:   DefaultParser,
		logLevel: LogLevelError,
		logger:   emitter.NewFmtLogger(nil),
		handles:  make(map[int64]*jobHandle),
	}
	s.errorHandler = func(err error) {
		s.logger.Error("scheduled job error: %v", err)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.cron = rcron.New(s.build()...)
	return s
}

// ScheduleCron runs fn every time expression fires.
func (s *Scheduler) ScheduleCron(cfg JobConfig, fn func(context.Context) error) (Handle, error) {
	if cfg.Expression == "" {
		return nil, invalidSchedule("cron expression cannot be empty", cfg)
	}
	if fn == nil {
		return nil, invalidSchedule("job function cannot be nil", cfg)
	}

	r := s.newRunner(cfg)
	sub := s.newHandle()
	job := rcron.FuncJob(func() {
		if isTerminalStatus(sub.Status()) {
			return
		}

		sub.setStatus(ScheduleStatusRunning, nil)
		err := r.Run(sub.ctx, fn)
		sub.ran()
		// A recurring job stops once it fails past its retries or reaches
		// its run limit.
		switch {
		case emitter.IsKind(err, runner.ErrCodeRunSkipped):
			s.removeHandle(sub.id)
			sub.finish(ScheduleStatusCompleted, nil)
		case err != nil:
			s.removeHandle(sub.id)
			sub.finish(ScheduleStatusFailed, err)
		case r.Exhausted():
			s.removeHandle(sub.id)
			sub.finish(ScheduleStatusCompleted, nil)
		case !isTerminalStatus(sub.Status()):
			sub.setStatus(ScheduleStatusIdle, nil)
		}
	})

	entryID, err := s.cron.AddJob(cfg.Expression, job)
	if err != nil {
		sub.cancel()
		return nil, errors.Wrap(err, errors.CategoryValidation, "failed to add job").
			WithTextCode(ErrCodeInvalidSchedule).
			WithMetadata(map[string]any{"expression": cfg.Expression, "name": cfg.Name})
	}
	sub.entryID = int(entryID)
	r.EntryID = sub.entryID
	s.storeHandle(sub)
	return sub, nil
}

// ScheduleAfter runs fn once after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, cfg JobConfig, fn func(context.Context) error) (Handle, error) {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(time.Now().Add(delay), cfg, fn)
}

// ScheduleAt runs fn once at a specific time.
func (s *Scheduler) ScheduleAt(at time.Time, cfg JobConfig, fn func(context.Context) error) (Handle, error) {
	if fn == nil {
		return nil, invalidSchedule("job function cannot be nil", cfg)
	}

	r := s.newRunner(cfg)
	sub := s.newHandle()
	s.storeHandle(sub)

	go func() {
		wait := time.Until(at)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-sub.Done():
			return
		}

		if isTerminalStatus(sub.Status()) {
			return
		}
		sub.setStatus(ScheduleStatusRunning, nil)
		err := r.Run(sub.ctx, fn)
		sub.ran()
		s.removeStoredHandle(sub.id)
		if err != nil {
			sub.finish(ScheduleStatusFailed, err)
			return
		}
		sub.finish(ScheduleStatusCompleted, nil)
	}()

	return sub, nil
}

// ScheduleEmit emits payload through target every time the expression fires
// and waits for each dispatch to settle before the run is counted.
func (s *Scheduler) ScheduleEmit(cfg JobConfig, target EmitTarget, payload any) (Handle, error) {
	fn, err := emitJob(cfg, target, payload)
	if err != nil {
		return nil, err
	}
	return s.ScheduleCron(cfg, fn)
}

// ScheduleEmitAfter emits payload through target once after delay.
func (s *Scheduler) ScheduleEmitAfter(delay time.Duration, cfg JobConfig, target EmitTarget, payload any) (Handle, error) {
	fn, err := emitJob(cfg, target, payload)
	if err != nil {
		return nil, err
	}
	return s.ScheduleAfter(delay, cfg, fn)
}

// ScheduleEmitAt emits payload through target once at a specific time.
func (s *Scheduler) ScheduleEmitAt(at time.Time, cfg JobConfig, target EmitTarget, payload any) (Handle, error) {
	fn, err := emitJob(cfg, target, payload)
	if err != nil {
		return nil, err
	}
	return s.ScheduleAt(at, cfg, fn)
}

// Start begins executing scheduled cron jobs.
func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop stops the cron loop, waits for running jobs up to ctx and marks active
// handles as stopped.
func (s *Scheduler) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	stopped := s.cron.Stop()

	var handles []*jobHandle
	s.mu.Lock()
	for _, handle := range s.handles {
		handles = append(handles, handle)
	}
	s.handles = make(map[int64]*jobHandle)
	s.mu.Unlock()

	for _, handle := range handles {
		if handle.entryID > 0 {
			s.cron.Remove(rcron.EntryID(handle.entryID))
		}
		if isTerminalStatus(handle.Status()) {
			continue
		}
		handle.finish(ScheduleStatusStopped, nil)
	}

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handles returns the handles that are still scheduled.
func (s *Scheduler) Handles() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	return out
}

func (s *Scheduler) removeHandle(id int64) {
	handle := s.removeStoredHandle(id)
	if handle == nil {
		return
	}
	if handle.entryID > 0 {
		s.cron.Remove(rcron.EntryID(handle.entryID))
	}
}

func (s *Scheduler) removeStoredHandle(id int64) *jobHandle {
	if id == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := s.handles[id]
	delete(s.handles, id)
	return handle
}

func (s *Scheduler) storeHandle(handle *jobHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[handle.id] = handle
}

func (s *Scheduler) newHandle() *jobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandleID++
	ctx, cancel := context.WithCancel(context.Background())
	return &jobHandle{
		scheduler: s,
		id:        s.nextHandleID,
		status:    ScheduleStatusScheduled,
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Scheduler) newRunner(cfg JobConfig) *runner.Handler {
	opts := []runner.Option{
		runner.WithMaxRetries(cfg.MaxRetries),
		runner.WithDeadline(cfg.Deadline),
		runner.WithRunOnce(cfg.RunOnce),
		runner.WithErrorHandler(s.errorHandler),
		runner.WithLogger(s.logger),
	}
	if cfg.Name != "" {
		opts = append(opts, runner.WithName(cfg.Name))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, runner.WithTimeout(cfg.Timeout))
	}
	if cfg.MaxRuns > 0 {
		name := cfg.Name
		if name == "" {
			name = cfg.Expression
		}
		opts = append(opts,
			runner.WithMaxRuns(cfg.MaxRuns),
			runner.WithDoneHandler(func(*runner.Handler) {
				s.logger.Info("scheduled job %s reached its limit of %d runs", name, cfg.MaxRuns)
			}),
		)
	}
	if cfg.Retry != nil {
		opts = append(opts, runner.WithRetryStrategy(cfg.Retry))
	}
	return runner.NewHandler(opts...)
}

func emitJob(cfg JobConfig, target EmitTarget, payload any) (func(context.Context) error, error) {
	if target == nil {
		return nil, invalidSchedule("emit target cannot be nil", cfg)
	}
	return func(ctx context.Context) error {
		return target.Emit(ctx, payload).Wait(ctx)
	}, nil
}

func invalidSchedule(message string, cfg JobConfig) error {
	return errors.New(message, errors.CategoryValidation).
		WithTextCode(ErrCodeInvalidSchedule).
		WithMetadata(map[string]any{"expression": cfg.Expression, "name": cfg.Name})
}

func isTerminalStatus(status ScheduleStatus) bool {
	switch status {
	case ScheduleStatusCompleted, ScheduleStatusCanceled, ScheduleStatusFailed, ScheduleStatusStopped:
		return true
	default:
		return false
	}
}

// build converts implementation-agnostic options to rcron options.
func (s *Scheduler) build() []rcron.Option {
	opts := make([]rcron.Option, 0)

	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}

	switch s.parser {
	case StandardParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	case SecondsParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Second|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	}

	if s.errorHandler != nil {
		opts = append(opts, rcron.WithChain(
			rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler}),
		))
	}

	if s.logLevel > LogLevelSilent {
		opts = append(opts, rcron.WithLogger(&loggerAdapter{logger: s.logger, level: s.logLevel}))
	}

	return opts
}

func formatKeysAndValues(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	out := msg
	for i := 0; i+1 < len(kv); i += 2 {
		out += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return out
}
