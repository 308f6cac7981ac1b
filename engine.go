package emitter

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Engine submits actions to a Store. For handlers registered with
// CancelUncompleted it keeps at most one pending dispatch per action type and
// cancels the previous one when a new emit arrives.
type Engine struct {
	store       Store
	logger      Logger
	metrics     MetricsRecorder
	panicLogger PanicLogger
	newID       func() string

	mu      sync.Mutex
	pending map[string]*Completion
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithEngineLogger(logger Logger) EngineOption {
	return func(e *Engine) {
		e.logger = normalizeLogger(logger)
	}
}

func WithMetrics(recorder MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if recorder != nil {
			e.metrics = recorder
		}
	}
}

func WithPanicLogger(logger PanicLogger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.panicLogger = logger
		}
	}
}

// WithIDGenerator replaces the uuid based dispatch ID generator.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       store,
		logger:      NewFmtLogger(nil),
		metrics:     noopMetrics{},
		panicLogger: DefaultPanicLogger,
		newID:       uuid.NewString,
		pending:     make(map[string]*Completion),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Pending returns the outstanding dispatch for a CancelUncompleted type.
func (e *Engine) Pending(actionType string) (*Completion, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.pending[actionType]
	return c, ok
}

// PendingCount returns the number of tracked pending dispatches.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *Engine) emit(ctx context.Context, b binding, payload any) *Completion {
	id := e.newID()

	action, err := b.newAction(payload)
	if err != nil {
		err = newError(ErrDispatchFailed,
			fmt.Sprintf("failed to construct action for `%s`: %v", b.actionType, err),
			err,
			map[string]any{"type": b.actionType, "dispatch_id": id})
		e.metrics.RecordOutcome(b.actionType, StatusFailed, 0)
		e.dispatchLogger(ctx, id, b.actionType).Error("action construction failed: %v", err)
		return failedCompletion(id, b.actionType, err)
	}

	return e.start(ctx, id, b.actionType, b.cancelUncompleted, action)
}

func (e *Engine) emitBatch(ctx context.Context, label string, actions []Action) *Completion {
	return e.start(ctx, e.newID(), label, false, actions...)
}

func (e *Engine) start(ctx context.Context, id, actionType string, exclusive bool, actions ...Action) *Completion {
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	c := newCompletion(id, actionType)
	c.cancel = cancel

	logger := e.dispatchLogger(ctx, id, actionType)

	if exclusive {
		e.mu.Lock()
		if prev, ok := e.pending[actionType]; ok {
			prev.cancel(ErrSuperseded)
			e.metrics.RecordSuperseded(actionType)
			logger.Info("canceled uncompleted dispatch %s", prev.ID())
		}
		e.pending[actionType] = c
		e.mu.Unlock()
	}

	e.metrics.RecordDispatch(actionType)
	logger.Debug("dispatch started")

	go e.run(runCtx, c, exclusive, actions)

	return c
}

func (e *Engine) run(ctx context.Context, c *Completion, exclusive bool, actions []Action) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			fields := map[string]any{"type": c.actionType, "dispatch_id": c.id}
			e.panicLogger("emitter.Engine.run", r, captureStack(), fields)
			err = newError(ErrHandlerPanic,
				fmt.Sprintf("store panicked while dispatching `%s`: %v", c.actionType, r),
				nil, fields)
		}
		e.finish(ctx, c, exclusive, err)
	}()

	err = e.store.Dispatch(ctx, actions...)
}

func (e *Engine) finish(ctx context.Context, c *Completion, exclusive bool, err error) {
	if exclusive {
		e.mu.Lock()
		if e.pending[c.actionType] == c {
			delete(e.pending, c.actionType)
		}
		e.mu.Unlock()
	}

	cause := context.Cause(ctx)
	status := StatusCompleted
	switch {
	case err == nil:
	case stderrors.Is(cause, ErrSuperseded), stderrors.Is(cause, ErrCanceledByCaller):
		status = StatusCanceled
		err = nil
	default:
		status = StatusFailed
		err = newError(ErrDispatchFailed,
			fmt.Sprintf("dispatch of `%s` failed: %v", c.actionType, err),
			err,
			map[string]any{"type": c.actionType, "dispatch_id": c.id})
	}

	// release the context; the cause has already been read
	c.cancel(nil)

	duration := c.Duration()
	e.metrics.RecordOutcome(c.actionType, status, duration)

	logger := e.dispatchLogger(ctx, c.id, c.actionType)
	switch status {
	case StatusFailed:
		logger.Error("dispatch failed: %v", err)
	case StatusCanceled:
		logger.Debug("dispatch canceled: %v", cause)
	default:
		logger.Debug("dispatch completed in %s", duration)
	}

	c.resolve(status, err)
}

// aggregate resolves once every child has resolved. The first failure wins;
// the aggregate is canceled only when every child was canceled.
func (e *Engine) aggregate(actionType string, children []*Completion) *Completion {
	c := newCompletion(e.newID(), actionType)
	c.children = children

	go func() {
		var g errgroup.Group
		for _, child := range children {
			child := child
			g.Go(func() error {
				<-child.Done()
				return child.Err()
			})
		}
		err := g.Wait()

		switch {
		case err != nil:
			c.resolve(StatusFailed, err)
		case allCanceled(children):
			c.resolve(StatusCanceled, nil)
		default:
			c.resolve(StatusCompleted, nil)
		}
	}()

	return c
}

func allCanceled(children []*Completion) bool {
	if len(children) == 0 {
		return false
	}
	for _, child := range children {
		if child.Status() != StatusCanceled {
			return false
		}
	}
	return true
}

func (e *Engine) dispatchLogger(ctx context.Context, id, actionType string) Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return withLoggerFields(e.logger.WithContext(ctx), map[string]any{
		"type":        actionType,
		"dispatch_id": id,
	})
}
