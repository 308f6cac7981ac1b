package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-errors"

	emitter "github.com/goliatone/go-emitter"
)

const (
	ErrCodeRunFailed  = "RUN_FAILED"
	ErrCodeRunSkipped = "RUN_SKIPPED"
)

// Handler runs a function with retries, timeouts and run limits.
type Handler struct {
	mu sync.Mutex

	name          string
	logger        emitter.Logger
	errorHandler  func(error)
	doneHandler   func(r *Handler)
	retryStrategy RetryStrategy

	EntryID        int
	runs           int
	successfulRuns int

	maxRuns    int
	maxRetries int
	timeout    time.Duration
	deadline   time.Time
	once       bool
}

// NewHandler constructs a Handler from options, applying defaults if unset.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		name:          "runner",
		logger:        emitter.NewFmtLogger(nil),
		retryStrategy: NoDelayStrategy{},
	}
	h.errorHandler = func(err error) {
		h.logger.Error("%s error: %v", h.name, err)
	}
	h.doneHandler = func(r *Handler) {
		r.logger.Debug("%s done: %d", r.name, r.EntryID)
	}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	return h
}

// Run calls fn until it succeeds or retries are exhausted and returns the
// last error. Retries stop early when ctx is done.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	h.mu.Lock()
	if h.exhausted() {
		h.mu.Unlock()
		return errors.New(fmt.Sprintf("%s reached its run limit", h.name), errors.CategoryConflict).
			WithTextCode(ErrCodeRunSkipped)
	}
	maxRetries := h.maxRetries
	strategy := h.retryStrategy
	h.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	var err error
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attempts++
		err = fn(ctx)
		if err == nil || attempt == maxRetries || ctx.Err() != nil {
			break
		}

		decision := DecideRetry(strategy, attempt, err)
		if !decision.ShouldRetry {
			break
		}

		h.errorHandler(runError(
			fmt.Sprintf("%s failed, attempt %d of %d", h.name, attempt+1, maxRetries+1),
			err, decision.Metadata))

		if !sleep(ctx, decision.Delay) {
			err = ctx.Err()
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs++

	if err == nil {
		h.successfulRuns++
	} else {
		err = runError(fmt.Sprintf("%s failed after %d attempts", h.name, attempts), err, nil)
		h.errorHandler(err)
	}

	if h.maxRuns > 0 && h.successfulRuns >= h.maxRuns {
		h.doneHandler(h)
	}

	return err
}

// Runs returns the number of completed Run calls.
func (h *Handler) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

// SuccessfulRuns returns the number of Run calls that succeeded.
func (h *Handler) SuccessfulRuns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.successfulRuns
}

// Exhausted reports whether the handler will skip further runs.
func (h *Handler) Exhausted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exhausted()
}

func (h *Handler) exhausted() bool {
	if h.once && h.successfulRuns >= 1 {
		return true
	}
	return h.maxRuns > 0 && h.successfulRuns >= h.maxRuns
}

func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	switch {
	case h.timeout != 0 && !h.deadline.IsZero():
		ctx, cancelTimeout := context.WithTimeout(parent, h.timeout)
		ctxDeadline, cancelDeadline := context.WithDeadline(ctx, h.deadline)
		return ctxDeadline, func() {
			cancelDeadline()
			cancelTimeout()
		}
	case h.timeout != 0:
		return context.WithTimeout(parent, h.timeout)
	case !h.deadline.IsZero():
		return context.WithDeadline(parent, h.deadline)
	default:
		return parent, func() {}
	}
}

// RunEmit emits payload through target and waits for the completion. A
// canceled completion counts as success.
func RunEmit(ctx context.Context, h *Handler, target interface {
	Emit(context.Context, any) *emitter.Completion
}, payload any) error {
	return h.Run(ctx, func(ctx context.Context) error {
		return target.Emit(ctx, payload).Wait(ctx)
	})
}

// runError keeps source in the chain so callers can still match its codes.
func runError(message string, source error, metadata map[string]any) *errors.Error {
	err := errors.New(message, errors.CategoryHandler).WithTextCode(ErrCodeRunFailed)
	err.Source = source
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
