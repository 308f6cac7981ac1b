package runner

import (
	"time"

	emitter "github.com/goliatone/go-emitter"
)

// Option configures a Handler.
type Option func(*Handler)

// WithName labels errors and log lines produced by the handler.
func WithName(name string) Option {
	return func(h *Handler) {
		h.name = name
	}
}

// WithLogger replaces the stdout logger. A nil logger is ignored.
func WithLogger(logger emitter.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithTimeout bounds each Run, retries included.
func WithTimeout(timeout time.Duration) Option {
	return func(h *Handler) { h.timeout = timeout }
}

// WithDeadline stops every Run at a fixed point in time.
func WithDeadline(deadline time.Time) Option {
	return func(h *Handler) { h.deadline = deadline }
}

// WithRunOnce allows a single Run; later calls fail with RUN_SKIPPED.
func WithRunOnce(once bool) Option {
	return func(h *Handler) { h.once = once }
}

// WithMaxRetries sets how many extra attempts a failing Run makes.
func WithMaxRetries(retries int) Option {
	return func(h *Handler) { h.maxRetries = retries }
}

// WithMaxRuns caps the number of successful runs. Zero means no cap.
func WithMaxRuns(runs int) Option {
	return func(h *Handler) { h.maxRuns = runs }
}

// WithRetryStrategy picks the delay and veto policy between attempts.
func WithRetryStrategy(strategy RetryStrategy) Option {
	return func(h *Handler) {
		if strategy != nil {
			h.retryStrategy = strategy
		}
	}
}

// WithErrorHandler receives every failed attempt and the final failure.
func WithErrorHandler(fn func(error)) Option {
	return func(h *Handler) {
		if fn == nil {
			fn = func(error) {}
		}
		h.errorHandler = fn
	}
}

// WithDoneHandler is called once the handler reaches its run limit. It runs
// with the handler locked, so it must not call back into h.
func WithDoneHandler(fn func(h *Handler)) Option {
	return func(h *Handler) {
		if fn == nil {
			fn = func(*Handler) {}
		}
		h.doneHandler = fn
	}
}
