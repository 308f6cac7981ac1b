package emitter

import (
	"context"
	"sync"
	"time"
)

// Status reports the lifecycle state of a Completion.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusFailed
}

// Completion tracks a single emit. Every emit gets its own Completion;
// waiting on one never observes the outcome of another.
type Completion struct {
	id         string
	actionType string
	started    time.Time
	done       chan struct{}
	cancel     context.CancelCauseFunc
	children   []*Completion

	mu       sync.RWMutex
	status   Status
	err      error
	finished time.Time
	once     sync.Once
}

func newCompletion(id, actionType string) *Completion {
	return &Completion{
		id:         id,
		actionType: actionType,
		started:    time.Now(),
		done:       make(chan struct{}),
		status:     StatusPending,
	}
}

func failedCompletion(id, actionType string, err error) *Completion {
	c := newCompletion(id, actionType)
	c.resolve(StatusFailed, err)
	return c
}

func (c *Completion) ID() string   { return c.id }
func (c *Completion) Type() string { return c.actionType }

// Done is closed once the completion reaches a terminal status.
func (c *Completion) Done() <-chan struct{} { return c.done }

func (c *Completion) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Err returns the failure, if any. Canceled completions report nil.
func (c *Completion) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Duration returns how long the dispatch ran, or has run so far.
func (c *Completion) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.finished.IsZero() {
		return time.Since(c.started)
	}
	return c.finished.Sub(c.started)
}

// Wait blocks until the completion is terminal or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the dispatch. Effects already applied by the handler remain.
func (c *Completion) Cancel() {
	if c.cancel != nil {
		c.cancel(ErrCanceledByCaller)
	}
	for _, child := range c.children {
		child.Cancel()
	}
}

func (c *Completion) resolve(status Status, err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.status = status
		c.err = err
		c.finished = time.Now()
		c.mu.Unlock()
		close(c.done)
	})
}
