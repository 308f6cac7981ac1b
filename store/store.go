package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
	"golang.org/x/sync/errgroup"

	emitter "github.com/goliatone/go-emitter"
)

const (
	ErrCodeDuplicateState = "DUPLICATE_STATE"
	ErrCodeUnknownState   = "UNKNOWN_STATE"
	ErrCodeInvalidAction  = "INVALID_ACTION"
)

// Store is an in-memory emitter.Store. Actions are routed to handlers through
// a Registry and each handler reads and writes the state slice it owns.
type Store struct {
	registry *emitter.Registry
	logger   emitter.Logger
	strict   bool

	mu     sync.RWMutex
	roots  []*emitter.State
	paths  map[*emitter.State]string
	values map[string]any
	locks  map[string]chan struct{}

	subsMu    sync.RWMutex
	listeners map[uint64]listenerEntry
	nextSub   uint64
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger emitter.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStrictDispatch makes Dispatch fail for action types without a handler.
// By default they are logged and ignored.
func WithStrictDispatch(strict bool) Option {
	return func(s *Store) {
		s.strict = strict
	}
}

// New builds a store holding states and all their children, initialized to
// their defaults.
func New(registry *emitter.Registry, states []*emitter.State, opts ...Option) (*Store, error) {
	if registry == nil {
		registry = emitter.NewRegistry()
	}
	s := &Store{
		registry:  registry,
		logger:    emitter.NewFmtLogger(nil),
		paths:     make(map[*emitter.State]string),
		values:    make(map[string]any),
		locks:     make(map[string]chan struct{}),
		listeners: make(map[uint64]listenerEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	for _, root := range states {
		if root == nil {
			continue
		}
		for _, st := range root.Flatten() {
			path := st.Path()
			if strings.TrimSpace(st.Name()) == "" {
				return nil, errors.New(fmt.Sprintf("state %s has no name", st.Entity()), errors.CategoryValidation).
					WithTextCode(ErrCodeUnknownState)
			}
			if _, exists := s.values[path]; exists {
				return nil, errors.New(fmt.Sprintf("state with path `%s` already exists", path), errors.CategoryConflict).
					WithTextCode(ErrCodeDuplicateState).
					WithMetadata(map[string]any{"path": path, "entity": st.Entity()})
			}
			s.paths[st] = path
			s.values[path] = st.Defaults()
			s.locks[path] = make(chan struct{}, 1)
		}
		s.roots = append(s.roots, root)
	}

	return s, nil
}

// MustNew is like New but panics on error.
func MustNew(registry *emitter.Registry, states []*emitter.State, opts ...Option) *Store {
	s, err := New(registry, states, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Store) Registry() *emitter.Registry { return s.registry }

// Dispatch runs the handlers for actions. Several actions run concurrently and
// the first failure cancels the rest. Handlers owning the same state run one
// at a time; a dispatch issued by a handler runs its actions in order.
func (s *Store) Dispatch(ctx context.Context, actions ...emitter.Action) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return canceledError(ctx, "dispatch")
	}

	if len(actions) == 0 {
		return nil
	}
	// A dispatch from inside a handler may re-enter states held by its
	// caller, so its actions run in order.
	if len(actions) == 1 || heldPaths(ctx) != nil {
		for _, action := range actions {
			if err := s.apply(ctx, action); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, action := range actions {
		action := action
		g.Go(func() error {
			return s.apply(gctx, action)
		})
	}
	return g.Wait()
}

func (s *Store) apply(ctx context.Context, action emitter.Action) error {
	if action == nil {
		return errors.New("cannot dispatch a nil action", errors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidAction)
	}

	actionType := action.Type()
	h, ok := s.registry.Lookup(actionType)
	if !ok {
		s.logger.Trace("no handler registered for `%s`", actionType)
		if s.strict {
			return errors.New(fmt.Sprintf("no handler registered for `%s`", actionType), errors.CategoryBadInput).
				WithTextCode(emitter.ErrCodeUnregisteredHandler).
				WithMetadata(map[string]any{"type": actionType})
		}
		return nil
	}

	s.mu.RLock()
	path, ok := s.paths[h.Owner()]
	s.mu.RUnlock()
	if !ok {
		return errors.New(fmt.Sprintf("state %s owning handler %s is not part of the store", h.Owner(), h), errors.CategoryBadInput).
			WithTextCode(ErrCodeUnknownState).
			WithMetadata(map[string]any{"type": actionType, "handler": h.String()})
	}

	ctx, release, err := s.lockPath(ctx, path)
	if err != nil {
		return err
	}
	defer release()

	sc := &stateContext{store: s, ctx: ctx, path: path, actionType: actionType}
	return h.Call(ctx, sc, action)
}

type heldPathsKey struct{}

func heldPaths(ctx context.Context) map[string]struct{} {
	held, _ := ctx.Value(heldPathsKey{}).(map[string]struct{})
	return held
}

// lockPath holds path for the duration of a handler call so that handlers of
// the same state never interleave their GetState/SetState sections. A path
// already held further up the dispatch chain is re-entered without waiting.
func (s *Store) lockPath(ctx context.Context, path string) (context.Context, func(), error) {
	held := heldPaths(ctx)
	if _, ok := held[path]; ok {
		return ctx, func() {}, nil
	}

	sem, ok := s.locks[path]
	if !ok {
		return ctx, func() {}, nil
	}
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx, nil, canceledError(ctx, path)
	}

	next := make(map[string]struct{}, len(held)+1)
	for p := range held {
		next[p] = struct{}{}
	}
	next[path] = struct{}{}
	return context.WithValue(ctx, heldPathsKey{}, next), func() { <-sem }, nil
}

// Snapshot returns the state tree. A state with children is rendered as a map
// holding its own map entries (or its value under "value") plus one entry per
// child.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.roots))
	for _, root := range s.roots {
		out[root.Name()] = s.render(root)
	}
	return out
}

func (s *Store) render(st *emitter.State) any {
	value := s.values[s.paths[st]]
	if !st.HasChildren() {
		return value
	}

	node := make(map[string]any)
	switch v := value.(type) {
	case nil:
	case map[string]any:
		for k, item := range v {
			node[k] = item
		}
	default:
		node["value"] = v
	}
	for _, child := range st.Children() {
		node[child.Name()] = s.render(child)
	}
	return node
}

// Paths returns every state path held by the store, sorted.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.values))
	for path := range s.values {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Get returns the raw value stored at path.
func (s *Store) Get(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[path]
	return v, ok
}

// Reset restores every state to its defaults.
func (s *Store) Reset() {
	s.mu.Lock()
	for st, path := range s.paths {
		s.values[path] = st.Defaults()
	}
	s.mu.Unlock()
}

// Select returns the value at path as T.
func Select[T any](s *Store, path string) (T, bool) {
	var zero T
	v, ok := s.Get(path)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

func (s *Store) set(path, actionType string, value any) {
	s.mu.Lock()
	prev := s.values[path]
	s.values[path] = value
	s.mu.Unlock()

	s.notify(Change{Path: path, Type: actionType, Previous: prev, Current: value})
}

type stateContext struct {
	store      *Store
	ctx        context.Context
	path       string
	actionType string
}

func (c *stateContext) GetState() any {
	v, _ := c.store.Get(c.path)
	return v
}

// SetState replaces the state. It is rejected once the dispatch has been
// canceled so a superseded run cannot overwrite a newer one.
func (c *stateContext) SetState(value any) error {
	if c.ctx.Err() != nil {
		return canceledError(c.ctx, c.path)
	}
	c.store.set(c.path, c.actionType, value)
	return nil
}

func (c *stateContext) Dispatch(ctx context.Context, actions ...emitter.Action) error {
	return c.store.Dispatch(ctx, actions...)
}

func canceledError(ctx context.Context, target string) error {
	cause := context.Cause(ctx)
	err := emitter.ErrDispatchCanceled.Clone()
	err.Message = fmt.Sprintf("dispatch canceled, `%s` was not updated: %v", target, cause)
	err.Source = cause
	return err
}
