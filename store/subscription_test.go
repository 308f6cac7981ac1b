package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emitter "github.com/goliatone/go-emitter"
)

func TestMatchPath(t *testing.T) {
	testCases := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"Exact match", "app.counter", "app.counter", true},
		{"Exact mismatch", "app.counter", "app.todos", false},

		{"Single wildcard middle", "app.*.log", "app.counter.log", true},
		{"Single wildcard end", "app.*", "app.counter", true},
		{"Single wildcard no match", "app.*.log", "app.log", false},
		{"Single wildcard too many segments", "app.*", "app.counter.log", false},

		{"Multi wildcard matches everything", "#", "app.counter.log", true},
		{"Multi wildcard at end", "app.#", "app.counter.log", true},
		{"Multi wildcard matches zero levels", "app.#", "app", true},
		{"Multi wildcard in the middle", "app.#.log", "app.counter.log", true},
		{"Multi wildcard in the middle zero levels", "app.#.log", "app.log", true},
		{"Multi wildcard other root", "app.#", "todos", false},

		{"Empty pattern", "", "app", false},
		{"Path shorter than pattern", "app.counter", "app", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := matchPath(tc.pattern, tc.path); got != tc.want {
				t.Errorf("matchPath(%q, %q) = %v; want %v", tc.pattern, tc.path, got, tc.want)
			}
		})
	}
}

func TestStoreSubscribePath(t *testing.T) {
	reg := emitter.NewRegistry()
	counter := emitter.NewState[CounterState]("counter", 0)
	log := emitter.NewState[LogState]("log", []string{})
	root := emitter.NewState[RootState]("app", nil, emitter.WithChildren(counter, log))

	_, err := reg.Receiver(counter, "bump", func(ctx context.Context, sc emitter.StateContext) error {
		if err := sc.SetState(emitter.StateOf[int](sc) + 1); err != nil {
			return err
		}
		return sc.Dispatch(ctx, emitter.NewEmitterAction("LogState.append", "bumped"))
	})
	require.NoError(t, err)
	_, err = reg.Receiver(log, "append", func(ctx context.Context, sc emitter.StateContext, a emitter.Action) error {
		line, _ := emitter.PayloadOf[string](a)
		return sc.SetState(append(append([]string{}, emitter.StateOf[[]string](sc)...), line))
	})
	require.NoError(t, err)

	s := MustNew(reg, []*emitter.State{root}, WithLogger(emitter.NewFmtLogger(discard{})))

	var mu sync.Mutex
	seen := map[string][]string{}
	record := func(name string) Listener {
		return func(c Change) {
			mu.Lock()
			defer mu.Unlock()
			seen[name] = append(seen[name], c.Path)
		}
	}
	s.SubscribePath("app.*", record("children"))
	s.SubscribePath("app.log", record("log"))
	s.SubscribePath("counter", record("unrooted"))
	s.Subscribe(record("all"))

	require.NoError(t, s.Dispatch(context.Background(), emitter.NewEmitterAction("CounterState.bump", nil)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"app.counter", "app.log"}, seen["children"])
	assert.Equal(t, []string{"app.log"}, seen["log"])
	assert.Empty(t, seen["unrooted"])
	assert.Len(t, seen["all"], 2)
}
