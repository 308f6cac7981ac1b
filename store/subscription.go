package store

import "strings"

// Change describes a state update applied by a handler.
type Change struct {
	Path     string
	Type     string
	Previous any
	Current  any
}

// Listener is called synchronously after every state update.
type Listener func(Change)

type Subscription interface {
	Unsubscribe()
}

type listenerEntry struct {
	pattern  string
	listener Listener
}

type subs struct {
	store *Store
	id    uint64
}

func (s *subs) Unsubscribe() {
	st := s.store
	st.subsMu.Lock()
	defer st.subsMu.Unlock()
	delete(st.listeners, s.id)
}

// Subscribe registers a listener for every state change.
func (s *Store) Subscribe(listener Listener) Subscription {
	return s.SubscribePath("#", listener)
}

// SubscribePath registers a listener for changes whose path matches pattern.
// Segments are separated by dots; "*" matches one segment and "#" matches
// zero or more.
//
//	s.SubscribePath("app.#", fn)      // app and everything below it
//	s.SubscribePath("app.*.log", fn)  // app.counter.log, app.todos.log
func (s *Store) SubscribePath(pattern string, listener Listener) Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.nextSub++
	id := s.nextSub
	if listener != nil {
		s.listeners[id] = listenerEntry{pattern: pattern, listener: listener}
	}
	return &subs{store: s, id: id}
}

func (s *Store) notify(change Change) {
	s.subsMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, e := range s.listeners {
		if matchPath(e.pattern, change.Path) {
			listeners = append(listeners, e.listener)
		}
	}
	s.subsMu.RUnlock()

	for _, l := range listeners {
		l(change)
	}
}

const pathSeparator = "."

// matchPath matches a dotted state path against a pattern where "#" may
// appear in any segment.
func matchPath(pattern, path string) bool {
	if pattern == path || pattern == "#" {
		return true
	}

	patternParts := strings.Split(pattern, pathSeparator)
	pathParts := strings.Split(path, pathSeparator)
	pLen, tLen := len(patternParts), len(pathParts)

	dp := make([]bool, tLen+1)
	prev := make([]bool, tLen+1)
	prev[0] = true

	for i := 1; i <= pLen; i++ {
		part := patternParts[i-1]
		// dp[0] holds only while the pattern so far is all "#"
		dp[0] = part == "#" && prev[0]

		for j := 1; j <= tLen; j++ {
			switch part {
			case "#":
				dp[j] = prev[j] || dp[j-1]
			case "*":
				dp[j] = prev[j-1]
			default:
				dp[j] = prev[j-1] && part == pathParts[j-1]
			}
		}
		copy(prev, dp)
	}

	return prev[tLen]
}
