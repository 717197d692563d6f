// Package session tracks render cycles and memoizes per-cycle facts.
// A fact requested by several formatting steps within one cycle is
// computed once, and every caller in that cycle sees the same value.
package session

import "sync"

type memo struct {
	renderID int64
	value    any
}

// Session holds the monotonic render counter and the per-fact memo
// table for one process.
type Session struct {
	mutex   sync.Mutex
	render  int64
	results map[string]memo
}

// New returns an empty Session. The first Advance call yields render id 1.
func New() *Session {
	return &Session{results: make(map[string]memo)}
}

// Advance increments the render counter and returns the new render id.
// Call it exactly once at the start of each render cycle, before any
// fact is requested. Advancing implicitly invalidates every memo from
// earlier cycles.
func (s *Session) Advance() int64 {
	s.mutex.Lock()
	s.render++
	id := s.render
	s.mutex.Unlock()
	return id
}

// RenderID returns the current render id without advancing it.
func (s *Session) RenderID() int64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.render
}

// Memoize returns the value for factID computed during the current
// render cycle, calling compute only if no such value exists yet.
func (s *Session) Memoize(factID string, compute func() any) any {
	s.mutex.Lock()
	current := s.render
	if m, ok := s.results[factID]; ok && m.renderID == current {
		s.mutex.Unlock()
		return m.value
	}
	s.mutex.Unlock()

	// compute may be expensive and may itself consult the session, so
	// it runs outside the mutex.
	value := compute()

	s.mutex.Lock()
	if s.render == current {
		s.results[factID] = memo{renderID: current, value: value}
	}
	s.mutex.Unlock()
	return value
}

// Memoize is the typed variant of [Session.Memoize].
func Memoize[T any](s *Session, factID string, compute func() T) T {
	value := s.Memoize(factID, func() any { return compute() })
	typed, ok := value.(T)
	if !ok {
		// A prior caller memoized a different type under this factID;
		// recompute rather than return a zero value silently.
		return compute()
	}
	return typed
}
