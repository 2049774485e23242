package instrument

import (
	"reflect"
	"sync"
)

// state tracks the identities of the wrappers this layer has produced so a
// repeated instrumentation pass recognizes its own work and skips it.
// Identity is the callable's code pointer: every closure produced by the
// same wrapper literal shares one, so marking a single wrapper instance
// marks them all.
type state struct {
	mu           sync.Mutex
	instrumented bool
	wrapped      map[uintptr]struct{}
}

func newState() *state {
	return &state{wrapped: make(map[uintptr]struct{})}
}

// callableID returns the identity marker for a func value.
func callableID(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// isWrapped reports whether the callable was already wrapped.
func (s *state) isWrapped(fn any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.wrapped[callableID(fn)]
	return ok
}

// markWrapped records a callable as wrapped. It returns false if the
// callable was already marked.
func (s *state) markWrapped(fn any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := callableID(fn)
	if _, ok := s.wrapped[id]; ok {
		return false
	}
	s.wrapped[id] = struct{}{}
	return true
}

func (s *state) setInstrumented() {
	s.mu.Lock()
	s.instrumented = true
	s.mu.Unlock()
}

func (s *state) isInstrumented() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instrumented
}
