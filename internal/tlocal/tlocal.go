// Package tlocal provides per-OS-thread storage keyed by the kernel thread
// id, for the handful of pieces of state that a C ABI boundary must bind to
// the calling host thread rather than to a Go goroutine: the last-error
// slot and the async-detected flag.
//
// A cgo call made by the host runs on the actual OS thread that issued it
// (the Go runtime pins an M to that thread for the duration of the call via
// needm/dropm), so keying by gettid reconstructs "the host thread that made
// this call" without needing the host to pass an explicit thread token
// across the ABI.
package tlocal

import (
	"sync"

	"golang.org/x/sys/unix"
)

// ThreadID returns an identifier for the OS thread executing the current
// call. Safe to call from any goroutine; during a cgo-exported function
// invoked by the host, this is the host's own OS thread id.
func ThreadID() int {
	return unix.Gettid()
}

// Store is a per-OS-thread slot holding a single value of type T. The zero
// Store is usable.
type Store[T any] struct {
	mu   sync.Mutex
	data map[int]T
}

// Set stores v for the calling OS thread, overwriting any previous value.
func (s *Store[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[int]T)
	}
	s.data[ThreadID()] = v
}

// Get returns the value previously Set for the calling OS thread, if any.
func (s *Store[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[ThreadID()]
	return v, ok
}

// Take returns and clears the value for the calling OS thread. Subsequent
// Take/Get calls without an intervening Set return the zero value and false.
func (s *Store[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[ThreadID()]
	if ok {
		delete(s.data, ThreadID())
	}
	return v, ok
}

// Clear removes any value stored for the calling OS thread.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, ThreadID())
}
