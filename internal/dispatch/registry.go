// Package dispatch implements the host-callback registry and the dual
// sync/async invocation paths a running script uses to call back into the
// host process: direct trampoline dispatch on the calling thread, or a
// cross-thread request/response queue brokered by a background worker.
package dispatch

import (
	"sync"

	"github.com/oriys/rhaibridge/internal/diag"
)

// CallbackEntry is one host-registered, script-visible function.
type CallbackEntry struct {
	ID    uint64
	Name  string
	Arity uint8
}

// Registry maps script-visible names to CallbackEntry records. The host
// supplies the callback ID at registration time (it is the host's own
// identifier for the function, e.g. an index into its own function
// table); the registry's job is purely the name-to-ID binding and its
// replacement semantics. Registering a name that already exists replaces
// the entry: the old ID is dropped from the ID index, so ResolveID no
// longer finds it, and every call resolved by name after the replacement
// gets the new ID.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]CallbackEntry
	byID   map[uint64]CallbackEntry
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]CallbackEntry),
		byID:   make(map[uint64]CallbackEntry),
	}
}

// Register binds name to callbackID/arity, replacing any prior
// registration under the same name.
func (r *Registry) Register(name string, callbackID uint64, arity uint8) CallbackEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := CallbackEntry{ID: callbackID, Name: name, Arity: arity}
	if old, ok := r.byName[name]; ok && old.ID != callbackID {
		delete(r.byID, old.ID)
	}
	r.byName[name] = entry
	r.byID[entry.ID] = entry
	return entry
}

// ResolveName returns the current entry bound to name.
func (r *Registry) ResolveName(name string) (CallbackEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// ResolveID returns the entry for callbackID, only if it is still the
// live registration for its name (an abandoned, superseded ID is not
// resolvable because its map entry was deleted at Register time).
func (r *Registry) ResolveID(callbackID uint64) (CallbackEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[callbackID]
	return e, ok
}

// Names returns the script-visible names currently registered, for
// engine_stats/list_functions introspection.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}

// Count returns the number of currently registered callbacks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

func errUnknownCallback(name string) error {
	return diag.FFI("unknown callback %q", name)
}
