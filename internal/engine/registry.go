package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/rhaibridge/internal/codec"
	"github.com/oriys/rhaibridge/internal/diag"
	"github.com/oriys/rhaibridge/internal/dispatch"
	"github.com/oriys/rhaibridge/internal/script"
	"golang.org/x/sync/errgroup"
)

// Handle is a single live engine instance: its configuration, its callback
// table and async queue, and the default scope accumulated across
// set_var/set_constant calls between evaluations.
//
// scope and consts must only be touched while holding mu.
type Handle struct {
	ID     uint64
	DebugID string // short uuid fragment, surfaced in logs

	Config  Config
	Sandbox script.Sandbox

	mu     sync.Mutex
	scope  map[string]codec.Dynamic
	consts map[string]bool

	Registry   *dispatch.Registry
	Queue      *dispatch.AsyncQueue
	Dispatcher *dispatch.Dispatcher

	opsConsumed atomic.Int64
	disposed    atomic.Bool
}

// Manager is the process-wide table of live engine handles, keyed by an
// opaque monotonic ID that the boundary layer hands back to the host as the
// engine_new return value. It also owns the eval-ticket table: eval_id, like
// the async request/response cycle, is a process-global identifier in the
// boundary API (eval_async_poll takes no handle argument), so tickets are
// allocated and looked up here rather than per-Handle.
type Manager struct {
	mu      sync.RWMutex
	handles map[uint64]*Handle

	ticketMu sync.Mutex
	tickets  map[uint64]*dispatch.Ticket
	nextEval atomic.Uint64

	nextID atomic.Uint64
}

// NewManager returns an empty, ready-to-use Manager.
func NewManager() *Manager {
	return &Manager{
		handles: make(map[uint64]*Handle),
		tickets: make(map[uint64]*dispatch.Ticket),
	}
}

// NewTicket allocates a process-global eval ticket and returns its ID.
func (m *Manager) NewTicket() (uint64, *dispatch.Ticket) {
	id := m.nextEval.Add(1)
	t := dispatch.NewTicket()
	m.ticketMu.Lock()
	m.tickets[id] = t
	m.ticketMu.Unlock()
	return id, t
}

// Ticket resolves a previously allocated eval ticket by ID.
func (m *Manager) Ticket(id uint64) (*dispatch.Ticket, bool) {
	m.ticketMu.Lock()
	defer m.ticketMu.Unlock()
	t, ok := m.tickets[id]
	return t, ok
}

// Create builds a new Handle from cfg and an invoker wired to the host's
// callback trampoline, registers it in the table, and returns its opaque
// handle ID. cfg is first adjusted by any RHAIBRIDGE_* environment
// overrides, then validated; validation and sandbox construction run
// concurrently via errgroup, mirroring the parallel pre-fetch pattern used
// elsewhere in the tree for independent, side-effect-free setup steps.
func (m *Manager) Create(cfg Config, invoker dispatch.HostInvoker) (uint64, error) {
	applyEnvOverrides(&cfg)

	var sandbox script.Sandbox

	g := new(errgroup.Group)
	g.Go(func() error {
		return cfg.Validate()
	})
	g.Go(func() error {
		sandbox = script.Sandbox{
			DisableFileIO:  cfg.DisableFileIO,
			DisableEval:    cfg.DisableEval,
			DisableModules: cfg.DisableModules,
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return 0, diag.FFI("invalid engine configuration: %v", err)
	}

	registry := dispatch.NewRegistry()
	queue := dispatch.NewAsyncQueue()
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	dispatcher := dispatch.NewDispatcher(registry, queue, invoker, timeout)

	h := &Handle{
		ID:         m.nextID.Add(1),
		DebugID:    uuid.New().String()[:12],
		Config:     cfg,
		Sandbox:    sandbox,
		scope:      make(map[string]codec.Dynamic),
		consts:     make(map[string]bool),
		Registry:   registry,
		Queue:      queue,
		Dispatcher: dispatcher,
	}

	m.mu.Lock()
	m.handles[h.ID] = h
	m.mu.Unlock()

	diag.Global().EngineCreated()
	diag.Op().Debug("engine created", "handle", h.ID, "debug_id", h.DebugID)
	return h.ID, nil
}

// Get resolves a live handle by ID. The second return is false for an
// unknown or already-destroyed handle.
func (m *Manager) Get(id uint64) (*Handle, bool) {
	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok || h.disposed.Load() {
		return nil, false
	}
	return h, true
}

// Destroy poisons the handle and removes it from the table. Idempotent:
// destroying an already-destroyed or unknown handle is not an error, the
// same way engine_free tolerates a double free rather than crashing the
// host process across the ABI boundary.
func (m *Manager) Destroy(id uint64) {
	m.mu.Lock()
	h, ok := m.handles[id]
	delete(m.handles, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	if h.disposed.CompareAndSwap(false, true) {
		h.Queue.Close()
		diag.Global().EngineDestroyed()
		diag.Op().Debug("engine destroyed", "handle", h.ID, "debug_id", h.DebugID)
	}
}

// Count returns the number of live handles, for engine_stats-adjacent
// process-wide introspection.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// DequeueAny polls every live handle's async queue for a pending request,
// in map-iteration order. The boundary layer's async_dequeue_request has
// no handle parameter (the host polls one shared queue across every
// engine), so this is where that fan-in happens; the returned engine ID
// lets the caller route the eventual async_complete back to the owning
// handle's queue.
func (m *Manager) DequeueAny() (engineID uint64, req dispatch.AsyncRequest, ok bool) {
	m.mu.RLock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.RUnlock()
	for _, h := range handles {
		if r, found := h.Queue.Dequeue(); found {
			return h.ID, r, true
		}
	}
	return 0, dispatch.AsyncRequest{}, false
}

// CompleteRequest resolves requestID against the async queue owned by
// engineID.
func (m *Manager) CompleteRequest(engineID, requestID uint64, resp dispatch.AsyncResponse) error {
	h, ok := m.Get(engineID)
	if !ok {
		return diag.Disposed("engine disposed")
	}
	return h.Queue.Complete(requestID, resp)
}

// Disposed reports whether h has been destroyed.
func (h *Handle) Disposed() bool {
	return h.disposed.Load()
}

// SetVar adds or overwrites a non-constant binding in the engine's default
// scope, used by every evaluation run against this handle from here on.
func (h *Handle) SetVar(name string, v codec.Dynamic) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.consts[name] {
		return diag.Runtime("cannot overwrite constant %q with set_var", name)
	}
	h.scope[name] = v
	return nil
}

// SetConstant adds or overwrites a binding in the default scope and marks
// it immutable: scripts that assign to this name fail, and a later set_var
// for the same name is rejected unless clear_scope runs first.
func (h *Handle) SetConstant(name string, v codec.Dynamic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scope[name] = v
	h.consts[name] = true
}

// ClearScope empties the default scope entirely, constants included.
func (h *Handle) ClearScope() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scope = make(map[string]codec.Dynamic)
	h.consts = make(map[string]bool)
}

// scopeSnapshot returns copies of the current scope/consts maps, safe to
// hand to a Machine without holding h.mu for the duration of a run.
func (h *Handle) scopeSnapshot() (map[string]codec.Dynamic, map[string]bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	scope := make(map[string]codec.Dynamic, len(h.scope))
	for k, v := range h.scope {
		scope[k] = v
	}
	consts := make(map[string]bool, len(h.consts))
	for k, v := range h.consts {
		consts[k] = v
	}
	return scope, consts
}

