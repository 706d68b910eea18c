package engine

import (
	"context"
	"time"

	"github.com/oriys/rhaibridge/internal/codec"
	"github.com/oriys/rhaibridge/internal/diag"
	"github.com/oriys/rhaibridge/internal/dispatch"
	"github.com/oriys/rhaibridge/internal/script"
)

// limits builds a fresh script.Limits for a single evaluation, stamping the
// wall-clock deadline from the handle's configured timeout at call time
// rather than at Create time.
func (h *Handle) limits() script.Limits {
	var deadline time.Time
	if h.Config.TimeoutMS > 0 {
		deadline = time.Now().Add(time.Duration(h.Config.TimeoutMS) * time.Millisecond)
	}
	return script.Limits{
		MaxOperations:   int64(h.Config.MaxOperations),
		MaxStackDepth:   int(h.Config.MaxStackDepth),
		MaxStringLength: int(h.Config.MaxStringLength),
		Deadline:        deadline,
	}
}

func (h *Handle) machine(call script.HostCall) *script.Machine {
	scope, consts := h.scopeSnapshot()
	return &script.Machine{
		Limits:  h.limits(),
		Sandbox: h.Sandbox,
		Call:    call,
		Globals: scope,
		Consts:  consts,
	}
}

// Eval runs src to completion on the calling goroutine via the synchronous
// callback path: a host function the script calls resolves by direct
// trampoline invocation, and a callback that turns out to be async-only
// fails the evaluation with the evalAsync guidance error rather than
// blocking.
func (h *Handle) Eval(src string) (string, error) {
	if h.Disposed() {
		return "", diag.Disposed("engine disposed")
	}
	_, span := diag.StartSpan(context.Background(), "rhaibridge.eval",
		diag.AttrEngineID.Int64(int64(h.ID)), diag.AttrMode.String("sync"))
	start := time.Now()
	m := h.machine(h.Dispatcher.SyncCall)
	res, err := m.Run(src)
	h.opsConsumed.Add(res.Ops)
	success := err == nil
	diag.Global().Evaluation("sync", success, float64(time.Since(start).Milliseconds()))
	if err != nil {
		diag.EndSpanError(span, err)
		return "", err
	}
	encoded, err := codec.Encode(res.Value)
	if err != nil {
		diag.EndSpanError(span, err)
		return "", err
	}
	diag.EndSpanOK(span)
	return encoded, nil
}

// Analyze parses src without executing it, surfacing only syntax errors.
func (h *Handle) Analyze(src string) error {
	if h.Disposed() {
		return diag.Disposed("engine disposed")
	}
	return script.Analyze(src)
}

// EvalAsyncStart launches src on a background goroutine using the
// asynchronous callback path (request/response queue) and returns a ticket
// ID the host polls via Manager.EvalAsyncPoll. The ticket is allocated on
// mgr (process-global IDs), since eval_async_poll takes no handle argument.
func (h *Handle) EvalAsyncStart(mgr *Manager, src string) uint64 {
	id, ticket := mgr.NewTicket()
	go func() {
		_, span := diag.StartSpan(context.Background(), "rhaibridge.eval_async",
			diag.AttrEngineID.Int64(int64(h.ID)), diag.AttrMode.String("async"))
		start := time.Now()
		m := h.machine(h.Dispatcher.AsyncCall)
		res, err := m.Run(src)
		h.opsConsumed.Add(res.Ops)
		success := err == nil
		diag.Global().Evaluation("async", success, float64(time.Since(start).Milliseconds()))
		if err != nil {
			diag.EndSpanError(span, err)
			ticket.Finish("", err.Error())
			return
		}
		encoded, encErr := codec.Encode(res.Value)
		if encErr != nil {
			diag.EndSpanError(span, encErr)
			ticket.Finish("", diag.FFI("encode result: %v", encErr).Error())
			return
		}
		diag.EndSpanOK(span)
		ticket.Finish(encoded, "")
	}()
	return id
}

// AsyncEvalStatus is the poll result for an eval_async_start ticket.
type AsyncEvalStatus struct {
	Running bool
	Result  string
	Err     string
}

// EvalAsyncPoll reports the current state of the ticket returned by
// EvalAsyncStart. Polling a ticket ID that was never issued reports Err set
// rather than panicking.
func (mgr *Manager) EvalAsyncPoll(ticketID uint64) AsyncEvalStatus {
	t, ok := mgr.Ticket(ticketID)
	if !ok {
		return AsyncEvalStatus{Err: "unknown eval ticket"}
	}
	status, encoded, errMsg := t.Poll()
	if status == dispatch.TicketRunning {
		return AsyncEvalStatus{Running: true}
	}
	return AsyncEvalStatus{Result: encoded, Err: errMsg}
}

// RegisterFunction binds name to a host-supplied callback ID and arity,
// making it callable from scripts run on this handle.
func (h *Handle) RegisterFunction(name string, callbackID uint64, arity uint8) {
	h.Registry.Register(name, callbackID, arity)
}

// ListFunctions returns the script-visible names currently registered.
func (h *Handle) ListFunctions() []string {
	return h.Registry.Names()
}

// Stats is the engine_stats introspection payload: cumulative operations
// consumed across every evaluation run on this handle, the number of
// registered callbacks, and the current async queue depth.
type Stats struct {
	OpsConsumed     int64
	FunctionCount   int
	AsyncQueueDepth int
}

// EngineStats reports the handle's cumulative counters.
func (h *Handle) EngineStats() Stats {
	return Stats{
		OpsConsumed:     h.opsConsumed.Load(),
		FunctionCount:   h.Registry.Count(),
		AsyncQueueDepth: h.Queue.Depth(),
	}
}
