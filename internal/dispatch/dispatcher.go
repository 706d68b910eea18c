package dispatch

import (
	"context"
	"time"

	"github.com/oriys/rhaibridge/internal/codec"
	"github.com/oriys/rhaibridge/internal/diag"
)

// HostInvoker is the sync-path trampoline: the host-registered function
// pointer that a script's direct call to a host function becomes on the
// host's own thread. encodedArgs and the returned string are both
// canonical Encoded Value text — encodedArgs an Array, the return an
// Object of shape {status:"success",value:...} | {status:"pending"} |
// {status:"error",message:"..."}.
type HostInvoker interface {
	Invoke(callbackID uint64, encodedArgs string) string
}

// Dispatcher resolves a script's named function call to a registered
// CallbackEntry and routes it down the synchronous (direct trampoline) or
// asynchronous (request/response queue) path. Both SyncCall and AsyncCall
// satisfy script.HostCall, so either can be wired directly as a
// script.Machine's Call field: a synchronous evaluation binds SyncCall and
// an asynchronous one binds AsyncCall.
type Dispatcher struct {
	Registry *Registry
	Queue    *AsyncQueue
	Invoker  HostInvoker
	Timeout  time.Duration
}

// NewDispatcher wires together a registry, async queue, host invoker, and
// callback timeout (the engine's configured timeout_ms, reused here per
// the design note that a runaway host callback must still be bounded by
// the evaluator's overall budget).
func NewDispatcher(registry *Registry, queue *AsyncQueue, invoker HostInvoker, timeout time.Duration) *Dispatcher {
	return &Dispatcher{Registry: registry, Queue: queue, Invoker: invoker, Timeout: timeout}
}

func encodeArgs(args []codec.Dynamic) (string, error) {
	return codec.Encode(codec.ArrayOf(args...))
}

// SyncCall implements the §4.4.3 synchronous path: direct invocation of
// the host trampoline on the calling thread, with no queueing and no
// cross-thread coordination.
func (d *Dispatcher) SyncCall(name string, args []codec.Dynamic) (codec.Dynamic, error) {
	entry, ok := d.Registry.ResolveName(name)
	if !ok {
		return codec.Dynamic{}, errUnknownCallback(name)
	}
	_, span := diag.StartSpan(context.Background(), "rhaibridge.dispatch",
		diag.AttrCallbackID.Int64(int64(entry.ID)), diag.AttrMode.String("sync"))
	if d.Invoker == nil {
		err := diag.FFI("no host invoker registered")
		diag.EndSpanError(span, err)
		return codec.Dynamic{}, err
	}
	encoded, err := encodeArgs(args)
	if err != nil {
		diag.EndSpanError(span, err)
		return codec.Dynamic{}, err
	}
	respText := d.Invoker.Invoke(entry.ID, encoded)
	status, value, message, err := decodeCallbackResponse(respText)
	if err != nil {
		diag.EndSpanError(span, err)
		return codec.Dynamic{}, err
	}
	switch status {
	case "success":
		diag.EndSpanOK(span)
		diag.Global().Dispatch("sync", "success")
		return value, nil
	case "pending":
		diag.MarkAsyncDetected()
		err := diag.Runtime("Async function detected. Use evalAsync() to call async functions.")
		diag.EndSpanError(span, err)
		diag.Global().Dispatch("sync", "pending")
		return codec.Dynamic{}, err
	case "error":
		err := diag.Runtime("%s", message)
		diag.EndSpanError(span, err)
		diag.Global().Dispatch("sync", "error")
		return codec.Dynamic{}, err
	default:
		err := diag.FFI("unknown callback response status %q", status)
		diag.EndSpanError(span, err)
		diag.Global().Dispatch("sync", "error")
		return codec.Dynamic{}, err
	}
}

// AsyncCall implements the §4.4.4 asynchronous path: the calling goroutine
// (an eval_async_start worker) enqueues a request and blocks on its
// single-shot slot, bounded by the dispatcher's timeout, while the host's
// poll loop dequeues, invokes the callback, and completes the slot.
func (d *Dispatcher) AsyncCall(name string, args []codec.Dynamic) (codec.Dynamic, error) {
	entry, ok := d.Registry.ResolveName(name)
	if !ok {
		return codec.Dynamic{}, errUnknownCallback(name)
	}
	_, span := diag.StartSpan(context.Background(), "rhaibridge.dispatch",
		diag.AttrCallbackID.Int64(int64(entry.ID)), diag.AttrMode.String("async"))
	encoded, err := encodeArgs(args)
	if err != nil {
		diag.EndSpanError(span, err)
		return codec.Dynamic{}, err
	}
	reqID, wait := d.Queue.Enqueue(entry.ID, encoded, d.Timeout)
	span.SetAttributes(diag.AttrRequestID.Int64(int64(reqID)))
	diag.Global().SetAsyncQueueDepth(d.Queue.Depth())
	resp, err := wait()
	if err != nil {
		diag.EndSpanError(span, err)
		diag.Global().Dispatch("async", "error")
		return codec.Dynamic{}, err
	}
	if resp.Failed {
		err := diag.Runtime("%s", resp.ErrMessage)
		diag.EndSpanError(span, err)
		diag.Global().Dispatch("async", "error")
		return codec.Dynamic{}, err
	}
	v, err := codec.Decode(resp.Encoded)
	if err != nil {
		err = diag.FFI("decode error in callback response: %v", err)
		diag.EndSpanError(span, err)
		diag.Global().Dispatch("async", "error")
		return codec.Dynamic{}, err
	}
	diag.EndSpanOK(span)
	diag.Global().Dispatch("async", "success")
	return v, nil
}

// decodeCallbackResponse parses the host trampoline's encoded response
// object into its status/value/message parts.
func decodeCallbackResponse(text string) (status string, value codec.Dynamic, message string, err error) {
	d, decErr := codec.Decode(text)
	if decErr != nil {
		return "", codec.Dynamic{}, "", diag.FFI("malformed callback response: %v", decErr)
	}
	if d.Kind != codec.KindObject {
		return "", codec.Dynamic{}, "", diag.FFI("callback response must be an object")
	}
	st, ok := d.O.Get("status")
	if !ok || st.Kind != codec.KindString {
		return "", codec.Dynamic{}, "", diag.FFI("callback response missing string status")
	}
	switch st.S {
	case "success":
		v, _ := d.O.Get("value")
		return "success", v, "", nil
	case "pending":
		return "pending", codec.Dynamic{}, "", nil
	case "error":
		msg, _ := d.O.Get("message")
		return "error", codec.Dynamic{}, msg.S, nil
	default:
		return st.S, codec.Dynamic{}, "", nil
	}
}
