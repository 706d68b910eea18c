// Package main is the C1 Boundary Layer: the stable C ABI this module
// exports as a shared library, and the only place that speaks cgo. Every
// exported function that reaches the engine table runs under guard: it
// recovers from any panic in the Go call graph beneath it and reports
// failure through the thread-local error slot rather than letting an unwind
// cross the ABI. set_host_invoker, get_last_error and free_string run
// without guard.
package main

/*
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	uint64_t max_operations;
	uint64_t max_stack_depth;
	uint64_t max_string_length;
	uint64_t timeout_ms;
	uint8_t  disable_file_io;
	uint8_t  disable_eval;
	uint8_t  disable_modules;
	uint8_t  _padding[5];
} EngineConfig;

typedef struct {
	uint64_t request_id;
	uint64_t callback_id;
	char*    encoded_args;
} AsyncRequestOut;

typedef char* (*InvokeHostCallbackFn)(uint64_t callback_id, const char* encoded_args);

static char* rhaibridge_call_invoker(InvokeHostCallbackFn fn, uint64_t callback_id, const char* encoded_args) {
	return fn(callback_id, encoded_args);
}
*/
import "C"

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"unsafe"

	"github.com/oriys/rhaibridge/internal/codec"
	"github.com/oriys/rhaibridge/internal/diag"
	"github.com/oriys/rhaibridge/internal/dispatch"
	"github.com/oriys/rhaibridge/internal/engine"
)

// manager is the process-wide handle table. There is exactly one: the C
// ABI has no notion of "which process", so a single global is the correct
// scope, matching the "persisted state: none beyond process-local engines"
// note in the design.
var manager = engine.NewManager()

// init runs when the host dlopen's this shared library (the Go runtime
// starts and every package-main init fires before any //export function
// can be called). It wires up the ambient logging/metrics/tracing stack,
// mirroring the daemon startup sequence the rest of the tree uses, and
// arms a graceful tracing flush on SIGINT/SIGTERM.
func init() {
	diag.InitStructured(os.Getenv("RHAIBRIDGE_LOG_FORMAT"), os.Getenv("RHAIBRIDGE_LOG_LEVEL"))
	diag.InitMetrics("rhaibridge")

	tracingCfg := diag.TracingConfig{
		Enabled:     os.Getenv("RHAIBRIDGE_TRACING_ENABLED") == "true",
		Endpoint:    os.Getenv("RHAIBRIDGE_OTLP_ENDPOINT"),
		ServiceName: "rhaibridge",
		SampleRate:  1.0,
	}
	if err := diag.InitTracing(context.Background(), tracingCfg); err != nil {
		diag.Op().Warn("tracing init failed", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if err := diag.ShutdownTracing(context.Background()); err != nil {
			diag.Op().Warn("tracing shutdown failed", "error", err)
		}
	}()
}

// loadDefaultConfig resolves the engine configuration used when engine_new
// is called with a null config pointer: a YAML document at
// RHAIBRIDGE_CONFIG_YAML_PATH if set, otherwise the named preset at
// RHAIBRIDGE_CONFIG_PRESET (empty resolves to "secure").
func loadDefaultConfig() (engine.Config, error) {
	if path := os.Getenv("RHAIBRIDGE_CONFIG_YAML_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return engine.Config{}, diag.FFI("reading engine config yaml: %v", err)
		}
		return engine.LoadConfigYAML(data)
	}
	return engine.LoadPreset(os.Getenv("RHAIBRIDGE_CONFIG_PRESET"))
}

// hostInvoker is the function pointer the host registers once via
// set_host_invoker. Guarded by invokerMu since engine_new on one thread
// could race a concurrent set_host_invoker on another, however unlikely in
// practice (the host is expected to set this once at startup).
var (
	invokerMu  sync.Mutex
	hostInvoke C.InvokeHostCallbackFn
)

// pendingOwner maps an outstanding async request ID to the engine handle
// that owns its queue. async_dequeue_request/async_complete carry no
// handle argument in the boundary API, so this bookkeeping is what lets
// async_complete route a response back to the right engine's AsyncQueue.
var (
	pendingMu    sync.Mutex
	pendingOwner = make(map[uint64]uint64) // request_id -> engine handle
)

// cInvoker adapts the registered C function pointer to dispatch.HostInvoker.
type cInvoker struct{}

func (cInvoker) Invoke(callbackID uint64, encodedArgs string) string {
	invokerMu.Lock()
	fn := hostInvoke
	invokerMu.Unlock()
	if fn == nil {
		return `{"status":"error","message":"no host invoker registered"}`
	}
	cArgs := C.CString(encodedArgs)
	defer C.free(unsafe.Pointer(cArgs))
	cResult := C.rhaibridge_call_invoker(fn, C.uint64_t(callbackID), cArgs)
	if cResult == nil {
		return `{"status":"error","message":"host invoker returned null"}`
	}
	defer C.free(unsafe.Pointer(cResult))
	return C.GoString(cResult)
}

// guard recovers a panic inside fn, recording it as a diag.Panic on the
// calling thread's error slot and returning -1, so a Go-runtime panic never
// unwinds across the ABI into the host.
func guard(fn func() C.int) (status C.int) {
	defer func() {
		if r := recover(); r != nil {
			diag.SetLastError(diag.Panic("%v", r))
			status = -1
		}
	}()
	return fn()
}

func fail(err error) C.int {
	if de, ok := diag.AsDiag(err); ok {
		diag.SetLastError(de)
	} else {
		diag.SetLastError(diag.FFI("%s", err.Error()))
	}
	return -1
}

func cOutString(out **C.char, s string) {
	*out = C.CString(s)
}

//export engine_new
func engine_new(configPtr *C.EngineConfig) C.uint64_t {
	var id C.uint64_t
	guard(func() C.int {
		var cfg engine.Config
		if configPtr != nil {
			cfg = engine.Config{
				MaxOperations:   uint64(configPtr.max_operations),
				MaxStackDepth:   uint64(configPtr.max_stack_depth),
				MaxStringLength: uint64(configPtr.max_string_length),
				TimeoutMS:       uint64(configPtr.timeout_ms),
				DisableFileIO:   configPtr.disable_file_io != 0,
				DisableEval:     configPtr.disable_eval != 0,
				DisableModules:  configPtr.disable_modules != 0,
			}
		} else {
			var err error
			cfg, err = loadDefaultConfig()
			if err != nil {
				return fail(err)
			}
		}
		handleID, err := manager.Create(cfg, cInvoker{})
		if err != nil {
			return fail(err)
		}
		id = C.uint64_t(handleID)
		diag.ClearLastError()
		return 0
	})
	return id
}

//export engine_free
func engine_free(handle C.uint64_t) {
	guard(func() C.int {
		manager.Destroy(uint64(handle))
		return 0
	})
}

//export eval
func eval(handle C.uint64_t, scriptUTF8 *C.char, outEncoded **C.char) C.int {
	return guard(func() C.int {
		h, ok := manager.Get(uint64(handle))
		if !ok {
			return fail(diag.Disposed("engine disposed"))
		}
		encoded, err := h.Eval(C.GoString(scriptUTF8))
		if err != nil {
			return fail(err)
		}
		cOutString(outEncoded, encoded)
		diag.ClearLastError()
		return 0
	})
}

//export analyze
func analyze(handle C.uint64_t, scriptUTF8 *C.char, outEncoded **C.char) C.int {
	return guard(func() C.int {
		h, ok := manager.Get(uint64(handle))
		if !ok {
			return fail(diag.Disposed("engine disposed"))
		}
		resp := codec.NewObject()
		if err := h.Analyze(C.GoString(scriptUTF8)); err != nil {
			resp.Set("valid", codec.Bool(false))
			resp.Set("syntax_errors", codec.ArrayOf(codec.String(err.Error())))
			resp.Set("warnings", codec.ArrayOf())
		} else {
			resp.Set("valid", codec.Bool(true))
			resp.Set("syntax_errors", codec.ArrayOf())
			resp.Set("warnings", codec.ArrayOf())
		}
		encoded, err := codec.Encode(codec.ObjectOf(resp))
		if err != nil {
			return fail(err)
		}
		cOutString(outEncoded, encoded)
		diag.ClearLastError()
		return 0
	})
}

//export eval_async_start
func eval_async_start(handle C.uint64_t, scriptUTF8 *C.char, outEvalID *C.uint64_t) C.int {
	return guard(func() C.int {
		h, ok := manager.Get(uint64(handle))
		if !ok {
			return fail(diag.Disposed("engine disposed"))
		}
		id := h.EvalAsyncStart(manager, C.GoString(scriptUTF8))
		*outEvalID = C.uint64_t(id)
		diag.ClearLastError()
		return 0
	})
}

//export eval_async_poll
func eval_async_poll(evalID C.uint64_t, outEncoded **C.char, outDone *C.uint8_t) C.int {
	return guard(func() C.int {
		st := manager.EvalAsyncPoll(uint64(evalID))
		if st.Running {
			*outDone = 0
			diag.ClearLastError()
			return 0
		}
		*outDone = 1
		if st.Err != "" {
			return fail(diag.Runtime("%s", st.Err))
		}
		cOutString(outEncoded, st.Result)
		diag.ClearLastError()
		return 0
	})
}

//export register_function
func register_function(handle C.uint64_t, nameUTF8 *C.char, callbackID C.uint64_t, arity C.uint8_t) C.int {
	return guard(func() C.int {
		h, ok := manager.Get(uint64(handle))
		if !ok {
			return fail(diag.Disposed("engine disposed"))
		}
		h.RegisterFunction(C.GoString(nameUTF8), uint64(callbackID), uint8(arity))
		diag.ClearLastError()
		return 0
	})
}

//export list_functions
func list_functions(handle C.uint64_t, outEncoded **C.char) C.int {
	return guard(func() C.int {
		h, ok := manager.Get(uint64(handle))
		if !ok {
			return fail(diag.Disposed("engine disposed"))
		}
		names := h.ListFunctions()
		items := make([]codec.Dynamic, len(names))
		for i, n := range names {
			items[i] = codec.String(n)
		}
		encoded, err := codec.Encode(codec.ArrayOf(items...))
		if err != nil {
			return fail(err)
		}
		cOutString(outEncoded, encoded)
		diag.ClearLastError()
		return 0
	})
}

//export engine_stats
func engine_stats(handle C.uint64_t, outEncoded **C.char) C.int {
	return guard(func() C.int {
		h, ok := manager.Get(uint64(handle))
		if !ok {
			return fail(diag.Disposed("engine disposed"))
		}
		stats := h.EngineStats()
		obj := codec.NewObject()
		obj.Set("ops_consumed", codec.Int(stats.OpsConsumed))
		obj.Set("function_count", codec.Int(int64(stats.FunctionCount)))
		obj.Set("async_queue_depth", codec.Int(int64(stats.AsyncQueueDepth)))
		encoded, err := codec.Encode(codec.ObjectOf(obj))
		if err != nil {
			return fail(err)
		}
		cOutString(outEncoded, encoded)
		diag.ClearLastError()
		return 0
	})
}

//export set_var
func set_var(handle C.uint64_t, nameUTF8, encodedValue *C.char) C.int {
	return guard(func() C.int {
		h, ok := manager.Get(uint64(handle))
		if !ok {
			return fail(diag.Disposed("engine disposed"))
		}
		v, err := codec.Decode(C.GoString(encodedValue))
		if err != nil {
			return fail(err)
		}
		if err := h.SetVar(C.GoString(nameUTF8), v); err != nil {
			return fail(err)
		}
		diag.ClearLastError()
		return 0
	})
}

//export set_constant
func set_constant(handle C.uint64_t, nameUTF8, encodedValue *C.char) C.int {
	return guard(func() C.int {
		h, ok := manager.Get(uint64(handle))
		if !ok {
			return fail(diag.Disposed("engine disposed"))
		}
		v, err := codec.Decode(C.GoString(encodedValue))
		if err != nil {
			return fail(err)
		}
		h.SetConstant(C.GoString(nameUTF8), v)
		diag.ClearLastError()
		return 0
	})
}

//export clear_scope
func clear_scope(handle C.uint64_t) C.int {
	return guard(func() C.int {
		h, ok := manager.Get(uint64(handle))
		if !ok {
			return fail(diag.Disposed("engine disposed"))
		}
		h.ClearScope()
		diag.ClearLastError()
		return 0
	})
}

//export async_dequeue_request
func async_dequeue_request(out *C.AsyncRequestOut) C.int {
	return guard(func() C.int {
		engineID, req, ok := manager.DequeueAny()
		if !ok {
			return 0
		}
		pendingMu.Lock()
		pendingOwner[req.RequestID] = engineID
		pendingMu.Unlock()
		out.request_id = C.uint64_t(req.RequestID)
		out.callback_id = C.uint64_t(req.CallbackID)
		out.encoded_args = C.CString(req.EncodedArgs)
		return 1
	})
}

//export async_complete
func async_complete(requestID C.uint64_t, encoded, errMsg *C.char) C.int {
	return guard(func() C.int {
		reqID := uint64(requestID)
		pendingMu.Lock()
		engineID, ok := pendingOwner[reqID]
		delete(pendingOwner, reqID)
		pendingMu.Unlock()
		if !ok {
			return fail(diag.FFI("no outstanding async request %d", reqID))
		}
		resp := dispatch.AsyncResponse{}
		if errMsg != nil {
			resp.Failed = true
			resp.ErrMessage = C.GoString(errMsg)
		} else {
			resp.Encoded = C.GoString(encoded)
		}
		if err := manager.CompleteRequest(engineID, reqID, resp); err != nil {
			return fail(err)
		}
		diag.ClearLastError()
		return 0
	})
}

//export set_host_invoker
func set_host_invoker(fn C.InvokeHostCallbackFn) {
	invokerMu.Lock()
	hostInvoke = fn
	invokerMu.Unlock()
}

//export get_last_error
func get_last_error() *C.char {
	msg, ok := diag.TakeLastError()
	if !ok {
		return nil
	}
	return C.CString(msg)
}

//export free_string
func free_string(ptr *C.char) {
	C.free(unsafe.Pointer(ptr))
}

func main() {}
