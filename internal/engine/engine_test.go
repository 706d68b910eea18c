package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/oriys/rhaibridge/internal/codec"
	"github.com/oriys/rhaibridge/internal/dispatch"
)

type fakeInvoker struct {
	fn func(callbackID uint64, encodedArgs string) string
}

func (f fakeInvoker) Invoke(callbackID uint64, encodedArgs string) string {
	return f.fn(callbackID, encodedArgs)
}

func echoInvoker() fakeInvoker {
	return fakeInvoker{fn: func(callbackID uint64, encodedArgs string) string {
		resp := codec.NewObject()
		resp.Set("status", codec.String("success"))
		resp.Set("value", codec.String("called"))
		enc, _ := codec.Encode(codec.ObjectOf(resp))
		return enc
	}}
}

func TestEvalArithmetic(t *testing.T) {
	mgr := NewManager()
	id, err := mgr.Create(SecureDefaults(), nil)
	if err != nil {
		t.Fatal(err)
	}
	h, ok := mgr.Get(id)
	if !ok {
		t.Fatal("expected live handle")
	}
	encoded, err := h.Eval("1 + 2 * 3")
	if err != nil {
		t.Fatal(err)
	}
	if encoded != "7" {
		t.Fatalf("got %q", encoded)
	}
}

func TestEvalCallsRegisteredFunction(t *testing.T) {
	mgr := NewManager()
	id, err := mgr.Create(SecureDefaults(), echoInvoker())
	if err != nil {
		t.Fatal(err)
	}
	h, _ := mgr.Get(id)
	h.RegisterFunction("greet", 42, 0)
	encoded, err := h.Eval("greet()")
	if err != nil {
		t.Fatal(err)
	}
	if encoded != `"called"` {
		t.Fatalf("got %q", encoded)
	}
}

func TestEvalAsyncDetectedOnSyncPath(t *testing.T) {
	invoker := fakeInvoker{fn: func(callbackID uint64, encodedArgs string) string {
		resp := codec.NewObject()
		resp.Set("status", codec.String("pending"))
		enc, _ := codec.Encode(codec.ObjectOf(resp))
		return enc
	}}
	mgr := NewManager()
	id, _ := mgr.Create(SecureDefaults(), invoker)
	h, _ := mgr.Get(id)
	h.RegisterFunction("fetch", 1, 0)
	_, err := h.Eval("fetch()")
	if err == nil || !strings.Contains(err.Error(), "Use evalAsync()") {
		t.Fatalf("expected evalAsync guidance error, got %v", err)
	}
}

func TestSetVarPersistsAcrossEvaluations(t *testing.T) {
	mgr := NewManager()
	id, _ := mgr.Create(SecureDefaults(), nil)
	h, _ := mgr.Get(id)
	if err := h.SetVar("x", codec.Int(10)); err != nil {
		t.Fatal(err)
	}
	encoded, err := h.Eval("x + 5")
	if err != nil {
		t.Fatal(err)
	}
	if encoded != "15" {
		t.Fatalf("got %q", encoded)
	}
}

func TestSetConstantRejectsAssignment(t *testing.T) {
	mgr := NewManager()
	id, _ := mgr.Create(SecureDefaults(), nil)
	h, _ := mgr.Get(id)
	h.SetConstant("pi", codec.Float(3.14))
	_, err := h.Eval("pi = 4.0;")
	if err == nil || !strings.Contains(err.Error(), "constant") {
		t.Fatalf("expected constant assignment error, got %v", err)
	}
}

func TestSetVarRejectsOverwritingConstant(t *testing.T) {
	mgr := NewManager()
	id, _ := mgr.Create(SecureDefaults(), nil)
	h, _ := mgr.Get(id)
	h.SetConstant("pi", codec.Float(3.14))
	if err := h.SetVar("pi", codec.Float(2.0)); err == nil {
		t.Fatal("expected error overwriting constant via set_var")
	}
}

func TestClearScopeDropsConstants(t *testing.T) {
	mgr := NewManager()
	id, _ := mgr.Create(SecureDefaults(), nil)
	h, _ := mgr.Get(id)
	h.SetConstant("pi", codec.Float(3.14))
	h.ClearScope()
	if err := h.SetVar("pi", codec.Float(2.0)); err != nil {
		t.Fatal(err)
	}
}

func TestAnalyzeCatchesSyntaxError(t *testing.T) {
	mgr := NewManager()
	id, _ := mgr.Create(SecureDefaults(), nil)
	h, _ := mgr.Get(id)
	if err := h.Analyze("let x = ;"); err == nil {
		t.Fatal("expected syntax error")
	}
	if err := h.Analyze("1 + 1"); err != nil {
		t.Fatalf("valid script should analyze clean, got %v", err)
	}
}

func TestEvalAsyncRoundTrip(t *testing.T) {
	mgr := NewManager()
	id, _ := mgr.Create(SecureDefaults(), nil)
	h, _ := mgr.Get(id)
	h.RegisterFunction("fetch", 7, 0)

	ticket := h.EvalAsyncStart(mgr, "fetch()")

	go func() {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			engineID, req, ok := mgr.DequeueAny()
			if ok {
				mgr.CompleteRequest(engineID, req.RequestID, dispatch.AsyncResponse{Encoded: `"data"`})
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		st := mgr.EvalAsyncPoll(ticket)
		if !st.Running {
			if st.Err != "" {
				t.Fatalf("unexpected async error: %s", st.Err)
			}
			if st.Result != `"data"` {
				t.Fatalf("got %q", st.Result)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for async eval to complete")
}

func TestDestroyFailsOutstandingAsyncEval(t *testing.T) {
	mgr := NewManager()
	id, _ := mgr.Create(SecureDefaults(), nil)
	h, _ := mgr.Get(id)
	h.RegisterFunction("fetch", 9, 0)

	ticket := h.EvalAsyncStart(mgr, "fetch()")
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, _, ok := mgr.DequeueAny(); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	mgr.Destroy(id)

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		st := mgr.EvalAsyncPoll(ticket)
		if !st.Running {
			if !strings.Contains(st.Err, "disposed") {
				t.Fatalf("expected disposed error, got %q", st.Err)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for disposal to resolve the ticket")
}

func TestDestroyedHandleIsUnresolvable(t *testing.T) {
	mgr := NewManager()
	id, _ := mgr.Create(SecureDefaults(), nil)
	mgr.Destroy(id)
	if _, ok := mgr.Get(id); ok {
		t.Fatal("expected destroyed handle to be unresolvable")
	}
}

func TestEngineStats(t *testing.T) {
	mgr := NewManager()
	id, _ := mgr.Create(SecureDefaults(), echoInvoker())
	h, _ := mgr.Get(id)
	h.RegisterFunction("greet", 1, 0)
	if _, err := h.Eval("greet()"); err != nil {
		t.Fatal(err)
	}
	stats := h.EngineStats()
	if stats.FunctionCount != 1 {
		t.Fatalf("expected 1 registered function, got %d", stats.FunctionCount)
	}
	if stats.OpsConsumed == 0 {
		t.Fatal("expected nonzero ops consumed")
	}
}
