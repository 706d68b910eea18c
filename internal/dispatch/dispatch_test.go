package dispatch

import (
	"strings"
	"testing"
	"time"

	"github.com/oriys/rhaibridge/internal/codec"
)

type fakeInvoker struct {
	fn func(callbackID uint64, encodedArgs string) string
}

func (f fakeInvoker) Invoke(callbackID uint64, encodedArgs string) string {
	return f.fn(callbackID, encodedArgs)
}

func TestRegistryReplacesOldID(t *testing.T) {
	reg := NewRegistry()
	first := reg.Register("add", 100, 2)
	second := reg.Register("add", 200, 2)
	if first.ID == second.ID {
		t.Fatal("expected a new ID on re-registration")
	}
	if _, ok := reg.ResolveID(first.ID); ok {
		t.Fatal("old ID should no longer resolve")
	}
	got, ok := reg.ResolveName("add")
	if !ok || got.ID != second.ID {
		t.Fatalf("ResolveName should return the latest registration, got %+v", got)
	}
}

func TestSyncCallSuccess(t *testing.T) {
	reg := NewRegistry()
	reg.Register("add", 1, 2)
	invoker := fakeInvoker{fn: func(callbackID uint64, encodedArgs string) string {
		args, _ := codec.Decode(encodedArgs)
		sum := args.A.Items[0].I + args.A.Items[1].I
		resp := codec.NewObject()
		resp.Set("status", codec.String("success"))
		resp.Set("value", codec.Int(sum))
		enc, _ := codec.Encode(codec.ObjectOf(resp))
		return enc
	}}
	d := NewDispatcher(reg, NewAsyncQueue(), invoker, time.Second)
	v, err := d.SyncCall("add", []codec.Dynamic{codec.Int(10), codec.Int(20)})
	if err != nil {
		t.Fatal(err)
	}
	if !v.Equal(codec.Int(30)) {
		t.Fatalf("got %+v", v)
	}
}

func TestSyncCallPendingDetected(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fetch", 1, 0)
	invoker := fakeInvoker{fn: func(callbackID uint64, encodedArgs string) string {
		resp := codec.NewObject()
		resp.Set("status", codec.String("pending"))
		enc, _ := codec.Encode(codec.ObjectOf(resp))
		return enc
	}}
	d := NewDispatcher(reg, NewAsyncQueue(), invoker, time.Second)
	_, err := d.SyncCall("fetch", nil)
	if err == nil || !strings.Contains(err.Error(), "Use evalAsync()") {
		t.Fatalf("expected evalAsync guidance error, got %v", err)
	}
}

func TestSyncCallError(t *testing.T) {
	reg := NewRegistry()
	reg.Register("boom", 1, 0)
	invoker := fakeInvoker{fn: func(callbackID uint64, encodedArgs string) string {
		resp := codec.NewObject()
		resp.Set("status", codec.String("error"))
		resp.Set("message", codec.String("kaboom"))
		enc, _ := codec.Encode(codec.ObjectOf(resp))
		return enc
	}}
	d := NewDispatcher(reg, NewAsyncQueue(), invoker, time.Second)
	_, err := d.SyncCall("boom", nil)
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected kaboom error, got %v", err)
	}
}

func TestSyncCallUnknownCallback(t *testing.T) {
	d := NewDispatcher(NewRegistry(), NewAsyncQueue(), nil, time.Second)
	if _, err := d.SyncCall("missing", nil); err == nil {
		t.Fatal("expected unknown callback error")
	}
}

func TestAsyncCallRoundTrip(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fetch", 1, 0)
	queue := NewAsyncQueue()
	d := NewDispatcher(reg, queue, nil, time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		req, ok := waitForRequest(t, queue)
		if !ok {
			return
		}
		queue.Complete(req.RequestID, AsyncResponse{Encoded: `"data"`})
	}()

	v, err := d.AsyncCall("fetch", nil)
	<-done
	if err != nil {
		t.Fatal(err)
	}
	if !v.Equal(codec.String("data")) {
		t.Fatalf("got %+v", v)
	}
}

func TestAsyncCallTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.Register("slow", 1, 0)
	d := NewDispatcher(reg, NewAsyncQueue(), nil, 10*time.Millisecond)
	_, err := d.AsyncCall("slow", nil)
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestAsyncQueueCloseFailsOutstanding(t *testing.T) {
	queue := NewAsyncQueue()
	_, wait := queue.Enqueue(1, "[]", 0)
	queue.Close()
	resp, err := wait()
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Failed || resp.ErrMessage != "engine disposed" {
		t.Fatalf("expected disposed failure, got %+v", resp)
	}
}

func waitForRequest(t *testing.T, q *AsyncQueue) (AsyncRequest, bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if req, ok := q.Dequeue(); ok {
			return req, true
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for request")
	return AsyncRequest{}, false
}
