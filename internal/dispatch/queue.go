package dispatch

import (
	"sync"
	"time"

	"github.com/oriys/rhaibridge/internal/diag"
)

// AsyncRequest is what an evaluator worker places on the pending queue for
// the host's poll loop to pick up.
type AsyncRequest struct {
	RequestID   uint64
	CallbackID  uint64
	EncodedArgs string
}

// AsyncResponse is what the host delivers back into a request's single-shot
// completion slot. Exactly one of Encoded / ErrMessage is meaningful,
// selected by Failed.
type AsyncResponse struct {
	Failed      bool
	Encoded     string
	ErrMessage  string
}

// AsyncQueue is the per-engine shared state of the asynchronous callback
// path: a FIFO of requests the host has not yet picked up, and a table of
// single-shot slots a worker blocks on while the host processes its
// request.
type AsyncQueue struct {
	mu      sync.Mutex
	pending []AsyncRequest
	slots   map[uint64]chan AsyncResponse
	nextReq uint64
	closed  bool
}

// NewAsyncQueue returns an empty, open AsyncQueue.
func NewAsyncQueue() *AsyncQueue {
	return &AsyncQueue{slots: make(map[uint64]chan AsyncResponse)}
}

// Enqueue allocates a request ID, registers its completion slot, and pushes
// the request onto the pending FIFO. It returns the request ID and a wait
// function the caller (the worker thread) invokes to block for the
// response, bounded by timeout (zero means wait indefinitely).
func (q *AsyncQueue) Enqueue(callbackID uint64, encodedArgs string, timeout time.Duration) (uint64, func() (AsyncResponse, error)) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, func() (AsyncResponse, error) {
			return AsyncResponse{}, diag.Disposed("engine disposed")
		}
	}
	q.nextReq++
	reqID := q.nextReq
	ch := make(chan AsyncResponse, 1)
	q.slots[reqID] = ch
	q.pending = append(q.pending, AsyncRequest{RequestID: reqID, CallbackID: callbackID, EncodedArgs: encodedArgs})
	q.mu.Unlock()

	wait := func() (AsyncResponse, error) {
		if timeout <= 0 {
			resp := <-ch
			return resp, nil
		}
		select {
		case resp := <-ch:
			return resp, nil
		case <-time.After(timeout):
			q.mu.Lock()
			delete(q.slots, reqID)
			q.mu.Unlock()
			return AsyncResponse{}, diag.Runtime("host callback timeout")
		}
	}
	return reqID, wait
}

// Dequeue is the host-side non-blocking poll: it pops the oldest pending
// request, or reports none available.
func (q *AsyncQueue) Dequeue() (AsyncRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return AsyncRequest{}, false
	}
	req := q.pending[0]
	q.pending = q.pending[1:]
	return req, true
}

// Complete fills requestID's response slot, unblocking the worker waiting
// on it. It fails if requestID is not outstanding (already completed,
// never issued, or timed out and abandoned).
func (q *AsyncQueue) Complete(requestID uint64, resp AsyncResponse) error {
	q.mu.Lock()
	ch, ok := q.slots[requestID]
	if ok {
		delete(q.slots, requestID)
	}
	q.mu.Unlock()
	if !ok {
		return diag.FFI("no outstanding async request %d", requestID)
	}
	ch <- resp
	return nil
}

// Close poisons the queue: any Enqueue after Close fails immediately with
// Disposed, and every currently outstanding slot receives a Disposed
// failure so its worker unblocks and exits. Used by engine_free to cancel
// in-flight async evaluations.
func (q *AsyncQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for id, ch := range q.slots {
		ch <- AsyncResponse{Failed: true, ErrMessage: "engine disposed"}
		delete(q.slots, id)
	}
	q.pending = nil
}

// Depth reports the number of requests waiting for the host to dequeue
// them, for engine_stats introspection.
func (q *AsyncQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
