package dispatch

import "sync"

// TicketStatus is the state of an in-flight or finished async evaluation.
type TicketStatus int

const (
	TicketRunning TicketStatus = iota
	TicketComplete
)

// Ticket tracks one eval_async_start evaluation: created Running, moves to
// Complete exactly once (by the worker goroutine that ran the script),
// and is polled non-blockingly by eval_async_poll.
type Ticket struct {
	mu     sync.Mutex
	status TicketStatus
	result string // encoded value, meaningful only when status == TicketComplete && err == ""
	errMsg string
}

// NewTicket returns a fresh, Running ticket.
func NewTicket() *Ticket {
	return &Ticket{status: TicketRunning}
}

// Finish transitions the ticket to Complete with either an encoded result
// or an error message (exactly one should be non-empty; an empty result
// with no error is the valid "null" outcome). Finish is idempotent: only
// the first call has an effect, matching the queue invariant that a
// ticket resolves exactly once.
func (t *Ticket) Finish(encoded string, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == TicketComplete {
		return
	}
	t.status = TicketComplete
	t.result = encoded
	t.errMsg = errMsg
}

// Poll reports the ticket's current status and, once Complete, its
// outcome.
func (t *Ticket) Poll() (status TicketStatus, encoded string, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.result, t.errMsg
}
