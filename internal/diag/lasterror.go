package diag

import "github.com/oriys/rhaibridge/internal/tlocal"

// lastError is the thread-local error slot: a per-OS-thread optional string
// holding the most recent failure. Set overwrites; Take clears on read, so
// a second read without an intervening failure returns false.
var lastError tlocal.Store[string]

// asyncDetected is the companion per-thread flag set by the callback
// dispatcher when a host function invoked on the synchronous path returns
// {status:"pending"} — i.e. an async-only function was called from a
// synchronous evaluation.
var asyncDetected tlocal.Store[bool]

// SetLastError records err as the most recent failure on the calling OS
// thread, rendering it with the stable taxonomy prefix.
func SetLastError(err *Error) {
	if err == nil {
		return
	}
	lastError.Set(err.Error())
	logError(err)
	Global().RecordError(err.Kind)
}

// TakeLastError returns and clears the error recorded for the calling OS
// thread, or ("", false) if none is pending.
func TakeLastError() (string, bool) {
	return lastError.Take()
}

// ClearLastError drops any pending error for the calling OS thread without
// returning it. Used after a successful operation that might otherwise
// leave a stale slot from an unrelated earlier failure.
func ClearLastError() {
	lastError.Clear()
}

// MarkAsyncDetected flags the calling OS thread as having observed a
// pending-status callback return on the synchronous path.
func MarkAsyncDetected() {
	asyncDetected.Set(true)
}

// TakeAsyncDetected reports and clears whether the calling OS thread hit
// MarkAsyncDetected since the last check.
func TakeAsyncDetected() bool {
	v, _ := asyncDetected.Take()
	return v
}
