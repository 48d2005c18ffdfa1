package future

import "sync/atomic"

// cancelState values for ScheduledHandle's compare-and-swap gate.
const (
	cancelNone int32 = iota
	cancelRequested
)

// ScheduledHandle is returned by every scheduling operation (timers,
// delayed tasks). It exposes the task's completion as a Future and lets
// the caller request cancellation exactly once; the owning loop
// observes IsCanceled() and skips execution if the task has not yet run.
//
// Cancellation is a compare-and-swap from None to Requested, mirroring
// spec's ScheduledTask.cancellationState, adapted from the teacher's
// timer-heap handle (eventloop/loop.go's scheduled-task variant).
type ScheduledHandle struct {
	promise Promise
	state   atomic.Int32
}

// NewScheduledHandle wraps promise (the task's completion token) in a
// handle that supports exactly-once cancellation.
func NewScheduledHandle(promise Promise) *ScheduledHandle {
	return &ScheduledHandle{promise: promise}
}

// Future returns the scheduled task's completion token.
func (h *ScheduledHandle) Future() Future {
	return h.promise
}

// Cancel requests cancellation, returning true iff this call won the
// race (i.e. the task had not already been marked for cancellation).
// Winning the CAS does not by itself settle the promise: the owning
// loop must observe IsCanceled before it dequeues the task and call
// TryCancel on the underlying promise, since the task may already be
// mid-execution by the time Cancel is called.
func (h *ScheduledHandle) Cancel() bool {
	return h.state.CompareAndSwap(cancelNone, cancelRequested)
}

// IsCanceled reports whether Cancel has been called, regardless of
// whether the underlying promise has settled yet.
func (h *ScheduledHandle) IsCanceled() bool {
	return h.state.Load() == cancelRequested
}
