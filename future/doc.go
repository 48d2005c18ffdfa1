// Package future provides the completion tokens used by every async
// channel and event-loop operation: Promise (write side) and Future
// (read side), plus AggregatePromise for fan-in completion and
// ScheduledHandle for cancellable scheduled tasks.
//
// A promise is resolved at most once: Pending -> {Succeeded, Failed,
// Canceled}. Continuations registered before or after completion both
// fire exactly once, on the Executor supplied to OnComplete (typically
// the event loop that owns the associated channel), preserving the
// single-threaded ordering guarantee the rest of the runtime depends on.
package future
