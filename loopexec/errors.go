package loopexec

import "errors"

var (
	// ErrLoopAlreadyRunning is returned by Run when the loop has already
	// been started.
	ErrLoopAlreadyRunning = errors.New("loopexec: loop is already running")

	// ErrLoopTerminated is returned by Submit/Schedule once the loop has
	// fully terminated.
	ErrLoopTerminated = errors.New("loopexec: loop has been terminated")

	// ErrRejected is returned by Submit/Schedule once shutdown has been
	// requested: the runtime never silently drops a submission, it
	// always reports rejection explicitly so the caller can fail its own
	// promise instead of waiting forever.
	ErrRejected = errors.New("loopexec: task rejected, loop is shutting down")

	// ErrReentrantRun is returned when Run is called from within the
	// loop's own goroutine.
	ErrReentrantRun = errors.New("loopexec: cannot call Run from within the loop")

	// ErrLoopOverloaded is reported to OnOverload when the external
	// queue exceeds the per-tick processing budget.
	ErrLoopOverloaded = errors.New("loopexec: loop is overloaded")

	// ErrGroupShutdown is returned by EventLoopGroup.Next once
	// ShutdownGracefully has been called.
	ErrGroupShutdown = errors.New("loopexec: group is shutting down")
)
