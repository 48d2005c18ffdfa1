package dispatch

import "errors"

var (
	// ErrNoFDReceived is returned when a link read completes without
	// SCM_RIGHTS ancillary data attached.
	ErrNoFDReceived = errors.New("dispatch: no file descriptor in ancillary data")

	// ErrNoWorkers is returned by NewDispatcherLoop when asked to build
	// a pool of zero workers.
	ErrNoWorkers = errors.New("dispatch: at least one worker is required")

	// ErrDispatcherAttachFailed is wrapped into the error a WorkerLoop
	// returns once its bounded retry budget for attaching to the
	// dispatcher link is exhausted.
	ErrDispatcherAttachFailed = errors.New("dispatch: worker failed to attach to dispatcher link")
)
