package loopexec

import "sync/atomic"

// State is the lifecycle of an EventLoop, renamed from the teacher's
// internal LoopState to the runtime's own vocabulary (NotStarted ->
// Started -> ShuttingDown -> Shutdown -> Terminated). Polling vs
// actively-running-a-task is tracked separately (see FastState.polling)
// rather than folded into this enum, since callers outside the loop
// only ever need to distinguish these five stages.
type State uint64

const (
	// NotStarted: the loop has been constructed but Run has not been
	// called yet.
	NotStarted State = iota
	// Started: Run is executing, the loop is accepting and draining
	// work (whether blocked in poll or actively running a task).
	Started
	// ShuttingDown: shutdown has been requested; the loop drains
	// already-queued work and rejects new submissions with
	// ErrRejected, per the explicit-reject policy.
	ShuttingDown
	// Shutdown: the loop has stopped processing but termination
	// cleanup (rejecting outstanding scheduled-task promises, closing
	// the poller and wake fd) has not yet been confirmed complete.
	Shutdown
	// Terminated: cleanup is complete and Run returns.
	Terminated
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Started:
		return "Started"
	case ShuttingDown:
		return "ShuttingDown"
	case Shutdown:
		return "Shutdown"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// FastState is a lock-free state machine, adapted from the teacher's
// eventloop.FastState: pure atomic CAS with no mutex, cache-line
// padded to avoid false sharing between the submitting goroutines and
// the loop goroutine that owns it.
type FastState struct {
	_       [64]byte
	v       atomic.Uint64
	polling atomic.Bool
	_       [55]byte
}

// NewFastState creates a state machine in NotStarted.
func NewFastState() *FastState {
	s := &FastState{}
	s.v.Store(uint64(NotStarted))
	return s
}

// Load returns the current state.
func (s *FastState) Load() State { return State(s.v.Load()) }

// Store unconditionally sets the state. Used only by finishShutdown for
// the Shutdown and Terminated transitions; every other transition must
// use TryTransition
// so concurrent callers observe a consistent winner.
func (s *FastState) Store(state State) { s.v.Store(uint64(state)) }

// TryTransition performs from -> to iff the current value is from.
func (s *FastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// SetPolling records whether the loop goroutine is currently blocked
// in the poller. Submit does not consult it: it writes the wakeup fd on
// every call.
func (s *FastState) SetPolling(v bool) { s.polling.Store(v) }

// IsPolling reports whether the loop goroutine is blocked in poll.
func (s *FastState) IsPolling() bool { return s.polling.Load() }

// CanAcceptWork reports whether Submit should enqueue rather than
// reject outright.
func (s *FastState) CanAcceptWork() bool {
	state := s.Load()
	return state == NotStarted || state == Started
}

// IsTerminal reports whether the loop has fully terminated.
func (s *FastState) IsTerminal() bool { return s.Load() == Terminated }
