package future

import (
	"errors"
	"sync"
)

// ErrAlreadyCanceled is the failure reason an aggregate reports when
// one of its child futures was canceled.
var ErrAlreadyCanceled = errors.New("future: already canceled")

// State is the lifecycle of a Promise/Future.
type State int

const (
	// Pending means the operation has not yet completed.
	Pending State = iota
	// Succeeded means the operation completed with a value.
	Succeeded
	// Failed means the operation completed with an error.
	Failed
	// Canceled means the operation was canceled before completion.
	Canceled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	case Canceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Executor runs a continuation. loopexec.EventLoop satisfies this via
// its Submit method, so every OnComplete callback runs on the owning
// loop and observes the total order the rest of the runtime relies on.
type Executor interface {
	Submit(func()) error
}

// Future is the read-only view of a Promise.
type Future interface {
	// State returns the current lifecycle state.
	State() State
	// Result returns the success value and/or failure reason. Only one
	// of the two is meaningful, depending on State().
	Result() (value any, err error)
	// OnComplete registers fn to run on executor once the future
	// settles. If already settled, fn is scheduled immediately. Safe to
	// call from any goroutine, any number of times; every registered fn
	// fires exactly once.
	OnComplete(fn func(Future), executor Executor)
}

// Promise is the write side: at most one of TrySucceed/TryFail/TryCancel
// wins the race to settle the promise; subsequent calls are no-ops that
// return false, per the Promise/Future completes-once contract.
type Promise interface {
	Future

	// TrySucceed transitions Pending -> Succeeded, returning true iff
	// this call performed the transition.
	TrySucceed(value any) bool
	// TryFail transitions Pending -> Failed, returning true iff this
	// call performed the transition.
	TryFail(err error) bool
	// TryCancel transitions Pending -> Canceled, returning true iff this
	// call performed the transition.
	TryCancel() bool
}

type continuation struct {
	fn       func(Future)
	executor Executor
}

// promise is the concrete Promise/Future implementation, adapted from
// the teacher's mutex-guarded promise type (eventloop/promise.go),
// generalized from a single Result field to the spec's four-state
// lifecycle and from channel-based subscribers to executor-dispatched
// continuations.
type promise struct {
	mu            sync.Mutex
	state         State
	value         any
	err           error
	continuations []continuation
}

// New creates an unsettled (Pending) Promise/Future pair (the same object
// implements both interfaces, mirroring the teacher's design).
func New() Promise {
	return &promise{state: Pending}
}

func (p *promise) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *promise) Result() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

func (p *promise) OnComplete(fn func(Future), executor Executor) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	if p.state == Pending {
		p.continuations = append(p.continuations, continuation{fn: fn, executor: executor})
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	dispatch(fn, executor, p)
}

func (p *promise) TrySucceed(value any) bool {
	return p.trySettle(Succeeded, value, nil)
}

func (p *promise) TryFail(err error) bool {
	return p.trySettle(Failed, nil, err)
}

func (p *promise) TryCancel() bool {
	return p.trySettle(Canceled, nil, nil)
}

func (p *promise) trySettle(state State, value any, err error) bool {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return false
	}
	p.state = state
	p.value = value
	p.err = err
	pending := p.continuations
	p.continuations = nil
	p.mu.Unlock()

	for _, c := range pending {
		dispatch(c.fn, c.executor, p)
	}
	return true
}

func dispatch(fn func(Future), executor Executor, f Future) {
	if executor == nil {
		fn(f)
		return
	}
	if err := executor.Submit(func() { fn(f) }); err != nil {
		// Executor rejected the continuation (e.g. loop already
		// terminated). Run it inline rather than dropping it silently,
		// so a continuation is never lost.
		fn(f)
	}
}

// NewSucceeded returns an already-resolved Promise/Future, for APIs that
// need to return a Future synchronously (e.g. a no-op write).
func NewSucceeded(value any) Promise {
	p := &promise{state: Succeeded, value: value}
	return p
}

// NewFailed returns an already-rejected Promise/Future.
func NewFailed(err error) Promise {
	p := &promise{state: Failed, err: err}
	return p
}
