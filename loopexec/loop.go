// Package loopexec provides the single-threaded event loop that every
// Channel in this runtime is bound to: a task queue, a scheduled-task
// heap, and an epoll-backed I/O poller driven from one goroutine, so
// all pipeline and transport code belonging to a given Channel runs
// without further synchronization.
//
// Adapted from the teacher's eventloop package (joeycumines/go-utilpkg),
// generalized from a JS-compatible microtask/timer runtime into a
// general-purpose reactor executor: FastState's CAS state machine, the
// chunked internal queue and lock-free external submission ring, the
// epoll poller, and the P-Square latency metrics are kept; the
// JS-specific surface (microtask-vs-macrotask distinction, Promise/A+
// combinators, EventTarget, the dual fast-path/full-tick execution
// tiers) is dropped, since this domain's channels always register at
// least one I/O fd and so never benefit from a task-only fast path.
package loopexec

import (
	"container/heap"
	"context"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowmesh/reactor/future"
)

// timerEntry is one pending scheduled task.
type timerEntry struct {
	when    time.Time
	task    func()
	handle  *future.ScheduledHandle
	promise future.Promise
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool   { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)        { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)          { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

var loopIDCounter atomic.Uint64

// EventLoop is a single-threaded executor: one goroutine runs Run,
// firing expired timers, draining the task queues, and polling
// registered file descriptors, in that order, every tick.
type EventLoop struct {
	id uint64

	state    *FastState
	opts     *loopOptions
	external *submitRing
	internal *internalQueue
	timers   timerHeap
	registry *promiseRegistry
	metrics  *metricsCollector

	poller poller
	wakeFD int

	// breakoutInterval bounds run_all_tasks and the idle poll wait (see
	// processExternal/calculateTimeout), copied from loopOptions at
	// construction since spec lists it as an EventLoop field in its own
	// right, not merely an internal tuning knob.
	breakoutInterval time.Duration

	externalLen atomic.Int64

	tickAnchorMu sync.RWMutex
	tickAnchor   time.Time
	tickElapsed  atomic.Int64

	// gracefulShutdownQuietPeriod/gracefulShutdownTimeout/
	// shutdownRequestedAt/lastExecutionTime implement shutdown_gracefully's
	// (quiet_period, timeout) contract (see confirmShutdown). They are set
	// once, under stopOnce, before ShuttingDown is ever observed by the
	// loop goroutine, so no further synchronization is needed to read them
	// from Run.
	gracefulShutdownQuietPeriod time.Duration
	gracefulShutdownTimeout     time.Duration
	shutdownRequestedAt         time.Time
	lastExecutionTime           time.Time

	loopGoroutineID atomic.Uint64
	loopDone        chan struct{}
	stopOnce        sync.Once
	closeOnce       sync.Once

	// OnOverload, if set, is invoked on the loop goroutine when a tick's
	// external-task budget is exhausted with work still queued.
	OnOverload func(error)
}

// New constructs an EventLoop in State NotStarted. The returned loop
// owns a kernel epoll instance and a wakeup eventfd from construction,
// both released when the loop finishes shutting down (after
// ShutdownGracefully or cancellation of Run's context).
func New(opts ...Option) (*EventLoop, error) {
	cfg := resolveOptions(opts)

	wakeFD, err := createWakeFD()
	if err != nil {
		return nil, err
	}

	l := &EventLoop{
		id:               loopIDCounter.Add(1),
		state:            NewFastState(),
		opts:             cfg,
		external:         newSubmitRing(),
		internal:         newInternalQueue(),
		timers:           make(timerHeap, 0),
		registry:         newPromiseRegistry(),
		metrics:          newMetricsCollector(cfg.metricsEnabled),
		wakeFD:           wakeFD,
		breakoutInterval: cfg.breakoutInterval,
		loopDone:         make(chan struct{}),
	}

	if err := l.poller.Init(); err != nil {
		_ = closeFD(wakeFD)
		return nil, err
	}
	if err := l.poller.RegisterFD(wakeFD, EventRead, func(IOEvents) { l.drainWakeFD() }); err != nil {
		_ = l.poller.Close()
		_ = closeFD(wakeFD)
		return nil, err
	}

	return l, nil
}

// ID identifies the loop instance, stable for its lifetime.
func (l *EventLoop) ID() uint64 { return l.id }

// State returns the loop's current lifecycle state.
func (l *EventLoop) State() State { return l.state.Load() }

// Metrics returns a point-in-time snapshot. Task and tick counters and
// latency figures stay zero unless WithMetrics(true) was passed to New;
// queue lengths are always reported.
func (l *EventLoop) Metrics() Metrics {
	return l.metrics.snapshot(int(l.externalLen.Load()), l.internal.Length(), len(l.timers))
}

// Run blocks, executing ticks until ctx is canceled or ShutdownGracefully
// completes the termination sequence. It must be called exactly once,
// from a goroutine dedicated to this loop.
func (l *EventLoop) Run(ctx context.Context) error {
	if l.isLoopThread() {
		return ErrReentrantRun
	}
	if !l.state.TryTransition(NotStarted, Started) {
		if l.state.Load() == Terminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}
	defer close(l.loopDone)

	l.tickAnchorMu.Lock()
	l.tickAnchor = time.Now()
	l.tickAnchorMu.Unlock()
	l.tickElapsed.Store(0)

	l.loopGoroutineID.Store(goroutineID())
	defer l.loopGoroutineID.Store(0)

	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.wake()
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-ctx.Done():
			l.beginShutdown()
			l.drainToTermination()
			return ctx.Err()
		default:
		}

		state := l.state.Load()
		if state == ShuttingDown {
			if l.shuttingDownTick() {
				continue
			}
			return nil
		}
		if state == Shutdown || state == Terminated {
			return nil
		}

		l.tick()
	}
}

// beginShutdown performs the Started/ShuttingDown -> ShuttingDown
// transition exactly once and wakes the loop so it notices.
func (l *EventLoop) beginShutdown() {
	for {
		cur := l.state.Load()
		if cur == ShuttingDown || cur == Shutdown || cur == Terminated {
			return
		}
		if l.state.TryTransition(cur, ShuttingDown) {
			l.wake()
			return
		}
	}
}

// drainToTermination runs ticks until all queued work is gone, then
// finalizes. Used on the context-cancellation path, where Run must
// return promptly rather than loop back through tick()'s full poll.
func (l *EventLoop) drainToTermination() {
	for l.drainOneTick() {
	}
	l.finishShutdown()
}

// drainOneTick runs expired timers and queued tasks without blocking
// in the poller, reporting whether any work remained before it ran.
func (l *EventLoop) drainOneTick() bool {
	hadWork := l.hasPendingWork()
	l.runTimers()
	l.processInternal()
	l.processExternal()
	return hadWork
}

func (l *EventLoop) hasPendingWork() bool {
	return len(l.timers) > 0 || l.internal.Length() > 0 || !l.external.IsEmpty()
}

// shuttingDownTick runs one ShuttingDown-state iteration: cancel every
// still-scheduled timer (per confirm_shutdown's "cancels all scheduled
// tasks before draining"), drain whatever tasks were already queued,
// then check confirmShutdown. Reports whether the loop should keep
// iterating; false means finishShutdown has already run.
func (l *EventLoop) shuttingDownTick() bool {
	l.cancelScheduledTasks()

	hadWork := l.hasPendingWork()
	l.processInternal()
	l.processExternal()
	if hadWork {
		l.lastExecutionTime = time.Now()
	}

	if l.confirmShutdown() {
		l.finishShutdown()
		return false
	}

	if !hadWork {
		// No task arrived this tick: block briefly in the poller so a
		// fresh Submit (which still wakes the loop even though it will
		// be rejected) or registered-fd readiness is observed promptly,
		// without busy-spinning until quietPeriod/timeout resolve.
		_, _ = l.poller.PollIO(l.shutdownPollTimeout())
	}
	return true
}

// cancelScheduledTasks empties the timer heap, canceling each handle
// and settling its promise as canceled, idempotent once the heap is
// empty.
func (l *EventLoop) cancelScheduledTasks() {
	for len(l.timers) > 0 {
		entry := heap.Pop(&l.timers).(*timerEntry)
		if entry.handle != nil {
			entry.handle.Cancel()
		}
		entry.promise.TryCancel()
	}
}

// confirmShutdown implements shutdown_gracefully's termination test:
// true once timeout has elapsed since the request, or no task has run
// for quietPeriod, whichever comes first.
func (l *EventLoop) confirmShutdown() bool {
	now := time.Now()
	if now.Sub(l.shutdownRequestedAt) >= l.gracefulShutdownTimeout {
		return true
	}
	return now.Sub(l.lastExecutionTime) >= l.gracefulShutdownQuietPeriod
}

// shutdownPollTimeout bounds the next poll by however long remains
// until quietPeriod or timeout would resolve confirmShutdown, whichever
// is sooner, clamped to at least 1ms.
func (l *EventLoop) shutdownPollTimeout() int {
	now := time.Now()
	remainingQuiet := l.gracefulShutdownQuietPeriod - now.Sub(l.lastExecutionTime)
	remainingTimeout := l.gracefulShutdownTimeout - now.Sub(l.shutdownRequestedAt)
	d := remainingQuiet
	if remainingTimeout < d {
		d = remainingTimeout
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return int(d.Milliseconds())
}

// finishShutdown closes the poller and wake fd, fails every
// still-pending scheduled-task promise, and settles Terminated.
func (l *EventLoop) finishShutdown() {
	l.state.Store(Shutdown)
	l.registry.RejectAll(ErrLoopTerminated)
	l.closeOnce.Do(func() {
		_ = l.poller.Close()
		_ = closeFD(l.wakeFD)
	})
	l.state.Store(Terminated)
}

// ShutdownGracefully requests shutdown: the loop drains already-queued
// tasks, then waits until no task has run for quietPeriod, or timeout
// has elapsed since this call, whichever is first. ctx additionally
// bounds how long this call itself blocks waiting for that to happen;
// it does not affect the loop's own quietPeriod/timeout bookkeeping.
// Negative quietPeriod is treated as zero; timeout is raised to
// quietPeriod if given smaller, since timeout can never fire first
// otherwise. Idempotent: a second call observes the same outcome as
// the first, using the first call's quietPeriod/timeout.
func (l *EventLoop) ShutdownGracefully(ctx context.Context, quietPeriod, timeout time.Duration) error {
	var result error
	l.stopOnce.Do(func() {
		if quietPeriod < 0 {
			quietPeriod = 0
		}
		if timeout < quietPeriod {
			timeout = quietPeriod
		}
		now := time.Now()
		l.gracefulShutdownQuietPeriod = quietPeriod
		l.gracefulShutdownTimeout = timeout
		l.shutdownRequestedAt = now
		l.lastExecutionTime = now

		l.beginShutdown()
		select {
		case <-l.loopDone:
		case <-ctx.Done():
			result = ctx.Err()
			return
		}
	})
	if result != nil {
		return result
	}
	select {
	case <-l.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tick runs one full iteration: timers, internal queue, external
// queue, then a (possibly blocking) I/O poll.
func (l *EventLoop) tick() {
	start := time.Now()

	l.tickAnchorMu.RLock()
	anchor := l.tickAnchor
	l.tickAnchorMu.RUnlock()
	l.tickElapsed.Store(int64(time.Since(anchor)))

	l.runTimers()
	l.processInternal()
	l.processExternal()
	l.poll()

	l.metrics.recordTick()
	l.registry.Scavenge(32)
	_ = start
}

func (l *EventLoop) processInternal() {
	for {
		task, ok := l.internal.Pop()
		if !ok {
			return
		}
		l.safeExecute(task)
		if l.opts.strictOrdering {
			// nothing further to drain in this simplified runtime; kept
			// as a hook point for a future microtask tier.
		}
	}
}

// processExternal implements run_all_tasks(deadline = now +
// breakoutInterval): pop and run tasks until the external queue is
// empty or the deadline is reached, rechecking the deadline only every
// 64 tasks so the clock read doesn't dominate a burst of cheap tasks.
func (l *EventLoop) processExternal() {
	deadline := time.Now().Add(l.breakoutInterval)
	n := 0
	for {
		task := l.external.Pop()
		if task == nil {
			return
		}
		taskStart := time.Now()
		l.safeExecute(task)
		l.metrics.recordTask(float64(time.Since(taskStart).Nanoseconds()))
		l.externalLen.Add(-1)
		n++

		if n%64 == 0 && time.Now().After(deadline) {
			if !l.external.IsEmpty() && l.OnOverload != nil {
				l.OnOverload(ErrLoopOverloaded)
			}
			return
		}
	}
}

func (l *EventLoop) runTimers() {
	now := l.CurrentTickTime()
	for len(l.timers) > 0 {
		next := l.timers[0]
		if next.when.After(now) {
			return
		}
		heap.Pop(&l.timers)
		if next.handle != nil && next.handle.IsCanceled() {
			next.promise.TryCancel()
			continue
		}
		l.safeExecute(next.task)
	}
}

// poll transitions Started -> polling and blocks in epoll_wait for at
// most the time until the next timer fires, unless work is already
// queued, in which case it returns immediately.
func (l *EventLoop) poll() {
	if l.state.Load() != Started {
		return
	}
	if l.hasPendingWork() {
		return
	}

	l.state.SetPolling(true)
	defer l.state.SetPolling(false)

	if l.state.Load() != Started {
		return
	}

	timeout := l.calculateTimeout()
	if _, err := l.poller.PollIO(timeout); err != nil {
		log.Printf("loopexec: PollIO failed, terminating loop %d: %v", l.id, err)
		l.beginShutdown()
	}
}

// calculateTimeout bounds the idle poll wait by min(breakoutInterval,
// next timer deadline - now), per loop body item 3.
func (l *EventLoop) calculateTimeout() int {
	maxDelay := l.breakoutInterval
	if len(l.timers) > 0 {
		delay := l.timers[0].when.Sub(time.Now())
		if delay < 0 {
			delay = 0
		}
		if delay < maxDelay {
			maxDelay = delay
		}
	}
	if maxDelay > 0 && maxDelay < time.Millisecond {
		return 1
	}
	return int(maxDelay.Milliseconds())
}

// Submit enqueues fn for execution on the loop goroutine, callable
// from any goroutine. Satisfies future.Executor. Rejected explicitly
// (never silently dropped) once shutdown has been requested.
func (l *EventLoop) Submit(fn func()) error {
	state := l.state.Load()
	if state == Terminated || state == Shutdown {
		return ErrLoopTerminated
	}
	if state == ShuttingDown {
		return ErrRejected
	}
	l.external.Push(fn)
	l.externalLen.Add(1)
	l.wake()
	return nil
}

// SubmitInternal enqueues fn onto the loop-owned internal queue.
// Callers must already be executing on this loop's goroutine (e.g. a
// pipeline handler reacting to an event): no synchronization or wakeup
// is performed, since the loop will observe the push before it next
// blocks in poll.
func (l *EventLoop) SubmitInternal(fn func()) error {
	state := l.state.Load()
	if state == Terminated || state == Shutdown {
		return ErrLoopTerminated
	}
	if state == ShuttingDown {
		return ErrRejected
	}
	l.internal.Push(fn)
	return nil
}

// Schedule arranges for fn to run after delay, returning a handle that
// exposes completion as a future.Future and supports cancellation. The
// cancellation check happens when the timer is popped from the heap,
// per the compare-and-swap None->Requested protocol on ScheduledHandle.
func (l *EventLoop) Schedule(delay time.Duration, fn func()) *future.ScheduledHandle {
	p := future.New()
	handle := future.NewScheduledHandle(p)
	l.registry.Track(p)

	when := l.CurrentTickTime().Add(delay)
	entry := &timerEntry{when: when, promise: p, handle: handle, task: func() {
		if handle.IsCanceled() {
			p.TryCancel()
			return
		}
		fn()
		p.TrySucceed(nil)
	}}

	push := func() { heap.Push(&l.timers, entry) }
	var err error
	if l.InLoop() {
		err = l.SubmitInternal(push)
	} else {
		err = l.Submit(push)
	}
	if err != nil {
		p.TryFail(err)
	}
	return handle
}

// RegisterFD registers fd for readiness notification, delivered to cb
// on the loop goroutine.
func (l *EventLoop) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	return l.poller.RegisterFD(fd, events, cb)
}

// UnregisterFD stops monitoring fd.
func (l *EventLoop) UnregisterFD(fd int) error { return l.poller.UnregisterFD(fd) }

// ModifyFD changes the interest set for an already-registered fd.
func (l *EventLoop) ModifyFD(fd int, events IOEvents) error {
	return l.poller.ModifyFD(fd, events)
}

// CurrentTickTime returns the monotonic time cached for the tick in
// progress, stable for the duration of a single tick's handler calls.
func (l *EventLoop) CurrentTickTime() time.Time {
	l.tickAnchorMu.RLock()
	anchor := l.tickAnchor
	l.tickAnchorMu.RUnlock()
	if anchor.IsZero() {
		return time.Now()
	}
	return anchor.Add(time.Duration(l.tickElapsed.Load()))
}

func (l *EventLoop) wake() {
	if l.state.Load() == Terminated || l.state.Load() == Shutdown {
		return
	}
	var one [8]byte
	one[0] = 1
	_, _ = writeFD(l.wakeFD, one[:])
}

func (l *EventLoop) drainWakeFD() {
	var buf [8]byte
	for {
		if _, err := readFD(l.wakeFD, buf[:]); err != nil {
			return
		}
	}
}

func (l *EventLoop) safeExecute(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("loopexec: task panicked: %v", r)
		}
	}()
	fn()
}

func (l *EventLoop) isLoopThread() bool {
	id := l.loopGoroutineID.Load()
	return id != 0 && id == goroutineID()
}

// InLoop reports whether the calling goroutine is this loop's own
// goroutine, i.e. whether a caller may use SubmitInternal / mutate
// loop-owned state directly instead of going through Submit.
func (l *EventLoop) InLoop() bool { return l.isLoopThread() }

// goroutineID extracts the calling goroutine's ID from its stack trace
// header, used only to detect reentrant Run calls. Adapted verbatim
// from the teacher's eventloop.getGoroutineID.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
