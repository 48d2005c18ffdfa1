package loopexec

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowmesh/reactor/future"
)

// EventLoopGroup owns a fixed pool of EventLoops and hands one out per
// Channel registration, round-robin, so load spreads evenly across
// loops while each Channel keeps a stable affinity to the loop it was
// first assigned.
type EventLoopGroup struct {
	loops []*EventLoop
	next  atomic.Uint64

	mu           sync.Mutex
	shuttingDown bool
	termination  future.Promise
	started      bool
}

// NewGroup constructs a group of n loops sharing the same Options,
// none of which are running yet; call Start to launch them.
func NewGroup(n int, opts ...Option) (*EventLoopGroup, error) {
	if n <= 0 {
		n = 1
	}
	g := &EventLoopGroup{
		loops:       make([]*EventLoop, n),
		termination: future.New(),
	}
	for i := range g.loops {
		l, err := New(opts...)
		if err != nil {
			return nil, err
		}
		g.loops[i] = l
	}
	return g, nil
}

// Start launches every loop's Run on its own goroutine. Must be called
// at most once.
func (g *EventLoopGroup) Start(ctx context.Context) {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return
	}
	g.started = true
	g.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(g.loops))
	for _, l := range g.loops {
		l := l
		go func() {
			defer wg.Done()
			_ = l.Run(ctx)
		}()
	}
	go func() {
		wg.Wait()
		g.termination.TrySucceed(nil)
	}()
}

// Next returns the caller's own loop when called from one of the
// group's loop goroutines (affinity), otherwise the next loop in
// round-robin order, or ErrGroupShutdown once ShutdownGracefully has
// been called.
func (g *EventLoopGroup) Next() (*EventLoop, error) {
	g.mu.Lock()
	down := g.shuttingDown
	g.mu.Unlock()
	if down {
		return nil, ErrGroupShutdown
	}
	for _, l := range g.loops {
		if l.InLoop() {
			return l, nil
		}
	}
	idx := g.next.Add(1) - 1
	return g.loops[idx%uint64(len(g.loops))], nil
}

// Register returns the loop assigned to an affinity key (e.g. a
// Channel ID) as the key modulo the group size, so repeated calls for
// the same key return the same loop. It does not check which loop a
// channel's OS handle was created under.
func (g *EventLoopGroup) Register(affinity uint64) (*EventLoop, error) {
	g.mu.Lock()
	down := g.shuttingDown
	g.mu.Unlock()
	if down {
		return nil, ErrGroupShutdown
	}
	return g.loops[affinity%uint64(len(g.loops))], nil
}

// ShutdownGracefully requests shutdown on every loop concurrently,
// fanning out the same (quietPeriod, timeout) to each, and waits for
// all of them to terminate or ctx to expire.
func (g *EventLoopGroup) ShutdownGracefully(ctx context.Context, quietPeriod, timeout time.Duration) error {
	g.mu.Lock()
	g.shuttingDown = true
	g.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(g.loops))
	wg.Add(len(g.loops))
	for i, l := range g.loops {
		i, l := i, l
		go func() {
			defer wg.Done()
			errs[i] = l.ShutdownGracefully(ctx, quietPeriod, timeout)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// TerminationFuture settles once every loop in the group has returned
// from Run.
func (g *EventLoopGroup) TerminationFuture() future.Future { return g.termination }

// Size returns the number of loops in the group.
func (g *EventLoopGroup) Size() int { return len(g.loops) }
