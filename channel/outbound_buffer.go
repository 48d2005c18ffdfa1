package channel

import (
	"sync"
	"sync/atomic"

	"github.com/flowmesh/reactor/buffer"
	"github.com/flowmesh/reactor/future"
)

type writeEntry struct {
	msg     *buffer.ByteBuf
	size    int64
	promise future.Promise
}

// OutboundBuffer is the per-channel pending-write queue: messages
// enqueued by Write sit in unflushed until Flush moves them to
// flushed, where the Unsafe implementation drains them one at a time.
// It tracks total pending bytes across both queues and flips
// writability exactly once per watermark crossing, per scenario S5.
type OutboundBuffer struct {
	mu        sync.Mutex
	unflushed []*writeEntry
	flushed   []*writeEntry

	totalPending atomic.Int64
	writable     atomic.Bool

	highWaterMark int64
	lowWaterMark  int64

	onWritabilityChanged func(writable bool)
}

// NewOutboundBuffer constructs a buffer with the given watermarks in
// bytes; onWritabilityChanged fires on the loop goroutine that called
// AddMessage/Remove, never concurrently with itself.
func NewOutboundBuffer(highWaterMark, lowWaterMark int64, onWritabilityChanged func(bool)) *OutboundBuffer {
	b := &OutboundBuffer{
		highWaterMark:        highWaterMark,
		lowWaterMark:         lowWaterMark,
		onWritabilityChanged: onWritabilityChanged,
	}
	b.writable.Store(true)
	return b
}

// AddMessage enqueues msg (unflushed) and adjusts pending bytes.
func (b *OutboundBuffer) AddMessage(msg *buffer.ByteBuf, promise future.Promise) {
	size := int64(msg.ReadableBytes())
	b.mu.Lock()
	b.unflushed = append(b.unflushed, &writeEntry{msg: msg, size: size, promise: promise})
	b.mu.Unlock()
	b.adjustPending(size)
}

func (b *OutboundBuffer) adjustPending(delta int64) {
	total := b.totalPending.Add(delta)
	if delta > 0 && total > b.highWaterMark {
		if b.writable.CompareAndSwap(true, false) && b.onWritabilityChanged != nil {
			b.onWritabilityChanged(false)
		}
	} else if delta < 0 && total <= b.lowWaterMark {
		if b.writable.CompareAndSwap(false, true) && b.onWritabilityChanged != nil {
			b.onWritabilityChanged(true)
		}
	}
}

// Flush moves every unflushed entry to the flushed queue, in order.
func (b *OutboundBuffer) Flush() {
	b.mu.Lock()
	b.flushed = append(b.flushed, b.unflushed...)
	b.unflushed = b.unflushed[:0]
	b.mu.Unlock()
}

// Current returns the head-of-line flushed message without removing
// it, so an Unsafe can attempt a partial write before committing to
// Remove.
func (b *OutboundBuffer) Current() (*buffer.ByteBuf, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.flushed) == 0 {
		return nil, false
	}
	return b.flushed[0].msg, true
}

// Remove pops the head-of-line flushed entry, succeeding its promise
// and adjusting pending bytes. It does not release the message; the
// caller owns that once the entry is no longer queued.
func (b *OutboundBuffer) Remove() {
	b.mu.Lock()
	if len(b.flushed) == 0 {
		b.mu.Unlock()
		return
	}
	e := b.flushed[0]
	b.flushed = b.flushed[1:]
	b.mu.Unlock()

	b.adjustPending(-e.size)
	if e.promise != nil {
		e.promise.TrySucceed(nil)
	}
}

// FailAll drains both queues in enqueue order, failing every promise
// with err and releasing every message.
func (b *OutboundBuffer) FailAll(err error) {
	b.mu.Lock()
	all := make([]*writeEntry, 0, len(b.flushed)+len(b.unflushed))
	all = append(all, b.flushed...)
	all = append(all, b.unflushed...)
	b.flushed = nil
	b.unflushed = nil
	b.mu.Unlock()

	for _, e := range all {
		b.adjustPending(-e.size)
		if e.promise != nil {
			e.promise.TryFail(err)
		}
		if e.msg != nil {
			e.msg.Release(1)
		}
	}
}

func (b *OutboundBuffer) Writable() bool          { return b.writable.Load() }
func (b *OutboundBuffer) TotalPendingBytes() int64 { return b.totalPending.Load() }
