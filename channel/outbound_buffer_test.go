package channel

import (
	"errors"
	"testing"

	"github.com/flowmesh/reactor/buffer"
	"github.com/flowmesh/reactor/future"
)

func eightByteMsg() *buffer.ByteBuf {
	b := buffer.UnpooledAllocator{}.Allocate(8, 0)
	_ = b.WriteBytes([]byte("12345678"))
	return b
}

// TestOutboundBuffer_WritabilityFlipsExactlyOnceAtWatermarks implements
// scenario S5: 10 unflushed 8-byte writes cross a 64-byte high
// watermark on the 9th, then releasing 48 bytes brings the total down
// to the 32-byte low watermark, each transition firing exactly once.
func TestOutboundBuffer_WritabilityFlipsExactlyOnceAtWatermarks(t *testing.T) {
	var events []bool
	b := NewOutboundBuffer(64, 32, func(w bool) { events = append(events, w) })

	var msgs []*buffer.ByteBuf
	for i := 0; i < 10; i++ {
		m := eightByteMsg()
		msgs = append(msgs, m)
		b.AddMessage(m, nil)
	}

	if len(events) != 1 || events[0] != false {
		t.Fatalf("events after 10 writes = %v, want [false]", events)
	}
	if b.Writable() {
		t.Fatalf("writable = true, want false after crossing high watermark")
	}

	b.Flush()
	for i := 0; i < 6; i++ {
		b.Remove()
		msgs[i].Release(1)
	}

	if len(events) != 2 || events[1] != true {
		t.Fatalf("events after releasing 6 messages = %v, want [false true]", events)
	}
	if !b.Writable() {
		t.Fatalf("writable = false, want true after dropping to low watermark")
	}

	for i := 6; i < 10; i++ {
		msgs[i].Release(1)
	}
}

func TestOutboundBuffer_FailAllFailsInEnqueueOrder(t *testing.T) {
	b := NewOutboundBuffer(1<<30, 0, nil)

	var promises []future.Promise
	var order []int
	for i := 0; i < 3; i++ {
		p := future.New()
		promises = append(promises, p)
		i := i
		p.OnComplete(func(f future.Future) { order = append(order, i) }, nil)
		b.AddMessage(eightByteMsg(), p)
	}
	b.Flush()

	failErr := errors.New("boom")
	b.FailAll(failErr)

	for i, p := range promises {
		if p.State() != future.Failed {
			t.Fatalf("promise %d state = %v, want Failed", i, p.State())
		}
	}
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("completion order = %v, want [0 1 2]", order)
	}
	if b.TotalPendingBytes() != 0 {
		t.Fatalf("TotalPendingBytes = %d, want 0 after FailAll", b.TotalPendingBytes())
	}
}

func TestOutboundBuffer_RemoveSucceedsPromiseAndAdjustsPending(t *testing.T) {
	b := NewOutboundBuffer(1<<30, 0, nil)
	msg := eightByteMsg()
	p := future.New()
	b.AddMessage(msg, p)
	b.Flush()

	if b.TotalPendingBytes() != 8 {
		t.Fatalf("TotalPendingBytes = %d, want 8", b.TotalPendingBytes())
	}
	b.Remove()
	msg.Release(1)

	if p.State() != future.Succeeded {
		t.Fatalf("promise state = %v, want Succeeded", p.State())
	}
	if b.TotalPendingBytes() != 0 {
		t.Fatalf("TotalPendingBytes = %d, want 0", b.TotalPendingBytes())
	}
}
