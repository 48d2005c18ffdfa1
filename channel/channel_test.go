package channel

import (
	"testing"

	"github.com/flowmesh/reactor/buffer"
	"github.com/flowmesh/reactor/future"
	"github.com/flowmesh/reactor/pipeline"
)

type inlineExecutor struct{}

func (inlineExecutor) Submit(fn func()) error         { fn(); return nil }
func (inlineExecutor) SubmitInternal(fn func()) error { fn(); return nil }
func (inlineExecutor) InLoop() bool                   { return true }

// echoHandler writes back whatever it reads, the minimal handler
// exercising scenario S1 end to end over a loopback pair.
type echoHandler struct{ pipeline.InboundAdapter }

func (echoHandler) ChannelRead(ctx *pipeline.HandlerContext, msg any) {
	ctx.WriteAndFlush(msg, nil)
}

func TestEmbeddedChannel_S1_EchoRoundTrip(t *testing.T) {
	client := NewEmbedded(NewConfig())
	server := NewEmbedded(NewConfig())
	Connect(client, server)

	if err := server.Pipeline().AddLast("echo", &echoHandler{}); err != nil {
		t.Fatalf("AddLast: %v", err)
	}

	var received *buffer.ByteBuf
	capture := &captureHandler{out: &received}
	if err := client.Pipeline().AddLast("capture", capture); err != nil {
		t.Fatalf("AddLast: %v", err)
	}

	if err := client.Unsafe().Register(inlineExecutor{}); err != nil {
		t.Fatalf("register client: %v", err)
	}
	if err := server.Unsafe().Register(inlineExecutor{}); err != nil {
		t.Fatalf("register server: %v", err)
	}

	connectDone := future.New()
	client.Unsafe().Connect("127.0.0.1:9", "", connectDone)
	if connectDone.State() != future.Succeeded {
		t.Fatalf("connect state = %v, want Succeeded", connectDone.State())
	}
	server.Unsafe().Bind("127.0.0.1:9", nil)

	out := buffer.UnpooledAllocator{}.Allocate(4, 0)
	_ = out.WriteBytes([]byte("ping"))
	client.Pipeline().WriteAndFlush(out, nil)

	if received == nil {
		t.Fatalf("client never received the echoed message")
	}
	if string(received.Bytes()) != "ping" {
		t.Fatalf("echoed payload = %q, want %q", received.Bytes(), "ping")
	}
	received.Release(1)
}

type captureHandler struct {
	pipeline.InboundAdapter
	out **buffer.ByteBuf
}

func (h *captureHandler) ChannelRead(ctx *pipeline.HandlerContext, msg any) {
	*h.out = msg.(*buffer.ByteBuf)
}

func TestBaseChannel_CloseFailsPendingWritesInOrder(t *testing.T) {
	ch := NewEmbedded(NewConfig())
	if err := ch.Unsafe().Register(inlineExecutor{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	ch.Unsafe().Bind("127.0.0.1:0", nil)

	var order []int
	var promises []future.Promise
	for i := 0; i < 3; i++ {
		p := future.New()
		promises = append(promises, p)
		i := i
		p.OnComplete(func(future.Future) { order = append(order, i) }, nil)
		b := buffer.UnpooledAllocator{}.Allocate(4, 0)
		_ = b.WriteBytes([]byte("data"))
		ch.Unsafe().Write(b, p)
	}

	ch.Unsafe().Close(nil)

	for i, p := range promises {
		if p.State() != future.Failed {
			t.Fatalf("promise %d state = %v, want Failed", i, p.State())
		}
	}
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("fail order = %v, want [0 1 2]", order)
	}
	if ch.IsOpen() {
		t.Fatalf("IsOpen = true after Close")
	}
	if ch.CloseFuture().State() != future.Succeeded {
		t.Fatalf("CloseFuture state = %v, want Succeeded", ch.CloseFuture().State())
	}
}

func TestBaseChannel_StateTransitions(t *testing.T) {
	ch := NewEmbedded(NewConfig())
	if ch.IsRegistered() || ch.IsActive() || ch.IsClosed() {
		t.Fatalf("fresh channel should be unregistered, inactive, open")
	}

	if err := ch.Unsafe().Register(inlineExecutor{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !ch.IsRegistered() {
		t.Fatalf("expected IsRegistered after Register")
	}

	ch.Unsafe().Bind("127.0.0.1:0", nil)
	if !ch.IsActive() {
		t.Fatalf("expected IsActive after Bind")
	}

	ch.Unsafe().Close(nil)
	if !ch.IsClosed() || ch.IsOpen() {
		t.Fatalf("expected Closed and !Open after Close")
	}
}
