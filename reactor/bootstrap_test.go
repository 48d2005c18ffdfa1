//go:build linux

package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/flowmesh/reactor/buffer"
	"github.com/flowmesh/reactor/channel"
	"github.com/flowmesh/reactor/loopexec"
	"github.com/flowmesh/reactor/pipeline"
)

type echoHandler struct{ pipeline.InboundAdapter }

func (echoHandler) ChannelRead(ctx *pipeline.HandlerContext, msg any) {
	ctx.WriteAndFlush(msg, nil)
}

type captureHandler struct {
	pipeline.InboundAdapter
	received chan *buffer.ByteBuf
}

func (h *captureHandler) ChannelRead(ctx *pipeline.HandlerContext, msg any) {
	h.received <- msg.(*buffer.ByteBuf)
}

// TestBootstrap_ClientServerEchoRoundTrip wires a ServerBootstrap and a
// Bootstrap over a real loopback TCP socket and confirms a write sent
// by the client comes back echoed, end to end through both stacks.
func TestBootstrap_ClientServerEchoRoundTrip(t *testing.T) {
	group, err := loopexec.NewGroup(2)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	group.Start(ctx)

	server := &ServerBootstrap{
		Group: group,
		Init: func(ch channel.Channel) error {
			return ch.Pipeline().AddLast("echo", &echoHandler{})
		},
	}
	if err := server.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("server Start: %v", err)
	}
	defer server.Close()

	received := make(chan *buffer.ByteBuf, 1)
	client := &Bootstrap{
		Group: group,
		Init: func(ch channel.Channel) error {
			return ch.Pipeline().AddLast("capture", &captureHandler{received: received})
		},
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer connectCancel()
	ch, err := client.Connect(connectCtx, server.LocalAddr())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ch.Unsafe().Close(nil)

	out := buffer.UnpooledAllocator{}.Allocate(4, 0)
	_ = out.WriteBytes([]byte("ping"))
	ch.Pipeline().WriteAndFlush(out, nil)

	select {
	case msg := <-received:
		if string(msg.Bytes()) != "ping" {
			t.Fatalf("echoed payload = %q, want %q", msg.Bytes(), "ping")
		}
		msg.Release(1)
	case <-time.After(2 * time.Second):
		t.Fatalf("client never received the echoed message")
	}
}

// TestServerBootstrap_ShutdownGracefully confirms ShutdownGracefully
// closes the listener and terminates every loop in its group within
// the requested quiet period/timeout bound.
func TestServerBootstrap_ShutdownGracefully(t *testing.T) {
	group, err := loopexec.NewGroup(2)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	group.Start(ctx)

	server := &ServerBootstrap{Group: group}
	if err := server.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("server Start: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()

	start := time.Now()
	if err := server.ShutdownGracefully(shutdownCtx, 20*time.Millisecond, time.Second); err != nil {
		t.Fatalf("ShutdownGracefully: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second+500*time.Millisecond {
		t.Fatalf("ShutdownGracefully took %v, want well under timeout+slack", elapsed)
	}

	if _, err := group.Next(); err != loopexec.ErrGroupShutdown {
		t.Fatalf("Next after shutdown = %v, want ErrGroupShutdown", err)
	}
}
