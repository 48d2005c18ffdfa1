package loopexec

import (
	"context"
	"testing"
	"time"

	"github.com/flowmesh/reactor/future"
)

func TestEventLoopGroup_RegisterIsStableForSameAffinity(t *testing.T) {
	g, err := NewGroup(4)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	a, err := g.Register(42)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	b, err := g.Register(42)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if a != b {
		t.Fatalf("same affinity key must return the same loop")
	}
}

func TestEventLoopGroup_NextRoundRobins(t *testing.T) {
	g, err := NewGroup(3)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	seen := map[*EventLoop]int{}
	for i := 0; i < 9; i++ {
		l, err := g.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		seen[l]++
	}
	if len(seen) != 3 {
		t.Fatalf("expected all 3 loops visited, got %d", len(seen))
	}
	for l, n := range seen {
		if n != 3 {
			t.Fatalf("loop %d visited %d times, want 3", l.ID(), n)
		}
	}
}

func TestEventLoopGroup_ShutdownGracefullyTerminatesAll(t *testing.T) {
	g, err := NewGroup(3)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := g.ShutdownGracefully(shutdownCtx, 0, time.Second); err != nil {
		t.Fatalf("ShutdownGracefully: %v", err)
	}

	if _, err := g.Next(); err != ErrGroupShutdown {
		t.Fatalf("Next after shutdown = %v, want ErrGroupShutdown", err)
	}

	done2 := make(chan struct{})
	g.TerminationFuture().OnComplete(func(future.Future) { close(done2) }, nil)
	select {
	case <-done2:
	case <-time.After(time.Second):
		t.Fatal("TerminationFuture never settled")
	}
}
