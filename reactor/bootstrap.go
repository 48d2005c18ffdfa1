package reactor

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmesh/reactor/channel"
	"github.com/flowmesh/reactor/future"
	"github.com/flowmesh/reactor/loopexec"
)

// Initializer attaches handlers to a Channel's pipeline before it is
// registered on its assigned loop.
type Initializer func(ch channel.Channel) error

// Bootstrap builds outbound connections: each Connect call picks the
// next loop from Group round-robin, builds a TCP client Channel on
// Config, runs Init against its pipeline, then connects.
type Bootstrap struct {
	Group  *loopexec.EventLoopGroup
	Config *channel.Config
	Init   Initializer
}

// Connect dials remoteAddr and returns once the Channel is active (or
// ctx is done, or the connect attempt fails).
func (b *Bootstrap) Connect(ctx context.Context, remoteAddr string) (channel.Channel, error) {
	loop, err := b.Group.Next()
	if err != nil {
		return nil, fmt.Errorf("reactor: acquire loop: %w", err)
	}

	cfg := b.Config
	if cfg == nil {
		cfg = channel.NewConfig()
	}
	ch := channel.NewTCPClient(cfg)

	if b.Init != nil {
		if err := b.Init(ch); err != nil {
			return nil, fmt.Errorf("reactor: initializer: %w", err)
		}
	}

	if err := ch.Unsafe().Register(loop); err != nil {
		return nil, fmt.Errorf("reactor: register: %w", err)
	}

	done := make(chan struct{})
	promise := future.New()
	promise.OnComplete(func(future.Future) { close(done) }, nil)

	ch.Unsafe().Connect(remoteAddr, "", promise)

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if _, err := promise.Result(); err != nil {
		return nil, err
	}
	return ch, nil
}

// ShutdownGracefully fans out to every loop in Group: each drains its
// already-queued work, then waits until no task has run for
// quietPeriod or timeout elapses, whichever is first.
func (b *Bootstrap) ShutdownGracefully(ctx context.Context, quietPeriod, timeout time.Duration) error {
	return b.Group.ShutdownGracefully(ctx, quietPeriod, timeout)
}
