package reactor

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmesh/reactor/channel"
	"github.com/flowmesh/reactor/dispatch"
	"github.com/flowmesh/reactor/future"
	"github.com/flowmesh/reactor/loopexec"
)

// ServerBootstrap builds an accepting listener. With Workers <= 0 the
// listener itself runs the accept loop and every accepted connection's
// pipeline on the loop it was registered on (Group.Next()). With
// Workers > 0, accepted connections are instead forwarded, as raw fds
// over a dispatch.DispatcherLoop, to a pool of Workers loops pulled
// from Group — so the listener's own loop never services application
// traffic.
type ServerBootstrap struct {
	Group      *loopexec.EventLoopGroup
	Config     *channel.Config
	Init       Initializer
	Workers    int
	MaxRetries int // bounded link-attach retries per worker; 0 selects the default of 5

	server     channel.Channel
	dispatcher *dispatch.DispatcherLoop
}

// Start binds listenAddr and begins accepting connections.
func (s *ServerBootstrap) Start(listenAddr string) error {
	cfg := s.Config
	if cfg == nil {
		cfg = channel.NewConfig()
	}

	if s.Workers > 0 {
		return s.startDispatched(listenAddr, cfg)
	}
	return s.startDirect(listenAddr, cfg)
}

func (s *ServerBootstrap) startDirect(listenAddr string, cfg *channel.Config) error {
	loop, err := s.Group.Next()
	if err != nil {
		return fmt.Errorf("reactor: acquire loop: %w", err)
	}

	onAccept := func(child channel.Channel) {
		if s.Init != nil {
			if err := s.Init(child); err != nil {
				child.Unsafe().Close(nil)
			}
		}
	}
	srv := channel.NewTCPServer(cfg, onAccept)
	s.server = srv

	if err := srv.Unsafe().Register(loop); err != nil {
		return fmt.Errorf("reactor: register listener: %w", err)
	}

	done := make(chan struct{})
	promise := future.New()
	promise.OnComplete(func(future.Future) { close(done) }, nil)
	srv.Unsafe().Bind(listenAddr, promise)
	<-done
	_, err = promise.Result()
	return err
}

func (s *ServerBootstrap) startDispatched(listenAddr string, cfg *channel.Config) error {
	d, err := dispatch.NewDispatcherLoop(cfg, s.Workers)
	if err != nil {
		return fmt.Errorf("reactor: new dispatcher: %w", err)
	}
	s.dispatcher = d

	for i := 0; i < s.Workers; i++ {
		workerLoop, err := s.Group.Next()
		if err != nil {
			return fmt.Errorf("reactor: acquire worker loop %d: %w", i, err)
		}
		w := dispatch.NewWorkerLoop(d.WorkerLinkFD(i), cfg, dispatch.Initializer(s.Init), s.MaxRetries)
		if err := w.Start(workerLoop); err != nil {
			return fmt.Errorf("reactor: attach worker %d: %w", i, err)
		}
	}

	dispatcherLoop, err := s.Group.Next()
	if err != nil {
		return fmt.Errorf("reactor: acquire dispatcher loop: %w", err)
	}
	if err := d.Start(dispatcherLoop, listenAddr); err != nil {
		return fmt.Errorf("reactor: start dispatcher: %w", err)
	}
	return nil
}

// LocalAddr returns the listener's bound address.
func (s *ServerBootstrap) LocalAddr() string {
	if s.dispatcher != nil {
		return s.dispatcher.LocalAddr()
	}
	if s.server != nil {
		return s.server.LocalAddr()
	}
	return ""
}

// Close tears down the listener (and, in dispatched mode, every
// worker link).
func (s *ServerBootstrap) Close() {
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
	if s.server != nil {
		s.server.Unsafe().Close(nil)
	}
}

// ShutdownGracefully closes the listener, then fans out graceful
// shutdown to every loop in Group: each drains its already-queued
// work, then waits until no task has run for quietPeriod or timeout
// elapses, whichever is first. Workers adopted via a
// dispatch.WorkerLoop share Group with the listener/dispatcher, so one
// fan-out covers both.
func (s *ServerBootstrap) ShutdownGracefully(ctx context.Context, quietPeriod, timeout time.Duration) error {
	s.Close()
	return s.Group.ShutdownGracefully(ctx, quietPeriod, timeout)
}
