// Package channel implements the channel and pipeline-attachment layer:
// a Channel owns a pipeline.Pipeline, a Config, an OutboundBuffer, and
// an Unsafe that performs the real transport work (TCP sockets, or an
// in-memory loopback for tests). Grounded on the teacher's eventloop
// package's fd-registration style, adapted to spec section 4.6's
// Channel/Unsafe split.
package channel

import (
	"sync"
	"sync/atomic"

	"github.com/flowmesh/reactor/future"
	"github.com/flowmesh/reactor/loopexec"
	"github.com/flowmesh/reactor/pipeline"
)

var nextChannelID atomic.Uint64

// Channel is the application-facing handle: a pipeline, a config, and
// the lifecycle queries needed by handlers and by the reactor package.
type Channel interface {
	ID() uint64
	Parent() Channel
	Pipeline() *pipeline.Pipeline
	Config() *Config
	Unsafe() pipeline.Unsafe
	EventLoop() pipeline.Executor

	IsOpen() bool
	IsRegistered() bool
	IsActive() bool
	IsClosed() bool

	LocalAddr() string
	RemoteAddr() string

	// CloseFuture completes once the channel has fully closed and
	// fired channelUnregistered.
	CloseFuture() future.Future
}

// baseChannel implements Channel and is embedded by nothing: concrete
// transports (tcpClientUnsafe, tcpServerUnsafe, embeddedUnsafe) hold a
// *baseChannel and drive its state transitions directly, since Go has
// no protected/package-friend visibility finer than the package
// boundary itself.
type baseChannel struct {
	id       uint64
	parent   Channel
	pipeline *pipeline.Pipeline
	unsafe   pipeline.Unsafe
	loop     pipeline.Executor
	config   *Config
	outbound *OutboundBuffer

	state        atomic.Uint32
	closePromise future.Promise

	addrMu                sync.RWMutex
	localAddr, remoteAddr string
}

func newBaseChannel(parent Channel, config *Config) *baseChannel {
	if config == nil {
		config = NewConfig()
	}
	c := &baseChannel{
		id:           nextChannelID.Add(1),
		parent:       parent,
		config:       config,
		closePromise: future.New(),
	}
	c.pipeline = pipeline.New(c)
	c.outbound = NewOutboundBuffer(
		int64(config.WriteBufferHighWaterMark()),
		int64(config.WriteBufferLowWaterMark()),
		func(bool) { c.pipeline.FireChannelWritabilityChanged() },
	)
	return c
}

func (c *baseChannel) ID() uint64                     { return c.id }
func (c *baseChannel) Parent() Channel                { return c.parent }
func (c *baseChannel) Pipeline() *pipeline.Pipeline   { return c.pipeline }
func (c *baseChannel) Config() *Config                { return c.config }
func (c *baseChannel) Unsafe() pipeline.Unsafe        { return c.unsafe }
func (c *baseChannel) EventLoop() pipeline.Executor   { return c.loop }
func (c *baseChannel) CloseFuture() future.Future     { return c.closePromise }

func (c *baseChannel) IsOpen() bool       { return c.state.Load()&uint32(stateClosed) == 0 }
func (c *baseChannel) IsRegistered() bool { return c.state.Load()&uint32(stateRegistered) != 0 }
func (c *baseChannel) IsActive() bool     { return c.state.Load()&uint32(stateActive) != 0 }
func (c *baseChannel) IsClosed() bool     { return c.state.Load()&uint32(stateClosed) != 0 }

func (c *baseChannel) LocalAddr() string {
	c.addrMu.RLock()
	defer c.addrMu.RUnlock()
	return c.localAddr
}

func (c *baseChannel) RemoteAddr() string {
	c.addrMu.RLock()
	defer c.addrMu.RUnlock()
	return c.remoteAddr
}

func (c *baseChannel) setLocalAddr(addr string) {
	c.addrMu.Lock()
	c.localAddr = addr
	c.addrMu.Unlock()
}

func (c *baseChannel) setRemoteAddr(addr string) {
	c.addrMu.Lock()
	c.remoteAddr = addr
	c.addrMu.Unlock()
}

// markRegistered transitions Open/!Registered -> Registered and fires
// channelRegistered. loop is typically a *loopexec.EventLoop, but only
// the pipeline.Executor capability is required here.
func (c *baseChannel) markRegistered(loop pipeline.Executor) {
	c.loop = loop
	c.state.Store(c.state.Load() | uint32(stateRegistered))
	c.pipeline.FireChannelRegistered()
}

// markActive transitions Registered/!Active -> Active, fires
// channelActive, and kicks off the first read if AutoRead is set.
func (c *baseChannel) markActive() {
	c.state.Store(c.state.Load() | uint32(stateActive))
	c.pipeline.FireChannelActive()
	if c.config.AutoRead() {
		c.pipeline.Read()
	}
}

// markClosed transitions any state -> Closed: pending writes are
// failed in enqueue order, channelInactive fires only if the channel
// had been active, and channelUnregistered always fires.
func (c *baseChannel) markClosed(closeErr error) {
	if c.state.Load()&uint32(stateClosed) != 0 {
		return
	}
	wasActive := c.IsActive()
	c.state.Store(c.state.Load() | uint32(stateClosed))

	failErr := closeErr
	if failErr == nil {
		failErr = ErrClosedChannel
	}
	c.outbound.FailAll(failErr)

	if wasActive {
		c.pipeline.FireChannelInactive()
	}
	c.pipeline.FireChannelUnregistered()
	c.closePromise.TrySucceed(nil)
}

// loopexecEventLoop extracts the concrete *loopexec.EventLoop from a
// pipeline.Executor, for Unsafe implementations (TCP) that need direct
// fd-registration access beyond the Executor capability set.
func loopexecEventLoop(e pipeline.Executor) (*loopexec.EventLoop, bool) {
	el, ok := e.(*loopexec.EventLoop)
	return el, ok
}
