package channel

import (
	"github.com/flowmesh/reactor/buffer"
	"github.com/flowmesh/reactor/future"
	"github.com/flowmesh/reactor/pipeline"
)

// NewEmbedded returns a Channel backed by embeddedUnsafe: a pipeline
// that can be driven end to end (register, connect, write, flush,
// close) without a real socket, for exercising handler chains and the
// OutboundBuffer's watermark behaviour in tests.
func NewEmbedded(config *Config) *baseChannel {
	c := newBaseChannel(nil, config)
	c.unsafe = &embeddedUnsafe{ch: c}
	return c
}

// Connect wires two embedded channels together: writes flushed on a
// either deliver to b's pipeline, or vice versa, modelling a loopback
// pipe. It only links the two as peers, so it may be called before or
// after either channel is registered.
func Connect(a, b *baseChannel) {
	au := a.unsafe.(*embeddedUnsafe)
	bu := b.unsafe.(*embeddedUnsafe)
	au.peer = b
	bu.peer = a
}

// embeddedUnsafe is the in-memory Unsafe: Bind/Connect mark the
// channel active immediately, Write enqueues onto the OutboundBuffer,
// and Flush either delivers retained duplicates to a connected peer's
// pipeline or simply drains and releases (write-to-nowhere), the
// simplest possible grounding for pipeline.Unsafe.
type embeddedUnsafe struct {
	ch   *baseChannel
	peer *baseChannel
}

func (u *embeddedUnsafe) Register(loop pipeline.Executor) error {
	u.ch.markRegistered(loop)
	return nil
}

func (u *embeddedUnsafe) Bind(localAddr string, promise future.Promise) {
	u.ch.setLocalAddr(localAddr)
	u.ch.markActive()
	if promise != nil {
		promise.TrySucceed(nil)
	}
}

func (u *embeddedUnsafe) Connect(remoteAddr, localAddr string, promise future.Promise) {
	u.ch.setLocalAddr(localAddr)
	u.ch.setRemoteAddr(remoteAddr)
	u.ch.markActive()
	if promise != nil {
		promise.TrySucceed(nil)
	}
}

func (u *embeddedUnsafe) Disconnect(promise future.Promise) { u.Close(promise) }

func (u *embeddedUnsafe) Close(promise future.Promise) {
	u.ch.markClosed(nil)
	if promise != nil {
		promise.TrySucceed(nil)
	}
}

func (u *embeddedUnsafe) Write(msg any, promise future.Promise) {
	buf, ok := msg.(*buffer.ByteBuf)
	if !ok {
		if promise != nil {
			promise.TryFail(ErrUnsupportedMessage)
		}
		return
	}
	if !u.ch.IsOpen() {
		buf.Release(1)
		if promise != nil {
			promise.TryFail(ErrClosedChannel)
		}
		return
	}
	u.ch.outbound.AddMessage(buf, promise)
}

func (u *embeddedUnsafe) Flush() {
	u.ch.outbound.Flush()
	for {
		msg, ok := u.ch.outbound.Current()
		if !ok {
			break
		}
		u.ch.outbound.Remove()
		if u.peer != nil && u.peer.IsOpen() {
			delivered := msg.RetainedDuplicate()
			u.peer.pipeline.FireChannelRead(delivered)
			u.peer.pipeline.FireChannelReadComplete()
		}
		msg.Release(1)
	}
}

func (u *embeddedUnsafe) BeginRead() {}
