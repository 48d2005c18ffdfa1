package pipeline

import "github.com/flowmesh/reactor/future"

// HandlerContext is one node in a Pipeline's doubly linked handler
// list. It holds a non-owning back-reference to the owning channel:
// the channel owns the pipeline, never the reverse, so there's no
// cycle in the ownership graph even though event propagation walks
// both directions through it.
type HandlerContext struct {
	name     string
	handler  Handler
	pipeline *Pipeline
	prev     *HandlerContext
	next     *HandlerContext

	// inbound/outbound cache the result of type-asserting handler
	// against the optional capability interfaces, computed once when
	// the context is linked so propagation doesn't re-assert per event.
	inbound  InboundHandler
	outbound OutboundHandler
}

// Name returns the handler's unique name within its pipeline.
func (ctx *HandlerContext) Name() string { return ctx.name }

// Handler returns the underlying handler instance.
func (ctx *HandlerContext) Handler() Handler { return ctx.handler }

// Pipeline returns the owning pipeline.
func (ctx *HandlerContext) Pipeline() *Pipeline { return ctx.pipeline }

// Channel returns the channel the owning pipeline is bound to.
func (ctx *HandlerContext) Channel() Channel { return ctx.pipeline.channel }

func (ctx *HandlerContext) findNextInbound() *HandlerContext {
	for c := ctx.next; c != nil; c = c.next {
		if c.inbound != nil {
			return c
		}
	}
	return nil
}

func (ctx *HandlerContext) findPrevOutbound() *HandlerContext {
	for c := ctx.prev; c != nil; c = c.prev {
		if c.outbound != nil {
			return c
		}
	}
	return nil
}

// --- inbound propagation: Head -> Tail ---

func (ctx *HandlerContext) FireChannelRegistered() *HandlerContext {
	if c := ctx.findNextInbound(); c != nil {
		c.inbound.ChannelRegistered(c)
	}
	return ctx
}

func (ctx *HandlerContext) FireChannelUnregistered() *HandlerContext {
	if c := ctx.findNextInbound(); c != nil {
		c.inbound.ChannelUnregistered(c)
	}
	return ctx
}

func (ctx *HandlerContext) FireChannelActive() *HandlerContext {
	if c := ctx.findNextInbound(); c != nil {
		c.inbound.ChannelActive(c)
	}
	return ctx
}

func (ctx *HandlerContext) FireChannelInactive() *HandlerContext {
	if c := ctx.findNextInbound(); c != nil {
		c.inbound.ChannelInactive(c)
	}
	return ctx
}

func (ctx *HandlerContext) FireChannelRead(msg any) *HandlerContext {
	if c := ctx.findNextInbound(); c != nil {
		c.inbound.ChannelRead(c, msg)
	}
	return ctx
}

func (ctx *HandlerContext) FireChannelReadComplete() *HandlerContext {
	if c := ctx.findNextInbound(); c != nil {
		c.inbound.ChannelReadComplete(c)
	}
	return ctx
}

func (ctx *HandlerContext) FireUserEventTriggered(event any) *HandlerContext {
	if c := ctx.findNextInbound(); c != nil {
		c.inbound.UserEventTriggered(c, event)
	}
	return ctx
}

func (ctx *HandlerContext) FireChannelWritabilityChanged() *HandlerContext {
	if c := ctx.findNextInbound(); c != nil {
		c.inbound.ChannelWritabilityChanged(c)
	}
	return ctx
}

func (ctx *HandlerContext) FireExceptionCaught(err error) *HandlerContext {
	if c := ctx.findNextInbound(); c != nil {
		c.inbound.ExceptionCaught(c, err)
	}
	return ctx
}

// --- outbound propagation: Tail -> Head ---

func (ctx *HandlerContext) Bind(localAddr string, promise future.Promise) *HandlerContext {
	if c := ctx.findPrevOutbound(); c != nil {
		c.outbound.Bind(c, localAddr, promise)
	} else if promise != nil {
		promise.TryFail(ErrHandlerNotFound)
	}
	return ctx
}

func (ctx *HandlerContext) Connect(remoteAddr, localAddr string, promise future.Promise) *HandlerContext {
	if c := ctx.findPrevOutbound(); c != nil {
		c.outbound.Connect(c, remoteAddr, localAddr, promise)
	} else if promise != nil {
		promise.TryFail(ErrHandlerNotFound)
	}
	return ctx
}

func (ctx *HandlerContext) Disconnect(promise future.Promise) *HandlerContext {
	if c := ctx.findPrevOutbound(); c != nil {
		c.outbound.Disconnect(c, promise)
	} else if promise != nil {
		promise.TryFail(ErrHandlerNotFound)
	}
	return ctx
}

func (ctx *HandlerContext) Close(promise future.Promise) *HandlerContext {
	if c := ctx.findPrevOutbound(); c != nil {
		c.outbound.Close(c, promise)
	} else if promise != nil {
		promise.TryFail(ErrHandlerNotFound)
	}
	return ctx
}

func (ctx *HandlerContext) Deregister(promise future.Promise) *HandlerContext {
	if c := ctx.findPrevOutbound(); c != nil {
		c.outbound.Deregister(c, promise)
	} else if promise != nil {
		promise.TryFail(ErrHandlerNotFound)
	}
	return ctx
}

func (ctx *HandlerContext) Read() *HandlerContext {
	if c := ctx.findPrevOutbound(); c != nil {
		c.outbound.Read(c)
	}
	return ctx
}

func (ctx *HandlerContext) Write(msg any, promise future.Promise) *HandlerContext {
	if c := ctx.findPrevOutbound(); c != nil {
		c.outbound.Write(c, msg, promise)
	} else if promise != nil {
		promise.TryFail(ErrHandlerNotFound)
	}
	return ctx
}

func (ctx *HandlerContext) Flush() *HandlerContext {
	if c := ctx.findPrevOutbound(); c != nil {
		c.outbound.Flush(c)
	}
	return ctx
}

// WriteAndFlush is a convenience combining Write then Flush.
func (ctx *HandlerContext) WriteAndFlush(msg any, promise future.Promise) *HandlerContext {
	ctx.Write(msg, promise)
	return ctx.Flush()
}
