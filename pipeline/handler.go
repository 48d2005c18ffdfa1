package pipeline

import "github.com/flowmesh/reactor/future"

// Handler is the base capability every pipeline entry implements: the
// lifecycle hooks fired exactly once when a handler joins or leaves a
// Pipeline. InboundHandler and OutboundHandler are checked via type
// assertion against a Handler to discover optional capability.
type Handler interface {
	HandlerAdded(ctx *HandlerContext)
	HandlerRemoved(ctx *HandlerContext)
}

// InboundHandler is the optional inbound-event capability set (spec
// section 4.7's inbound list).
type InboundHandler interface {
	Handler
	ChannelRegistered(ctx *HandlerContext)
	ChannelUnregistered(ctx *HandlerContext)
	ChannelActive(ctx *HandlerContext)
	ChannelInactive(ctx *HandlerContext)
	ChannelRead(ctx *HandlerContext, msg any)
	ChannelReadComplete(ctx *HandlerContext)
	UserEventTriggered(ctx *HandlerContext, event any)
	ChannelWritabilityChanged(ctx *HandlerContext)
	ExceptionCaught(ctx *HandlerContext, err error)
}

// OutboundHandler is the optional outbound-operation capability set
// (spec section 4.7's outbound list).
type OutboundHandler interface {
	Handler
	Bind(ctx *HandlerContext, localAddr string, promise future.Promise)
	Connect(ctx *HandlerContext, remoteAddr, localAddr string, promise future.Promise)
	Disconnect(ctx *HandlerContext, promise future.Promise)
	Close(ctx *HandlerContext, promise future.Promise)
	Deregister(ctx *HandlerContext, promise future.Promise)
	Read(ctx *HandlerContext)
	Write(ctx *HandlerContext, msg any, promise future.Promise)
	Flush(ctx *HandlerContext)
}

// InboundAdapter gives every inbound callback a default
// forward-to-next-handler body, so a concrete handler only needs to
// override the events it cares about. HandlerAdded/HandlerRemoved
// default to no-ops.
type InboundAdapter struct{}

func (InboundAdapter) HandlerAdded(ctx *HandlerContext)                     {}
func (InboundAdapter) HandlerRemoved(ctx *HandlerContext)                   {}
func (InboundAdapter) ChannelRegistered(ctx *HandlerContext)                { ctx.FireChannelRegistered() }
func (InboundAdapter) ChannelUnregistered(ctx *HandlerContext)              { ctx.FireChannelUnregistered() }
func (InboundAdapter) ChannelActive(ctx *HandlerContext)                    { ctx.FireChannelActive() }
func (InboundAdapter) ChannelInactive(ctx *HandlerContext)                  { ctx.FireChannelInactive() }
func (InboundAdapter) ChannelRead(ctx *HandlerContext, msg any)             { ctx.FireChannelRead(msg) }
func (InboundAdapter) ChannelReadComplete(ctx *HandlerContext)              { ctx.FireChannelReadComplete() }
func (InboundAdapter) UserEventTriggered(ctx *HandlerContext, event any)    { ctx.FireUserEventTriggered(event) }
func (InboundAdapter) ChannelWritabilityChanged(ctx *HandlerContext)       { ctx.FireChannelWritabilityChanged() }
func (InboundAdapter) ExceptionCaught(ctx *HandlerContext, err error)       { ctx.FireExceptionCaught(err) }

// OutboundAdapter gives every outbound callback a default
// forward-toward-head body.
type OutboundAdapter struct{}

func (OutboundAdapter) HandlerAdded(ctx *HandlerContext)   {}
func (OutboundAdapter) HandlerRemoved(ctx *HandlerContext) {}
func (OutboundAdapter) Bind(ctx *HandlerContext, localAddr string, promise future.Promise) {
	ctx.Bind(localAddr, promise)
}
func (OutboundAdapter) Connect(ctx *HandlerContext, remoteAddr, localAddr string, promise future.Promise) {
	ctx.Connect(remoteAddr, localAddr, promise)
}
func (OutboundAdapter) Disconnect(ctx *HandlerContext, promise future.Promise) { ctx.Disconnect(promise) }
func (OutboundAdapter) Close(ctx *HandlerContext, promise future.Promise)      { ctx.Close(promise) }
func (OutboundAdapter) Deregister(ctx *HandlerContext, promise future.Promise) { ctx.Deregister(promise) }
func (OutboundAdapter) Read(ctx *HandlerContext)                               { ctx.Read() }
func (OutboundAdapter) Write(ctx *HandlerContext, msg any, promise future.Promise) {
	ctx.Write(msg, promise)
}
func (OutboundAdapter) Flush(ctx *HandlerContext) { ctx.Flush() }
