package pipeline

import (
	"sync"

	"github.com/flowmesh/reactor/buffer"
	"github.com/flowmesh/reactor/future"
	"github.com/flowmesh/reactor/internal/logging"
)

// Pipeline is the doubly linked handler list bound to a single
// Channel, between the Head and Tail sentinel contexts.
type Pipeline struct {
	channel Channel

	mu    sync.Mutex
	names map[string]*HandlerContext
	head  *HandlerContext
	tail  *HandlerContext
}

// New constructs a Pipeline bound to ch, pre-populated with Head and
// Tail sentinels linked directly to each other.
func New(ch Channel) *Pipeline {
	p := &Pipeline{
		channel: ch,
		names:   make(map[string]*HandlerContext),
	}
	p.head = &HandlerContext{name: "head", pipeline: p, handler: headHandler{}}
	p.head.outbound = headHandler{}
	p.tail = &HandlerContext{name: "tail", pipeline: p, handler: tailHandler{}}
	p.tail.inbound = tailHandler{}
	p.head.next = p.tail
	p.tail.prev = p.head
	p.names["head"] = p.head
	p.names["tail"] = p.tail
	return p
}

// Head returns the sentinel context bound to Unsafe.
func (p *Pipeline) Head() *HandlerContext { p.mu.Lock(); defer p.mu.Unlock(); return p.head }

// Tail returns the terminal sentinel context.
func (p *Pipeline) Tail() *HandlerContext { p.mu.Lock(); defer p.mu.Unlock(); return p.tail }

// Channel returns the owning channel.
func (p *Pipeline) Channel() Channel { return p.channel }

func capabilitiesOf(h Handler) (InboundHandler, OutboundHandler) {
	in, _ := h.(InboundHandler)
	out, _ := h.(OutboundHandler)
	return in, out
}

// runOnLoop executes fn immediately if the calling goroutine already
// owns the pipeline's loop, otherwise re-dispatches via
// SubmitInternal, matching spec section 4.7's atomicity requirement
// for pipeline mutation.
func (p *Pipeline) runOnLoop(fn func()) {
	loop := p.channel.EventLoop()
	if loop == nil || loop.InLoop() {
		fn()
		return
	}
	_ = loop.SubmitInternal(fn)
}

// AddLast inserts handler immediately before Tail.
func (p *Pipeline) AddLast(name string, handler Handler) error {
	return p.insert(name, handler, func() (*HandlerContext, *HandlerContext) {
		return p.tail.prev, p.tail
	})
}

// AddFirst inserts handler immediately after Head.
func (p *Pipeline) AddFirst(name string, handler Handler) error {
	return p.insert(name, handler, func() (*HandlerContext, *HandlerContext) {
		return p.head, p.head.next
	})
}

// AddBefore inserts handler immediately before the context named mark.
func (p *Pipeline) AddBefore(mark, name string, handler Handler) error {
	var err error
	p.mu.Lock()
	markCtx, ok := p.names[mark]
	p.mu.Unlock()
	if !ok {
		return ErrHandlerNotFound
	}
	err = p.insert(name, handler, func() (*HandlerContext, *HandlerContext) {
		return markCtx.prev, markCtx
	})
	return err
}

// AddAfter inserts handler immediately after the context named mark.
func (p *Pipeline) AddAfter(mark, name string, handler Handler) error {
	p.mu.Lock()
	markCtx, ok := p.names[mark]
	p.mu.Unlock()
	if !ok {
		return ErrHandlerNotFound
	}
	return p.insert(name, handler, func() (*HandlerContext, *HandlerContext) {
		return markCtx, markCtx.next
	})
}

func (p *Pipeline) insert(name string, handler Handler, locate func() (*HandlerContext, *HandlerContext)) error {
	p.mu.Lock()
	if _, exists := p.names[name]; exists {
		p.mu.Unlock()
		return ErrHandlerNameConflict
	}
	in, out := capabilitiesOf(handler)
	ctx := &HandlerContext{name: name, handler: handler, pipeline: p, inbound: in, outbound: out}
	p.names[name] = ctx
	p.mu.Unlock()

	p.runOnLoop(func() {
		p.mu.Lock()
		before, after := locate()
		ctx.prev, ctx.next = before, after
		before.next = ctx
		after.prev = ctx
		p.mu.Unlock()
		handler.HandlerAdded(ctx)
	})
	return nil
}

// Remove unlinks the named handler, invoking HandlerRemoved exactly
// once. Sentinels cannot be removed.
func (p *Pipeline) Remove(name string) error {
	p.mu.Lock()
	ctx, ok := p.names[name]
	p.mu.Unlock()
	if !ok {
		return ErrHandlerNotFound
	}
	if ctx == p.head || ctx == p.tail {
		return ErrSentinelMutation
	}
	p.runOnLoop(func() {
		p.mu.Lock()
		ctx.prev.next = ctx.next
		ctx.next.prev = ctx.prev
		delete(p.names, name)
		p.mu.Unlock()
		ctx.handler.HandlerRemoved(ctx)
	})
	return nil
}

// Replace swaps the named handler for a new one in place, firing
// HandlerRemoved on the old handler and HandlerAdded on the new one.
func (p *Pipeline) Replace(oldName, newName string, handler Handler) error {
	p.mu.Lock()
	oldCtx, ok := p.names[oldName]
	if !ok {
		p.mu.Unlock()
		return ErrHandlerNotFound
	}
	if oldCtx == p.head || oldCtx == p.tail {
		p.mu.Unlock()
		return ErrSentinelMutation
	}
	if newName != oldName {
		if _, exists := p.names[newName]; exists {
			p.mu.Unlock()
			return ErrHandlerNameConflict
		}
	}
	p.mu.Unlock()

	in, out := capabilitiesOf(handler)
	newCtx := &HandlerContext{name: newName, handler: handler, pipeline: p, inbound: in, outbound: out}

	p.runOnLoop(func() {
		p.mu.Lock()
		newCtx.prev, newCtx.next = oldCtx.prev, oldCtx.next
		oldCtx.prev.next = newCtx
		oldCtx.next.prev = newCtx
		delete(p.names, oldName)
		p.names[newName] = newCtx
		p.mu.Unlock()
		oldCtx.handler.HandlerRemoved(oldCtx)
		handler.HandlerAdded(newCtx)
	})
	return nil
}

// Get returns the context registered under name, or nil.
func (p *Pipeline) Get(name string) *HandlerContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.names[name]
}

// --- fire entry points, originating at Head ---

func (p *Pipeline) FireChannelRegistered() *Pipeline       { p.head.FireChannelRegistered(); return p }
func (p *Pipeline) FireChannelUnregistered() *Pipeline     { p.head.FireChannelUnregistered(); return p }
func (p *Pipeline) FireChannelActive() *Pipeline           { p.head.FireChannelActive(); return p }
func (p *Pipeline) FireChannelInactive() *Pipeline         { p.head.FireChannelInactive(); return p }
func (p *Pipeline) FireChannelRead(msg any) *Pipeline      { p.head.FireChannelRead(msg); return p }
func (p *Pipeline) FireChannelReadComplete() *Pipeline     { p.head.FireChannelReadComplete(); return p }
func (p *Pipeline) FireUserEventTriggered(e any) *Pipeline { p.head.FireUserEventTriggered(e); return p }
func (p *Pipeline) FireChannelWritabilityChanged() *Pipeline {
	p.head.FireChannelWritabilityChanged()
	return p
}
func (p *Pipeline) FireExceptionCaught(err error) *Pipeline { p.head.FireExceptionCaught(err); return p }

// --- outbound entry points, originating at Tail ---

func (p *Pipeline) Bind(localAddr string, promise future.Promise) *Pipeline {
	p.tail.Bind(localAddr, promise)
	return p
}

func (p *Pipeline) Connect(remoteAddr, localAddr string, promise future.Promise) *Pipeline {
	p.tail.Connect(remoteAddr, localAddr, promise)
	return p
}

func (p *Pipeline) Disconnect(promise future.Promise) *Pipeline { p.tail.Disconnect(promise); return p }
func (p *Pipeline) Close(promise future.Promise) *Pipeline      { p.tail.Close(promise); return p }
func (p *Pipeline) Read() *Pipeline                             { p.tail.Read(); return p }

func (p *Pipeline) Write(msg any, promise future.Promise) *Pipeline {
	p.tail.Write(msg, promise)
	return p
}

func (p *Pipeline) Flush() *Pipeline { p.tail.Flush(); return p }

func (p *Pipeline) WriteAndFlush(msg any, promise future.Promise) *Pipeline {
	p.tail.WriteAndFlush(msg, promise)
	return p
}

// headHandler binds the Head context to the channel's Unsafe: every
// outbound operation that reaches it performs the real transport call,
// except Deregister, which only succeeds its promise.
type headHandler struct{}

func (headHandler) HandlerAdded(ctx *HandlerContext)   {}
func (headHandler) HandlerRemoved(ctx *HandlerContext) {}

func (headHandler) Bind(ctx *HandlerContext, localAddr string, promise future.Promise) {
	ctx.Channel().Unsafe().Bind(localAddr, promise)
}

func (headHandler) Connect(ctx *HandlerContext, remoteAddr, localAddr string, promise future.Promise) {
	ctx.Channel().Unsafe().Connect(remoteAddr, localAddr, promise)
}

func (headHandler) Disconnect(ctx *HandlerContext, promise future.Promise) {
	ctx.Channel().Unsafe().Disconnect(promise)
}

func (headHandler) Close(ctx *HandlerContext, promise future.Promise) {
	ctx.Channel().Unsafe().Close(promise)
}

func (headHandler) Deregister(ctx *HandlerContext, promise future.Promise) {
	if promise != nil {
		promise.TrySucceed(nil)
	}
}

func (headHandler) Read(ctx *HandlerContext) { ctx.Channel().Unsafe().BeginRead() }

func (headHandler) Write(ctx *HandlerContext, msg any, promise future.Promise) {
	ctx.Channel().Unsafe().Write(msg, promise)
}

func (headHandler) Flush(ctx *HandlerContext) { ctx.Channel().Unsafe().Flush() }

// tailHandler is the terminal inbound consumer: a channelRead that
// reaches it releases the reference-counted message rather than
// leaking it, and an unhandled exceptionCaught is logged.
type tailHandler struct{}

func (tailHandler) HandlerAdded(ctx *HandlerContext)   {}
func (tailHandler) HandlerRemoved(ctx *HandlerContext) {}

func (tailHandler) ChannelRegistered(ctx *HandlerContext)   {}
func (tailHandler) ChannelUnregistered(ctx *HandlerContext) {}
func (tailHandler) ChannelActive(ctx *HandlerContext)       {}
func (tailHandler) ChannelInactive(ctx *HandlerContext)     {}

func (tailHandler) ChannelRead(ctx *HandlerContext, msg any) {
	if buf, ok := msg.(*buffer.ByteBuf); ok {
		buf.Release(1)
		return
	}
	if rc, ok := msg.(buffer.RefCounted); ok {
		rc.Release(1)
	}
}

func (tailHandler) ChannelReadComplete(ctx *HandlerContext)   {}
func (tailHandler) UserEventTriggered(ctx *HandlerContext, e any) {}
func (tailHandler) ChannelWritabilityChanged(ctx *HandlerContext) {}

func (tailHandler) ExceptionCaught(ctx *HandlerContext, err error) {
	logging.L().Log(logging.Entry{
		Level:     logging.LevelError,
		Component: "pipeline",
		Message:   "unhandled exception reached tail",
		Err:       err,
	})
}
