package pipeline

import (
	"fmt"

	"github.com/flowmesh/reactor/buffer"
	"github.com/flowmesh/reactor/future"
)

// DecoderException wraps a failure surfaced by a Decoder, propagated
// as exceptionCaught per spec section 6.
type DecoderException struct{ Err error }

func (e *DecoderException) Error() string { return fmt.Sprintf("pipeline: decode failed: %v", e.Err) }
func (e *DecoderException) Unwrap() error { return e.Err }

// EncoderException wraps a failure surfaced by an Encoder.
type EncoderException struct{ Err error }

func (e *EncoderException) Error() string { return fmt.Sprintf("pipeline: encode failed: %v", e.Err) }
func (e *EncoderException) Unwrap() error { return e.Err }

// Decoder is the decode hook a ByteToMessageDecoder repeatedly calls:
// it attempts to consume one message from in, returning the decoded
// message (nil if none yet), whether further progress is currently
// possible (advance), and any error.
type Decoder interface {
	Decode(ctx *HandlerContext, in *buffer.ByteBuf) (msg any, advance bool, err error)
}

// ByteToMessageDecoder accumulates inbound bytes in a cumulation
// buffer and calls Decoder.Decode repeatedly until no progress is
// made, preserving leftover bytes across reads — the shape required
// by spec section 6.
type ByteToMessageDecoder struct {
	InboundAdapter
	Decoder    Decoder
	Allocator  buffer.Allocator
	cumulation *buffer.ByteBuf
}

// NewByteToMessageDecoder builds a ByteToMessageDecoder delegating
// per-message decode attempts to decoder.
func NewByteToMessageDecoder(decoder Decoder, allocator buffer.Allocator) *ByteToMessageDecoder {
	if allocator == nil {
		allocator = buffer.UnpooledAllocator{}
	}
	return &ByteToMessageDecoder{Decoder: decoder, Allocator: allocator}
}

func (d *ByteToMessageDecoder) ChannelRead(ctx *HandlerContext, msg any) {
	buf, ok := msg.(*buffer.ByteBuf)
	if !ok {
		ctx.FireChannelRead(msg)
		return
	}

	if d.cumulation == nil {
		d.cumulation = d.Allocator.Allocate(buf.ReadableBytes(), 0)
	}
	_ = d.cumulation.WriteBytes(buf.Bytes())
	buf.Release(1)

	for {
		out, advance, err := d.Decoder.Decode(ctx, d.cumulation)
		if err != nil {
			ctx.FireExceptionCaught(&DecoderException{Err: err})
			break
		}
		if out != nil {
			ctx.FireChannelRead(out)
		}
		if !advance {
			break
		}
	}

	if d.cumulation.ReadableBytes() == 0 {
		d.cumulation.Release(1)
		d.cumulation = nil
	}
}

// Encoder is the encode hook a MessageToByteEncoder calls once per
// outbound message of type T.
type Encoder[T any] interface {
	Encode(ctx *HandlerContext, msg T, out *buffer.ByteBuf) error
}

// MessageToByteEncoder is a typed outbound handler that emits bytes:
// messages not assignable to T are forwarded unchanged, matching
// Netty's MessageToByteEncoder<T> behaviour.
type MessageToByteEncoder[T any] struct {
	Encoder   Encoder[T]
	Allocator buffer.Allocator
}

func NewMessageToByteEncoder[T any](encoder Encoder[T], allocator buffer.Allocator) *MessageToByteEncoder[T] {
	if allocator == nil {
		allocator = buffer.UnpooledAllocator{}
	}
	return &MessageToByteEncoder[T]{Encoder: encoder, Allocator: allocator}
}

func (e *MessageToByteEncoder[T]) HandlerAdded(ctx *HandlerContext)   {}
func (e *MessageToByteEncoder[T]) HandlerRemoved(ctx *HandlerContext) {}

func (e *MessageToByteEncoder[T]) Bind(ctx *HandlerContext, localAddr string, promise future.Promise) {
	ctx.Bind(localAddr, promise)
}
func (e *MessageToByteEncoder[T]) Connect(ctx *HandlerContext, remoteAddr, localAddr string, promise future.Promise) {
	ctx.Connect(remoteAddr, localAddr, promise)
}
func (e *MessageToByteEncoder[T]) Disconnect(ctx *HandlerContext, promise future.Promise) {
	ctx.Disconnect(promise)
}
func (e *MessageToByteEncoder[T]) Close(ctx *HandlerContext, promise future.Promise) { ctx.Close(promise) }
func (e *MessageToByteEncoder[T]) Deregister(ctx *HandlerContext, promise future.Promise) {
	ctx.Deregister(promise)
}
func (e *MessageToByteEncoder[T]) Read(ctx *HandlerContext)  { ctx.Read() }
func (e *MessageToByteEncoder[T]) Flush(ctx *HandlerContext) { ctx.Flush() }

func (e *MessageToByteEncoder[T]) Write(ctx *HandlerContext, msg any, promise future.Promise) {
	typed, ok := msg.(T)
	if !ok {
		ctx.Write(msg, promise)
		return
	}
	out := e.Allocator.Allocate(64, 0)
	if err := e.Encoder.Encode(ctx, typed, out); err != nil {
		out.Release(1)
		if promise != nil {
			promise.TryFail(&EncoderException{Err: err})
		}
		return
	}
	ctx.Write(out, promise)
}

// MessageToMessageCodec is a bidirectional transformer between
// inbound type I and outbound type O, per spec section 6.
type MessageToMessageCodec[I, O any] struct {
	Decode func(ctx *HandlerContext, msg I) (any, error)
	Encode func(ctx *HandlerContext, msg O) (any, error)
}

func (c *MessageToMessageCodec[I, O]) HandlerAdded(ctx *HandlerContext)   {}
func (c *MessageToMessageCodec[I, O]) HandlerRemoved(ctx *HandlerContext) {}

func (c *MessageToMessageCodec[I, O]) ChannelRegistered(ctx *HandlerContext)   { ctx.FireChannelRegistered() }
func (c *MessageToMessageCodec[I, O]) ChannelUnregistered(ctx *HandlerContext) { ctx.FireChannelUnregistered() }
func (c *MessageToMessageCodec[I, O]) ChannelActive(ctx *HandlerContext)       { ctx.FireChannelActive() }
func (c *MessageToMessageCodec[I, O]) ChannelInactive(ctx *HandlerContext)     { ctx.FireChannelInactive() }
func (c *MessageToMessageCodec[I, O]) ChannelReadComplete(ctx *HandlerContext) { ctx.FireChannelReadComplete() }
func (c *MessageToMessageCodec[I, O]) UserEventTriggered(ctx *HandlerContext, e any) {
	ctx.FireUserEventTriggered(e)
}
func (c *MessageToMessageCodec[I, O]) ChannelWritabilityChanged(ctx *HandlerContext) {
	ctx.FireChannelWritabilityChanged()
}
func (c *MessageToMessageCodec[I, O]) ExceptionCaught(ctx *HandlerContext, err error) {
	ctx.FireExceptionCaught(err)
}

func (c *MessageToMessageCodec[I, O]) ChannelRead(ctx *HandlerContext, msg any) {
	in, ok := msg.(I)
	if !ok {
		ctx.FireChannelRead(msg)
		return
	}
	out, err := c.Decode(ctx, in)
	if err != nil {
		ctx.FireExceptionCaught(&DecoderException{Err: err})
		return
	}
	ctx.FireChannelRead(out)
}

func (c *MessageToMessageCodec[I, O]) Bind(ctx *HandlerContext, localAddr string, promise future.Promise) {
	ctx.Bind(localAddr, promise)
}
func (c *MessageToMessageCodec[I, O]) Connect(ctx *HandlerContext, remoteAddr, localAddr string, promise future.Promise) {
	ctx.Connect(remoteAddr, localAddr, promise)
}
func (c *MessageToMessageCodec[I, O]) Disconnect(ctx *HandlerContext, promise future.Promise) {
	ctx.Disconnect(promise)
}
func (c *MessageToMessageCodec[I, O]) Close(ctx *HandlerContext, promise future.Promise) {
	ctx.Close(promise)
}
func (c *MessageToMessageCodec[I, O]) Deregister(ctx *HandlerContext, promise future.Promise) {
	ctx.Deregister(promise)
}
func (c *MessageToMessageCodec[I, O]) Read(ctx *HandlerContext)  { ctx.Read() }
func (c *MessageToMessageCodec[I, O]) Flush(ctx *HandlerContext) { ctx.Flush() }

func (c *MessageToMessageCodec[I, O]) Write(ctx *HandlerContext, msg any, promise future.Promise) {
	out, ok := msg.(O)
	if !ok {
		ctx.Write(msg, promise)
		return
	}
	encoded, err := c.Encode(ctx, out)
	if err != nil {
		if promise != nil {
			promise.TryFail(&EncoderException{Err: err})
		}
		return
	}
	ctx.Write(encoded, promise)
}
