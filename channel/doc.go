// Package channel implements the Channel/Unsafe layer that sits
// beneath a pipeline.Pipeline: baseChannel tracks lifecycle state
// (registered/active/closed) and owns an OutboundBuffer, while the
// Unsafe implementations do the real work — tcpClientUnsafe and
// tcpServerUnsafe drive non-blocking sockets through loopexec's epoll
// poller, and embeddedUnsafe wires two channels together in memory for
// tests.
//
// Config mirrors Netty's ChannelConfig: mutable, getter/setter pairs
// rather than a one-shot options struct, since options like AutoRead
// can legitimately change after a channel is already active.
package channel
