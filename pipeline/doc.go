// Package pipeline implements a Netty-style ChannelPipeline: a doubly
// linked list of handler contexts between Head and Tail sentinels,
// through which inbound events flow Head->Tail and outbound operations
// flow Tail->Head.
//
// A handler declares capability by implementing InboundHandler,
// OutboundHandler, or both; a context skips over handlers that don't
// implement the direction being propagated, the same way the teacher's
// logging Event interface treats field-setter methods as
// optional capability probes checked once rather than on every call.
//
// Pipeline holds a non-owning reference to its Channel (via the
// minimal Channel/Unsafe interfaces declared here, not the concrete
// channel package) to avoid the owning cycle pipeline->channel->
// pipeline the source's inheritance-based design would otherwise
// create: the channel owns its pipeline, and handler contexts hold a
// back-reference without owning it.
package pipeline
