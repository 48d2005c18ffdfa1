// Package reactor is the single public entry point: Bootstrap wires a
// loopexec.EventLoopGroup, a channel.Config and a pipeline initializer
// into an outbound connection; ServerBootstrap does the same for an
// accepting listener, optionally fronted by a dispatch.DispatcherLoop
// that hands connections to a separate worker loop pool.
package reactor
