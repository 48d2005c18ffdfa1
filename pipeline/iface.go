package pipeline

import "github.com/flowmesh/reactor/future"

// Channel is the minimal surface a Pipeline needs from its owning
// channel.Channel. Declared here rather than imported from package
// channel so that channel can depend on pipeline without a cycle.
type Channel interface {
	ID() uint64
	Unsafe() Unsafe
	EventLoop() Executor
}

// Unsafe is the transport-private interface the Head context drives
// directly, matching spec section 4.6's Unsafe method set.
type Unsafe interface {
	Register(loop Executor) error
	Bind(localAddr string, promise future.Promise)
	Connect(remoteAddr, localAddr string, promise future.Promise)
	Disconnect(promise future.Promise)
	Close(promise future.Promise)
	Write(msg any, promise future.Promise)
	Flush()
	BeginRead()
}

// Executor is the capability set a Pipeline needs from the owning
// loop: loopexec.EventLoop satisfies it directly.
type Executor interface {
	Submit(func()) error
	SubmitInternal(func()) error
	InLoop() bool
}
