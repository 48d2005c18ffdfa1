//go:build linux

package channel

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/flowmesh/reactor/buffer"
	"github.com/flowmesh/reactor/future"
	"github.com/flowmesh/reactor/internal/logging"
	"github.com/flowmesh/reactor/loopexec"
	"github.com/flowmesh/reactor/pipeline"
)

// NewTCPClient returns a Channel whose Unsafe drives a non-blocking
// TCP socket, grounded on the teacher's raw golang.org/x/sys/unix
// style in eventloop's fd_unix.go / poller_linux.go.
func NewTCPClient(config *Config) *baseChannel {
	c := newBaseChannel(nil, config)
	c.unsafe = &tcpClientUnsafe{ch: c}
	return c
}

// NewTCPServer returns a listening Channel: Bind creates the listening
// socket and registers it for EventRead, accepting connections as
// child channels delivered via onAccept.
func NewTCPServer(config *Config, onAccept func(child Channel)) *baseChannel {
	c := newBaseChannel(nil, config)
	c.unsafe = &tcpServerUnsafe{ch: c, onAccept: onAccept}
	return c
}

// NewTCPServerRawAccept returns a listening Channel that hands every
// accepted connection to onAcceptFD as a raw, non-blocking fd instead
// of wrapping it in a Channel — the primitive a dispatcher needs to
// forward the fd to a worker process untouched, without ever reading
// or writing it locally.
func NewTCPServerRawAccept(config *Config, onAcceptFD func(fd int)) *baseChannel {
	c := newBaseChannel(nil, config)
	c.unsafe = &tcpServerUnsafe{ch: c, onAcceptFD: onAcceptFD}
	return c
}

// NewTCPClientFromFD wraps an already-connected, non-blocking fd in a
// Channel: the shape a worker needs when adopting a connection handed
// over by a dispatcher via SCM_RIGHTS. Register finishes activation by
// registering the fd for reads and firing channelActive, since there
// is no connect phase to wait for.
func NewTCPClientFromFD(config *Config, fd int) *baseChannel {
	c := newBaseChannel(nil, config)
	c.unsafe = &tcpClientUnsafe{ch: c, fd: fd}
	return c
}

// tcpClientUnsafe drives one non-blocking TCP socket. The same fd
// callback handles both connect completion and steady-state
// readability, since poller.ModifyFD changes a registered fd's event
// mask but not its callback.
type tcpClientUnsafe struct {
	ch         *baseChannel
	loop       *loopexec.EventLoop
	fd         int
	connecting bool
}

func (u *tcpClientUnsafe) Register(loop pipeline.Executor) error {
	el, ok := loopexecEventLoop(loop)
	if !ok {
		return ErrUnsupportedMessage
	}
	u.loop = el
	u.ch.markRegistered(loop)

	// A pre-existing fd with no pending connect means this channel was
	// built via NewTCPClientFromFD: finish activation here instead of
	// waiting on a connect completion that will never come.
	if u.fd != 0 && !u.connecting {
		if err := u.loop.RegisterFD(u.fd, loopexec.EventRead, u.onReadReady); err != nil {
			return err
		}
		u.ch.markActive()
	}
	return nil
}

func (u *tcpClientUnsafe) Bind(localAddr string, promise future.Promise) {
	// Client sockets bind implicitly on connect; record the requested
	// local address for LocalAddr() ahead of that.
	u.ch.setLocalAddr(localAddr)
	if promise != nil {
		promise.TrySucceed(nil)
	}
}

func (u *tcpClientUnsafe) Connect(remoteAddr, localAddr string, promise future.Promise) {
	sa, err := resolveSockaddr(remoteAddr)
	if err != nil {
		if promise != nil {
			promise.TryFail(err)
		}
		return
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		if promise != nil {
			promise.TryFail(err)
		}
		return
	}
	applySocketOptions(fd, u.ch.config)
	u.fd = fd
	u.ch.setRemoteAddr(remoteAddr)
	if localAddr != "" {
		u.ch.setLocalAddr(localAddr)
	}

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		if promise != nil {
			promise.TryFail(err)
		}
		return
	}

	u.connecting = true
	if to := u.ch.config.ConnectTimeout(); to > 0 {
		u.loop.Schedule(to, func() {
			if u.connecting {
				u.failConnect(promise, ErrConnectTimeout)
			}
		})
	}

	registerErr := u.loop.RegisterFD(fd, loopexec.EventWrite, func(ev loopexec.IOEvents) {
		u.onFDEvent(ev, promise)
	})
	if registerErr != nil {
		unix.Close(fd)
		if promise != nil {
			promise.TryFail(registerErr)
		}
	}
}

func (u *tcpClientUnsafe) failConnect(promise future.Promise, err error) {
	u.connecting = false
	_ = u.loop.UnregisterFD(u.fd)
	unix.Close(u.fd)
	if promise != nil {
		promise.TryFail(err)
	}
}

// onFDEvent is the single poller callback registered for this fd: it
// completes the pending connect on its first invocation, then
// forwards every subsequent readiness notification to onReadReady.
func (u *tcpClientUnsafe) onFDEvent(ev loopexec.IOEvents, connectPromise future.Promise) {
	if u.connecting {
		u.completeConnect(ev, connectPromise)
		return
	}
	u.onReadReady(ev)
}

func (u *tcpClientUnsafe) completeConnect(ev loopexec.IOEvents, promise future.Promise) {
	u.connecting = false

	if ev&loopexec.EventError != 0 {
		u.failConnect(promise, ErrConnectRefused)
		return
	}

	errno, _ := unix.GetsockoptInt(u.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if errno != 0 {
		u.failConnect(promise, ErrConnectRefused)
		return
	}

	if err := u.loop.ModifyFD(u.fd, loopexec.EventRead); err != nil {
		u.failConnect(promise, err)
		return
	}

	u.ch.markActive()
	if promise != nil {
		promise.TrySucceed(nil)
	}
}

func (u *tcpClientUnsafe) Disconnect(promise future.Promise) { u.Close(promise) }

func (u *tcpClientUnsafe) Close(promise future.Promise) {
	if u.loop != nil && u.fd != 0 {
		_ = u.loop.UnregisterFD(u.fd)
	}
	if u.fd != 0 {
		unix.Close(u.fd)
	}
	u.ch.markClosed(nil)
	if promise != nil {
		promise.TrySucceed(nil)
	}
}

func (u *tcpClientUnsafe) Write(msg any, promise future.Promise) {
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

func (u *tcpClientUnsafe) Flush() {
	spin := u.ch.config.WriteSpinCount()
	for i := 0; i < spin; i++ {
		msg, ok := u.ch.outbound.Current()
		if !ok {
			return
		}
		n, err := unix.Write(u.fd, msg.Bytes())
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			u.ch.outbound.Remove()
			msg.Release(1)
			u.ch.pipeline.FireExceptionCaught(err)
			u.Close(nil)
			return
		}
		_ = msg.SetReaderIndex(msg.ReaderIndex() + n)
		if msg.ReadableBytes() == 0 {
			u.ch.outbound.Remove()
			msg.Release(1)
		} else {
			// Partial write: leave the entry at the head of the flushed
			// queue for the next writable tick.
			return
		}
	}
}

// BeginRead is a no-op: an active TCP channel's fd is already
// registered for EventRead, so reads happen as onReadReady fires.
func (u *tcpClientUnsafe) BeginRead() {}

// onReadReady drains readable bytes up to the adaptive allocator's
// per-tick message budget, firing channelRead per buffer and a single
// channelReadComplete at the end; EOF or a socket error closes the
// channel after firing channelInactive.
func (u *tcpClientUnsafe) onReadReady(ev loopexec.IOEvents) {
	if ev&(loopexec.EventError|loopexec.EventHangup) != 0 {
		u.Close(nil)
		return
	}

	recvAlloc := u.ch.config.RecvByteBufAllocator()
	alloc := u.ch.config.Allocator()

	for {
		guess := recvAlloc.Guess()
		buf := alloc.Allocate(guess, 0)
		window := buf.Bytes()[:guess:guess] // len guess from index 0: the writable region
		n, err := unix.Read(u.fd, window)
		if n > 0 {
			_ = buf.SetWriterIndex(n)
			recvAlloc.LastBytesRead(n)
			recvAlloc.IncMessagesRead(1)
			u.ch.pipeline.FireChannelRead(buf)
		} else {
			buf.Release(1)
		}

		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			u.Close(nil)
			return
		}
		if n == 0 {
			u.Close(nil)
			return
		}
		if !recvAlloc.ContinueReading() {
			break
		}
	}

	u.ch.pipeline.FireChannelReadComplete()
}

func resolveSockaddr(addr string) (unix.Sockaddr, error) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return nil, err
	}
	var ip4 [4]byte
	if err := parseIPv4(host, &ip4); err != nil {
		return nil, err
	}
	return &unix.SockaddrInet4{Port: port, Addr: ip4}, nil
}

// boundAddr reads back the address a just-bound or just-connected
// socket actually landed on, needed when the caller requested an
// ephemeral port (":0") and the real port is only known after bind.
func boundAddr(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", err
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", ErrUnsupportedMessage
	}
	ip := net.IPv4(sa4.Addr[0], sa4.Addr[1], sa4.Addr[2], sa4.Addr[3])
	return net.JoinHostPort(ip.String(), strconv.Itoa(sa4.Port)), nil
}

func applySocketOptions(fd int, cfg *Config) {
	if cfg.SoKeepAlive() {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	}
	if cfg.TCPNoDelay() {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}
	if cfg.SoReuseAddr() {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}
	if cfg.SoReusePort() {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}
	if n := cfg.SoRcvBuf(); n > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
	}
	if n := cfg.SoSndBuf(); n > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
	}
}

type tcpServerUnsafe struct {
	ch       *baseChannel
	loop     *loopexec.EventLoop
	fd       int
	onAccept func(child Channel)
	// onAcceptFD, when set, takes over handling of each accepted
	// connection as a raw fd instead of a wired Channel — the shape a
	// dispatcher needs to hand connections off to a worker loop
	// untouched. Set via NewTCPServerRawAccept.
	onAcceptFD func(fd int)
}

func (u *tcpServerUnsafe) Register(loop pipeline.Executor) error {
	el, ok := loopexecEventLoop(loop)
	if !ok {
		return ErrUnsupportedMessage
	}
	u.loop = el
	u.ch.markRegistered(loop)
	return nil
}

func (u *tcpServerUnsafe) Bind(localAddr string, promise future.Promise) {
	sa, err := resolveSockaddr(localAddr)
	if err != nil {
		if promise != nil {
			promise.TryFail(err)
		}
		return
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		if promise != nil {
			promise.TryFail(err)
		}
		return
	}
	applySocketOptions(fd, u.ch.config)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		if promise != nil {
			if err == unix.EADDRINUSE {
				promise.TryFail(ErrAddressInUse)
			} else {
				promise.TryFail(err)
			}
		}
		return
	}
	backlog := u.ch.config.SoBacklog()
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		if promise != nil {
			promise.TryFail(err)
		}
		return
	}

	u.fd = fd
	if bound, err := boundAddr(fd); err == nil {
		u.ch.setLocalAddr(bound)
	} else {
		u.ch.setLocalAddr(localAddr)
	}

	if err := u.loop.RegisterFD(fd, loopexec.EventRead, u.onAcceptable); err != nil {
		unix.Close(fd)
		if promise != nil {
			promise.TryFail(err)
		}
		return
	}

	u.ch.markActive()
	if promise != nil {
		promise.TrySucceed(nil)
	}
}

func (u *tcpServerUnsafe) Connect(remoteAddr, localAddr string, promise future.Promise) {
	if promise != nil {
		promise.TryFail(ErrUnsupportedMessage)
	}
}

func (u *tcpServerUnsafe) Disconnect(promise future.Promise) { u.Close(promise) }

func (u *tcpServerUnsafe) Close(promise future.Promise) {
	if u.loop != nil && u.fd != 0 {
		_ = u.loop.UnregisterFD(u.fd)
	}
	if u.fd != 0 {
		unix.Close(u.fd)
	}
	u.ch.markClosed(nil)
	if promise != nil {
		promise.TrySucceed(nil)
	}
}

func (u *tcpServerUnsafe) Write(msg any, promise future.Promise) {
	if promise != nil {
		promise.TryFail(ErrUnsupportedMessage)
	}
}

func (u *tcpServerUnsafe) Flush()     {}
func (u *tcpServerUnsafe) BeginRead() {}

func (u *tcpServerUnsafe) onAcceptable(ev loopexec.IOEvents) {
	for {
		connFD, _, err := unix.Accept4(u.fd, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			logging.L().Log(logging.Entry{
				Level:     logging.LevelError,
				Component: "channel",
				Message:   "accept failed",
				Err:       err,
			})
			return
		}

		if u.onAcceptFD != nil {
			u.onAcceptFD(connFD)
			continue
		}

		child := NewTCPClient(u.ch.config)
		cu := child.unsafe.(*tcpClientUnsafe)
		cu.fd = connFD
		cu.loop = u.loop
		child.parent = u.ch
		child.markRegistered(u.loop)

		if err := u.loop.RegisterFD(connFD, loopexec.EventRead, func(ev loopexec.IOEvents) {
			cu.onReadReady(ev)
		}); err != nil {
			unix.Close(connFD)
			continue
		}

		child.markActive()
		if u.onAccept != nil {
			u.onAccept(child)
		}
	}
}
