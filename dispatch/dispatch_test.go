//go:build linux

package dispatch

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/flowmesh/reactor/channel"
	"github.com/flowmesh/reactor/loopexec"
)

func runLoop(t *testing.T, l *loopexec.EventLoop) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	return cancel
}

// TestLinkPair_SendRecvRoundTrip covers the dispatcher/worker handoff's
// core primitive: a raw fd sent as SCM_RIGHTS over one end of a socket pair
// arrives readable on the other end.
func TestLinkPair_SendRecvRoundTrip(t *testing.T) {
	dispatcherEnd, workerEnd, err := newLinkPair()
	if err != nil {
		t.Fatalf("newLinkPair: %v", err)
	}
	defer closeFD(dispatcherEnd)
	defer closeFD(workerEnd)

	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	a, b := pair[0], pair[1]
	defer closeFD(a)

	if err := sendFD(dispatcherEnd, a); err != nil {
		t.Fatalf("sendFD: %v", err)
	}

	got, err := recvFD(workerEnd)
	if err != nil {
		t.Fatalf("recvFD: %v", err)
	}
	defer closeFD(got)

	payload := []byte("hello")
	if _, err := unix.Write(b, payload); err != nil {
		t.Fatalf("write to peer of sent fd: %v", err)
	}
	buf := make([]byte, len(payload))
	n, err := unix.Read(got, buf)
	if err != nil {
		t.Fatalf("read from received fd: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("round-tripped payload = %q, want %q", buf[:n], "hello")
	}
}

// TestDispatcherWorker_ForwardsAcceptedConnection wires a real
// DispatcherLoop and WorkerLoop together: a connection accepted on the
// dispatcher's listening socket must surface as a readable Channel on
// the worker's own loop.
func TestDispatcherWorker_ForwardsAcceptedConnection(t *testing.T) {
	dispatcherLoop, err := loopexec.New()
	if err != nil {
		t.Fatalf("New dispatcher loop: %v", err)
	}
	cancelDispatcher := runLoop(t, dispatcherLoop)
	defer cancelDispatcher()

	workerLoop, err := loopexec.New()
	if err != nil {
		t.Fatalf("New worker loop: %v", err)
	}
	cancelWorker := runLoop(t, workerLoop)
	defer cancelWorker()

	d, err := NewDispatcherLoop(channel.NewConfig(), 1)
	if err != nil {
		t.Fatalf("NewDispatcherLoop: %v", err)
	}
	defer d.Close()

	adopted := make(chan channel.Channel, 1)
	w := NewWorkerLoop(d.WorkerLinkFD(0), channel.NewConfig(), func(ch channel.Channel) error {
		adopted <- ch
		return nil
	}, 0)

	if err := w.Start(workerLoop); err != nil {
		t.Fatalf("worker Start: %v", err)
	}
	if err := d.Start(dispatcherLoop, "127.0.0.1:0"); err != nil {
		t.Fatalf("dispatcher Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var addr string
	for time.Now().Before(deadline) {
		addr = d.LocalAddr()
		if addr != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if addr == "" {
		t.Fatalf("dispatcher never bound a local address")
	}

	client, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %q: %v", addr, err)
	}
	defer client.Close()

	select {
	case ch := <-adopted:
		if ch == nil {
			t.Fatalf("adopted a nil channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker never adopted the forwarded connection")
	}
}
