//go:build linux

package dispatch

import (
	"sync/atomic"

	"github.com/flowmesh/reactor/channel"
	"github.com/flowmesh/reactor/future"
	"github.com/flowmesh/reactor/internal/logging"
	"github.com/flowmesh/reactor/loopexec"
)

// workerLink is one Unix-domain socket pair connecting the dispatcher
// to a single worker: dispatcherFD is held open on the dispatcher's
// loop purely to send accepted fds; workerFD is handed to the
// corresponding WorkerLoop for NewWorkerLoop to read them back from.
type workerLink struct {
	dispatcherFD int
	workerFD     int
}

// DispatcherLoop owns a listening socket and round-robins every
// accepted connection's raw fd out to a fixed pool of workers over
// SCM_RIGHTS, never constructing a Channel for the connection itself.
type DispatcherLoop struct {
	config *channel.Config
	links  []*workerLink
	next   atomic.Uint64

	loop   *loopexec.EventLoop
	server channel.Channel
}

// NewDispatcherLoop creates numWorkers socket pairs up front; call
// WorkerLinkFD(i) once per worker to hand its end to a WorkerLoop
// before Start runs.
func NewDispatcherLoop(config *channel.Config, numWorkers int) (*DispatcherLoop, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if config == nil {
		config = channel.NewConfig()
	}
	d := &DispatcherLoop{config: config}
	for i := 0; i < numWorkers; i++ {
		dispatcherFD, workerFD, err := newLinkPair()
		if err != nil {
			return nil, err
		}
		d.links = append(d.links, &workerLink{dispatcherFD: dispatcherFD, workerFD: workerFD})
	}
	return d, nil
}

// WorkerLinkFD returns the worker-side fd of link i, for wiring a
// WorkerLoop ahead of Start.
func (d *DispatcherLoop) WorkerLinkFD(i int) int {
	return d.links[i].workerFD
}

// NumWorkers reports the size of the worker pool.
func (d *DispatcherLoop) NumWorkers() int { return len(d.links) }

// Start registers the dispatcher's listening socket on loop and begins
// accepting connections, forwarding every accepted fd to the next
// worker in round-robin order.
func (d *DispatcherLoop) Start(loop *loopexec.EventLoop, listenAddr string) error {
	d.loop = loop
	d.server = channel.NewTCPServerRawAccept(d.config, d.forward)
	if err := d.server.Unsafe().Register(loop); err != nil {
		return err
	}

	done := make(chan struct{})
	promise := future.New()
	promise.OnComplete(func(future.Future) { close(done) }, nil)
	d.server.Unsafe().Bind(listenAddr, promise)
	<-done

	_, err := promise.Result()
	return err
}

// forward hands fd to the next worker link, retrying briefly on EAGAIN
// since each link's dispatcher-side fd is non-blocking. A send that
// still fails after the retry budget closes fd and logs, matching the
// accept-failure semantics of a connection the dispatcher can't place.
func (d *DispatcherLoop) forward(fd int) {
	idx := d.next.Add(1) - 1
	link := d.links[idx%uint64(len(d.links))]

	const maxAttempts = 8
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = sendFD(link.dispatcherFD, fd)
		if err == nil {
			return
		}
		if !isRetryable(err) {
			break
		}
	}

	closeFD(fd)
	logging.L().Log(logging.Entry{
		Level:     logging.LevelError,
		Component: "dispatch",
		Message:   "failed to forward accepted connection to worker",
		Err:       err,
	})
}

// LocalAddr returns the dispatcher's bound listening address.
func (d *DispatcherLoop) LocalAddr() string { return d.server.LocalAddr() }

// Close tears down the listening socket and every link's
// dispatcher-side fd.
func (d *DispatcherLoop) Close() {
	if d.server != nil {
		d.server.Unsafe().Close(nil)
	}
	for _, l := range d.links {
		closeFD(l.dispatcherFD)
	}
}
