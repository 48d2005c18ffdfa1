//go:build linux

package dispatch

import (
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sys/unix"

	"github.com/flowmesh/reactor/channel"
	"github.com/flowmesh/reactor/internal/logging"
	"github.com/flowmesh/reactor/loopexec"
)

// Initializer attaches handlers to a freshly adopted connection's
// pipeline before it is registered on the worker's loop.
type Initializer func(ch channel.Channel) error

// WorkerLoop reads fds forwarded by a DispatcherLoop off one end of a
// socket pair and adopts each into a Channel registered on its own
// loop, so every connection's syscalls run on the worker rather than
// the dispatcher.
type WorkerLoop struct {
	linkFD      int
	config      *channel.Config
	initializer Initializer
	maxRetries  int

	loop *loopexec.EventLoop
}

// NewWorkerLoop builds a worker bound to one end of a dispatcher link
// (see DispatcherLoop.WorkerLinkFD). maxRetries bounds how many times
// Start retries attaching the link to the loop before giving up; 0
// selects the default of 5.
func NewWorkerLoop(linkFD int, config *channel.Config, initializer Initializer, maxRetries int) *WorkerLoop {
	if config == nil {
		config = channel.NewConfig()
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &WorkerLoop{
		linkFD:      linkFD,
		config:      config,
		initializer: initializer,
		maxRetries:  maxRetries,
	}
}

// Start attaches the worker's end of the dispatcher link to loop,
// retrying with a short backoff up to maxRetries times: RegisterFD can
// transiently fail while the dispatcher's own loop is still starting
// up and has not yet begun forwarding connections.
func (w *WorkerLoop) Start(loop *loopexec.EventLoop) error {
	var lastErr error
	for attempt := 0; attempt < w.maxRetries; attempt++ {
		if err := loop.RegisterFD(w.linkFD, loopexec.EventRead, w.onLinkReadable); err == nil {
			w.loop = loop
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrDispatcherAttachFailed, w.maxRetries, lastErr)
}

// onLinkReadable drains every fd forwarded since the last wakeup,
// adopting each as a Channel on w.loop.
func (w *WorkerLoop) onLinkReadable(ev loopexec.IOEvents) {
	for {
		fd, err := recvFD(w.linkFD)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			if errors.Is(err, io.EOF) || isConnReset(err) {
				_ = w.loop.UnregisterFD(w.linkFD)
				closeFD(w.linkFD)
				return
			}
			logging.L().Log(logging.Entry{
				Level:     logging.LevelError,
				Component: "dispatch",
				Message:   "failed to receive forwarded connection",
				Err:       err,
			})
			return
		}
		w.adopt(fd)
	}
}

func (w *WorkerLoop) adopt(fd int) {
	ch := channel.NewTCPClientFromFD(w.config, fd)

	if w.initializer != nil {
		if err := w.initializer(ch); err != nil {
			closeFD(fd)
			logging.L().Log(logging.Entry{
				Level:     logging.LevelError,
				Component: "dispatch",
				Message:   "pipeline initializer rejected adopted connection",
				Err:       err,
			})
			return
		}
	}

	if err := ch.Unsafe().Register(w.loop); err != nil {
		closeFD(fd)
		logging.L().Log(logging.Entry{
			Level:     logging.LevelError,
			Component: "dispatch",
			Message:   "failed to register adopted connection on worker loop",
			Err:       err,
		})
	}
}

func isConnReset(err error) bool {
	return err == unix.ECONNRESET || err == unix.EPIPE
}
