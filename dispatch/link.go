//go:build linux

package dispatch

import (
	"io"

	"golang.org/x/sys/unix"
)

// newLinkPair creates a connected pair of non-blocking Unix-domain
// stream sockets for dispatcher-to-worker fd handoff, grounded on the
// teacher's unix.Socketpair usage in eventloop/fastpath_stress_test.go.
func newLinkPair() (dispatcherEnd, workerEnd int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

// sendFD hands fd to the peer on the other end of sock as SCM_RIGHTS
// ancillary data, with a single placeholder byte as the regular
// payload (some platforms drop ancillary data on a zero-length send).
func sendFD(sock, fd int) error {
	rights := unix.UnixRights(fd)
	return unix.Sendmsg(sock, []byte{0}, rights, nil, 0)
}

// recvFD reads one forwarded fd from sock's ancillary data.
func recvFD(sock int) (int, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := unix.Recvmsg(sock, buf, oob, 0)
	if err != nil {
		return 0, err
	}
	if n == 0 && oobn == 0 {
		return 0, io.EOF
	}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, ErrNoFDReceived
	}
	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil {
		return 0, err
	}
	if len(fds) == 0 {
		return 0, ErrNoFDReceived
	}
	return fds[0], nil
}

func isRetryable(err error) bool {
	return err == unix.EAGAIN || err == unix.EINTR
}

func closeFD(fd int) {
	_ = unix.Close(fd)
}
