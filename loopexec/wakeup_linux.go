//go:build linux

package loopexec

import "golang.org/x/sys/unix"

const (
	efdCloExec  = unix.EFD_CLOEXEC
	efdNonblock = unix.EFD_NONBLOCK
)

// createWakeFD creates an eventfd used to interrupt a blocked epoll_wait
// from any goroutine. A single fd serves as both the read and write
// end, unlike the pipe-based fallback other platforms need.
func createWakeFD() (int, error) {
	return unix.Eventfd(0, efdCloExec|efdNonblock)
}
