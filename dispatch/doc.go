// Package dispatch implements the dispatcher/worker IPC layer: one
// DispatcherLoop owns a listening socket and hands every accepted
// connection off to one of several WorkerLoops over a Unix-domain
// socket pair, passing the raw file descriptor as SCM_RIGHTS ancillary
// data so the connection's read/write syscalls happen on the worker's
// own loop goroutine rather than the dispatcher's.
//
// Grounded on the teacher's raw golang.org/x/sys/unix style
// (eventloop/fastpath_stress_test.go's use of unix.Socketpair,
// eventloop/fd_unix.go's thin syscall wrappers).
package dispatch
