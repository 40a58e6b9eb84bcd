package ioloop

import (
	"syscall"

	"github.com/pkg/errors"
)

// ErrUnsupportedPlatform is returned by the raw-socket layer on GOOS
// values without a unix.* syscall surface (see socket_other.go).
var ErrUnsupportedPlatform = errors.New("ioloop: raw sockets unsupported on this platform")

// Errno translates a raw syscall error into the runtime's error type,
// standing in for spec.md §6's errnoException(errno, syscall) collaborator
// contract. Every Stream/Server teardown that originates from a failed
// syscall goes through this so the resulting error carries both the errno
// and the syscall name that produced it, in the idiom
// github.com/pkg/errors gives every other wrapped error in this module.
func Errno(op string, err error) error {
	if err == nil {
		return nil
	}
	if errno, ok := err.(syscall.Errno); ok {
		return errors.Wrapf(errno, "%s", op)
	}
	return errors.Wrapf(err, "%s", op)
}

// IsWouldBlock reports whether err is EAGAIN/EWOULDBLOCK, i.e. "try again
// once the fd is ready" rather than a real failure.
func IsWouldBlock(err error) bool {
	errno, ok := err.(syscall.Errno)
	return ok && (errno == syscall.EAGAIN || errno == syscall.EWOULDBLOCK)
}

// IsInProgress reports whether err is EINPROGRESS, the non-error outcome
// of a non-blocking connect that hasn't completed yet (spec.md §7(c)).
func IsInProgress(err error) bool {
	errno, ok := err.(syscall.Errno)
	return ok && errno == syscall.EINPROGRESS
}
