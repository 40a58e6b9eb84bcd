package netio

import "github.com/pkg/errors"

// Sentinel errors for caller-misuse cases (spec.md §7(a)): raised
// synchronously, never via the error/close event pair, and never alter
// the Stream/Server's state. ErrIdleTimeout is the exception: it is the
// error an idle-timeout teardown delivers through OnError before OnClose.
var (
	ErrAlreadyOpen       = errors.New("netio: stream is already open")
	ErrAlreadyClosed     = errors.New("netio: write after close")
	ErrAlreadyListening  = errors.New("netio: server is already listening")
	ErrNotWritable       = errors.New("netio: stream is not writable")
	ErrNotRegularFile    = errors.New("netio: unix socket path exists and is not a regular file")
	ErrIdleTimeout       = errors.New("netio: idle timeout")
	ErrUnsupportedFamily = errors.New("netio: unsupported network family")
)
