package netio

// ReadyState is the derived status of a Stream (spec.md §3/§8.7: a pure
// function of (resolving, connecting, readable, writable, closed)).
type ReadyState string

const (
	StateOpening    ReadyState = "opening"
	StateConnecting ReadyState = "connecting"
	StateOpen       ReadyState = "open"
	StateReadOnly   ReadyState = "readOnly"
	StateWriteOnly  ReadyState = "writeOnly"
	StateClosed     ReadyState = "closed"
)

func deriveReadyState(closed, resolving, connecting, readable, writable bool) ReadyState {
	switch {
	case closed:
		return StateClosed
	case resolving:
		return StateOpening
	case connecting:
		return StateConnecting
	case readable && writable:
		return StateOpen
	case readable && !writable:
		return StateReadOnly
	case !readable && writable:
		return StateWriteOnly
	default:
		return StateClosed
	}
}

// ReadyState returns s's current derived state.
func (s *Stream) ReadyState() ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deriveReadyState(s.closed, s.resolving, s.connecting, s.readable, s.writable)
}
