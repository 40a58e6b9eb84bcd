package netio

// Handlers is the typed callback table a Stream dispatches into (spec.md
// §6's event emitter contract, collapsed to fixed-name fields: Go doesn't
// do stringly-typed event names, and the Stream event set is closed and
// known at compile time). Any field left nil is simply not invoked.
type Handlers struct {
	OnConnect func(s *Stream)
	OnData    func(s *Stream, data []byte)
	OnEnd     func(s *Stream)
	OnDrain   func(s *Stream)
	OnTimeout func(s *Stream)
	OnError   func(s *Stream, err error)
	OnClose   func(s *Stream, hadError bool)
}

// ServerHandlers is the Server-side equivalent of Handlers.
type ServerHandlers struct {
	OnListening  func(srv *Server)
	OnConnection func(srv *Server, s *Stream)
	OnClose      func(srv *Server)
}

func (h Handlers) fireConnect(s *Stream) {
	if h.OnConnect != nil {
		h.OnConnect(s)
	}
}

func (h Handlers) fireData(s *Stream, data []byte) {
	if h.OnData != nil {
		h.OnData(s, data)
	}
}

func (h Handlers) fireEnd(s *Stream) {
	if h.OnEnd != nil {
		h.OnEnd(s)
	}
}

func (h Handlers) fireDrain(s *Stream) {
	if h.OnDrain != nil {
		h.OnDrain(s)
	}
}

func (h Handlers) fireTimeout(s *Stream) {
	if h.OnTimeout != nil {
		h.OnTimeout(s)
	}
}

func (h Handlers) fireError(s *Stream, err error) {
	if h.OnError != nil {
		h.OnError(s, err)
	}
}

func (h Handlers) fireClose(s *Stream, hadError bool) {
	if h.OnClose != nil {
		h.OnClose(s, hadError)
	}
}
