package evoke

import "context"

// Proc processes an event without returning a result. Use for fire-and-forget
// events where the peer expects no acknowledgement.
//
// The type parameter T is the payload model; it is decoded and validated by
// the server's Validator before Run is called.
//
// Example:
//
//	type TypingProc struct {
//	    presence *Presence
//	}
//
//	func (p *TypingProc) Run(ctx context.Context, sid evoke.SocketID, payload Typing) error {
//	    return p.presence.MarkTyping(ctx, sid, payload.Room)
//	}
type Proc[T any] interface {
	Run(ctx context.Context, sid SocketID, payload T) error
}

// ProcFunc is a function adapter for Proc.
type ProcFunc[T any] func(ctx context.Context, sid SocketID, payload T) error

// Run implements the Proc interface.
func (f ProcFunc[T]) Run(ctx context.Context, sid SocketID, payload T) error {
	return f(ctx, sid, payload)
}

// Func processes an event and returns a typed acknowledgement. The type
// parameters are T for the payload model and R for the result.
type Func[T, R any] interface {
	Call(ctx context.Context, sid SocketID, payload T) (R, error)
}

// FuncFunc is a function adapter for Func.
type FuncFunc[T, R any] func(ctx context.Context, sid SocketID, payload T) (R, error)

// Call implements the Func interface.
func (f FuncFunc[T, R]) Call(ctx context.Context, sid SocketID, payload T) (R, error) {
	return f(ctx, sid, payload)
}

// RegisterProc registers a typed fire-and-forget handler.
//
// This is a package-level function (not a method) due to Go generics
// limitations: methods cannot have type parameters independent of the
// receiver. Handlers needing ambient values beyond the socket id should use
// Server.On directly and declare them as parameters.
//
// Example:
//
//	evoke.RegisterProc(s, "typing", &TypingProc{presence})
func RegisterProc[T any](s *Server, event string, h Proc[T], opts ...HandlerOption) error {
	return s.On(event, func(ctx context.Context, sid SocketID, payload T) error {
		return h.Run(ctx, sid, payload)
	}, opts...)
}

// RegisterFunc registers a typed request-response handler; the returned value
// is the dispatch result after After hooks.
//
// Example:
//
//	evoke.RegisterFunc(s, "join_room", evoke.FuncFunc[JoinRoom, *JoinAck](joinRoom))
func RegisterFunc[T, R any](s *Server, event string, h Func[T, R], opts ...HandlerOption) error {
	return s.On(event, func(ctx context.Context, sid SocketID, payload T) (R, error) {
		return h.Call(ctx, sid, payload)
	}, opts...)
}
