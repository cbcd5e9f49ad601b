// Package evoke is a request-scoped dependency resolution and middleware
// pipeline engine for real-time event servers.
//
// It sits between a transport (websocket gateway, message broker, in-memory
// test harness) and your handlers: the transport hands each inbound event to
// Dispatch, and evoke opens an ambient scope, runs the middleware pipeline,
// resolves the handler's declared parameters, and invokes it.
//
// # Quick Start
//
// Handlers are plain functions; their parameters declare what they need:
//
//	type JoinRoom struct {
//	    Room string `json:"room" validate:"required"`
//	    Nick string `json:"nick" validate:"required,min=2"`
//	}
//
//	s := evoke.New()
//
//	s.OnConnect(func(sid evoke.SocketID, auth evoke.Auth) error {
//	    return authenticate(auth)
//	})
//
//	s.On("join_room", func(ctx context.Context, sid evoke.SocketID, p JoinRoom, rooms *Rooms) (*Ack, error) {
//	    return rooms.Join(ctx, sid, p.Room, p.Nick)
//	})
//
//	result, err := s.Dispatch(ctx, evoke.Invocation{
//	    Event:    "join_room",
//	    SocketID: "abc123",
//	    Payload:  rawJSON,
//	})
//
// # Parameter Resolution
//
// Parameters are classified by type at registration, never by name:
//
//   - context.Context: the dispatch context
//   - SocketID, Event, Environ: ambient connection values
//   - Auth: the connection auth payload, connect dispatches only
//   - Reason: the disconnect reason, disconnect dispatches only
//   - Data: the raw payload without schema validation
//   - *Server: the engine itself, for emitting from inside a handler
//   - a type with a registered factory (see Provide): the factory's result
//   - any other struct, map, slice, or pointer-to-struct: the payload,
//     decoded and validated as a schema model
//
// Requesting Auth outside a connect dispatch (or Reason outside a disconnect
// dispatch) fails with ContextUnavailableError rather than yielding a stale or
// empty value.
//
// # Dependency Factories
//
// Provide registers a factory keyed by its result type. Factories declare
// their own parameters with the same rules, so dependencies compose:
//
//	func openSession(sid evoke.SocketID, store *Store) (*Session, error) { ... }
//
//	s.Provide(openStore)
//	s.Provide(openSession)
//
// Cache-eligible factories (the default) run at most once per dispatch no
// matter how many parameters fan in on them; UseCache(false) makes a factory
// run per reference. Cycles in the factory graph and sync handlers reaching
// async factories are rejected at registration, not mid-dispatch.
//
// # Middleware Pipeline
//
// A Middleware entry wraps handler invocation with a Before hook, an After
// hook, and an exception hook. Before hooks thread the payload in registration
// order; After hooks thread the response in reverse order, producing onion
// semantics. A Before hook returning an error (use Reject for explicit denial)
// short-circuits the dispatch.
//
// Entries built with no filter are global. WithEvents, WithNamespace, and
// WithPayloadFilter scope an entry; any filter turns the global flag off:
//
//	s.Use(evoke.LoggingMiddleware(logger))          // global
//	s.Use(evoke.AuthMiddleware(checkToken))         // connect only
//	s.Use(evoke.NewMiddleware(
//	    evoke.WithPayloadFilter(evoke.HasFields("room")),
//	    evoke.WithBefore(tagRoom),
//	))
//
// Built-in entries cover auth (AuthMiddleware), structured logging
// (LoggingMiddleware), rate limiting (RateLimitMiddleware), Prometheus
// metrics (MetricsMiddleware), and OpenTelemetry spans (TracingMiddleware).
//
// # Execution Modes
//
// Handlers and factories are sync by default and must not block; marking one
// with Async (or AsyncFactory) routes its dispatches through the server's
// worker pool. The modes are declared at registration so violations surface
// there.
//
// # Namespaces and Routers
//
// Handlers register under a namespace, "/" by default. A Router groups
// registrations for one namespace so features declare their events away from
// server setup:
//
//	chat := evoke.NewRouter("/chat")
//	chat.On("send_message", sendMessage)
//	chat.OnDisconnect(leaveAll)
//	s.Include(chat)
//
// # Transports
//
// The engine is transport-agnostic: anything that can build an Invocation can
// drive it, and handlers emit outbound messages through the Emitter installed
// with SetEmitter. The transport/local package provides an in-memory transport
// for tests and examples.
//
// # Thread Safety
//
// Server is safe for concurrent use. Registration calls may be issued
// concurrently with in-flight dispatches; new registrations take effect for
// subsequent invocations. Each dispatch owns its scope, so concurrent
// dispatches never observe each other's ambient values or cached
// dependencies.
package evoke
