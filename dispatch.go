package evoke

import (
	"context"
	"fmt"
)

// Invocation is one inbound event as supplied by the transport collaborator.
// Auth is meaningful only for connect dispatches and Reason only for
// disconnect dispatches; the boundary enforces that ambient availability.
type Invocation struct {
	// Event is the event name; EventConnect and EventDisconnect are reserved.
	Event string

	// Namespace defaults to "/" when empty.
	Namespace string

	// SocketID identifies the connection.
	SocketID string

	// Environ is the transport environment, or nil when the transport has
	// none to offer.
	Environ Environ

	// Auth is the connection-time authentication payload.
	Auth Auth

	// Reason is the disconnect reason.
	Reason string

	// Payload is the raw event payload: typically json.RawMessage from the
	// wire, but any value a transport or test supplies.
	Payload any
}

// Dispatch processes one inbound event end to end: it opens an ambient scope
// with the invocation's values, runs the middleware pipeline around argument
// resolution and handler invocation, and tears the scope down on every exit
// path. Sync handlers run inline on the caller's goroutine; async handlers run
// on the worker pool while Dispatch waits for their result.
//
// The returned value is the handler's response after After hooks (or an
// exception hook's fallback); the returned error is whatever survived the
// exception hooks. The transport collaborator decides what either means on
// the wire.
func (s *Server) Dispatch(ctx context.Context, inv Invocation) (any, error) {
	h, ok := s.handlerFor(inv.Namespace, inv.Event)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, inv.Event)
	}

	if h.mode == ModeSync {
		return s.run(ctx, h, inv)
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	if err := s.pool.submit(func() {
		result, err := s.run(ctx, h, inv)
		done <- outcome{result: result, err: err}
	}); err != nil {
		return nil, err
	}

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		// The worker still tears its scope down when the job finishes;
		// the caller just stops waiting.
		return nil, ctx.Err()
	}
}

// DispatchAsync schedules a dispatch without blocking the caller; done
// (optional) receives the outcome on a pool worker goroutine.
func (s *Server) DispatchAsync(ctx context.Context, inv Invocation, done func(result any, err error)) error {
	h, ok := s.handlerFor(inv.Namespace, inv.Event)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, inv.Event)
	}

	return s.pool.submit(func() {
		result, err := s.run(ctx, h, inv)
		if done != nil {
			done(result, err)
		}
	})
}

// run is the composition point: scope setup, pipeline execution, resolution,
// handler call, guaranteed scope teardown.
func (s *Server) run(ctx context.Context, h *handlerEntry, inv Invocation) (any, error) {
	namespace := inv.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	amb := ambient{
		socketID:   SocketID(inv.SocketID),
		environ:    inv.Environ,
		event:      Event(inv.Event),
		namespace:  namespace,
		server:     s,
		payload:    inv.Payload,
		hasPayload: inv.Payload != nil,
	}
	// Availability invariants: auth exists only inside a connect dispatch,
	// reason only inside a disconnect dispatch.
	if inv.Event == EventConnect {
		amb.auth = inv.Auth
		amb.hasAuth = true
	}
	if inv.Event == EventDisconnect {
		amb.reason = Reason(inv.Reason)
		amb.hasReason = true
	}

	ctx, sc := enterScope(ctx, amb)
	defer sc.close()

	return s.middleware.execute(ctx, Event(inv.Event), namespace, SocketID(inv.SocketID), inv.Payload,
		func(ctx context.Context, payload any) (any, error) {
			if payload != nil {
				// Re-bind so the resolver sees the pipeline's transformations.
				sc.setPayload(payload)
			}

			args, err := s.resolve(ctx, h.c, h.mode, nil)
			if err != nil {
				return nil, err
			}
			return h.c.call(args)
		})
}
