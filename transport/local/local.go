// Package local is an in-memory transport collaborator for the evoke engine.
// It stands in for a real protocol layer in tests and examples: it mints
// socket ids, parses event envelopes, feeds the dispatch boundary, and
// captures emitted frames for assertions.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/evoke-io/evoke"
)

// ErrUnknownSocket is returned when a frame references a socket that never
// connected or already disconnected.
var ErrUnknownSocket = errors.New("unknown socket")

// ErrBadEnvelope is returned when an inbound frame is not a recognizable
// event envelope.
var ErrBadEnvelope = errors.New("bad event envelope")

// envelope is the frame format this transport speaks:
//
//	{"event": "join_room", "namespace": "/chat", "data": {...}}
//
// Only "event" is required. Detection happens via a discriminator before the
// frame is parsed.
var envelope = evoke.HasFields("event")

// Frame is one outbound message captured by the transport.
type Frame struct {
	Event string
	Data  any
}

// Transport is an in-memory peer for a single evoke.Server. Safe for
// concurrent use.
type Transport struct {
	srv *evoke.Server

	mu    sync.Mutex
	socks map[evoke.SocketID]*socket
}

type socket struct {
	env    evoke.Environ
	outbox []Frame
}

// New wires a transport to the server, installing itself as the server's
// emitter.
func New(srv *evoke.Server) *Transport {
	t := &Transport{
		srv:   srv,
		socks: make(map[evoke.SocketID]*socket),
	}
	srv.SetEmitter(t)
	return t
}

// Connect establishes a connection: it mints a socket id and runs the connect
// dispatch with the supplied environment and auth payload. A rejected or
// failed connect dispatch aborts the connection.
func (t *Transport) Connect(ctx context.Context, env evoke.Environ, auth evoke.Auth) (evoke.SocketID, error) {
	sid := evoke.SocketID(uuid.NewString())

	if _, err := t.srv.Dispatch(ctx, evoke.Invocation{
		Event:    evoke.EventConnect,
		SocketID: string(sid),
		Environ:  env,
		Auth:     auth,
	}); err != nil {
		return "", err
	}

	t.mu.Lock()
	t.socks[sid] = &socket{env: env}
	t.mu.Unlock()
	return sid, nil
}

// Send delivers one raw frame from a connected socket. The frame must be an
// event envelope; its data (raw JSON) becomes the dispatch payload. The
// handler's response is returned to the caller the way a real transport
// would relay an acknowledgement.
func (t *Transport) Send(ctx context.Context, sid evoke.SocketID, raw []byte) (any, error) {
	t.mu.Lock()
	sock, ok := t.socks[sid]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSocket, sid)
	}

	view, err := evoke.JSONInspector().Inspect(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if !envelope.Match(view) {
		return nil, fmt.Errorf("%w: missing event field", ErrBadEnvelope)
	}

	event, _ := view.GetString("event")
	namespace, _ := view.GetString("namespace")

	var payload any
	if data, ok := view.GetBytes("data"); ok {
		payload = json.RawMessage(data)
	}

	return t.srv.Dispatch(ctx, evoke.Invocation{
		Event:     event,
		Namespace: namespace,
		SocketID:  string(sid),
		Environ:   sock.env,
		Payload:   payload,
	})
}

// Disconnect runs the disconnect dispatch and forgets the socket. The socket
// is forgotten even when the disconnect handler fails.
func (t *Transport) Disconnect(ctx context.Context, sid evoke.SocketID, reason string) error {
	t.mu.Lock()
	_, ok := t.socks[sid]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSocket, sid)
	}

	_, err := t.srv.Dispatch(ctx, evoke.Invocation{
		Event:    evoke.EventDisconnect,
		SocketID: string(sid),
		Reason:   reason,
	})

	t.mu.Lock()
	delete(t.socks, sid)
	t.mu.Unlock()
	return err
}

// Emit implements evoke.Emitter by buffering the frame on the socket's
// outbox.
func (t *Transport) Emit(ctx context.Context, sid evoke.SocketID, event string, data any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	sock, ok := t.socks[sid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSocket, sid)
	}
	sock.outbox = append(sock.outbox, Frame{Event: event, Data: data})
	return nil
}

// Sent returns a copy of the frames emitted to a socket so far.
func (t *Transport) Sent(sid evoke.SocketID) []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	sock, ok := t.socks[sid]
	if !ok {
		return nil
	}
	out := make([]Frame, len(sock.outbox))
	copy(out, sock.outbox)
	return out
}
