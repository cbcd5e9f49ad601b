package evoke

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
)

// SocketID identifies the connection an event arrived on. Declare a parameter
// of this type to have it injected.
type SocketID string

// Event is the name of the event being dispatched. Declare a parameter of
// this type to have it injected.
type Event string

// Reason is the disconnect reason. It is only available while a disconnect
// event is being dispatched; requesting it elsewhere fails with
// ContextUnavailableError.
type Reason string

// Environ carries the transport environment the connection was established
// with (headers, query parameters, whatever the transport supplies).
type Environ map[string]string

// Auth is the authentication payload supplied at connection time. It is only
// available while a connect event is being dispatched; requesting it elsewhere
// fails with ContextUnavailableError.
type Auth map[string]any

// Data is the raw event payload as delivered by the transport, after any
// middleware Before hooks have transformed it. Declare a parameter of this
// type when a handler wants the payload without schema validation.
type Data struct {
	value any
}

// Value returns the payload as supplied by the transport or the last Before
// hook that replaced it.
func (d Data) Value() any { return d.value }

// Bytes returns the raw JSON payload when the payload is held as bytes.
func (d Data) Bytes() (json.RawMessage, bool) {
	switch v := d.value.(type) {
	case json.RawMessage:
		return v, true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}

// Decode unmarshals the payload into dst. Payloads held as structured values
// (e.g. after a Before hook replaced the raw bytes with a map) are re-encoded
// first.
func (d Data) Decode(dst any) error {
	raw, ok := d.Bytes()
	if !ok {
		b, err := json.Marshal(d.value)
		if err != nil {
			return err
		}
		raw = b
	}
	return json.Unmarshal(raw, dst)
}

// ambient holds the values for one in-flight invocation. The has* flags
// distinguish "set to zero" from "not supplied", which drives fallthrough to
// an enclosing scope and the connect/disconnect availability invariants.
type ambient struct {
	socketID   SocketID
	environ    Environ
	auth       Auth
	hasAuth    bool
	reason     Reason
	hasReason  bool
	payload    any
	hasPayload bool
	event      Event
	namespace  string
	server     *Server
}

// scope is the per-invocation carrier for ambient values and the dependency
// cache. Each dispatch owns exactly one scope; it is reachable only through
// the invocation's context, so concurrent dispatches cannot observe each
// other's values. Closing a scope clears everything; reads after close report
// absent rather than stale values.
type scope struct {
	mu     sync.Mutex
	parent *scope
	amb    ambient
	cache  map[*Dependency]reflect.Value
	extras map[string]any
	closed bool
}

type scopeCtxKey struct{}

// enterScope derives a context carrying a fresh scope. If the context already
// carries a scope (a nested dispatch), the new scope shadows it; the outer
// scope is untouched and takes over again once the inner scope closes.
func enterScope(ctx context.Context, amb ambient) (context.Context, *scope) {
	parent, _ := ctx.Value(scopeCtxKey{}).(*scope)
	sc := &scope{
		parent: parent,
		amb:    amb,
		cache:  make(map[*Dependency]reflect.Value),
	}
	return context.WithValue(ctx, scopeCtxKey{}, sc), sc
}

func scopeFrom(ctx context.Context) *scope {
	sc, _ := ctx.Value(scopeCtxKey{}).(*scope)
	return sc
}

// close tears the scope down. Runs on every dispatch exit path, including
// panics and cancellation.
func (s *scope) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.amb = ambient{}
	s.cache = nil
	s.extras = nil
}

// ScopeSet stores a value in the active dispatch scope. It disappears with
// the scope; middleware hooks use it to share per-invocation state such as
// start timestamps. A no-op outside a dispatch or after the scope closed.
func ScopeSet(ctx context.Context, key string, v any) {
	sc := scopeFrom(ctx)
	if sc == nil {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	if sc.extras == nil {
		sc.extras = make(map[string]any)
	}
	sc.extras[key] = v
}

// ScopeGet reads a value stored with ScopeSet. Absent keys, closed scopes,
// and contexts outside a dispatch all report false.
func ScopeGet(ctx context.Context, key string) (any, bool) {
	for sc := scopeFrom(ctx); sc != nil; sc = sc.parent {
		sc.mu.Lock()
		if !sc.closed && sc.extras != nil {
			if v, ok := sc.extras[key]; ok {
				sc.mu.Unlock()
				return v, true
			}
		}
		sc.mu.Unlock()
	}
	return nil, false
}

// snapshot returns the current ambient set, walking up to the enclosing scope
// chain is intentionally not done here: each getter decides per value whether
// fallthrough applies.
func (s *scope) snapshot() (ambient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ambient{}, false
	}
	return s.amb, true
}

func (s *scope) currentEvent() (Event, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if amb, ok := sc.snapshot(); ok && amb.event != "" {
			return amb.event, true
		}
	}
	return "", false
}

func (s *scope) socketID() (SocketID, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if amb, ok := sc.snapshot(); ok && amb.socketID != "" {
			return amb.socketID, true
		}
	}
	return "", false
}

func (s *scope) environ() (Environ, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if amb, ok := sc.snapshot(); ok && amb.environ != nil {
			return amb.environ, true
		}
	}
	return nil, false
}

func (s *scope) authPayload() (Auth, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if amb, ok := sc.snapshot(); ok && amb.hasAuth {
			return amb.auth, true
		}
	}
	return nil, false
}

func (s *scope) disconnectReason() (Reason, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if amb, ok := sc.snapshot(); ok && amb.hasReason {
			return amb.reason, true
		}
	}
	return "", false
}

func (s *scope) payload() (any, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if amb, ok := sc.snapshot(); ok && amb.hasPayload {
			return amb.payload, true
		}
	}
	return nil, false
}

func (s *scope) serverHandle() (*Server, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if amb, ok := sc.snapshot(); ok && amb.server != nil {
			return amb.server, true
		}
	}
	return nil, false
}

// setPayload rebinds the payload after a Before hook transforms it. Only this
// scope is touched; an enclosing invocation keeps its own payload.
func (s *scope) setPayload(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.amb.payload = v
	s.amb.hasPayload = true
}

// cached returns the memoized result for a cache-eligible factory.
func (s *scope) cached(d *Dependency) (reflect.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cache == nil {
		return reflect.Value{}, false
	}
	v, ok := s.cache[d]
	return v, ok
}

func (s *scope) storeCache(d *Dependency, v reflect.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cache == nil {
		return
	}
	s.cache[d] = v
}
