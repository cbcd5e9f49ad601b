package evoke

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// BeforeFunc runs prior to handler invocation. It receives the payload as
// transformed by earlier hooks and returns the payload the next hook (and
// ultimately the handler) observes. Returning an error short-circuits the
// dispatch: the handler never runs and no After hooks run. Use Reject to deny
// an event explicitly.
type BeforeFunc func(ctx context.Context, event Event, sid SocketID, payload any) (any, error)

// AfterFunc runs after the handler returns, threading the response the same
// way Before hooks thread the payload. After hooks run in reverse registration
// order, producing nested onion semantics around the handler.
type AfterFunc func(ctx context.Context, event Event, sid SocketID, response any) (any, error)

// ErrorFunc runs when any pipeline step fails. Returning handled=true
// suppresses the error and substitutes result as the dispatch response;
// suppression must be explicit, so returning (nil, false) re-raises.
type ErrorFunc func(ctx context.Context, event Event, sid SocketID, payload any, err error) (result any, handled bool)

// Middleware is one entry in the dispatch pipeline: a before/after hook pair
// plus an exception hook, and filters deciding which events it wraps.
//
// An entry constructed with no filter is global and runs for every event.
// Constructing with any filter (events, namespace, or payload) forces the
// global flag off.
type Middleware struct {
	before  BeforeFunc
	after   AfterFunc
	onError ErrorFunc

	events        map[Event]struct{}
	namespace     string
	payloadFilter Discriminator
	global        bool
}

// MiddlewareOption configures a Middleware entry.
type MiddlewareOption func(*Middleware)

// WithBefore sets the hook run prior to handler invocation.
func WithBefore(fn BeforeFunc) MiddlewareOption {
	return func(m *Middleware) { m.before = fn }
}

// WithAfter sets the hook run on the handler's response.
func WithAfter(fn AfterFunc) MiddlewareOption {
	return func(m *Middleware) { m.after = fn }
}

// WithOnError sets the exception hook.
func WithOnError(fn ErrorFunc) MiddlewareOption {
	return func(m *Middleware) { m.onError = fn }
}

// WithEvents restricts the entry to the named events.
func WithEvents(events ...string) MiddlewareOption {
	return func(m *Middleware) {
		if m.events == nil {
			m.events = make(map[Event]struct{}, len(events))
		}
		for _, e := range events {
			m.events[Event(e)] = struct{}{}
		}
	}
}

// WithNamespace restricts the entry to one namespace.
func WithNamespace(ns string) MiddlewareOption {
	return func(m *Middleware) { m.namespace = ns }
}

// WithPayloadFilter restricts the entry to payloads matched by the
// discriminator. Non-JSON payloads never match.
func WithPayloadFilter(d Discriminator) MiddlewareOption {
	return func(m *Middleware) { m.payloadFilter = d }
}

// NewMiddleware builds a pipeline entry.
//
// Example:
//
//	guard := evoke.NewMiddleware(
//	    evoke.WithEvents("join_room", "send_message"),
//	    evoke.WithBefore(func(ctx context.Context, ev evoke.Event, sid evoke.SocketID, payload any) (any, error) {
//	        if !authorized(sid) {
//	            return nil, evoke.Reject("not authorized")
//	        }
//	        return payload, nil
//	    }),
//	)
//	s.Use(guard)
func NewMiddleware(opts ...MiddlewareOption) *Middleware {
	m := &Middleware{}
	for _, opt := range opts {
		opt(m)
	}
	m.global = len(m.events) == 0 && m.namespace == "" && m.payloadFilter == nil
	return m
}

// Global reports whether the entry runs for every event.
func (m *Middleware) Global() bool { return m.global }

// shouldRun is the selection predicate: global entries always run; filtered
// entries run when every configured filter matches.
func (m *Middleware) shouldRun(event Event, namespace string, payload any) bool {
	if m.global {
		return true
	}
	if m.namespace != "" && m.namespace != namespace {
		return false
	}
	if len(m.events) > 0 {
		if _, ok := m.events[event]; !ok {
			return false
		}
	}
	if m.payloadFilter != nil {
		view, ok := payloadView(payload)
		if !ok || !m.payloadFilter.Match(view) {
			return false
		}
	}
	return true
}

// payloadView exposes a raw JSON payload for discriminator matching.
// Structured payloads are re-encoded; unencodable payloads never match.
func payloadView(payload any) (View, bool) {
	var raw []byte
	switch p := payload.(type) {
	case nil:
		return nil, false
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, false
		}
		raw = b
	}

	view, err := JSONInspector().Inspect(raw)
	if err != nil {
		return nil, false
	}
	return view, true
}

// chain is the ordered middleware registry. Registration and removal are safe
// to call concurrently with in-flight dispatches; each dispatch works on a
// snapshot, so changes take effect for subsequent invocations only.
type chain struct {
	mu      sync.RWMutex
	entries []*Middleware
}

func (c *chain) add(m *Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, m)
}

func (c *chain) remove(m *Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e == m {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

func (c *chain) snapshot() []*Middleware {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Middleware, len(c.entries))
	copy(out, c.entries)
	return out
}

// execute wraps handler in the selected entries. Before hooks run in
// registration order, After hooks in reverse registration order. On failure
// the exception hooks of entries that already started run in registration
// order; the first hook to suppress wins and the remaining hooks are skipped.
func (c *chain) execute(ctx context.Context, event Event, namespace string, sid SocketID, payload any, handler func(context.Context, any) (any, error)) (any, error) {
	all := c.snapshot()
	selected := all[:0:0]
	for _, m := range all {
		if m.shouldRun(event, namespace, payload) {
			selected = append(selected, m)
		}
	}

	started := 0
	result, err := func() (any, error) {
		for i, m := range selected {
			started = i + 1
			if m.before == nil {
				continue
			}
			p, err := m.before(ctx, event, sid, payload)
			if err != nil {
				var re *RejectionError
				if errors.As(err, &re) && re.Event == "" {
					re.Event = string(event)
				}
				return nil, err
			}
			payload = p
		}

		started = len(selected)
		res, err := handler(ctx, payload)
		if err != nil {
			return nil, err
		}

		for i := len(selected) - 1; i >= 0; i-- {
			if selected[i].after == nil {
				continue
			}
			res, err = selected[i].after(ctx, event, sid, res)
			if err != nil {
				return nil, err
			}
		}
		return res, nil
	}()

	if err == nil {
		return result, nil
	}

	for i := 0; i < started; i++ {
		if selected[i].onError == nil {
			continue
		}
		if fallback, handled := selected[i].onError(ctx, event, sid, payload, err); handled {
			return fallback, nil
		}
	}
	return nil, err
}
