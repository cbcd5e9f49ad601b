package evoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const (
	// DefaultNamespace is used when an invocation or registration does not
	// name a namespace.
	DefaultNamespace = "/"

	// EventConnect is the reserved connection-establishment event. Auth is
	// resolvable only while it is being dispatched.
	EventConnect = "connect"

	// EventDisconnect is the reserved disconnection event. Reason is
	// resolvable only while it is being dispatched.
	EventDisconnect = "disconnect"
)

// Emitter is the outbound half of the transport collaborator: the server
// relays handler-initiated messages through it. The transport owns delivery
// semantics and wire format.
type Emitter interface {
	Emit(ctx context.Context, sid SocketID, event string, data any) error
}

// Server is the dispatch engine: it owns the handler, middleware, and
// dependency registries and composes them per inbound event.
//
// A Server is safe for concurrent use. Registration calls (On, Use, Provide)
// may be issued concurrently with in-flight dispatches; new registrations
// take effect for subsequent invocations only.
type Server struct {
	deps       *registry
	middleware *chain
	validator  Validator
	logger     *slog.Logger
	cfg        Config
	pool       *workerPool

	mu       sync.RWMutex
	handlers map[string]map[string]*handlerEntry

	emitMu  sync.RWMutex
	emitter Emitter
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithValidator replaces the default schema validation adapter.
func WithValidator(v Validator) ServerOption {
	return func(s *Server) { s.validator = v }
}

// WithLogger sets the logger used by the server and the built-in logging
// middleware default.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithConfig applies a full configuration, typically from ConfigFromEnv.
func WithConfig(cfg Config) ServerOption {
	return func(s *Server) { s.cfg = cfg }
}

// WithWorkers overrides the async worker pool size.
func WithWorkers(n int) ServerOption {
	return func(s *Server) { s.cfg.Workers = n }
}

// New creates a Server.
//
// Example:
//
//	s := evoke.New(evoke.WithWorkers(16))
//	s.Provide(openStore)
//	s.OnConnect(func(sid evoke.SocketID, auth evoke.Auth) error { ... })
//	s.On("join_room", joinRoom)
func New(opts ...ServerOption) *Server {
	s := &Server{
		deps:       newRegistry(),
		middleware: &chain{},
		validator:  NewStructValidator(),
		logger:     slog.Default(),
		cfg:        DefaultConfig(),
		handlers:   make(map[string]map[string]*handlerEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		s.cfg = DefaultConfig()
	}
	s.pool = newWorkerPool(s.cfg.Workers, s.cfg.QueueCapacity)
	return s
}

// Close shuts down the async worker pool. In-flight jobs finish; subsequent
// async dispatches fail with ErrClosed.
func (s *Server) Close() {
	s.pool.close()
}

// handlerEntry pairs a classified callable with its registration metadata.
type handlerEntry struct {
	c         *callable
	mode      ExecMode
	event     string
	namespace string
}

// HandlerOption configures a handler registration.
type HandlerOption func(*handlerEntry)

// Async marks the handler as blocking; its dispatches run on the worker pool
// and it may depend on async factories.
func Async() HandlerOption {
	return func(h *handlerEntry) { h.mode = ModeAsync }
}

// InNamespace registers the handler under a namespace other than "/".
func InNamespace(ns string) HandlerOption {
	return func(h *handlerEntry) { h.namespace = ns }
}

// On registers a handler for an event. The handler is any func; its
// parameters are classified by type at registration (ambient values, payload
// models, provided dependencies, *Server) and resolved per dispatch. Results
// may be none, error, T, or (T, error).
//
// Registering a sync handler whose dependency graph reaches an async factory
// fails here rather than at dispatch time. Registering the same event twice
// replaces the previous handler.
func (s *Server) On(event string, handler any, opts ...HandlerOption) error {
	if event == "" {
		return errors.New("event name is required")
	}

	c, err := newCallable(handler)
	if err != nil {
		return err
	}

	entry := &handlerEntry{
		c:         c,
		mode:      ModeSync,
		event:     event,
		namespace: DefaultNamespace,
	}
	for _, opt := range opts {
		opt(entry)
	}

	if entry.mode == ModeSync {
		s.deps.mu.RLock()
		name, found := s.asyncReachableLocked(c, make(map[*Dependency]bool))
		s.deps.mu.RUnlock()
		if found {
			return &AsyncDependencyError{Factory: name, Target: c.name}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	byEvent, ok := s.handlers[entry.namespace]
	if !ok {
		byEvent = make(map[string]*handlerEntry)
		s.handlers[entry.namespace] = byEvent
	}
	byEvent[event] = entry
	return nil
}

// OnConnect registers the connection-establishment handler.
func (s *Server) OnConnect(handler any, opts ...HandlerOption) error {
	return s.On(EventConnect, handler, opts...)
}

// OnDisconnect registers the disconnection handler.
func (s *Server) OnDisconnect(handler any, opts ...HandlerOption) error {
	return s.On(EventDisconnect, handler, opts...)
}

// Off removes a handler registration. Unknown events are a no-op.
func (s *Server) Off(namespace, event string) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if byEvent, ok := s.handlers[namespace]; ok {
		delete(byEvent, event)
	}
}

func (s *Server) handlerFor(namespace, event string) (*handlerEntry, bool) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	byEvent, ok := s.handlers[namespace]
	if !ok {
		return nil, false
	}
	h, ok := byEvent[event]
	return h, ok
}

// Use adds a middleware entry to the pipeline. Safe to call while dispatches
// are in flight; the entry applies to subsequent invocations.
func (s *Server) Use(m *Middleware) {
	s.middleware.add(m)
}

// Remove drops a middleware entry. Removing an unregistered entry is a no-op.
func (s *Server) Remove(m *Middleware) {
	s.middleware.remove(m)
}

// SetEmitter installs the transport's outbound side.
func (s *Server) SetEmitter(e Emitter) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.emitter = e
}

// Emit relays a message to a connection through the transport collaborator.
func (s *Server) Emit(ctx context.Context, sid SocketID, event string, data any) error {
	s.emitMu.RLock()
	e := s.emitter
	s.emitMu.RUnlock()
	if e == nil {
		return errors.New("no transport emitter configured")
	}
	return e.Emit(ctx, sid, event, data)
}

// Router groups handler registrations under one namespace so features can
// declare their events away from server setup and be merged in with Include.
type Router struct {
	namespace string
	regs      []routerReg
}

type routerReg struct {
	event string
	fn    any
	opts  []HandlerOption
}

// NewRouter creates a registration group for a namespace. An empty namespace
// means "/".
func NewRouter(namespace string) *Router {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Router{namespace: namespace}
}

// On queues a handler registration on the router.
func (r *Router) On(event string, handler any, opts ...HandlerOption) {
	r.regs = append(r.regs, routerReg{event: event, fn: handler, opts: opts})
}

// OnConnect queues the namespace's connect handler.
func (r *Router) OnConnect(handler any, opts ...HandlerOption) {
	r.On(EventConnect, handler, opts...)
}

// OnDisconnect queues the namespace's disconnect handler.
func (r *Router) OnDisconnect(handler any, opts ...HandlerOption) {
	r.On(EventDisconnect, handler, opts...)
}

// Include merges a router's registrations into the server. The first
// registration error aborts the merge.
func (s *Server) Include(r *Router) error {
	for _, reg := range r.regs {
		opts := append([]HandlerOption{InNamespace(r.namespace)}, reg.opts...)
		if err := s.On(reg.event, reg.fn, opts...); err != nil {
			return fmt.Errorf("include %s %q: %w", r.namespace, reg.event, err)
		}
	}
	return nil
}
