package evoke

import (
	"fmt"
	"reflect"
	"sync"
)

// ExecMode tags a handler or factory with its execution mode. Sync callables
// run inline on the dispatching goroutine and must not block; async callables
// may block and run on the server's worker pool. The mode of every callable is
// fixed at registration, so a sync handler reaching for an async dependency is
// caught when it is registered rather than mid-dispatch.
type ExecMode int

const (
	// ModeSync runs inline on the dispatching goroutine.
	ModeSync ExecMode = iota

	// ModeAsync may block; dispatches are routed through the worker pool.
	ModeAsync
)

func (m ExecMode) String() string {
	if m == ModeAsync {
		return "async"
	}
	return "sync"
}

// Dependency pairs a factory with its cache eligibility and execution mode.
// Declared once at registration, immutable afterwards; the pointer itself is
// the cache identity within an invocation.
type Dependency struct {
	factory    *callable
	resultType reflect.Type
	useCache   bool
	mode       ExecMode
}

// ProvideOption configures a dependency declaration.
type ProvideOption func(*Dependency)

// UseCache controls memoization. Cache-eligible factories (the default) are
// invoked at most once per dispatch no matter how many parameters depend on
// them; with UseCache(false) the factory runs once per reference.
func UseCache(on bool) ProvideOption {
	return func(d *Dependency) {
		d.useCache = on
	}
}

// AsyncFactory marks the factory as blocking. Async factories are only
// resolvable from async handlers; a sync resolution path fails with
// AsyncDependencyError instead of silently blocking.
func AsyncFactory() ProvideOption {
	return func(d *Dependency) {
		d.mode = ModeAsync
	}
}

// registry holds the process-wide dependency declarations. Read-mostly:
// in-flight dispatches take the read lock, registration calls the write lock,
// so registering concurrently with dispatches is safe and new declarations
// take effect for subsequent invocations only.
type registry struct {
	mu        sync.RWMutex
	providers map[reflect.Type]*Dependency
	named     map[string]*Dependency
}

func newRegistry() *registry {
	return &registry{
		providers: make(map[reflect.Type]*Dependency),
		named:     make(map[string]*Dependency),
	}
}

func (r *registry) provider(t reflect.Type) (*Dependency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.providers[t]
	return d, ok
}

func (r *registry) namedProvider(name string) (*Dependency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.named[name]
	return d, ok
}

// Provide registers factory for its result type. Handlers and other factories
// declaring a parameter of that type receive the factory's result.
//
// The factory is any func whose parameters follow the same classification
// rules as handler parameters and whose results are T or (T, error).
// Registration fails if the factory's transitive parameter graph reaches its
// own result type (a cycle).
//
// Example:
//
//	func openSession(sid evoke.SocketID, st *Store) (*Session, error) { ... }
//
//	s.Provide(openSession)                      // cached per dispatch
//	s.Provide(newRequestID, evoke.UseCache(false)) // fresh per reference
func (s *Server) Provide(factory any, opts ...ProvideOption) error {
	d, err := newDependency(factory, opts...)
	if err != nil {
		return err
	}

	s.deps.mu.Lock()
	defer s.deps.mu.Unlock()

	if prev, ok := s.deps.providers[d.resultType]; ok && prev != nil {
		return &ResolutionError{
			Target: d.factory.name,
			Reason: fmt.Sprintf("provider for %s already registered", d.resultType),
		}
	}

	s.deps.providers[d.resultType] = d
	if err := s.checkCyclesLocked(d); err != nil {
		delete(s.deps.providers, d.resultType)
		return err
	}
	return nil
}

// ProvideNamed registers a factory under an explicit name instead of its
// result type. Named factories are looked up with NamedFactory or invoked
// through ResolveNamed; they do not participate in parameter classification.
func (s *Server) ProvideNamed(name string, factory any, opts ...ProvideOption) error {
	d, err := newDependency(factory, opts...)
	if err != nil {
		return err
	}

	s.deps.mu.Lock()
	defer s.deps.mu.Unlock()
	s.deps.named[name] = d
	return nil
}

// NamedFactory returns the factory registered under name, or false when
// absent.
func (s *Server) NamedFactory(name string) (any, bool) {
	d, ok := s.deps.namedProvider(name)
	if !ok {
		return nil, false
	}
	return d.factory.fn.Interface(), true
}

// RemoveNamed drops a named factory. Removing an unknown name is a no-op.
func (s *Server) RemoveNamed(name string) {
	s.deps.mu.Lock()
	defer s.deps.mu.Unlock()
	delete(s.deps.named, name)
}

func newDependency(factory any, opts ...ProvideOption) (*Dependency, error) {
	c, err := newCallable(factory)
	if err != nil {
		return nil, err
	}
	if c.outKind == outNone || c.outKind == outErrOnly {
		return nil, &ResolutionError{
			Target: c.name,
			Reason: "factory must return a value",
		}
	}

	d := &Dependency{
		factory:    c,
		resultType: c.fn.Type().Out(0),
		useCache:   true,
		mode:       ModeSync,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// checkCyclesLocked walks the full provider graph after a registration.
// Callers hold the registry write lock.
func (s *Server) checkCyclesLocked(start *Dependency) error {
	state := make(map[*Dependency]int) // 0 unvisited, 1 on stack, 2 done

	var visit func(d *Dependency) error
	visit = func(d *Dependency) error {
		switch state[d] {
		case 1:
			return &ResolutionError{
				Target: d.factory.name,
				Reason: fmt.Sprintf("dependency cycle through %s", d.resultType),
			}
		case 2:
			return nil
		}
		state[d] = 1
		for _, p := range d.factory.params {
			if p.kind != paramDynamic {
				continue
			}
			if next, ok := s.deps.providers[p.typ]; ok {
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		state[d] = 2
		return nil
	}

	return visit(start)
}

// asyncReachableLocked reports whether any async factory is reachable from
// the callable's parameter graph. Callers hold at least the registry read
// lock.
func (s *Server) asyncReachableLocked(c *callable, seen map[*Dependency]bool) (string, bool) {
	for _, p := range c.params {
		if p.kind != paramDynamic {
			continue
		}
		d, ok := s.deps.providers[p.typ]
		if !ok || seen[d] {
			continue
		}
		seen[d] = true
		if d.mode == ModeAsync {
			return d.factory.name, true
		}
		if name, found := s.asyncReachableLocked(d.factory, seen); found {
			return name, true
		}
	}
	return "", false
}
