package evoke

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
)

// paramKind is the classification of a declared parameter. Classification is
// derived purely from the parameter's type, never its name, and happens once
// at registration time.
type paramKind int

const (
	paramContext paramKind = iota
	paramSocketID
	paramEvent
	paramReason
	paramEnviron
	paramAuth
	paramData
	paramServer

	// paramDynamic covers everything else: resolved at dispatch time as a
	// registered dependency if a provider exists for the type, or as a
	// schema-validated payload model when the type is model-shaped.
	paramDynamic
)

var (
	typeContext = reflect.TypeOf((*context.Context)(nil)).Elem()
	typeError   = reflect.TypeOf((*error)(nil)).Elem()

	typeSocketID = reflect.TypeOf(SocketID(""))
	typeEvent    = reflect.TypeOf(Event(""))
	typeReason   = reflect.TypeOf(Reason(""))
	typeEnviron  = reflect.TypeOf(Environ(nil))
	typeAuth     = reflect.TypeOf(Auth(nil))
	typeData     = reflect.TypeOf(Data{})
	typeServer   = reflect.TypeOf((*Server)(nil))
)

type paramSpec struct {
	kind paramKind
	typ  reflect.Type
}

// outKind describes a callable's result shape.
type outKind int

const (
	outNone outKind = iota
	outErrOnly
	outValOnly
	outValErr
)

// callable is a handler or factory with its parameters classified.
type callable struct {
	fn      reflect.Value
	name    string
	params  []paramSpec
	outKind outKind
}

func newCallable(fn any) (*callable, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, &ResolutionError{Target: "handler", Reason: "not a function"}
	}

	t := v.Type()
	c := &callable{
		fn:   v,
		name: funcName(v),
	}

	for i := 0; i < t.NumIn(); i++ {
		c.params = append(c.params, paramSpec{kind: classify(t.In(i)), typ: t.In(i)})
	}

	switch t.NumOut() {
	case 0:
		c.outKind = outNone
	case 1:
		if t.Out(0) == typeError {
			c.outKind = outErrOnly
		} else {
			c.outKind = outValOnly
		}
	case 2:
		if t.Out(1) != typeError {
			return nil, &ResolutionError{
				Target: c.name,
				Reason: "second result must be error",
			}
		}
		c.outKind = outValErr
	default:
		return nil, &ResolutionError{
			Target: c.name,
			Reason: fmt.Sprintf("too many results (%d)", t.NumOut()),
		}
	}

	return c, nil
}

func classify(t reflect.Type) paramKind {
	switch t {
	case typeContext:
		return paramContext
	case typeSocketID:
		return paramSocketID
	case typeEvent:
		return paramEvent
	case typeReason:
		return paramReason
	case typeEnviron:
		return paramEnviron
	case typeAuth:
		return paramAuth
	case typeData:
		return paramData
	case typeServer:
		return paramServer
	default:
		return paramDynamic
	}
}

func funcName(v reflect.Value) string {
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return v.Type().String()
}

// call invokes the callable with resolved arguments and normalizes the result
// shape to (value, error).
func (c *callable) call(args []reflect.Value) (any, error) {
	out := c.fn.Call(args)
	switch c.outKind {
	case outNone:
		return nil, nil
	case outErrOnly:
		return nil, asError(out[0])
	case outValOnly:
		return out[0].Interface(), nil
	default:
		return out[0].Interface(), asError(out[1])
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// modelShaped reports whether a type can act as a schema-validated payload
// model: a struct, pointer to struct, map, or slice.
func modelShaped(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice:
		return true
	case reflect.Pointer:
		return t.Elem().Kind() == reflect.Struct
	default:
		return false
	}
}

// resolve produces the argument list for a callable. Explicit arguments, keyed
// by type, always take precedence and are never re-resolved. mode is the
// execution mode of the invocation (not of the callable being resolved):
// reaching an async factory while mode is ModeSync fails fast.
func (s *Server) resolve(ctx context.Context, c *callable, mode ExecMode, explicit map[reflect.Type]reflect.Value) ([]reflect.Value, error) {
	sc := scopeFrom(ctx)
	args := make([]reflect.Value, 0, len(c.params))

	for i, p := range c.params {
		if v, ok := explicit[p.typ]; ok {
			args = append(args, v)
			continue
		}

		v, err := s.resolveParam(ctx, sc, c, mode, i, p)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	return args, nil
}

func (s *Server) resolveParam(ctx context.Context, sc *scope, c *callable, mode ExecMode, idx int, p paramSpec) (reflect.Value, error) {
	switch p.kind {
	case paramContext:
		return reflect.ValueOf(ctx), nil

	case paramSocketID:
		if sc != nil {
			if sid, ok := sc.socketID(); ok {
				return reflect.ValueOf(sid), nil
			}
		}
		return reflect.Value{}, &ContextUnavailableError{Key: "socket id", Event: currentEventName(sc)}

	case paramEvent:
		if sc != nil {
			if ev, ok := sc.currentEvent(); ok {
				return reflect.ValueOf(ev), nil
			}
		}
		return reflect.Value{}, &ContextUnavailableError{Key: "event"}

	case paramEnviron:
		if sc != nil {
			if env, ok := sc.environ(); ok {
				return reflect.ValueOf(env), nil
			}
		}
		// The transport may legitimately supply no environment.
		return reflect.ValueOf(Environ(nil)), nil

	case paramAuth:
		if sc != nil {
			if auth, ok := sc.authPayload(); ok {
				return reflect.ValueOf(auth), nil
			}
		}
		if currentEventName(sc) == EventConnect {
			// Connect without an auth payload: inject empty.
			return reflect.ValueOf(Auth(nil)), nil
		}
		return reflect.Value{}, &ContextUnavailableError{Key: "auth", Event: currentEventName(sc)}

	case paramReason:
		if sc != nil {
			if reason, ok := sc.disconnectReason(); ok {
				return reflect.ValueOf(reason), nil
			}
		}
		if currentEventName(sc) == EventDisconnect {
			return reflect.ValueOf(Reason("")), nil
		}
		return reflect.Value{}, &ContextUnavailableError{Key: "reason", Event: currentEventName(sc)}

	case paramData:
		if sc != nil {
			if payload, ok := sc.payload(); ok {
				return reflect.ValueOf(Data{value: payload}), nil
			}
		}
		return reflect.ValueOf(Data{}), nil

	case paramServer:
		if sc != nil {
			if srv, ok := sc.serverHandle(); ok {
				return reflect.ValueOf(srv), nil
			}
		}
		return reflect.ValueOf(s), nil

	default:
		return s.resolveDynamic(ctx, sc, c, mode, idx, p)
	}
}

func (s *Server) resolveDynamic(ctx context.Context, sc *scope, c *callable, mode ExecMode, idx int, p paramSpec) (reflect.Value, error) {
	if d, ok := s.deps.provider(p.typ); ok {
		return s.resolveDependency(ctx, sc, c, mode, d)
	}

	if modelShaped(p.typ) {
		return s.resolveModel(sc, p.typ)
	}

	return reflect.Value{}, &ResolutionError{
		Target: c.name,
		Param:  idx,
		Type:   p.typ.String(),
		Reason: "no binding for parameter type",
	}
}

// resolveDependency materializes a factory result, memoizing cache-eligible
// factories per invocation. Factories resolve their own parameters with the
// same algorithm and the caller's execution mode.
func (s *Server) resolveDependency(ctx context.Context, sc *scope, c *callable, mode ExecMode, d *Dependency) (reflect.Value, error) {
	if mode == ModeSync && d.mode == ModeAsync {
		return reflect.Value{}, &AsyncDependencyError{
			Factory: d.factory.name,
			Target:  c.name,
		}
	}

	if d.useCache && sc != nil {
		if v, ok := sc.cached(d); ok {
			return v, nil
		}
	}

	args, err := s.resolve(ctx, d.factory, mode, nil)
	if err != nil {
		return reflect.Value{}, err
	}

	result, err := d.factory.call(args)
	if err != nil {
		return reflect.Value{}, &ResolutionError{
			Target: d.factory.name,
			Type:   d.resultType.String(),
			Reason: "factory failed",
			err:    err,
		}
	}

	v := reflect.ValueOf(result)
	if result == nil {
		v = reflect.Zero(d.resultType)
	}
	if d.useCache && sc != nil {
		sc.storeCache(d, v)
	}
	return v, nil
}

// resolveModel validates the ambient payload against a declared model type.
func (s *Server) resolveModel(sc *scope, t reflect.Type) (reflect.Value, error) {
	modelName := t.String()

	var payload any
	var ok bool
	if sc != nil {
		payload, ok = sc.payload()
	}
	if !ok || payload == nil {
		return reflect.Value{}, &ValidationError{
			Model:   modelName,
			Message: "no payload available",
		}
	}

	ptr := t.Kind() == reflect.Pointer
	base := t
	if ptr {
		base = t.Elem()
	}

	dst := reflect.New(base)
	if err := s.validator.Validate(dst.Interface(), payload); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			if ve.Model == "" {
				ve.Model = modelName
			}
			return reflect.Value{}, ve
		}
		return reflect.Value{}, &ValidationError{
			Model:   modelName,
			Message: err.Error(),
			err:     err,
		}
	}

	if ptr {
		return dst, nil
	}
	return dst.Elem(), nil
}

func currentEventName(sc *scope) string {
	if sc == nil {
		return ""
	}
	if ev, ok := sc.currentEvent(); ok {
		return string(ev)
	}
	return ""
}

// Invoke resolves fn's parameters against the active dispatch scope and calls
// it. Explicit values take precedence over resolution for parameters of their
// exact type. Useful for utilities that want resolution outside the normal
// handler path.
func (s *Server) Invoke(ctx context.Context, fn any, explicit ...any) (any, error) {
	c, err := newCallable(fn)
	if err != nil {
		return nil, err
	}

	exp := make(map[reflect.Type]reflect.Value, len(explicit))
	for _, e := range explicit {
		v := reflect.ValueOf(e)
		exp[v.Type()] = v
	}

	args, err := s.resolve(ctx, c, ModeAsync, exp)
	if err != nil {
		return nil, err
	}
	return c.call(args)
}

// ResolveNamed invokes the factory registered under name, resolving its
// parameters against the active dispatch scope.
func (s *Server) ResolveNamed(ctx context.Context, name string) (any, error) {
	d, ok := s.deps.namedProvider(name)
	if !ok {
		return nil, &ResolutionError{
			Target: name,
			Reason: "no named factory registered",
		}
	}

	sc := scopeFrom(ctx)
	v, err := s.resolveDependency(ctx, sc, d.factory, ModeAsync, d)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}
