package evoke

import (
	"errors"
	"reflect"
	"testing"
)

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

type depA struct{ b *depB }
type depB struct{ a *depA }
type depC struct{}

func TestProvide(t *testing.T) {
	t.Run("rejects duplicate providers", func(t *testing.T) {
		s := New()
		defer s.Close()

		if err := s.Provide(func() *depC { return &depC{} }); err != nil {
			t.Fatalf("first Provide: %v", err)
		}

		err := s.Provide(func() *depC { return &depC{} })
		var re *ResolutionError
		if !errors.As(err, &re) {
			t.Fatalf("error = %v, want ResolutionError", err)
		}
	})

	t.Run("rejects factories without a result", func(t *testing.T) {
		s := New()
		defer s.Close()

		if err := s.Provide(func() {}); err == nil {
			t.Error("expected error for resultless factory")
		}
		if err := s.Provide(func() error { return nil }); err == nil {
			t.Error("expected error for error-only factory")
		}
	})

	t.Run("rejects non-function factories", func(t *testing.T) {
		s := New()
		defer s.Close()

		if err := s.Provide(42); err == nil {
			t.Error("expected error for non-function factory")
		}
	})

	t.Run("detects direct cycles", func(t *testing.T) {
		s := New()
		defer s.Close()

		if err := s.Provide(func(b *depB) *depA { return &depA{b: b} }); err != nil {
			t.Fatalf("Provide A: %v", err)
		}

		err := s.Provide(func(a *depA) *depB { return &depB{a: a} })
		var re *ResolutionError
		if !errors.As(err, &re) {
			t.Fatalf("error = %v, want ResolutionError", err)
		}
	})

	t.Run("cycle detection rolls back the registration", func(t *testing.T) {
		s := New()
		defer s.Close()

		_ = s.Provide(func(b *depB) *depA { return &depA{b: b} })
		_ = s.Provide(func(a *depA) *depB { return &depB{a: a} })

		// The cyclic B registration must not have stuck around.
		if _, ok := s.deps.provider(typeOf[*depB]()); ok {
			t.Error("cyclic provider was not rolled back")
		}
	})

	t.Run("detects transitive cycles", func(t *testing.T) {
		s := New()
		defer s.Close()

		type x struct{}
		type y struct{}
		type z struct{}

		if err := s.Provide(func(_ *y) *x { return &x{} }); err != nil {
			t.Fatalf("Provide x: %v", err)
		}
		if err := s.Provide(func(_ *z) *y { return &y{} }); err != nil {
			t.Fatalf("Provide y: %v", err)
		}

		if err := s.Provide(func(_ *x) *z { return &z{} }); err == nil {
			t.Error("expected transitive cycle to be rejected")
		}
	})

	t.Run("self dependency is a cycle", func(t *testing.T) {
		s := New()
		defer s.Close()

		if err := s.Provide(func(c *depC) *depC { return c }); err == nil {
			t.Error("expected self-referential factory to be rejected")
		}
	})
}

func TestProvideNamed(t *testing.T) {
	t.Run("lookup and removal", func(t *testing.T) {
		s := New()
		defer s.Close()

		_ = s.ProvideNamed("counter", func() int { return 1 })

		if _, ok := s.NamedFactory("counter"); !ok {
			t.Error("named factory not found")
		}

		s.RemoveNamed("counter")
		if _, ok := s.NamedFactory("counter"); ok {
			t.Error("named factory survived removal")
		}
	})

	t.Run("named factories do not join parameter resolution", func(t *testing.T) {
		s := New()
		defer s.Close()

		_ = s.ProvideNamed("session", func() *depC { return &depC{} })

		if _, ok := s.deps.provider(typeOf[*depC]()); ok {
			t.Error("named factory leaked into type-keyed providers")
		}
	})
}

func TestExecModeString(t *testing.T) {
	if ModeSync.String() != "sync" {
		t.Errorf("ModeSync = %q", ModeSync.String())
	}
	if ModeAsync.String() != "async" {
		t.Errorf("ModeAsync = %q", ModeAsync.String())
	}
}
