package local

import (
	"context"
	"errors"
	"testing"

	"github.com/evoke-io/evoke"
)

func newServer(t *testing.T) *evoke.Server {
	t.Helper()
	s := evoke.New()
	t.Cleanup(s.Close)
	return s
}

func TestConnect(t *testing.T) {
	t.Run("runs the connect dispatch and mints a socket id", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)

		var gotAuth evoke.Auth
		var gotEnv evoke.Environ
		_ = s.OnConnect(func(auth evoke.Auth, env evoke.Environ) error {
			gotAuth = auth
			gotEnv = env
			return nil
		})

		sid, err := tr.Connect(context.Background(),
			evoke.Environ{"Origin": "https://example.com"},
			evoke.Auth{"token": "secret"},
		)
		if err != nil {
			t.Fatalf("Connect: %v", err)
		}
		if sid == "" {
			t.Error("empty socket id")
		}
		if gotAuth["token"] != "secret" {
			t.Errorf("auth = %v", gotAuth)
		}
		if gotEnv["Origin"] != "https://example.com" {
			t.Errorf("environ = %v", gotEnv)
		}
	})

	t.Run("distinct connections get distinct ids", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)
		_ = s.OnConnect(func() error { return nil })

		a, _ := tr.Connect(context.Background(), nil, nil)
		b, _ := tr.Connect(context.Background(), nil, nil)
		if a == b {
			t.Errorf("socket ids collide: %s", a)
		}
	})

	t.Run("a rejected connect aborts the connection", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)

		s.Use(evoke.AuthMiddleware(func(sid evoke.SocketID, env evoke.Environ) bool {
			return false
		}))
		_ = s.OnConnect(func() error { return nil })

		sid, err := tr.Connect(context.Background(), nil, nil)
		if !evoke.IsRejection(err) {
			t.Fatalf("error = %v, want rejection", err)
		}
		if sid != "" {
			t.Errorf("sid = %q, want empty", sid)
		}

		// The socket never registered, so frames for it fail.
		_, err = tr.Send(context.Background(), "whatever", []byte(`{"event": "ping"}`))
		if !errors.Is(err, ErrUnknownSocket) {
			t.Errorf("error = %v, want ErrUnknownSocket", err)
		}
	})
}

type joinRoom struct {
	Room string `json:"room" validate:"required"`
}

func TestSend(t *testing.T) {
	connect := func(t *testing.T, s *evoke.Server, tr *Transport) evoke.SocketID {
		t.Helper()
		_ = s.OnConnect(func() error { return nil })
		sid, err := tr.Connect(context.Background(), evoke.Environ{"k": "v"}, nil)
		if err != nil {
			t.Fatalf("Connect: %v", err)
		}
		return sid
	}

	t.Run("routes the envelope to the handler", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)
		sid := connect(t, s, tr)

		var got joinRoom
		_ = s.On("join_room", func(p joinRoom) (string, error) {
			got = p
			return "joined", nil
		})

		ack, err := tr.Send(context.Background(), sid, []byte(`{"event": "join_room", "data": {"room": "general"}}`))
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if ack != "joined" {
			t.Errorf("ack = %v", ack)
		}
		if got.Room != "general" {
			t.Errorf("payload = %+v", got)
		}
	})

	t.Run("namespaced envelopes route to namespaced handlers", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)
		sid := connect(t, s, tr)

		_ = s.On("send", func() string { return "chat" }, evoke.InNamespace("/chat"))

		ack, err := tr.Send(context.Background(), sid, []byte(`{"event": "send", "namespace": "/chat"}`))
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if ack != "chat" {
			t.Errorf("ack = %v", ack)
		}
	})

	t.Run("the connection environment rides along", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)
		sid := connect(t, s, tr)

		var gotEnv evoke.Environ
		_ = s.On("ping", func(env evoke.Environ) error {
			gotEnv = env
			return nil
		})

		if _, err := tr.Send(context.Background(), sid, []byte(`{"event": "ping"}`)); err != nil {
			t.Fatalf("Send: %v", err)
		}
		if gotEnv["k"] != "v" {
			t.Errorf("environ = %v", gotEnv)
		}
	})

	t.Run("invalid JSON is a bad envelope", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)
		sid := connect(t, s, tr)

		_, err := tr.Send(context.Background(), sid, []byte(`{not json}`))
		if !errors.Is(err, ErrBadEnvelope) {
			t.Errorf("error = %v, want ErrBadEnvelope", err)
		}
	})

	t.Run("missing event field is a bad envelope", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)
		sid := connect(t, s, tr)

		_, err := tr.Send(context.Background(), sid, []byte(`{"data": {}}`))
		if !errors.Is(err, ErrBadEnvelope) {
			t.Errorf("error = %v, want ErrBadEnvelope", err)
		}
	})

	t.Run("unknown socket fails", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)

		_, err := tr.Send(context.Background(), "ghost", []byte(`{"event": "ping"}`))
		if !errors.Is(err, ErrUnknownSocket) {
			t.Errorf("error = %v, want ErrUnknownSocket", err)
		}
	})
}

func TestDisconnect(t *testing.T) {
	t.Run("runs the disconnect dispatch with the reason", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)
		_ = s.OnConnect(func() error { return nil })

		var gotReason evoke.Reason
		_ = s.OnDisconnect(func(reason evoke.Reason) error {
			gotReason = reason
			return nil
		})

		sid, _ := tr.Connect(context.Background(), nil, nil)
		if err := tr.Disconnect(context.Background(), sid, "client left"); err != nil {
			t.Fatalf("Disconnect: %v", err)
		}
		if gotReason != "client left" {
			t.Errorf("reason = %q", gotReason)
		}

		_, err := tr.Send(context.Background(), sid, []byte(`{"event": "ping"}`))
		if !errors.Is(err, ErrUnknownSocket) {
			t.Errorf("error after disconnect = %v, want ErrUnknownSocket", err)
		}
	})

	t.Run("the socket is forgotten even when the handler fails", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)
		_ = s.OnConnect(func() error { return nil })
		_ = s.OnDisconnect(func() error { return errors.New("cleanup failed") })

		sid, _ := tr.Connect(context.Background(), nil, nil)
		if err := tr.Disconnect(context.Background(), sid, ""); err == nil {
			t.Error("expected the handler error to surface")
		}

		_, err := tr.Send(context.Background(), sid, []byte(`{"event": "ping"}`))
		if !errors.Is(err, ErrUnknownSocket) {
			t.Errorf("error = %v, want ErrUnknownSocket", err)
		}
	})

	t.Run("unknown socket fails", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)

		if err := tr.Disconnect(context.Background(), "ghost", ""); !errors.Is(err, ErrUnknownSocket) {
			t.Errorf("error = %v, want ErrUnknownSocket", err)
		}
	})
}

func TestEmit(t *testing.T) {
	t.Run("handler emissions land in the socket's outbox", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)
		_ = s.OnConnect(func() error { return nil })

		_ = s.On("ping", func(ctx context.Context, sid evoke.SocketID, srv *evoke.Server) error {
			return srv.Emit(ctx, sid, "pong", map[string]any{"ok": true})
		})

		sid, _ := tr.Connect(context.Background(), nil, nil)
		if _, err := tr.Send(context.Background(), sid, []byte(`{"event": "ping"}`)); err != nil {
			t.Fatalf("Send: %v", err)
		}

		frames := tr.Sent(sid)
		if len(frames) != 1 {
			t.Fatalf("frames = %d, want 1", len(frames))
		}
		if frames[0].Event != "pong" {
			t.Errorf("event = %q, want pong", frames[0].Event)
		}
	})

	t.Run("emit to an unknown socket fails", func(t *testing.T) {
		s := newServer(t)
		tr := New(s)

		if err := tr.Emit(context.Background(), "ghost", "ev", nil); !errors.Is(err, ErrUnknownSocket) {
			t.Errorf("error = %v, want ErrUnknownSocket", err)
		}
	})
}
