package evoke

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsMiddleware(t *testing.T) {
	counterValue := func(t *testing.T, reg *prometheus.Registry, name, event, status string) float64 {
		t.Helper()
		families, err := reg.Gather()
		if err != nil {
			t.Fatalf("Gather: %v", err)
		}
		for _, mf := range families {
			if mf.GetName() != name {
				continue
			}
			for _, m := range mf.GetMetric() {
				labels := map[string]string{}
				for _, l := range m.GetLabel() {
					labels[l.GetName()] = l.GetValue()
				}
				if labels["event"] == event && labels["status"] == status {
					return m.GetCounter().GetValue()
				}
			}
		}
		return 0
	}

	t.Run("counts successes", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		s := New()
		defer s.Close()

		s.Use(MetricsMiddleware(reg))
		_ = s.On("ping", func() error { return nil })

		for i := 0; i < 3; i++ {
			if _, err := s.Dispatch(context.Background(), Invocation{Event: "ping", SocketID: "abc"}); err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
		}

		got := counterValue(t, reg, "evoke_dispatches_total", "ping", "ok")
		if got != 3 {
			t.Errorf("ok count = %v, want 3", got)
		}
	})

	t.Run("counts failures", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		s := New()
		defer s.Close()

		s.Use(MetricsMiddleware(reg))
		_ = s.On("ping", func() error { return errors.New("boom") })

		_, _ = s.Dispatch(context.Background(), Invocation{Event: "ping", SocketID: "abc"})

		got := counterValue(t, reg, "evoke_dispatches_total", "ping", "error")
		if got != 1 {
			t.Errorf("error count = %v, want 1", got)
		}
	})

	t.Run("records durations", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		s := New()
		defer s.Close()

		s.Use(MetricsMiddleware(reg))
		_ = s.On("ping", func() error { return nil })

		if _, err := s.Dispatch(context.Background(), Invocation{Event: "ping", SocketID: "abc"}); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}

		families, err := reg.Gather()
		if err != nil {
			t.Fatalf("Gather: %v", err)
		}
		var found bool
		for _, mf := range families {
			if mf.GetName() == "evoke_dispatch_duration_seconds" {
				for _, m := range mf.GetMetric() {
					if m.GetHistogram().GetSampleCount() == 1 {
						found = true
					}
				}
			}
		}
		if !found {
			t.Error("duration histogram did not record the dispatch")
		}
	})
}
