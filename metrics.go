package evoke

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const scopeKeyMetricsStart = "evoke.metrics.start"

// MetricsMiddleware records a dispatch counter (by event and status) and a
// duration histogram on the given registerer. Register one instance per
// registerer; MustRegister panics on duplicates.
//
// Example:
//
//	s.Use(evoke.MetricsMiddleware(prometheus.DefaultRegisterer))
func MetricsMiddleware(reg prometheus.Registerer) *Middleware {
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evoke",
		Name:      "dispatches_total",
		Help:      "Dispatched events by event name and status.",
	}, []string{"event", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evoke",
		Name:      "dispatch_duration_seconds",
		Help:      "End-to-end dispatch duration by event name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event"})

	reg.MustRegister(dispatches, duration)

	return NewMiddleware(
		WithBefore(func(ctx context.Context, event Event, sid SocketID, payload any) (any, error) {
			ScopeSet(ctx, scopeKeyMetricsStart, time.Now())
			return payload, nil
		}),
		WithAfter(func(ctx context.Context, event Event, sid SocketID, response any) (any, error) {
			if v, ok := ScopeGet(ctx, scopeKeyMetricsStart); ok {
				if start, ok := v.(time.Time); ok {
					duration.WithLabelValues(string(event)).Observe(time.Since(start).Seconds())
				}
			}
			dispatches.WithLabelValues(string(event), "ok").Inc()
			return response, nil
		}),
		WithOnError(func(ctx context.Context, event Event, sid SocketID, payload any, err error) (any, bool) {
			dispatches.WithLabelValues(string(event), "error").Inc()
			return nil, false
		}),
	)
}
