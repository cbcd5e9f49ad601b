package evoke

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/evoke-io/evoke/internal/ids"
)

const (
	scopeKeyInvocationID = "evoke.invocation_id"
	scopeKeyStart        = "evoke.start"
)

// AuthMiddleware rejects connection attempts that fail the supplied check.
// The check receives the connecting socket's id and transport environment.
//
// Example:
//
//	s.Use(evoke.AuthMiddleware(func(sid evoke.SocketID, env evoke.Environ) bool {
//	    return env["Authorization"] == "Bearer "+token
//	}))
func AuthMiddleware(check func(sid SocketID, env Environ) bool) *Middleware {
	return NewMiddleware(
		WithEvents(EventConnect),
		WithBefore(func(ctx context.Context, event Event, sid SocketID, payload any) (any, error) {
			var env Environ
			if sc := scopeFrom(ctx); sc != nil {
				env, _ = sc.environ()
			}
			if !check(sid, env) {
				return nil, Reject("not authorized")
			}
			return payload, nil
		}),
	)
}

// LoggingMiddleware logs every dispatch with a per-invocation ULID: one line
// when the event starts, one when it completes with the elapsed time, one on
// failure. A nil logger falls back to slog.Default.
func LoggingMiddleware(logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return NewMiddleware(
		WithBefore(func(ctx context.Context, event Event, sid SocketID, payload any) (any, error) {
			id := ids.New()
			ScopeSet(ctx, scopeKeyInvocationID, id)
			ScopeSet(ctx, scopeKeyStart, time.Now())
			logger.Debug("dispatching event",
				"invocation_id", id,
				"event", string(event),
				"sid", string(sid),
			)
			return payload, nil
		}),
		WithAfter(func(ctx context.Context, event Event, sid SocketID, response any) (any, error) {
			id, _ := ScopeGet(ctx, scopeKeyInvocationID)
			logger.Info("event handled",
				"invocation_id", id,
				"event", string(event),
				"sid", string(sid),
				"duration", elapsed(ctx),
			)
			return response, nil
		}),
		WithOnError(func(ctx context.Context, event Event, sid SocketID, payload any, err error) (any, bool) {
			id, _ := ScopeGet(ctx, scopeKeyInvocationID)
			logger.Error("event failed",
				"invocation_id", id,
				"event", string(event),
				"sid", string(sid),
				"duration", elapsed(ctx),
				"error", err,
			)
			return nil, false
		}),
	)
}

func elapsed(ctx context.Context) time.Duration {
	if v, ok := ScopeGet(ctx, scopeKeyStart); ok {
		if start, ok := v.(time.Time); ok {
			return time.Since(start)
		}
	}
	return 0
}

// RateLimitMiddleware rejects events from sockets that exceed maxRequests
// within the sliding window. Connection bookkeeping is per middleware
// instance; disconnect dispatches clear the socket's history.
func RateLimitMiddleware(maxRequests int, window time.Duration) *Middleware {
	rl := &rateLimiter{
		max:    maxRequests,
		window: window,
		hits:   make(map[SocketID][]time.Time),
	}
	return NewMiddleware(
		WithBefore(func(ctx context.Context, event Event, sid SocketID, payload any) (any, error) {
			if event == Event(EventDisconnect) {
				rl.forget(sid)
				return payload, nil
			}
			if !rl.allow(sid) {
				return nil, Reject("rate limit exceeded")
			}
			return payload, nil
		}),
	)
}

type rateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[SocketID][]time.Time
}

func (rl *rateLimiter) allow(sid SocketID) bool {
	now := time.Now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.hits[sid][:0]
	for _, t := range rl.hits[sid] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= rl.max {
		rl.hits[sid] = recent
		return false
	}
	rl.hits[sid] = append(recent, now)
	return true
}

func (rl *rateLimiter) forget(sid SocketID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.hits, sid)
}
