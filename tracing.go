package evoke

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scopeKeySpan = "evoke.span"

// TracingMiddleware wraps each dispatch in an OpenTelemetry span named after
// the event, tagged with the socket id. The span covers the pipeline and the
// handler; errors mark the span status.
func TracingMiddleware() *Middleware {
	tracer := otel.Tracer("evoke")

	return NewMiddleware(
		WithBefore(func(ctx context.Context, event Event, sid SocketID, payload any) (any, error) {
			_, span := tracer.Start(ctx, "dispatch "+string(event))
			span.SetAttributes(
				attribute.String("evoke.event", string(event)),
				attribute.String("evoke.socket_id", string(sid)),
			)
			ScopeSet(ctx, scopeKeySpan, span)
			return payload, nil
		}),
		WithAfter(func(ctx context.Context, event Event, sid SocketID, response any) (any, error) {
			if span, ok := spanFrom(ctx); ok {
				span.End()
			}
			return response, nil
		}),
		WithOnError(func(ctx context.Context, event Event, sid SocketID, payload any, err error) (any, bool) {
			if span, ok := spanFrom(ctx); ok {
				span.SetStatus(codes.Error, err.Error())
				span.RecordError(err)
				span.End()
			}
			return nil, false
		}),
	)
}

func spanFrom(ctx context.Context) (trace.Span, bool) {
	v, ok := ScopeGet(ctx, scopeKeySpan)
	if !ok {
		return nil, false
	}
	span, ok := v.(trace.Span)
	return span, ok
}
