package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// W3C header names persisted next to outbox rows.
const (
	TraceparentKey = "traceparent"
	TracestateKey  = "tracestate"
)

// TraceContextStrings captures the active span context so work finished later, such as
// publishing an outbox event, can continue the same trace.
func TraceContextStrings(ctx context.Context) (traceparent string, tracestate string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.Get(TraceparentKey), carrier.Get(TracestateKey)
}

// ContextWithTraceContext restores a span context captured by TraceContextStrings.
// Without a traceparent there is nothing to continue and ctx is returned unchanged.
func ContextWithTraceContext(ctx context.Context, traceparent string, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{TraceparentKey: traceparent}
	if tracestate != "" {
		carrier[TracestateKey] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
