package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "fanout"

// AttributeCarrier carries trace context in message attributes.
type AttributeCarrier map[string]string

func (c AttributeCarrier) Get(key string) string {
	return c[key]
}

func (c AttributeCarrier) Set(key, value string) {
	c[key] = value
}

func (c AttributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectTraceContext writes the span context of ctx into attrs, allocating the
// map when needed.
func InjectTraceContext(ctx context.Context, attrs map[string]string) map[string]string {
	if attrs == nil {
		attrs = make(map[string]string)
	}

	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return attrs
	}

	propagator.Inject(ctx, AttributeCarrier(attrs))
	return attrs
}

func ExtractTraceContext(ctx context.Context, attrs map[string]string) context.Context {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil || len(attrs) == 0 {
		return ctx
	}

	return propagator.Extract(ctx, AttributeCarrier(attrs))
}

func StartSpanFromAttributes(ctx context.Context, operationName string, attrs map[string]string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx = ExtractTraceContext(ctx, attrs)

	tracer := GetTracer(instrumentationName)
	return tracer.Start(ctx, operationName, opts...)
}

// TraceID returns the hex trace id of the span in ctx, or "" when there is none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
