package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestAttributeCarrier_RoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	attrs := InjectTraceContext(ctx, nil)
	require.Contains(t, attrs, "traceparent")

	extracted := ExtractTraceContext(context.Background(), attrs)
	assert.Equal(t, span.SpanContext().TraceID().String(), TraceID(extracted))
}

func TestInjectTraceContext_KeepsExistingAttributes(t *testing.T) {
	attrs := InjectTraceContext(context.Background(), map[string]string{"fanout_event": "order.created"})
	assert.Equal(t, "order.created", attrs["fanout_event"])
}

func TestTraceID_Empty(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}

func TestAttributeCarrier_Keys(t *testing.T) {
	c := AttributeCarrier{"a": "1", "b": "2"}
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}
