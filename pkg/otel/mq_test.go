package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderPropagationRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := map[string]any{}
	InjectHeaders(ctx, headers)
	require.Contains(t, headers, "traceparent")

	got := trace.SpanContextFromContext(ExtractHeaders(context.Background(), headers))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
}

func TestHeaderCarrierReadsBytes(t *testing.T) {
	c := headerCarrier{"a": []byte("x"), "b": "y", "c": 3}
	assert.Equal(t, "x", c.Get("a"))
	assert.Equal(t, "y", c.Get("b"))
	assert.Equal(t, "", c.Get("c"))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, c.Keys())
}
