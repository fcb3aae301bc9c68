package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MQPublishSpan starts a producer span for a publish to exchange.
func MQPublishSpan(ctx context.Context, routingKey, exchange string) (context.Context, trace.Span) {
	return messagingSpan(ctx, "mq.publish", trace.SpanKindProducer, "exchange", exchange, routingKey)
}

// MQConsumeSpan starts a consumer span. Extract the parent context from the
// message headers first so the span joins the publisher's trace.
func MQConsumeSpan(ctx context.Context, routingKey, queue string) (context.Context, trace.Span) {
	return messagingSpan(ctx, "mq.consume", trace.SpanKindConsumer, "queue", queue, routingKey)
}

func messagingSpan(ctx context.Context, name string, kind trace.SpanKind, destKind, dest, routingKey string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination", dest),
			attribute.String("messaging.destination_kind", destKind),
			attribute.String("messaging.rabbitmq.routing_key", routingKey),
		),
	)
}

// InjectHeaders writes the span context of ctx into message headers.
func InjectHeaders(ctx context.Context, headers map[string]any) {
	GetTextMapPropagator().Inject(ctx, headerCarrier(headers))
}

// ExtractHeaders returns ctx carrying the span context found in headers.
func ExtractHeaders(ctx context.Context, headers map[string]any) context.Context {
	return GetTextMapPropagator().Extract(ctx, headerCarrier(headers))
}

// headerCarrier adapts AMQP headers to propagation.TextMapCarrier. Some
// clients send header values as bytes, so both forms are read.
type headerCarrier map[string]any

func (c headerCarrier) Get(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	if c != nil {
		c[key] = value
	}
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
