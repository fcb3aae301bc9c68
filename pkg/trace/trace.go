// Package trace carries the request trace id used in logs, events and the
// X-Trace-ID header. When an OpenTelemetry span is active its trace id is
// reused so logs and spans line up.
package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	// Header is the HTTP header that carries the trace id.
	Header = "X-Trace-ID"
	// TraceIDKey is the gin context key and JSON field name for the trace id.
	TraceIDKey = "trace_id"
)

type ctxKey struct{}

// NewID returns a random 32 character hex id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxKey{}).(string); ok {
		return traceID
	}
	return ""
}

func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// FromSpan 返回当前 otel span 的 trace id，没有有效 span 时返回空串
func FromSpan(ctx context.Context) string {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Ensure returns ctx with a trace id attached. An id already in ctx wins,
// then the active span's trace id, then a fresh one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := FromSpan(ctx)
	if id == "" {
		id = NewID()
	}
	return WithContext(ctx, id), id
}
