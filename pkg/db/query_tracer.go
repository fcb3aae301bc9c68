package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"taskagent/pkg/metrics"
	"taskagent/pkg/otel"
)

const (
	defaultSlowThreshold = 100 * time.Millisecond
	maxLoggedSQL         = 200
)

type queryCtxKey struct{}

type queryState struct {
	start     time.Time
	sql       string
	operation string
	span      oteltrace.Span
}

// QueryTracer 为每条查询创建 span、记录耗时，并对慢查询打警告日志
type QueryTracer struct {
	logger        *zap.Logger
	slowThreshold time.Duration
}

// NewQueryTracer creates a QueryTracer. A zero threshold means 100ms.
func NewQueryTracer(logger *zap.Logger, slowThreshold time.Duration) *QueryTracer {
	if slowThreshold == 0 {
		slowThreshold = defaultSlowThreshold
	}
	return &QueryTracer{
		logger:        logger,
		slowThreshold: slowThreshold,
	}
}

// TraceQueryStart implements pgx.QueryTracer.
func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := Operation(data.SQL)
	ctx, span := otel.StartSpan(ctx, "db."+op,
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("db.statement", truncateSQL(data.SQL)),
		),
	)
	return context.WithValue(ctx, queryCtxKey{}, &queryState{
		start:     time.Now(),
		sql:       data.SQL,
		operation: op,
		span:      span,
	})
}

// TraceQueryEnd implements pgx.QueryTracer.
func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	state, ok := ctx.Value(queryCtxKey{}).(*queryState)
	if !ok {
		return
	}
	defer state.span.End()

	duration := time.Since(state.start)
	metrics.RecordDBQueryDuration(state.operation, duration)

	if data.Err != nil {
		state.span.RecordError(data.Err)
		state.span.SetStatus(codes.Error, data.Err.Error())
	}

	if duration > t.slowThreshold {
		t.logger.Warn("slow-query",
			zap.String("sql", truncateSQL(state.sql)),
			zap.Duration("took", duration),
			zap.String("command_tag", data.CommandTag.String()),
		)
		metrics.IncrementSlowQuery(state.operation)
	}
}

// Operation returns the lowercased leading SQL keyword, e.g. "select".
func Operation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	op := strings.ToLower(fields[0])
	// CTE 查询以 WITH 开头，真正的操作在后面
	if op == "with" {
		for _, f := range fields[1:] {
			switch lf := strings.ToLower(f); lf {
			case "select", "insert", "update", "delete":
				return lf
			}
		}
	}
	return op
}

func truncateSQL(sql string) string {
	sql = strings.Join(strings.Fields(sql), " ")
	if len(sql) > maxLoggedSQL {
		return sql[:maxLoggedSQL] + "..."
	}
	return sql
}
