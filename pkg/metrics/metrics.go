package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of database queries above the slow threshold",
		},
		[]string{"operation"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 意图分类计数
	IntentClassifiedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_intent_classified_total",
			Help: "Total number of chat messages classified, by intent",
		},
		[]string{"intent"},
	)

	// 意图置信度分布
	IntentConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_intent_confidence",
			Help:    "Confidence assigned to classified messages",
			Buckets: []float64{0.3, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
		},
		[]string{"intent"},
	)

	// 动作选择结果
	SelectionOutcomeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_selection_outcome_total",
			Help: "Action selection outcomes",
		},
		[]string{"outcome"}, // operation name, rejected, noop
	)

	// 任务操作执行延迟（秒）
	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_tool_execution_duration_seconds",
			Help:    "Task operation execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "status"},
	)

	// 确认结果
	ConfirmationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_confirmation_total",
			Help: "Pending action confirmations, by decision",
		},
		[]string{"decision"}, // requested, approved, declined, expired
	)

	// Outbox 发布计数
	OutboxPublishedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox events published to MQ",
		},
		[]string{"status"}, // sent, failed
	)

	// 未识别消息入库计数
	UnclassifiedStoredCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unclassified_messages_total",
			Help: "Unclassified chat messages handled by the worker",
		},
		[]string{"status"}, // stored, duplicate
	)

	// 定时任务执行
	ScheduledJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduled_job_duration_seconds",
			Help:    "Scheduled job run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"job", "status"},
	)

	// 保留期清理删除的行数
	RetentionPrunedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_pruned_rows_total",
			Help: "Rows deleted by retention jobs",
		},
		[]string{"job"},
	)

	// WebSocket 在线连接数
	ChatSocketsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_websocket_connections",
			Help: "Open chat WebSocket connections",
		},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(operation string) {
	SlowQueryCount.WithLabelValues(operation).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordClassification 记录一次意图分类
func RecordClassification(intent string, confidence float64) {
	IntentClassifiedCount.WithLabelValues(intent).Inc()
	IntentConfidence.WithLabelValues(intent).Observe(confidence)
}

// IncrementSelectionOutcome 记录动作选择结果
func IncrementSelectionOutcome(outcome string) {
	SelectionOutcomeCount.WithLabelValues(outcome).Inc()
}

// RecordToolExecution 记录任务操作执行
func RecordToolExecution(operation, status string, duration time.Duration) {
	ToolExecutionDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

func IncrementConfirmation(decision string) {
	ConfirmationCount.WithLabelValues(decision).Inc()
}

func IncrementOutboxPublished(status string) {
	OutboxPublishedCount.WithLabelValues(status).Inc()
}

func IncrementUnclassifiedStored(status string) {
	UnclassifiedStoredCount.WithLabelValues(status).Inc()
}

func RecordScheduledJob(job, status string, duration time.Duration) {
	ScheduledJobDuration.WithLabelValues(job, status).Observe(duration.Seconds())
}

func AddRetentionPruned(job string, rows int64) {
	RetentionPrunedRows.WithLabelValues(job).Add(float64(rows))
}
