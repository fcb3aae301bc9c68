package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"taskagent/pkg/util"
)

const maxRetries = 5 // 最大重试次数

// Deduper guards against processing a message twice.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, key string) bool
	Release(ctx context.Context, handler, key string)
}

// RetryCounter counts delivery attempts per message.
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DeadLetter receives messages that will never succeed.
type DeadLetter interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

// retryPolicy 决定失败的消息是重新入队还是进入 DLQ
type retryPolicy struct {
	name         string
	deduper      Deduper
	retryCounter RetryCounter
	dlq          DeadLetter
	logger       *zap.Logger
}

// fail returns err when the message should be requeued and nil when it was
// dead-lettered and must be acked.
func (p *retryPolicy) fail(ctx context.Context, key, routingKey string, raw json.RawMessage, err error) error {
	isRetryable, errType := util.IsRetryableError(err)
	retryKey := util.FormatRetryKey(p.name, key)

	retryCount := int64(1)
	if isRetryable {
		n, cerr := p.retryCounter.IncrementAndGet(ctx, retryKey)
		if cerr != nil {
			// Redis 错误不影响处理，按第一次处理
			p.logger.Warn("Failed to get retry count, continuing anyway",
				zap.String("key", key),
				zap.Error(cerr),
			)
		} else {
			retryCount = n
		}
	}

	log := p.logger.With(
		zap.String("key", key),
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Int64("retry_count", retryCount),
		zap.Error(err),
	)

	if util.ShouldRetry(retryCount, maxRetries, isRetryable) {
		log.Warn("Handler failed, requeueing")
		// 释放去重锁，让重投递的消息能再次处理
		p.deduper.Release(ctx, p.name, key)
		return err
	}

	log.Error("Handler failed permanently, sending to DLQ")
	if dlqErr := p.dlq.PublishToDLQ(routingKey, raw, errType+": "+err.Error()); dlqErr != nil {
		log.Error("Failed to publish to DLQ", zap.NamedError("dlq_error", dlqErr))
	}
	if isRetryable {
		_ = p.retryCounter.Reset(ctx, retryKey)
	}
	return nil
}

func (p *retryPolicy) succeeded(ctx context.Context, key string) {
	_ = p.retryCounter.Reset(ctx, util.FormatRetryKey(p.name, key))
}
