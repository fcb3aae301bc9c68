package mqhandler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "taskagent/contracts/mq"
	"taskagent/internal/model"
	"taskagent/pkg/metrics"
)

// UnclassifiedStore persists unclassified chat messages.
type UnclassifiedStore interface {
	Insert(ctx context.Context, m *model.UnclassifiedMessage) error
}

// UnclassifiedHandler stores message.unclassified events for pattern tuning.
type UnclassifiedHandler struct {
	repo   UnclassifiedStore
	policy retryPolicy
	logger *zap.Logger
}

func NewUnclassifiedHandler(
	repo UnclassifiedStore,
	retryCounter RetryCounter,
	deduper Deduper,
	dlq DeadLetter,
	logger *zap.Logger,
) *UnclassifiedHandler {
	return &UnclassifiedHandler{
		repo: repo,
		policy: retryPolicy{
			name:         "unclassified",
			deduper:      deduper,
			retryCounter: retryCounter,
			dlq:          dlq,
			logger:       logger,
		},
		logger: logger,
	}
}

// messageHash 同一用户同一时刻的同一条消息只存一次
func messageHash(p mqcontracts.MessageUnclassifiedPayload) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s", p.UserID, p.ReceivedAt.UnixNano(), p.Message)))
	return hex.EncodeToString(sum[:16])
}

// Handle processes one message.unclassified delivery.
func (h *UnclassifiedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.MessageUnclassifiedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// JSON decode 错误 - 不可重试，发送到 DLQ
		metrics.IncrementUnclassifiedStored("invalid")
		return h.policy.fail(ctx, "invalid", mqcontracts.RoutingMessageUnclassified, raw, err)
	}

	key := messageHash(p)
	if !h.policy.deduper.AcquireOnce(ctx, h.policy.name, key) {
		metrics.IncrementUnclassifiedStored("duplicate")
		return nil
	}

	err := h.repo.Insert(ctx, &model.UnclassifiedMessage{
		UserID:     p.UserID,
		Message:    p.Message,
		Confidence: p.Confidence,
		ReceivedAt: p.ReceivedAt,
	})
	if err != nil {
		metrics.IncrementUnclassifiedStored("error")
		return h.policy.fail(ctx, key, mqcontracts.RoutingMessageUnclassified, raw, err)
	}

	h.policy.succeeded(ctx, key)
	metrics.IncrementUnclassifiedStored("stored")
	h.logger.Info("Unclassified message stored",
		zap.Int("user_id", p.UserID),
		zap.Float64("confidence", p.Confidence),
	)
	return nil
}
