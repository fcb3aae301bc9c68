package mq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDLQQueueName(t *testing.T) {
	assert.Equal(t, "task.all.dlq", DLQQueueName("task.#"))
	assert.Equal(t, "task.any.dlq", DLQQueueName("task.*"))
	assert.Equal(t, "message.unclassified.dlq", DLQQueueName("message.unclassified"))
}

func TestDLQHeaders(t *testing.T) {
	at := time.Date(2025, 3, 1, 8, 30, 0, 0, time.FixedZone("PKT", 5*3600))
	h := dlqHeaders("json_decode_error: bad payload", at)

	assert.Equal(t, "json_decode_error: bad payload", h[headerOriginalError])
	assert.Equal(t, "2025-03-01T03:30:00Z", h[headerFailedAt])
	assert.Equal(t, "taskagent-worker", h[headerFailedBy])
}
