package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/zlnvch/sketchrelay/metrics"
	"github.com/zlnvch/sketchrelay/mq"
	"github.com/zlnvch/sketchrelay/store"
)

// After this many deliveries a retry message is dropped
const maxReceives = 5

const visibilityTimeout = 60

// MQConsumer drains the chat retry queue back into the store.
type MQConsumer struct {
	chatRetryQueue mq.MessageQueue
	relayStore     store.RelayStore
	counterBatcher *CounterBatcher
	metrics        *metrics.Metrics
}

func NewMQConsumer(chatRetryQueue mq.MessageQueue, relayStore store.RelayStore, counterBatcher *CounterBatcher, m *metrics.Metrics) *MQConsumer {
	return &MQConsumer{
		chatRetryQueue: chatRetryQueue,
		relayStore:     relayStore,
		counterBatcher: counterBatcher,
		metrics:        m,
	}
}

func (c *MQConsumer) Run(shutdownCtx context.Context) {
	for {
		msg, err := c.chatRetryQueue.Receive(shutdownCtx, visibilityTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			slog.Warn("chat retry receive error", "err", err)
			select {
			case <-shutdownCtx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if msg == nil {
			continue
		}

		c.handle(msg)
	}
}

func (c *MQConsumer) handle(msg *mq.Message) {
	var retry ChatRetryMessage
	if err := json.Unmarshal([]byte(msg.Body), &retry); err != nil {
		slog.Error("dropping undecodable chat retry message", "err", err)
		c.delete(msg)
		return
	}

	// A little under the visibility timeout
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(visibilityTimeout-1)*time.Second)
	defer cancel()

	unprocessed, err := c.relayStore.WriteChatBatch(ctx, retry.Messages)

	failed := make(map[string]bool, len(unprocessed))
	for _, u := range unprocessed {
		failed[u.Id] = true
	}
	written := 0
	for _, m := range retry.Messages {
		if failed[m.Id] {
			continue
		}
		written++
		if c.counterBatcher != nil {
			c.counterBatcher.add(m.RoomId, 1)
		}
	}
	c.metrics.ChatMessagesWritten.Add(float64(written))

	if len(unprocessed) == 0 {
		c.delete(msg)
		return
	}

	if msg.ReceiveCount >= maxReceives {
		c.metrics.ChatPersistFailures.Add(float64(len(unprocessed)))
		slog.Error("giving up on chat retry", "count", len(unprocessed), "receives", msg.ReceiveCount, "err", err)
		c.delete(msg)
		return
	}

	if written == 0 {
		// Leave it; SQS redelivers after the visibility timeout
		slog.Warn("chat retry write failed", "count", len(unprocessed), "err", err)
		return
	}

	// Partial success: requeue only what is left
	body, mErr := json.Marshal(ChatRetryMessage{Messages: unprocessed})
	if mErr == nil {
		mErr = c.chatRetryQueue.Send(ctx, string(body), 5)
	}
	if mErr != nil {
		slog.Warn("failed to requeue chat remainder", "count", len(unprocessed), "err", mErr)
		return
	}
	c.delete(msg)
}

func (c *MQConsumer) delete(msg *mq.Message) {
	if err := c.chatRetryQueue.Delete(context.Background(), msg); err != nil {
		slog.Warn("chat retry delete error", "err", err)
	}
}
