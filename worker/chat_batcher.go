package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/zlnvch/sketchrelay/cache"
	"github.com/zlnvch/sketchrelay/metrics"
	"github.com/zlnvch/sketchrelay/models"
	"github.com/zlnvch/sketchrelay/mq"
	"github.com/zlnvch/sketchrelay/store"
)

// DynamoDB BatchWriteItem accepts at most 25 items
const chatBatchSize = 25

// ChatRetryMessage is the body of a chat retry queue message.
type ChatRetryMessage struct {
	Messages []models.ChatMessage `json:"messages"`
}

type ChatBatcher struct {
	WriteCh        chan models.ChatMessage
	relayStore     store.RelayStore
	relayCache     cache.RelayCache
	retryQueue     mq.MessageQueue
	counterBatcher *CounterBatcher
	metrics        *metrics.Metrics
	flushEvery     time.Duration
}

// NewChatBatcher builds a batcher; relayCache and retryQueue may be nil.
func NewChatBatcher(
	relayStore store.RelayStore,
	relayCache cache.RelayCache,
	retryQueue mq.MessageQueue,
	counterBatcher *CounterBatcher,
	m *metrics.Metrics,
	flushEvery time.Duration,
	backlog int,
) *ChatBatcher {
	return &ChatBatcher{
		WriteCh:        make(chan models.ChatMessage, backlog),
		relayStore:     relayStore,
		relayCache:     relayCache,
		retryQueue:     retryQueue,
		counterBatcher: counterBatcher,
		metrics:        m,
		flushEvery:     flushEvery,
	}
}

func (b *ChatBatcher) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(b.flushEvery)
	defer ticker.Stop()

	batch := make([]models.ChatMessage, 0, chatBatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Not derived from shutdownCtx: the final flush must still run
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		unprocessed, err := b.relayStore.WriteChatBatch(ctx, batch)
		if err != nil {
			slog.Error("error writing chat batch", "size", len(batch), "unprocessed", len(unprocessed), "err", err)
		}

		failed := make(map[string]bool, len(unprocessed))
		for _, u := range unprocessed {
			failed[u.Id] = true
		}

		for _, msg := range batch {
			if failed[msg.Id] {
				continue
			}
			b.metrics.ChatMessagesWritten.Inc()
			if b.counterBatcher != nil {
				b.counterBatcher.add(msg.RoomId, 1)
			}
			if b.relayCache != nil {
				if err := b.relayCache.PushRecentChat(ctx, msg); err != nil {
					slog.Warn("failed to cache chat message", "room", msg.RoomId, "err", err)
				}
			}
		}

		if len(unprocessed) > 0 {
			b.requeue(ctx, unprocessed)
		}

		batch = batch[:0]
	}

	for {
		select {
		case msg := <-b.WriteCh:
			batch = append(batch, msg)
			if len(batch) == chatBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			// Drain what is already buffered before the last flush
			for drained := false; !drained; {
				select {
				case msg := <-b.WriteCh:
					batch = append(batch, msg)
					if len(batch) == chatBatchSize {
						flush()
					}
				default:
					drained = true
				}
			}
			flush()
			return
		}
	}
}

func (b *ChatBatcher) requeue(ctx context.Context, messages []models.ChatMessage) {
	if b.retryQueue == nil {
		b.metrics.ChatPersistFailures.Add(float64(len(messages)))
		slog.Error("dropping unwritten chat messages, no retry queue", "count", len(messages))
		return
	}

	body, err := json.Marshal(ChatRetryMessage{Messages: messages})
	if err != nil {
		b.metrics.ChatPersistFailures.Add(float64(len(messages)))
		slog.Error("failed to encode chat retry message", "err", err)
		return
	}

	if err := b.retryQueue.Send(ctx, string(body), 5); err != nil {
		b.metrics.ChatPersistFailures.Add(float64(len(messages)))
		slog.Error("failed to enqueue chat retry", "count", len(messages), "err", err)
	}
}
