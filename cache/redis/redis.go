package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zlnvch/sketchrelay/models"
)

const (
	cacheTTL       = 10 * time.Minute
	recentChatSize = 50
)

type RedisRelayCache struct {
	client redis.UniversalClient
}

func NewRedisRelayCache(ctx context.Context, devMode bool, redisEndpoint string) (*RedisRelayCache, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
			// AWS elasticache endpoints require TLS
			TLSConfig: &tls.Config{},
		})
	}

	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return NewRedisRelayCacheFromClient(client), nil
}

func NewRedisRelayCacheFromClient(client redis.UniversalClient) *RedisRelayCache {
	return &RedisRelayCache{client: client}
}

func (redisCache *RedisRelayCache) Close() error {
	return redisCache.client.Close()
}

func (redisCache *RedisRelayCache) Publish(ctx context.Context, channel string, message []byte) error {
	return redisCache.client.Publish(ctx, channel, message).Err()
}

// Subscribe blocks until the subscription is confirmed, then delivers
// messages to handler on a background goroutine until ctx is done.
func (redisCache *RedisRelayCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		slog.Warn("pubsub subscribe failed", "channel", channel, "err", err)
		return err
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Info("pubsub channel closed", "channel", channel)
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

// Hash tag keeps every key of one room in the same cluster slot
func buildRecentChatKey(roomId string) string {
	return "room:{" + roomId + "}:chat"
}

// PushRecentChat appends to the room's capped chat list. Only the newest
// recentChatSize messages are kept.
func (redisCache *RedisRelayCache) PushRecentChat(ctx context.Context, msg models.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := buildRecentChatKey(msg.RoomId)
	pipe := redisCache.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -recentChatSize, -1)
	pipe.Expire(ctx, key, cacheTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRecentChats returns up to limit of the newest cached messages, oldest
// first. An empty slice means the cache has nothing for the room.
func (redisCache *RedisRelayCache) GetRecentChats(ctx context.Context, roomId string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > recentChatSize {
		limit = recentChatSize
	}

	raw, err := redisCache.client.LRange(ctx, buildRecentChatKey(roomId), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			slog.Warn("skipping corrupt cached chat", "room", roomId, "err", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (redisCache *RedisRelayCache) InvalidateRoom(ctx context.Context, roomId string) error {
	return redisCache.client.Del(ctx, buildRecentChatKey(roomId)).Err()
}
