package cache

import (
	"context"

	"github.com/zlnvch/sketchrelay/models"
)

type RelayCache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error

	PushRecentChat(ctx context.Context, msg models.ChatMessage) error
	GetRecentChats(ctx context.Context, roomId string, limit int) ([]models.ChatMessage, error)
	InvalidateRoom(ctx context.Context, roomId string) error
}
