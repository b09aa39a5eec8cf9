package store

import (
	"context"
	"errors"

	"github.com/zlnvch/sketchrelay/models"
)

type RelayStore interface {
	// WriteChatBatch persists messages and returns the ones that could not be
	// written so the caller can requeue them.
	WriteChatBatch(ctx context.Context, messages []models.ChatMessage) ([]models.ChatMessage, error)
	GetChatHistory(ctx context.Context, roomId string, limit int) ([]models.ChatMessage, error)

	// SaveCanvas overwrites the room's snapshot and returns the new version.
	SaveCanvas(ctx context.Context, snapshot models.CanvasSnapshot) (int, error)
	GetCanvas(ctx context.Context, roomId string) (models.CanvasSnapshot, error)

	IncrementRoomMessageCount(ctx context.Context, roomId string, count int) error
}

var (
	ErrItemNotFound    = errors.New("item does not exist")
	ErrConditionFailed = errors.New("condition not met")
)
