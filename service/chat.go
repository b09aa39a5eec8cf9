package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/sketchrelay/models"
)

var ErrChatBacklogFull = errors.New("chat backlog full")

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// AppendChat hands a message to the chat batcher and returns its id. It
// never waits for the store: a full backlog is reported as an error.
func (s *Service) AppendChat(ctx context.Context, msg models.ChatMessage) (string, error) {
	if msg.Id == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", err
		}
		msg.Id = id.String()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	if s.ChatBatcher == nil {
		// Without a store the cache is the only history there is
		if s.Cache != nil {
			if err := s.Cache.PushRecentChat(ctx, msg); err != nil {
				return "", err
			}
		}
		return msg.Id, nil
	}

	select {
	case s.ChatBatcher.WriteCh <- msg:
		return msg.Id, nil
	default:
		return "", ErrChatBacklogFull
	}
}

// ChatHistory returns up to limit recent messages of a room, oldest first.
func (s *Service) ChatHistory(ctx context.Context, roomId string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var cached []models.ChatMessage
	if s.Cache != nil {
		var err error
		cached, err = s.Cache.GetRecentChats(ctx, roomId, limit)
		if err != nil {
			slog.Warn("failed to read recent chat from cache", "room", roomId, "err", err)
		} else if len(cached) >= limit {
			return cached, nil
		}
	}

	if s.Store == nil {
		if cached == nil {
			cached = []models.ChatMessage{}
		}
		return cached, nil
	}

	messages, err := s.Store.GetChatHistory(ctx, roomId, limit)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ForgetRoom drops the cached recent history of a deleted room. Stored
// history is left to the room directory's own cleanup.
func (s *Service) ForgetRoom(ctx context.Context, roomId string) error {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.InvalidateRoom(ctx, roomId)
}
