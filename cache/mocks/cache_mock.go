package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/sketchrelay/models"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Publish(ctx context.Context, channel string, message []byte) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockCache) PushRecentChat(ctx context.Context, msg models.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockCache) GetRecentChats(ctx context.Context, roomId string, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, roomId, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func (m *MockCache) InvalidateRoom(ctx context.Context, roomId string) error {
	args := m.Called(ctx, roomId)
	return args.Error(0)
}
