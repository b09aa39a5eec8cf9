package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/sketchrelay/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) WriteChatBatch(ctx context.Context, messages []models.ChatMessage) ([]models.ChatMessage, error) {
	args := m.Called(ctx, messages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func (m *MockStore) GetChatHistory(ctx context.Context, roomId string, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, roomId, limit)
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func (m *MockStore) SaveCanvas(ctx context.Context, snapshot models.CanvasSnapshot) (int, error) {
	args := m.Called(ctx, snapshot)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) GetCanvas(ctx context.Context, roomId string) (models.CanvasSnapshot, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(models.CanvasSnapshot), args.Error(1)
}

func (m *MockStore) IncrementRoomMessageCount(ctx context.Context, roomId string, count int) error {
	args := m.Called(ctx, roomId, count)
	return args.Error(0)
}
