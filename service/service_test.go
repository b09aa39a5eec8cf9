package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	cachemocks "github.com/zlnvch/sketchrelay/cache/mocks"
	"github.com/zlnvch/sketchrelay/metrics"
	"github.com/zlnvch/sketchrelay/models"
	"github.com/zlnvch/sketchrelay/service"
	storemocks "github.com/zlnvch/sketchrelay/store/mocks"
	"github.com/zlnvch/sketchrelay/worker"
)

type mockRooms struct {
	mock.Mock
}

func (m *mockRooms) GetRoom(ctx context.Context, roomId string) (models.RoomInfo, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(models.RoomInfo), args.Error(1)
}

// Helper to setup the service with mocks
func setupService(t *testing.T) (*service.Service, *storemocks.MockStore, *cachemocks.MockCache, *worker.ChatBatcher, *worker.CanvasSaver) {
	mockStore := new(storemocks.MockStore)
	mockCache := new(cachemocks.MockCache)
	m := metrics.New()

	// Real workers are used but never started; tests read their channels
	counterBatcher := worker.NewCounterBatcher(mockStore, time.Second)
	chatBatcher := worker.NewChatBatcher(mockStore, mockCache, nil, counterBatcher, m, time.Second, 4)
	canvasSaver := worker.NewCanvasSaver(mockStore, m, time.Second)

	svc, err := service.NewService(
		mockStore,
		mockCache,
		chatBatcher,
		canvasSaver,
		nil,
		[]byte("secret"),
	)
	assert.NoError(t, err)

	return svc, mockStore, mockCache, chatBatcher, canvasSaver
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := service.NewService(nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}
