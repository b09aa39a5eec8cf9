package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/sketchrelay/models"
	"github.com/zlnvch/sketchrelay/service"
	"github.com/zlnvch/sketchrelay/store"
)

func mockMatchRoom(roomId string) any {
	return mock.MatchedBy(func(msg models.ChatMessage) bool {
		return msg.RoomId == roomId
	})
}

func TestQueueCanvasSave(t *testing.T) {
	svc, _, _, _, canvasSaver := setupService(t)

	ok := svc.QueueCanvasSave(models.CanvasSnapshot{RoomId: "room-42", Elements: json.RawMessage(`[]`), UpdatedBy: "user1"})
	assert.True(t, ok)

	snapshot := <-canvasSaver.SaveCh
	assert.Equal(t, "room-42", snapshot.RoomId)
	assert.NotZero(t, snapshot.UpdatedAt)
}

func TestQueueCanvasSave_Disabled(t *testing.T) {
	svc, err := service.NewService(nil, nil, nil, nil, nil, []byte("secret"))
	require.NoError(t, err)

	assert.False(t, svc.QueueCanvasSave(models.CanvasSnapshot{RoomId: "room-42"}))
}

func TestGetCanvas(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	want := models.CanvasSnapshot{RoomId: "room-42", Version: 3, Elements: json.RawMessage(`[{"id":"a"}]`)}
	mockStore.On("GetCanvas", ctx, "room-42").Return(want, nil)
	mockStore.On("GetCanvas", ctx, "room-0").Return(models.CanvasSnapshot{}, store.ErrItemNotFound)

	got, err := svc.GetCanvas(ctx, "room-42")
	assert.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = svc.GetCanvas(ctx, "room-0")
	assert.True(t, errors.Is(err, service.ErrCanvasNotFound))
}

func TestGetCanvas_NoStore(t *testing.T) {
	svc, _ := service.NewService(nil, nil, nil, nil, nil, []byte("secret"))

	_, err := svc.GetCanvas(context.Background(), "room-42")
	assert.True(t, errors.Is(err, service.ErrPersistenceDisabled))
}
