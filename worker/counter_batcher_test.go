package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	storemocks "github.com/zlnvch/sketchrelay/store/mocks"
)

func TestCounterBatcher_AggregatesPerRoom(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	b := NewCounterBatcher(mockStore, 20*time.Millisecond)

	room42Done := wrapMockWithSignal(mockStore.On("IncrementRoomMessageCount", mock.Anything, "room-42", 3).Return(nil))
	room7Done := wrapMockWithSignal(mockStore.On("IncrementRoomMessageCount", mock.Anything, "room-7", 1).Return(nil))

	b.UpdateCh <- CounterUpdate{RoomId: "room-42", Delta: 1}
	b.UpdateCh <- CounterUpdate{RoomId: "room-42", Delta: 2}
	b.UpdateCh <- CounterUpdate{RoomId: "room-7", Delta: 1}
	// Updates without a room are ignored
	b.UpdateCh <- CounterUpdate{Delta: 5}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	waitFor(t, room42Done, "room-42 increment")
	waitFor(t, room7Done, "room-7 increment")
	mockStore.AssertNumberOfCalls(t, "IncrementRoomMessageCount", 2)
}
