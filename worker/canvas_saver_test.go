package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/sketchrelay/metrics"
	"github.com/zlnvch/sketchrelay/models"
	storemocks "github.com/zlnvch/sketchrelay/store/mocks"
)

func TestCanvasSaver_LastWriteWins(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	m := metrics.New()
	s := NewCanvasSaver(mockStore, m, time.Hour)

	first := models.CanvasSnapshot{RoomId: "room-42", Elements: json.RawMessage(`[{"id":"a"}]`), UpdatedBy: "user1"}
	second := models.CanvasSnapshot{RoomId: "room-42", Elements: json.RawMessage(`[{"id":"a"},{"id":"b"}]`), UpdatedBy: "user2"}
	mockStore.On("SaveCanvas", mock.Anything, second).Return(7, nil)

	s.SaveCh <- first
	s.SaveCh <- second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)

	mockStore.AssertNumberOfCalls(t, "SaveCanvas", 1)
	mockStore.AssertExpectations(t)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CanvasSaves.WithLabelValues("ok")))
}

func TestCanvasSaver_FlushesOnTicker(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	m := metrics.New()
	s := NewCanvasSaver(mockStore, m, 10*time.Millisecond)

	snapshot := models.CanvasSnapshot{RoomId: "room-1", Elements: json.RawMessage(`[]`)}
	saved := wrapMockWithSignal(mockStore.On("SaveCanvas", mock.Anything, snapshot).Return(0, assert.AnError))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.SaveCh <- snapshot
	waitFor(t, saved, "SaveCanvas")

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.CanvasSaves.WithLabelValues("error")) == 1
	}, time.Second, 5*time.Millisecond)
}
