package service

import (
	"context"
	"errors"
	"time"

	"github.com/zlnvch/sketchrelay/models"
	"github.com/zlnvch/sketchrelay/store"
)

var (
	ErrCanvasNotFound      = errors.New("canvas not found")
	ErrPersistenceDisabled = errors.New("persistence is disabled")
)

// QueueCanvasSave passes a snapshot to the canvas saver. Returns false when
// saving is disabled or the saver is backed up.
func (s *Service) QueueCanvasSave(snapshot models.CanvasSnapshot) bool {
	if s.CanvasSaver == nil {
		return false
	}
	if snapshot.UpdatedAt == 0 {
		snapshot.UpdatedAt = time.Now().UnixMilli()
	}

	select {
	case s.CanvasSaver.SaveCh <- snapshot:
		return true
	default:
		return false
	}
}

func (s *Service) GetCanvas(ctx context.Context, roomId string) (models.CanvasSnapshot, error) {
	if s.Store == nil {
		return models.CanvasSnapshot{}, ErrPersistenceDisabled
	}

	snapshot, err := s.Store.GetCanvas(ctx, roomId)
	if errors.Is(err, store.ErrItemNotFound) {
		return models.CanvasSnapshot{}, ErrCanvasNotFound
	}
	return snapshot, err
}
