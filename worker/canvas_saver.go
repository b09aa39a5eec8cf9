package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/zlnvch/sketchrelay/metrics"
	"github.com/zlnvch/sketchrelay/models"
	"github.com/zlnvch/sketchrelay/store"
)

// CanvasSaver keeps only the newest snapshot per room between flushes.
// Concurrent editors overwrite each other: last write wins.
type CanvasSaver struct {
	SaveCh     chan models.CanvasSnapshot
	relayStore store.RelayStore
	metrics    *metrics.Metrics
	flushEvery time.Duration
}

func NewCanvasSaver(relayStore store.RelayStore, m *metrics.Metrics, flushEvery time.Duration) *CanvasSaver {
	return &CanvasSaver{
		SaveCh:     make(chan models.CanvasSnapshot, 256),
		relayStore: relayStore,
		metrics:    m,
		flushEvery: flushEvery,
	}
}

func (s *CanvasSaver) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	pending := make(map[string]models.CanvasSnapshot)

	flush := func() {
		for roomId, snapshot := range pending {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			version, err := s.relayStore.SaveCanvas(ctx, snapshot)
			cancel()
			if err != nil {
				s.metrics.CanvasSaves.WithLabelValues("error").Inc()
				slog.Error("failed to save canvas", "room", roomId, "err", err)
				continue
			}
			s.metrics.CanvasSaves.WithLabelValues("ok").Inc()
			slog.Debug("canvas saved", "room", roomId, "version", version)
		}
		clear(pending)
	}

	for {
		select {
		case snapshot := <-s.SaveCh:
			pending[snapshot.RoomId] = snapshot

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			for drained := false; !drained; {
				select {
				case snapshot := <-s.SaveCh:
					pending[snapshot.RoomId] = snapshot
				default:
					drained = true
				}
			}
			flush()
			return
		}
	}
}
