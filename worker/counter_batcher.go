package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zlnvch/sketchrelay/store"
)

type CounterUpdate struct {
	RoomId string
	Delta  int
}

// CounterBatcher folds per-room message count deltas in memory and writes
// them on a ticker, so a busy room costs one store update per flush.
type CounterBatcher struct {
	UpdateCh   chan CounterUpdate
	relayStore store.RelayStore
	flushEvery time.Duration
}

func NewCounterBatcher(relayStore store.RelayStore, flushEvery time.Duration) *CounterBatcher {
	return &CounterBatcher{
		UpdateCh:   make(chan CounterUpdate, 1024),
		relayStore: relayStore,
		flushEvery: flushEvery,
	}
}

func (b *CounterBatcher) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(b.flushEvery)
	defer ticker.Stop()

	roomCounts := make(map[string]int)
	var inFlight sync.WaitGroup

	flush := func() {
		for roomId, count := range roomCounts {
			if count == 0 {
				continue
			}
			inFlight.Go(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := b.relayStore.IncrementRoomMessageCount(ctx, roomId, count); err != nil {
					slog.Warn("failed to update room message count", "room", roomId, "delta", count, "err", err)
				}
			})
		}
		roomCounts = make(map[string]int)
	}

	for {
		select {
		case update := <-b.UpdateCh:
			if update.RoomId != "" {
				roomCounts[update.RoomId] += update.Delta
			}

			if len(roomCounts) >= 100 {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			flush()
			inFlight.Wait()
			return
		}
	}
}

// add is a non-blocking send; counters are best effort.
func (b *CounterBatcher) add(roomId string, delta int) {
	select {
	case b.UpdateCh <- CounterUpdate{RoomId: roomId, Delta: delta}:
	default:
		slog.Warn("counter batcher full, dropping update", "room", roomId, "delta", delta)
	}
}
