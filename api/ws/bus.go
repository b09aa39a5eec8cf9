package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/zlnvch/sketchrelay/cache"
)

const (
	roomsChannel      = "relay:rooms"
	roomEventsChannel = "room-events"

	busBacklog = 4096
)

// Room control event kinds published by the room service
const (
	RoomDeleted   = "room_deleted"
	MemberRemoved = "member_removed"
)

type RoomEvent struct {
	Kind   string `json:"kind"`
	RoomId string `json:"roomId"`
	UserId string `json:"userId,omitempty"`
}

type busEnvelope struct {
	Origin  string          `json:"origin"`
	RoomId  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`
}

// ClusterBus forwards room fan-out to the other relay instances. Publishing
// never blocks the hub: messages queue in order and overflow is dropped.
type ClusterBus struct {
	relayCache cache.RelayCache
	origin     string
	outCh      chan busEnvelope
}

func NewClusterBus(relayCache cache.RelayCache, origin string) *ClusterBus {
	return &ClusterBus{
		relayCache: relayCache,
		origin:     origin,
		outCh:      make(chan busEnvelope, busBacklog),
	}
}

func (b *ClusterBus) Publish(roomId string, payload []byte) {
	select {
	case b.outCh <- busEnvelope{Origin: b.origin, RoomId: roomId, Payload: payload}:
	default:
		slog.Warn("cluster bus backlog full, dropping message", "room", roomId)
	}
}

func (b *ClusterBus) Run(shutdownCtx context.Context) {
	for {
		select {
		case env := <-b.outCh:
			data, err := json.Marshal(env)
			if err != nil {
				slog.Error("failed to encode bus envelope", "err", err)
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := b.relayCache.Publish(ctx, roomsChannel, data); err != nil {
				slog.Warn("cluster bus publish failed", "room", env.RoomId, "err", err)
			}
			cancel()

		case <-shutdownCtx.Done():
			return
		}
	}
}

// InitSubscriptions subscribes to fan-out from other instances and to room
// control events. A hub without a cache has nothing to subscribe to.
func (h *Hub) InitSubscriptions(shutdownCtx context.Context) error {
	if h.relayCache == nil {
		return nil
	}

	err := h.relayCache.Subscribe(shutdownCtx, roomsChannel, func(message []byte) {
		var env busEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			slog.Warn("failed to unmarshal bus envelope", "err", err)
			return
		}
		if env.Origin == h.opts.InstanceId || env.RoomId == "" {
			return
		}
		h.deliverRemote(env.RoomId, env.Payload)
	})
	if err != nil {
		slog.Error("hub failed to subscribe", "channel", roomsChannel, "err", err)
		return err
	}

	err = h.relayCache.Subscribe(shutdownCtx, roomEventsChannel, func(message []byte) {
		var ev RoomEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			slog.Warn("failed to unmarshal room event", "err", err)
			return
		}
		h.HandleRoomEvent(ev)
	})
	if err != nil {
		slog.Error("hub failed to subscribe", "channel", roomEventsChannel, "err", err)
		return err
	}

	return nil
}
