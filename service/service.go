package service

import (
	"context"
	"errors"

	"github.com/zlnvch/sketchrelay/cache"
	"github.com/zlnvch/sketchrelay/models"
	"github.com/zlnvch/sketchrelay/store"
	"github.com/zlnvch/sketchrelay/worker"
)

// RoomDirectory is the external room-management API.
type RoomDirectory interface {
	GetRoom(ctx context.Context, roomId string) (models.RoomInfo, error)
}

// Service is the relay's persistence gateway and identity resolver. Store,
// Cache, the workers and Rooms are all optional: a nil collaborator turns the
// matching feature off.
type Service struct {
	Store       store.RelayStore
	Cache       cache.RelayCache
	ChatBatcher *worker.ChatBatcher
	CanvasSaver *worker.CanvasSaver
	Rooms       RoomDirectory
	JWTSecret   []byte
}

func NewService(
	store store.RelayStore,
	cache cache.RelayCache,
	chatBatcher *worker.ChatBatcher,
	canvasSaver *worker.CanvasSaver,
	rooms RoomDirectory,
	jwtSecret []byte,
) (*Service, error) {
	if len(jwtSecret) == 0 {
		return nil, errors.New("jwt secret is required")
	}

	return &Service{
		Store:       store,
		Cache:       cache,
		ChatBatcher: chatBatcher,
		CanvasSaver: canvasSaver,
		Rooms:       rooms,
		JWTSecret:   jwtSecret,
	}, nil
}
