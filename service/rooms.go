package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/zlnvch/sketchrelay/models"
)

var ErrRoomAccessDenied = errors.New("room access denied")

// AuthorizeJoin checks a join against the room directory. Public rooms are
// open to anyone; private rooms need an account that is the admin or a
// listed member. Lookup failures refuse the join.
func (s *Service) AuthorizeJoin(ctx context.Context, roomId string, identity models.Identity) error {
	if s.Rooms == nil {
		return nil
	}

	room, err := s.Rooms.GetRoom(ctx, roomId)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRoomAccessDenied, err)
	}

	if room.IsPublic {
		return nil
	}
	if identity.Guest || !room.HasMember(identity.Id) {
		return ErrRoomAccessDenied
	}
	return nil
}
