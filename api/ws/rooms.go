package ws

import "sort"

// RoomIndex maps room ids to the connections joined to them and keeps each
// client's own room set in step. Owned by the hub goroutine.
type RoomIndex struct {
	rooms map[string]map[string]*Client
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{rooms: make(map[string]map[string]*Client)}
}

// Join reports whether the client was added; joining twice is a no-op.
func (ri *RoomIndex) Join(roomId string, c *Client) bool {
	members, ok := ri.rooms[roomId]
	if !ok {
		members = make(map[string]*Client)
		ri.rooms[roomId] = members
	}
	if _, ok := members[c.id]; ok {
		return false
	}
	members[c.id] = c
	c.rooms[roomId] = struct{}{}
	return true
}

// Leave reports whether the client was a member. Empty rooms are dropped.
func (ri *RoomIndex) Leave(roomId string, c *Client) bool {
	delete(c.rooms, roomId)

	members, ok := ri.rooms[roomId]
	if !ok {
		return false
	}
	if _, ok := members[c.id]; !ok {
		return false
	}
	delete(members, c.id)
	if len(members) == 0 {
		delete(ri.rooms, roomId)
	}
	return true
}

// LeaveAll removes the client from every room and returns those rooms.
func (ri *RoomIndex) LeaveAll(c *Client) []string {
	left := make([]string, 0, len(c.rooms))
	for roomId := range c.rooms {
		if ri.Leave(roomId, c) {
			left = append(left, roomId)
		}
	}
	sort.Strings(left)
	return left
}

func (ri *RoomIndex) IsMember(roomId string, c *Client) bool {
	_, ok := ri.rooms[roomId][c.id]
	return ok
}

// MembersOf returns a copy of the room's members ordered by connection id.
func (ri *RoomIndex) MembersOf(roomId string) []*Client {
	members := ri.rooms[roomId]
	out := make([]*Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len is the number of non-empty rooms.
func (ri *RoomIndex) Len() int {
	return len(ri.rooms)
}
