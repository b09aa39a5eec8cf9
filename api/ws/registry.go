package ws

// Registry is the table of live connections keyed by connection id. The
// participant id is an attribute, so one account may hold several entries.
// Owned by the hub goroutine.
type Registry struct {
	conns      map[string]*Client
	perAccount map[string]int
	rooms      *RoomIndex
}

func NewRegistry(rooms *RoomIndex) *Registry {
	return &Registry{
		conns:      make(map[string]*Client),
		perAccount: make(map[string]int),
		rooms:      rooms,
	}
}

func (r *Registry) Register(c *Client) {
	if old, ok := r.conns[c.id]; ok {
		r.perAccount[old.identity.Id]--
	}
	r.conns[c.id] = c
	r.perAccount[c.identity.Id]++
}

func (r *Registry) Lookup(connectionId string) (*Client, bool) {
	c, ok := r.conns[connectionId]
	return c, ok
}

// Remove is idempotent.
func (r *Registry) Remove(connectionId string) {
	c, ok := r.conns[connectionId]
	if !ok {
		return
	}
	delete(r.conns, connectionId)
	r.perAccount[c.identity.Id]--
	if r.perAccount[c.identity.Id] <= 0 {
		delete(r.perAccount, c.identity.Id)
	}
}

// Live reports whether c is the registered entry for its connection id.
func (r *Registry) Live(c *Client) bool {
	cur, ok := r.conns[c.id]
	return ok && cur == c
}

// ForEachInRoom calls fn for every registered member of the room whose
// transport is still open. It iterates a snapshot, so fn may mutate.
func (r *Registry) ForEachInRoom(roomId string, fn func(c *Client)) {
	for _, c := range r.rooms.MembersOf(roomId) {
		if !r.Live(c) || !c.IsOpen() {
			continue
		}
		fn(c)
	}
}

func (r *Registry) AccountConnections(participantId string) int {
	return r.perAccount[participantId]
}

func (r *Registry) Len() int {
	return len(r.conns)
}

func (r *Registry) All() []*Client {
	out := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
