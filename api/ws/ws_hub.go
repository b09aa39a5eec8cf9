package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/sketchrelay/cache"
	"github.com/zlnvch/sketchrelay/metrics"
	"github.com/zlnvch/sketchrelay/models"
)

var (
	ErrHubStopped         = errors.New("hub stopped")
	ErrTooManyConnections = errors.New("too many connections for this account")
)

// Gateway is the persistence side of the relay. Calls made from the hub
// goroutine must not block.
type Gateway interface {
	AppendChat(ctx context.Context, msg models.ChatMessage) (string, error)
	QueueCanvasSave(snapshot models.CanvasSnapshot) bool
	AuthorizeJoin(ctx context.Context, roomId string, identity models.Identity) error
	ForgetRoom(ctx context.Context, roomId string) error
}

type Options struct {
	// Used as the cluster bus origin
	InstanceId string

	SendBuffer               int
	MessagesPerSecond        float64
	Burst                    int
	MaxMessageBytes          int64
	MaxConnectionsPerAccount int
	MaxRoomsPerConnection    int
	MaxChatRunes             int
}

func (o Options) withDefaults() Options {
	if o.InstanceId == "" {
		o.InstanceId = uuid.Must(uuid.NewV4()).String()
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 128
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = 120
	}
	if o.Burst <= 0 {
		o.Burst = 240
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 512 * 1024
	}
	if o.MaxConnectionsPerAccount <= 0 {
		o.MaxConnectionsPerAccount = 5
	}
	if o.MaxRoomsPerConnection <= 0 {
		o.MaxRoomsPerConnection = 50
	}
	if o.MaxChatRunes <= 0 {
		o.MaxChatRunes = 4000
	}
	return o
}

type openRequest struct {
	client *Client
	reply  chan error
}

type inbound struct {
	client *Client
	event  Event
	err    error
}

type remoteMessage struct {
	roomId  string
	payload []byte
}

type presenceRequest struct {
	roomId string
	reply  chan []models.PresenceMember
}

// Hub owns the registry and room index. Every mutation and every fan-out
// runs on the Run goroutine, so teardown is atomic with respect to joins.
type Hub struct {
	gateway    Gateway
	relayCache cache.RelayCache
	bus        *ClusterBus
	metrics    *metrics.Metrics
	opts       Options

	OpenCh      chan openRequest
	CloseCh     chan *Client
	InboundCh   chan inbound
	RoomEventCh chan RoomEvent
	remoteCh    chan remoteMessage
	snapshotCh  chan chan []*Client
	presenceCh  chan presenceRequest

	registry *Registry
	rooms    *RoomIndex
	done     chan struct{}
}

// NewHub builds a hub. relayCache may be nil, which disables the cluster bus
// and room control events.
func NewHub(gateway Gateway, relayCache cache.RelayCache, m *metrics.Metrics, opts Options) *Hub {
	opts = opts.withDefaults()
	rooms := NewRoomIndex()

	h := &Hub{
		gateway:     gateway,
		relayCache:  relayCache,
		metrics:     m,
		opts:        opts,
		OpenCh:      make(chan openRequest, 256),
		CloseCh:     make(chan *Client, 256),
		InboundCh:   make(chan inbound, 1024),
		RoomEventCh: make(chan RoomEvent, 64),
		remoteCh:    make(chan remoteMessage, 1024),
		snapshotCh:  make(chan chan []*Client),
		presenceCh:  make(chan presenceRequest),
		registry:    NewRegistry(rooms),
		rooms:       rooms,
		done:        make(chan struct{}),
	}
	if relayCache != nil {
		h.bus = NewClusterBus(relayCache, opts.InstanceId)
	}
	return h
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.bus != nil {
		go h.bus.Run(ctx)
	}

	for {
		select {
		case req := <-h.OpenCh:
			req.reply <- h.open(req.client)

		case client := <-h.CloseCh:
			h.teardown(client)

		case in := <-h.InboundCh:
			h.handleInbound(in)

		case ev := <-h.RoomEventCh:
			h.handleRoomEvent(ev)

		case msg := <-h.remoteCh:
			h.registry.ForEachInRoom(msg.roomId, func(c *Client) {
				h.sendTo(c, msg.payload)
			})

		case reply := <-h.snapshotCh:
			reply <- h.registry.All()

		case req := <-h.presenceCh:
			req.reply <- h.presence(req.roomId)

		case <-ctx.Done():
			return
		}
	}
}

// Register admits a client. It returns once the hub has accepted or
// refused it, so no inbound event can overtake registration.
func (h *Hub) Register(c *Client) error {
	reply := make(chan error, 1)
	select {
	case h.OpenCh <- openRequest{client: c, reply: reply}:
	case <-h.done:
		return ErrHubStopped
	}

	select {
	case err := <-reply:
		return err
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.CloseCh <- c:
	case <-h.done:
	}
}

func (h *Hub) submit(in inbound) bool {
	select {
	case h.InboundCh <- in:
		return true
	case <-h.done:
		return false
	}
}

// HandleRoomEvent queues a room control event from the room service.
func (h *Hub) HandleRoomEvent(ev RoomEvent) {
	select {
	case h.RoomEventCh <- ev:
	case <-h.done:
	}
}

func (h *Hub) deliverRemote(roomId string, payload []byte) {
	select {
	case h.remoteCh <- remoteMessage{roomId: roomId, payload: payload}:
	case <-h.done:
	}
}

// Connections returns a snapshot of every registered client.
func (h *Hub) Connections() []*Client {
	reply := make(chan []*Client, 1)
	select {
	case h.snapshotCh <- reply:
	case <-h.done:
		return nil
	}
	return <-reply
}

// Presence returns the members of a room connected to this instance.
func (h *Hub) Presence(roomId string) []models.PresenceMember {
	reply := make(chan []models.PresenceMember, 1)
	select {
	case h.presenceCh <- presenceRequest{roomId: roomId, reply: reply}:
	case <-h.done:
		return []models.PresenceMember{}
	}
	return <-reply
}

func (h *Hub) authorizeJoin(ctx context.Context, c *Client, roomId string) error {
	if h.gateway == nil {
		return nil
	}
	if err := h.gateway.AuthorizeJoin(ctx, roomId, c.identity); err != nil {
		slog.Info("join refused", "room", roomId, "participant", c.identity.Id, "err", err)
		h.metrics.AdmissionRejections.WithLabelValues("room_access").Inc()
		return fmt.Errorf("access to room %s denied", roomId)
	}
	return nil
}

func (h *Hub) open(c *Client) error {
	if h.registry.AccountConnections(c.identity.Id) >= h.opts.MaxConnectionsPerAccount {
		slog.Info("participant reached max connections", "participant", c.identity.Id, "max", h.opts.MaxConnectionsPerAccount)
		h.metrics.AdmissionRejections.WithLabelValues("connection_limit").Inc()
		return ErrTooManyConnections
	}

	h.registry.Register(c)
	h.metrics.Connections.Set(float64(h.registry.Len()))

	h.sendTo(c, encode(connectedMessage{
		Type:          TypeConnected,
		ParticipantId: c.identity.Id,
		ConnectionId:  c.id,
		DisplayName:   c.identity.Name,
		CursorColor:   c.color,
	}))

	slog.Debug("connection registered", "conn", c.id, "participant", c.identity.Id, "guest", c.identity.Guest)
	return nil
}

// teardown leaves every room, tells the remaining members, then forgets the
// client. Safe to call more than once.
func (h *Hub) teardown(c *Client) {
	if !h.registry.Live(c) {
		return
	}

	for _, roomId := range h.rooms.LeaveAll(c) {
		h.broadcast(roomId, c, h.memberEvent(TypeUserLeft, roomId, c))
	}
	h.registry.Remove(c.id)
	close(c.Send)

	h.metrics.Connections.Set(float64(h.registry.Len()))
	h.metrics.Rooms.Set(float64(h.rooms.Len()))
	slog.Debug("connection closed", "conn", c.id, "participant", c.identity.Id)
}

func (h *Hub) handleInbound(in inbound) {
	c := in.client
	if !h.registry.Live(c) {
		return
	}

	if in.err != nil {
		if errors.Is(in.err, ErrUnknownType) {
			slog.Debug("ignoring unknown message type", "conn", c.id)
			h.metrics.InboundEvents.WithLabelValues("unknown").Inc()
			return
		}
		if errors.Is(in.err, ErrMalformed) {
			h.metrics.InboundEvents.WithLabelValues("malformed").Inc()
		}
		h.replyError(c, in.err.Error())
		return
	}

	h.metrics.InboundEvents.WithLabelValues(in.event.eventType()).Inc()

	switch ev := in.event.(type) {
	case Ping:
		h.sendTo(c, encode(pongMessage{Type: TypePong}))
		return
	case JoinRoom:
		h.join(c, ev.RoomId)
		return
	case LeaveRoom:
		h.leave(c, ev.RoomId)
		return
	}

	scoped, ok := in.event.(roomScoped)
	if !ok {
		return
	}
	roomId := scoped.room()
	if !h.rooms.IsMember(roomId, c) {
		h.replyError(c, "not a member of room "+roomId)
		return
	}

	switch ev := in.event.(type) {
	case CursorMove:
		c.cursor = &models.Cursor{X: ev.X, Y: ev.Y}
		h.broadcast(roomId, c, encode(cursorMessage{
			Type:         TypeCursorUpdate,
			RoomId:       roomId,
			Id:           c.identity.Id,
			ConnectionId: c.id,
			X:            ev.X,
			Y:            ev.Y,
			Color:        c.color,
		}))

	case CanvasUpdate:
		h.broadcast(roomId, c, encode(canvasMessage{
			Type:     TypeCanvasUpdate,
			RoomId:   roomId,
			Id:       c.identity.Id,
			Elements: ev.Elements,
			AppState: ev.AppState,
		}))
		if ev.Save && h.gateway != nil {
			if !h.gateway.QueueCanvasSave(models.CanvasSnapshot{
				RoomId:    roomId,
				Elements:  ev.Elements,
				AppState:  ev.AppState,
				UpdatedBy: c.identity.Id,
				UpdatedAt: time.Now().UnixMilli(),
			}) {
				slog.Warn("canvas save not queued", "room", roomId)
				h.metrics.CanvasSaves.WithLabelValues("dropped").Inc()
			}
		}

	case ElementAdd:
		h.broadcast(roomId, c, encode(elementMessage{Type: TypeElementAdd, RoomId: roomId, Id: c.identity.Id, Element: ev.Element}))

	case ElementUpdate:
		h.broadcast(roomId, c, encode(elementMessage{Type: TypeElementUpdate, RoomId: roomId, Id: c.identity.Id, Element: ev.Element}))

	case ElementDelete:
		h.broadcast(roomId, c, encode(elementMessage{Type: TypeElementDelete, RoomId: roomId, Id: c.identity.Id, ElementId: ev.ElementId}))

	case Chat:
		h.chat(c, roomId, ev.Text)
	}
}

func (h *Hub) join(c *Client, roomId string) {
	if !h.rooms.IsMember(roomId, c) {
		if len(c.rooms) >= h.opts.MaxRoomsPerConnection {
			h.replyError(c, fmt.Sprintf("room limit reached (%d)", h.opts.MaxRoomsPerConnection))
			return
		}
		h.rooms.Join(roomId, c)
		h.broadcast(roomId, c, h.memberEvent(TypeUserJoined, roomId, c))
		h.metrics.Rooms.Set(float64(h.rooms.Len()))
	}

	h.sendTo(c, encode(presenceMessage{
		Type:    TypeRoomPresence,
		RoomId:  roomId,
		Members: h.presence(roomId),
	}))
}

func (h *Hub) leave(c *Client, roomId string) {
	if !h.rooms.Leave(roomId, c) {
		return
	}
	h.broadcast(roomId, c, h.memberEvent(TypeUserLeft, roomId, c))
	h.metrics.Rooms.Set(float64(h.rooms.Len()))
}

func (h *Hub) chat(c *Client, roomId string, text string) {
	if utf8.RuneCountInString(text) > h.opts.MaxChatRunes {
		h.replyError(c, fmt.Sprintf("chat message longer than %d characters", h.opts.MaxChatRunes))
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		slog.Error("failed to mint chat message id", "err", err)
		h.replyError(c, "chat message not sent")
		return
	}

	msg := models.ChatMessage{
		Id:         id.String(),
		RoomId:     roomId,
		SenderId:   c.identity.Id,
		SenderName: c.identity.Name,
		Text:       text,
		SentAt:     time.Now().UTC(),
	}

	h.broadcast(roomId, c, encode(chatMessage{
		Type:       TypeChat,
		RoomId:     roomId,
		Id:         msg.Id,
		SenderId:   msg.SenderId,
		SenderName: msg.SenderName,
		Text:       msg.Text,
		SentAt:     msg.SentAt,
	}))

	// Peers are never held back by storage
	if h.gateway != nil {
		go h.persistChat(msg)
	}
}

func (h *Hub) persistChat(msg models.ChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.gateway.AppendChat(ctx, msg); err != nil {
		h.metrics.ChatPersistFailures.Inc()
		slog.Warn("chat persist failed", "room", msg.RoomId, "message", msg.Id, "err", err)
	}
}

func (h *Hub) forgetRoom(roomId string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.gateway.ForgetRoom(ctx, roomId); err != nil {
		slog.Warn("failed to drop cached room history", "room", roomId, "err", err)
	}
}

func (h *Hub) handleRoomEvent(ev RoomEvent) {
	switch ev.Kind {
	case RoomDeleted:
		for _, c := range h.rooms.MembersOf(ev.RoomId) {
			h.rooms.Leave(ev.RoomId, c)
			h.sendTo(c, encode(roomMessage{Type: TypeRoomClosed, RoomId: ev.RoomId}))
		}
		if h.gateway != nil {
			go h.forgetRoom(ev.RoomId)
		}

	case MemberRemoved:
		for _, c := range h.rooms.MembersOf(ev.RoomId) {
			if c.identity.Id != ev.UserId {
				continue
			}
			h.rooms.Leave(ev.RoomId, c)
			h.sendTo(c, encode(roomMessage{Type: TypeRemovedFromRoom, RoomId: ev.RoomId}))
			h.broadcast(ev.RoomId, c, h.memberEvent(TypeUserLeft, ev.RoomId, c))
		}

	default:
		slog.Debug("ignoring room event", "kind", ev.Kind, "room", ev.RoomId)
		return
	}
	h.metrics.Rooms.Set(float64(h.rooms.Len()))
}

func (h *Hub) presence(roomId string) []models.PresenceMember {
	members := []models.PresenceMember{}
	h.registry.ForEachInRoom(roomId, func(c *Client) {
		members = append(members, c.presence())
	})
	return members
}

func (h *Hub) memberEvent(eventType string, roomId string, c *Client) []byte {
	return encode(memberMessage{
		Type:         eventType,
		RoomId:       roomId,
		Id:           c.identity.Id,
		ConnectionId: c.id,
		Name:         c.identity.Name,
		Color:        c.color,
	})
}

// broadcast sends payload to every local member of the room except one and
// forwards it to the other instances.
func (h *Hub) broadcast(roomId string, except *Client, payload []byte) {
	if payload == nil {
		return
	}
	h.registry.ForEachInRoom(roomId, func(c *Client) {
		if c != except {
			h.sendTo(c, payload)
		}
	})
	if h.bus != nil {
		h.bus.Publish(roomId, payload)
	}
}

func (h *Hub) replyError(c *Client, message string) {
	h.sendTo(c, encodeError(message))
}

// sendTo never blocks: a full or closed peer loses the message.
func (h *Hub) sendTo(c *Client, payload []byte) bool {
	if payload == nil || !c.IsOpen() {
		h.metrics.DroppedSends.Inc()
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		h.metrics.DroppedSends.Inc()
		slog.Debug("send buffer full, dropping message", "conn", c.id)
		return false
	}
}
