package ws

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"github.com/zlnvch/sketchrelay/models"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
)

var cursorPalette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A",
	"#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E2",
}

func pickColor() string {
	return cursorPalette[rand.IntN(len(cursorPalette))]
}

// Transport is the part of *websocket.Conn the relay uses.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

func NewClient(hub *Hub, conn Transport, identity models.Identity) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		id:       uuid.Must(uuid.NewV4()).String(),
		identity: identity,
		color:    pickColor(),
		Send:     make(chan []byte, hub.opts.SendBuffer),
		limiter:  rate.NewLimiter(rate.Limit(hub.opts.MessagesPerSecond), hub.opts.Burst),
		rooms:    make(map[string]struct{}),
	}
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub      *Hub
	conn     Transport
	id       string
	identity models.Identity
	color    string
	Send     chan []byte // Buffered channel of outbound messages. Closed by the hub.
	limiter  *rate.Limiter

	closed atomic.Bool
	missed atomic.Int32

	// Owned by the hub goroutine
	rooms  map[string]struct{}
	cursor *models.Cursor
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) Identity() models.Identity {
	return c.identity
}

func (c *Client) IsOpen() bool {
	return !c.closed.Load()
}

// closeTransport closes the connection once; the read loop then runs teardown.
func (c *Client) closeTransport() {
	if c.closed.CompareAndSwap(false, true) {
		c.conn.Close()
	}
}

func (c *Client) presence() models.PresenceMember {
	return models.PresenceMember{
		Id:           c.identity.Id,
		ConnectionId: c.id,
		Name:         c.identity.Name,
		Color:        c.color,
		Cursor:       c.cursor,
	}
}

func (c *Client) ReadPump(shutdownCtx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in read loop", "conn", c.id, "panic", r)
		}
		c.hub.unregister(c)
		c.closeTransport()
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageBytes)
	c.conn.SetPongHandler(func(string) error {
		c.missed.Store(0)
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Debug("ws read error", "conn", c.id, "err", err)
			}
			return
		}

		// Over-limit messages are dropped; the connection stays open
		if !c.limiter.Allow() {
			c.hub.metrics.InboundEvents.WithLabelValues("rate_limited").Inc()
			slog.Debug("dropping message over rate limit", "conn", c.id, "participant", c.identity.Id)
			continue
		}

		event, err := Decode(messageBytes)
		if err == nil {
			if join, ok := event.(JoinRoom); ok {
				err = c.hub.authorizeJoin(shutdownCtx, c, join.RoomId)
			}
		}

		if !c.hub.submit(inbound{client: c, event: event, err: err}) {
			return
		}
	}
}

func (c *Client) WritePump(shutdownCtx context.Context) {
	defer c.closeTransport()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("ws send error", "conn", c.id, "err", err)
				return
			}

		case <-shutdownCtx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Relay shutting down"),
			)
			return
		}
	}
}
