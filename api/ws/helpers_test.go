package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/sketchrelay/metrics"
	"github.com/zlnvch/sketchrelay/models"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) AppendChat(ctx context.Context, msg models.ChatMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) QueueCanvasSave(snapshot models.CanvasSnapshot) bool {
	args := m.Called(snapshot)
	return args.Bool(0)
}

func (m *mockGateway) AuthorizeJoin(ctx context.Context, roomId string, identity models.Identity) error {
	args := m.Called(ctx, roomId, identity)
	return args.Error(0)
}

func (m *mockGateway) ForgetRoom(ctx context.Context, roomId string) error {
	args := m.Called(ctx, roomId)
	return args.Error(0)
}

// Helper that creates a channel and wraps a mock call to signal when it's called
func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	call.Run(func(args mock.Arguments) {
		close(done)
	})
	return done
}

var errTransportClosed = errors.New("transport closed")

// fakeTransport stands in for a websocket connection. With answerPings
// unset it silently drops liveness probes.
type fakeTransport struct {
	mu          sync.Mutex
	inbox       chan []byte
	closed      chan struct{}
	closeOnce   sync.Once
	pongHandler func(string) error
	answerPings bool
	pings       int
	written     [][]byte
}

func newFakeTransport(answerPings bool) *fakeTransport {
	return &fakeTransport{
		inbox:       make(chan []byte, 64),
		closed:      make(chan struct{}),
		answerPings: answerPings,
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.inbox:
		return websocket.TextMessage, msg, nil
	case <-f.closed:
		return 0, nil, errTransportClosed
	}
}

func (f *fakeTransport) WriteMessage(messageType int, data []byte) error {
	if f.isClosed() {
		return errTransportClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, data []byte, deadline time.Time) error {
	if f.isClosed() {
		return errTransportClosed
	}
	f.mu.Lock()
	f.pings++
	handler := f.pongHandler
	f.mu.Unlock()

	if messageType == websocket.PingMessage && f.answerPings && handler != nil {
		handler(string(data))
	}
	return nil
}

func (f *fakeTransport) SetReadLimit(limit int64) {}

func (f *fakeTransport) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeTransport) SetPongHandler(h func(appData string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pongHandler = h
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func newTestHub(gateway Gateway, opts Options) *Hub {
	return NewHub(gateway, nil, metrics.New(), opts)
}

// openClient registers a client directly, bypassing the Run loop.
func openClient(t *testing.T, h *Hub, id string, name string) *Client {
	t.Helper()
	c := NewClient(h, newFakeTransport(true), models.Identity{Id: id, Name: name})
	require.NoError(t, h.open(c))
	drain(c)
	return c
}

type wireMsg map[string]any

// drain returns everything currently queued for c.
func drain(c *Client) []wireMsg {
	var out []wireMsg
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var msg wireMsg
			if err := json.Unmarshal(data, &msg); err == nil {
				out = append(out, msg)
			}
		default:
			return out
		}
	}
}

func ofType(msgs []wireMsg, eventType string) []wireMsg {
	var out []wireMsg
	for _, m := range msgs {
		if m["type"] == eventType {
			out = append(out, m)
		}
	}
	return out
}

func send(h *Hub, c *Client, raw string) {
	event, err := Decode([]byte(raw))
	h.handleInbound(inbound{client: c, event: event, err: err})
}
