package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/sketchrelay/models"
)

func startClient(t *testing.T, ctx context.Context, h *Hub, transport *fakeTransport, id string) *Client {
	t.Helper()
	c := NewClient(h, transport, models.Identity{Id: id, Name: id})
	require.NoError(t, h.Register(c))
	go c.ReadPump(ctx)
	return c
}

func waitForMessage(t *testing.T, c *Client, eventType string) wireMsg {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case data, ok := <-c.Send:
			require.True(t, ok, "send channel closed while waiting for %s", eventType)
			var msg wireMsg
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg["type"] == eventType {
				return msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", eventType)
			return nil
		}
	}
}

func TestHeartbeat_EvictsSilentConnection(t *testing.T) {
	h := newTestHub(nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	deadTransport := newFakeTransport(false)
	aliveTransport := newFakeTransport(true)
	dead := startClient(t, ctx, h, deadTransport, "dead")
	alive := startClient(t, ctx, h, aliveTransport, "alive")

	deadTransport.inbox <- []byte(`{"type":"join_room","roomId":"r"}`)
	aliveTransport.inbox <- []byte(`{"type":"join_room","roomId":"r"}`)
	require.Eventually(t, func() bool { return len(h.Presence("r")) == 2 }, time.Second, 5*time.Millisecond)

	monitor := NewHeartbeatMonitor(h, time.Hour, 2, h.metrics)

	// Two unanswered probes are tolerated
	monitor.probe()
	monitor.probe()
	assert.False(t, deadTransport.isClosed())
	assert.Equal(t, 2, deadTransport.pingCount())

	monitor.probe()
	assert.True(t, deadTransport.isClosed())
	assert.False(t, aliveTransport.isClosed())
	assert.Equal(t, 3, aliveTransport.pingCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.HeartbeatEvictions))

	// Eviction runs the ordinary close path
	left := waitForMessage(t, alive, TypeUserLeft)
	assert.Equal(t, "dead", left["id"])
	assert.Equal(t, "r", left["roomId"])

	require.Eventually(t, func() bool { return len(h.Connections()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, alive.id, h.Connections()[0].id)
	assert.False(t, dead.IsOpen())
}

func TestHeartbeat_RunLoop(t *testing.T) {
	h := newTestHub(nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	deadTransport := newFakeTransport(false)
	startClient(t, ctx, h, deadTransport, "dead")
	startClient(t, ctx, h, newFakeTransport(true), "alive")

	go NewHeartbeatMonitor(h, 10*time.Millisecond, 2, h.metrics).Run(ctx)

	require.Eventually(t, deadTransport.isClosed, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.Connections()) == 1 }, time.Second, 5*time.Millisecond)
}
