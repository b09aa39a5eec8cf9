package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/sketchrelay/metrics"
)

// HeartbeatMonitor pings every connection on a fixed interval and closes
// the ones that stop answering. A pong resets the client's missed count.
type HeartbeatMonitor struct {
	hub       *Hub
	interval  time.Duration
	threshold int32
	metrics   *metrics.Metrics
}

func NewHeartbeatMonitor(hub *Hub, interval time.Duration, threshold int, m *metrics.Metrics) *HeartbeatMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if threshold <= 0 {
		threshold = 2
	}
	return &HeartbeatMonitor{
		hub:       hub,
		interval:  interval,
		threshold: int32(threshold),
		metrics:   m,
	}
}

func (hm *HeartbeatMonitor) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(hm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hm.probe()
		case <-shutdownCtx.Done():
			return
		}
	}
}

func (hm *HeartbeatMonitor) probe() {
	for _, c := range hm.hub.Connections() {
		// Unanswered probes, counting the one about to go out
		missed := c.missed.Add(1)
		if missed > hm.threshold {
			slog.Info("evicting unresponsive connection", "conn", c.id, "participant", c.identity.Id, "missed", missed-1)
			hm.metrics.HeartbeatEvictions.Inc()
			c.closeTransport()
			continue
		}

		if !c.IsOpen() {
			continue
		}
		if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			slog.Debug("heartbeat ping failed", "conn", c.id, "err", err)
		}
	}
}
