package ws

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/sketchrelay/models"
)

type IdentityResolver interface {
	ResolveIdentity(token string, guestName string) (models.Identity, error)
}

type Handler struct {
	Identities IdentityResolver
	Hub        *Hub
}

func NewHandler(identities IdentityResolver, hub *Hub) *Handler {
	return &Handler{
		Identities: identities,
		Hub:        hub,
	}
}

// NewWsUpgrader accepts any origin when allowedOrigins is empty.
func (h *Handler) NewWsUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		},
	}
}

// ServeWS handles websocket requests from the peer.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	query := r.URL.Query()
	identity, authErr := h.Identities.ResolveIdentity(query.Get("token"), query.Get("guestName"))

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("failed to upgrade ws connection", "err", err)
		return
	}

	// Must upgrade the connection in order to be able to send custom close message
	if authErr != nil {
		h.Hub.metrics.AdmissionRejections.WithLabelValues("unauthenticated").Inc()
		refuse(conn, nil, "Unauthenticated")
		return
	}

	client := NewClient(h.Hub, conn, identity)
	if err := h.Hub.Register(client); err != nil {
		refuse(conn, encodeError(err.Error()), err.Error())
		return
	}

	go client.ReadPump(shutdownCtx)
	go client.WritePump(shutdownCtx)
}

func refuse(conn Transport, message []byte, reason string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if message != nil {
		conn.WriteMessage(websocket.TextMessage, message)
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
	)
	conn.Close()
}
