package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/zlnvch/sketchrelay/models"
	"github.com/zlnvch/sketchrelay/service"
)

// PresenceSource reports who is connected to a room on this instance.
type PresenceSource interface {
	Presence(roomId string) []models.PresenceMember
}

type Handler struct {
	Service  *service.Service
	Presence PresenceSource
}

func NewHandler(svc *service.Service, presence PresenceSource) *Handler {
	return &Handler{Service: svc, Presence: presence}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/rooms/{roomId}", func(rr chi.Router) {
		rr.Get("/presence", h.HandlePresence)
		rr.Get("/chat", h.HandleChatHistory)
		rr.Get("/canvas", h.HandleCanvas)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

type presenceResponse struct {
	RoomId  string                  `json:"roomId"`
	Members []models.PresenceMember `json:"members"`
}

type chatHistoryResponse struct {
	RoomId   string               `json:"roomId"`
	Messages []models.ChatMessage `json:"messages"`
}

// GET /rooms/{roomId}/presence
func (h *Handler) HandlePresence(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "roomId")
	h.sendResponse(w, http.StatusOK, presenceResponse{RoomId: roomId, Members: h.Presence.Presence(roomId)})
}

// GET /rooms/{roomId}/chat?limit=N
func (h *Handler) HandleChatHistory(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "roomId")

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.sendResponse(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	messages, err := h.Service.ChatHistory(r.Context(), roomId, limit)
	if err != nil {
		slog.Error("chat history failed", "room", roomId, "err", err)
		h.sendResponse(w, http.StatusInternalServerError, errorResponse{Error: "failed to load chat history"})
		return
	}

	h.sendResponse(w, http.StatusOK, chatHistoryResponse{RoomId: roomId, Messages: messages})
}

// GET /rooms/{roomId}/canvas
func (h *Handler) HandleCanvas(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "roomId")

	snapshot, err := h.Service.GetCanvas(r.Context(), roomId)
	switch {
	case errors.Is(err, service.ErrCanvasNotFound):
		h.sendResponse(w, http.StatusNotFound, errorResponse{Error: "canvas not found"})
		return
	case errors.Is(err, service.ErrPersistenceDisabled):
		h.sendResponse(w, http.StatusNotImplemented, errorResponse{Error: "persistence disabled"})
		return
	case err != nil:
		slog.Error("get canvas failed", "room", roomId, "err", err)
		h.sendResponse(w, http.StatusInternalServerError, errorResponse{Error: "failed to load canvas"})
		return
	}

	h.sendResponse(w, http.StatusOK, snapshot)
}

func (h *Handler) sendResponse(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}
