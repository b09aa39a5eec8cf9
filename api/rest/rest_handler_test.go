package rest_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/sketchrelay/api/rest"
	"github.com/zlnvch/sketchrelay/models"
	"github.com/zlnvch/sketchrelay/service"
	"github.com/zlnvch/sketchrelay/store"
	storemocks "github.com/zlnvch/sketchrelay/store/mocks"
)

type staticPresence map[string][]models.PresenceMember

func (p staticPresence) Presence(roomId string) []models.PresenceMember {
	if members, ok := p[roomId]; ok {
		return members
	}
	return []models.PresenceMember{}
}

func setupRouter(t *testing.T, relayStore store.RelayStore) http.Handler {
	svc, err := service.NewService(relayStore, nil, nil, nil, nil, []byte("secret"))
	require.NoError(t, err)

	presence := staticPresence{
		"room-42": {{Id: "user1", ConnectionId: "c1", Name: "Alice", Color: "#FF6B6B"}},
	}

	r := chi.NewRouter()
	rest.NewHandler(svc, presence).Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHandlePresence(t *testing.T) {
	router := setupRouter(t, nil)

	rec, body := do(t, router, "/rooms/room-42/presence")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "room-42", body["roomId"])
	members := body["members"].([]any)
	require.Len(t, members, 1)
	assert.Equal(t, "Alice", members[0].(map[string]any)["name"])

	_, body = do(t, router, "/rooms/empty/presence")
	assert.Empty(t, body["members"])
}

func TestHandleChatHistory(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	router := setupRouter(t, mockStore)

	mockStore.On("GetChatHistory", mock.Anything, "room-42", 10).Return([]models.ChatMessage{{Id: "m1", RoomId: "room-42", Text: "hi"}}, nil)

	rec, body := do(t, router, "/rooms/room-42/chat?limit=10")
	assert.Equal(t, http.StatusOK, rec.Code)
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].(map[string]any)["text"])

	rec, _ = do(t, router, "/rooms/room-42/chat?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatHistory_StoreError(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	router := setupRouter(t, mockStore)
	mockStore.On("GetChatHistory", mock.Anything, "room-42", 50).Return([]models.ChatMessage{}, errors.New("boom"))

	rec, body := do(t, router, "/rooms/room-42/chat")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestHandleCanvas(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	router := setupRouter(t, mockStore)

	mockStore.On("GetCanvas", mock.Anything, "room-42").Return(models.CanvasSnapshot{
		RoomId:   "room-42",
		Elements: json.RawMessage(`[{"id":"e1"}]`),
		Version:  4,
	}, nil)
	mockStore.On("GetCanvas", mock.Anything, "room-0").Return(models.CanvasSnapshot{}, store.ErrItemNotFound)

	rec, body := do(t, router, "/rooms/room-42/canvas")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), body["version"])

	rec, _ = do(t, router, "/rooms/room-0/canvas")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCanvas_NoStore(t *testing.T) {
	router := setupRouter(t, nil)

	rec, _ := do(t, router, "/rooms/room-42/canvas")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
