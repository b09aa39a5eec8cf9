package roomapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/sketchrelay/roomapi"
)

func TestGetRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/room/room-42":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"room":{"id":"room-42","slug":"abc","isPublic":false,"adminId":"u1","members":[{"userId":"u2"}],"extra":true}}`))
		case "/api/room/42":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"room":{"id":42,"slug":"xyz","isPublic":true,"adminId":"u1","members":[]}}`))
		case "/api/room/gone":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client, err := roomapi.NewClient(context.Background(), roomapi.Config{BaseURL: srv.URL + "/", Timeout: time.Second})
	require.NoError(t, err)

	room, err := client.GetRoom(context.Background(), "room-42")
	require.NoError(t, err)
	assert.Equal(t, "room-42", room.Id)
	assert.False(t, room.IsPublic)
	assert.Equal(t, "u1", room.AdminId)
	assert.True(t, room.HasMember("u2"))
	assert.True(t, room.HasMember("u1"))
	assert.False(t, room.HasMember("u3"))

	room, err = client.GetRoom(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", room.Id)
	assert.True(t, room.IsPublic)

	_, err = client.GetRoom(context.Background(), "gone")
	assert.True(t, errors.Is(err, roomapi.ErrRoomNotFound))

	_, err = client.GetRoom(context.Background(), "broken")
	assert.Error(t, err)
}

func TestGetRoom_ClientCredentials(t *testing.T) {
	var tokenRequests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok123","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/api/room/room-42", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"room":{"isPublic":true}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := roomapi.NewClient(context.Background(), roomapi.Config{
		BaseURL:      srv.URL,
		Timeout:      time.Second,
		ClientID:     "relay",
		ClientSecret: "s3cret",
		TokenURL:     srv.URL + "/oauth/token",
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		room, err := client.GetRoom(context.Background(), "room-42")
		require.NoError(t, err)
		assert.True(t, room.IsPublic)
		assert.Equal(t, "room-42", room.Id)
	}
	assert.Equal(t, int32(1), tokenRequests.Load())
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := roomapi.NewClient(context.Background(), roomapi.Config{})
	assert.Error(t, err)
}
