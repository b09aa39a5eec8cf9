package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/sketchrelay/api"
	"github.com/zlnvch/sketchrelay/config"
	storemocks "github.com/zlnvch/sketchrelay/store/mocks"
)

func testConfig() *config.Config {
	return &config.Config{
		Auth:    config.Auth{Secret: []byte("secret")},
		Workers: config.Workers{ChatBacklog: 8},
	}
}

func TestWaitForWorkers_FinishAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	relayAPI, err := api.NewRelayAPI(testConfig(), api.Deps{Store: new(storemocks.MockStore)}, "test", ctx)
	require.NoError(t, err)

	assert.False(t, relayAPI.WaitForWorkers(20*time.Millisecond))

	cancel()
	assert.True(t, relayAPI.WaitForWorkers(2*time.Second))
}

func TestWaitForWorkers_NoStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relayAPI, err := api.NewRelayAPI(testConfig(), api.Deps{}, "test", ctx)
	require.NoError(t, err)

	assert.True(t, relayAPI.WaitForWorkers(time.Second))
}

func TestRouter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relayAPI, err := api.NewRelayAPI(testConfig(), api.Deps{}, "test", ctx)
	require.NoError(t, err)
	router := relayAPI.Router()

	for path, want := range map[string]int{
		"/health":                 http.StatusOK,
		"/metrics":                http.StatusOK,
		"/rooms/room-42/presence": http.StatusOK,
		"/rooms/room-42/canvas":   http.StatusNotImplemented,
		"/nope":                   http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}
